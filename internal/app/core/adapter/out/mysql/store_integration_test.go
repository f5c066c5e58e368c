package mysql_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	mysqlstore "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/storetest"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

// TestStoreIntegration 啟動 MySQL 容器，建表後跑共用的帳本測試
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, cfg := startMySQLContainer(t, ctx)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate mysql container: %v", err)
		}
	}()

	client, err := mysql.NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	store := mysqlstore.NewStore(client)
	require.NoError(t, store.Migrate(ctx))

	storetest.Run(t, store)
}

func startMySQLContainer(t *testing.T, ctx context.Context) (testcontainers.Container, mysql.Config) {
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "root",
			"MYSQL_DATABASE":      "ledger",
			"MYSQL_USER":          "testuser",
			"MYSQL_PASSWORD":      "testpass",
		},
		// 初始化期間的暫時 server 監聽 port 0，正式啟動後才是 3306
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start mysql container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := mysql.Config{
		URL:           fmt.Sprintf("testuser:testpass@tcp(%s:%s)/ledger?charset=utf8mb4&parseTime=True&loc=UTC", host, port.Port()),
		MaxRetries:    15,
		RetryInterval: time.Second,
		LogLevel:      "silent",
	}
	return container, cfg
}
