package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-bank-ledger/internal/config"
	"github.com/JoeShih716/go-bank-ledger/pkg/grpc"
	"github.com/JoeShih716/go-bank-ledger/pkg/token"
)

func main() {
	target := flag.String("target", "localhost:50051", "gRPC server address")
	configPath := flag.String("config", "config/config.yaml", "config file used to mint the access token")
	clientID := flag.String("client", "", "client id the token is issued for (owner of -account)")
	accountID := flag.String("account", "", "account id to deposit into")
	totalCount := flag.Int("n", 10000, "number of deposits")
	concurrency := flag.Int("c", 100, "concurrent requests")
	amount := flag.String("amount", "1.00", "amount per deposit")
	timeout := flag.Duration("timeout", 5*time.Second, "per-request timeout")
	keepaliveTime := flag.Duration("keepalive", 10*time.Second, "client keepalive ping interval")
	flag.Parse()

	if _, err := uuid.Parse(*clientID); err != nil {
		log.Fatalf("invalid -client: %v", err)
	}
	if _, err := uuid.Parse(*accountID); err != nil {
		log.Fatalf("invalid -account: %v", err)
	}
	perDeposit, err := decimal.NewFromString(*amount)
	if err != nil {
		log.Fatalf("invalid -amount: %v", err)
	}

	// 與伺服器共用 SECRET_KEY 直接簽發 Token
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	tokens, err := token.NewManager(cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to init token manager: %v", err)
	}
	accessToken, _, err := tokens.Issue(*clientID)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	pool := grpc.NewPool(
		grpc.WithInterceptor(grpc_adapter.BearerToken(accessToken)),
		grpc.WithKeepalive(keepalive.ClientParameters{
			Time:                *keepaliveTime,
			Timeout:             time.Second,
			PermitWithoutStream: true,
		}),
	)
	defer pool.Close()
	conn, err := pool.GetConnection(*target)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	c := grpc_adapter.NewLedgerClient(conn)

	ctx := context.Background()
	before := getBalance(ctx, c, *accountID, *timeout)

	var (
		wg      sync.WaitGroup
		failed  atomic.Int64
		mu      sync.Mutex
		unknown []string
	)
	sem := make(chan struct{}, *concurrency)
	startTime := time.Now()

	for i := 0; i < *totalCount; i++ {
		sem <- struct{}{}
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			opID := uuid.NewString()
			err := deposit(ctx, c, opID, *accountID, *amount, *timeout)
			switch {
			case err == nil:
			case isUnknownOutcome(err):
				// 逾時的請求可能已入帳，結束後以同一個 Operation ID 重送確認
				mu.Lock()
				unknown = append(unknown, opID)
				mu.Unlock()
			default:
				failed.Add(1)
				if idx%1000 == 0 {
					log.Printf("Deposit %d failed: %v", idx, err)
				}
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(startTime)

	// 重送不會重複入帳，成功即代表該筆已生效
	unresolved := 0
	for _, opID := range unknown {
		if err := deposit(ctx, c, opID, *accountID, *amount, *timeout); err != nil {
			log.Printf("Deposit %s still unknown: %v", opID, err)
			unresolved++
		}
	}
	if unresolved > 0 {
		log.Fatalf("%d deposits with unknown outcome, balance not verified", unresolved)
	}

	after := getBalance(ctx, c, *accountID, *timeout)

	// 驗證餘額：成功筆數 * 金額 應等於餘額差
	succeeded := int64(*totalCount) - failed.Load()
	beforeBalance := mustDecimal(before.Balance)
	afterBalance := mustDecimal(after.Balance)
	expected := beforeBalance.Add(perDeposit.Mul(decimal.NewFromInt(succeeded)))

	fmt.Printf("Completed %d requests in %v (%d failed, %d retried)\n", *totalCount, elapsed, failed.Load(), len(unknown))
	fmt.Printf("TPS: %.2f\n", float64(*totalCount)/elapsed.Seconds())
	fmt.Printf("Balance: %s -> %s %s\n", before.Balance, after.Balance, after.Currency)
	if !afterBalance.Equal(expected) {
		log.Fatalf("balance mismatch: expected %s, got %s", expected.StringFixed(2), after.Balance)
	}
}

func deposit(ctx context.Context, c *grpc_adapter.LedgerClient, opID, accountID, amount string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.Deposit(ctx, &grpc_adapter.MovementRequest{
		OperationID: opID,
		AccountID:   accountID,
		Amount:      amount,
		Description: "loadgen",
	})
	return err
}

func getBalance(ctx context.Context, c *grpc_adapter.LedgerClient, accountID string, timeout time.Duration) *grpc_adapter.GetBalanceResponse {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := c.GetBalance(ctx, &grpc_adapter.GetBalanceRequest{AccountID: accountID})
	if err != nil {
		log.Fatalf("GetBalance failed: %v", err)
	}
	return resp
}

// isUnknownOutcome 用戶端放棄等待，伺服器端可能已經提交
func isUnknownOutcome(err error) bool {
	switch status.Code(err) {
	case codes.DeadlineExceeded, codes.Canceled, codes.Unavailable:
		return true
	}
	return false
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("invalid balance %q: %v", s, err)
	}
	return d
}
