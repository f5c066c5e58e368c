package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/rest"
	memory_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/rabbitmq"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/internal/config"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
	"github.com/JoeShih716/go-bank-ledger/pkg/postgres"
	"github.com/JoeShih716/go-bank-ledger/pkg/token"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// shutdownTimeout 關機時等待進行中請求的上限
const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file (empty = env only)")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化儲存層
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to init %s storage: %v", cfg.Storage, err)
	}
	defer closeStore()
	log.Printf("Using %s storage", cfg.Storage)

	// 3. 事件發布 (Optional)
	var publisher usecase.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQ)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer p.Close()
		publisher = p
		log.Printf("Publishing ledger events to exchange %s", cfg.RabbitMQ.Exchange)
	}

	// 4. 初始化 UseCase
	tokens, err := token.NewManager(cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to init token manager: %v", err)
	}
	ledgerService := usecase.NewLedgerService(store, publisher)
	accountService := usecase.NewAccountService(store)
	authService := usecase.NewAuthService(store, tokens)

	// 5. HTTP Server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rest.NewHandler(ledgerService, accountService, authService).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 6. gRPC Server
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpc_adapter.AuthInterceptor(authService)),
		// 允許用戶端在沒有進行中請求時每 5 秒以上送一次 keepalive ping
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	grpc_adapter.RegisterLedgerServiceServer(grpcServer, grpc_adapter.NewGrpcServer(ledgerService, accountService))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	go func() {
		log.Printf("Starting gRPC server on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("failed to serve: %v", err)
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()
	log.Println("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	grpcServer.GracefulStop()

	// 等待尚未送出的事件
	ledgerService.Wait()
	log.Println("Server exited")
}

// openStore 依設定建立儲存層，回傳的 close 函式負責釋放連線或 WAL
func openStore(ctx context.Context, cfg *config.Config) (usecase.Store, func(), error) {
	switch cfg.Storage {
	case config.StorageMySQL:
		dbClient, err := mysql.NewClient(cfg.MySQL)
		if err != nil {
			return nil, nil, err
		}
		log.Println("Connected to MySQL successfully")
		store := mysql_adapter.NewStore(dbClient)
		if err := store.Migrate(ctx); err != nil {
			dbClient.Close()
			return nil, nil, err
		}
		return store, func() { dbClient.Close() }, nil

	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		log.Println("Connected to PostgreSQL successfully")
		store := postgres_adapter.NewStore(pool.Pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		var walFile *wal.WAL
		if cfg.WALPath != "" {
			var err error
			walFile, err = wal.NewWAL(cfg.WALPath)
			if err != nil {
				return nil, nil, err
			}
		}
		store, err := memory_adapter.NewStore(walFile)
		if err != nil {
			if walFile != nil {
				walFile.Close()
			}
			return nil, nil, err
		}
		return store, func() {
			if walFile != nil {
				walFile.Close()
			}
		}, nil
	}
}
