package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/rabbitmq"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
	"github.com/JoeShih716/go-bank-ledger/pkg/postgres"
	"github.com/JoeShih716/go-bank-ledger/pkg/token"
)

// 儲存層種類
const (
	StorageMemory   = "memory"
	StorageMySQL    = "mysql"
	StoragePostgres = "postgres"
)

// Config 服務設定
type Config struct {
	Storage  string `yaml:"storage"`
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	// WALPath 只有 memory 儲存層使用，空字串表示不落地
	WALPath string `yaml:"wal_path"`

	MySQL    mysql.Config    `yaml:"mysql"`
	Postgres postgres.Config `yaml:"postgres"`
	// RabbitMQ.URL 為空時不發布事件
	RabbitMQ rabbitmq.Config `yaml:"rabbitmq"`
	Auth     token.Config    `yaml:"auth"`
}

// Load 讀取 YAML 設定檔，補上預設值後以環境變數覆寫
// path 為空字串時只使用預設值與環境變數
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.setDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Storage == "" {
		c.Storage = StorageMemory
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.GRPCAddr == "" {
		c.GRPCAddr = ":50051"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = rabbitmq.DefaultExchange
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = rabbitmq.DefaultRoutingKey
	}
	if c.Auth.Algorithm == "" {
		c.Auth.Algorithm = "HS256"
	}
	if c.Auth.ExpireMinutes == 0 {
		c.Auth.ExpireMinutes = 30
	}
	c.MySQL.SetDefaults()
	c.Postgres.SetDefaults()
}

// applyEnv 環境變數優先於設定檔
func (c *Config) applyEnv() error {
	c.Storage = getEnv("STORAGE", c.Storage)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("GRPC_ADDR", c.GRPCAddr)
	c.WALPath = getEnv("WAL_PATH", c.WALPath)
	c.RabbitMQ.URL = getEnv("RABBITMQ_URL", c.RabbitMQ.URL)
	c.Auth.SecretKey = getEnv("SECRET_KEY", c.Auth.SecretKey)
	c.Auth.Algorithm = getEnv("ALGORITHM", c.Auth.Algorithm)

	if raw := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return fmt.Errorf("invalid ACCESS_TOKEN_EXPIRE_MINUTES %q", raw)
		}
		c.Auth.ExpireMinutes = minutes
	}

	// DATABASE_URL 依儲存層套用到對應的設定
	if url := os.Getenv("DATABASE_URL"); url != "" {
		switch c.Storage {
		case StorageMySQL:
			c.MySQL.URL = url
		case StoragePostgres:
			c.Postgres.URL = url
		}
	}
	return nil
}

// Validate 檢查設定是否可用
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageMySQL:
	case StoragePostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres storage requires DATABASE_URL or postgres.url")
		}
	default:
		return fmt.Errorf("unknown storage %q (want memory, mysql or postgres)", c.Storage)
	}
	if c.Auth.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
