package mysql

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client 持有帳本使用的 GORM 連線
type Client struct {
	db *gorm.DB
}

// NewClient 連線 MySQL，失敗時每隔 RetryInterval 重試，最多 MaxRetries 次
// 容器啟動時資料庫常比服務晚就緒
//
// 參數:
//
//	cfg: Config - 連線設定，未設定的欄位套用 SetDefaults
//
// 回傳值:
//
//	*Client: 已通過 Ping 並設定好連線池的客戶端
//	error: 重試次數用完仍無法連線
func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	gormConfig := &gorm.Config{
		// 帳務寫入一律自行開 Transaction
		SkipDefaultTransaction: true,
		// 唯一鍵衝突轉成 gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         logger.Default.LogMode(logLevel(cfg.LogLevel)),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	var db *gorm.DB
	err := retry(cfg.MaxRetries, cfg.RetryInterval, func() error {
		var err error
		db, err = open(cfg.DSN(), gormConfig)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", cfg.MaxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Client{db: db}, nil
}

// open 建立連線池並 Ping，Ping 失敗時關閉已開啟的連線池
func open(dsn string, gormConfig *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// retry 執行 fn 直到成功或用完 attempts 次，回傳最後一次的錯誤
func retry(attempts int, interval time.Duration, fn func() error) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts {
			log.Printf("mysql: connect attempt %d/%d failed: %v, retrying in %v", i, attempts, err, interval)
			time.Sleep(interval)
		}
	}
	return err
}

// DB 回傳 *gorm.DB，呼叫端自行加上 WithContext
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Close 關閉連線池
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// logLevel 設定檔的 LOG_LEVEL 對應 GORM 的記錄等級，未知的值只記錄錯誤
func logLevel(level string) logger.LogLevel {
	switch level {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "silent":
		return logger.Silent
	default:
		return logger.Error
	}
}
