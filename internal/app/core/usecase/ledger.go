package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的介面
type Ledger interface {
	// PostOperation 不分 Deposit/Withdraw/Transfer，直接看 op.Type 決定
	// 同一個 op.ID 重送時回傳原本的分錄，Receipt.Replayed 為 true
	PostOperation(ctx context.Context, op *domain.Operation) (*domain.Receipt, error)
	// GetAccount 取得帳戶 (含餘額)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	// ListTransactions 取得帳戶分錄，由新到舊
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error)
}

// Directory 客戶與帳戶資料
type Directory interface {
	CreateClient(ctx context.Context, client *domain.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error)
	GetClientByEmail(ctx context.Context, email string) (*domain.Client, error)
	ListClients(ctx context.Context) ([]*domain.Client, error)
	UpdateClient(ctx context.Context, client *domain.Client) error
	// DeleteClient 名下仍有帳戶時回傳 domain.ErrClientHasAccounts
	DeleteClient(ctx context.Context, id uuid.UUID) error

	// CreateAccount 持有人不存在時回傳 domain.ErrClientNotFound
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	ListAccounts(ctx context.Context, clientID uuid.UUID) ([]*domain.Account, error)
	// DeleteAccount 同時移除帳戶的分錄
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// Store 完整的儲存層 (memory / mysql / postgres)
type Store interface {
	Ledger
	Directory
}

// EventPublisher 將已提交的交易送往外部系統
type EventPublisher interface {
	PublishTransactionPosted(ctx context.Context, receipt *domain.Receipt) error
}
