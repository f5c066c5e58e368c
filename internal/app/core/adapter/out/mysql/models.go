package mysql

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// sqlClient 對應資料庫的 clients 表
type sqlClient struct {
	ID           string    `gorm:"primaryKey;type:char(36)"`
	Name         string    `gorm:"type:varchar(255);not null"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `gorm:"type:varchar(255)"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (*sqlClient) TableName() string {
	return "clients"
}

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID        string          `gorm:"primaryKey;type:char(36)"`
	ClientID  string          `gorm:"type:char(36);not null;index"`
	Number    string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	Type      string          `gorm:"type:varchar(32);not null"`
	Currency  string          `gorm:"type:char(3);not null"`
	Balance   decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlOperation 對應資料庫的 operations 表，保存每個 Operation ID 的原始請求
// 不設外鍵，帳戶刪除後仍能判斷 ID 是否被重複使用
type sqlOperation struct {
	ID            string          `gorm:"primaryKey;type:char(36)"`
	Type          string          `gorm:"type:varchar(16);not null"`
	FromAccountID string          `gorm:"type:char(36)"`
	ToAccountID   string          `gorm:"type:char(36)"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Description   string          `gorm:"type:varchar(255)"`
	CreatedAt     time.Time       `gorm:"not null"`
}

func (*sqlOperation) TableName() string {
	return "operations"
}

// sqlTransaction 對應資料庫的 transactions 表
// Sequence 為自增主鍵，同一時間點的分錄以此排序
type sqlTransaction struct {
	Sequence       uint64          `gorm:"primaryKey;autoIncrement"`
	ID             string          `gorm:"type:char(36);not null;uniqueIndex"`
	OperationID    string          `gorm:"type:char(36);not null;index"`
	AccountID      string          `gorm:"type:char(36);not null;index:idx_transactions_account_created,priority:1"`
	CounterpartyID string          `gorm:"type:char(36)"`
	Type           string          `gorm:"type:varchar(16);not null"`
	Direction      string          `gorm:"type:varchar(8);not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	BalanceAfter   decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Description    string          `gorm:"type:varchar(255)"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_transactions_account_created,priority:2"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

func toSQLClient(c *domain.Client) *sqlClient {
	return &sqlClient{
		ID:           c.ID.String(),
		Name:         c.Name,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		CreatedAt:    c.CreatedAt,
	}
}

func (c *sqlClient) toDomain() *domain.Client {
	return &domain.Client{
		ID:           uuid.MustParse(c.ID),
		Name:         c.Name,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		CreatedAt:    c.CreatedAt.UTC(),
	}
}

func toSQLAccount(a *domain.Account) *sqlAccount {
	return &sqlAccount{
		ID:        a.ID.String(),
		ClientID:  a.ClientID.String(),
		Number:    a.Number,
		Type:      a.Type,
		Currency:  a.Currency,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (a *sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:        uuid.MustParse(a.ID),
		ClientID:  uuid.MustParse(a.ClientID),
		Number:    a.Number,
		Type:      a.Type,
		Currency:  a.Currency,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func toSQLOperation(op *domain.Operation) *sqlOperation {
	row := &sqlOperation{
		ID:          op.ID.String(),
		Type:        string(op.Type),
		Amount:      op.Amount,
		Description: op.Description,
		CreatedAt:   op.CreatedAt.UTC(),
	}
	if op.From != uuid.Nil {
		row.FromAccountID = op.From.String()
	}
	if op.To != uuid.Nil {
		row.ToAccountID = op.To.String()
	}
	return row
}

func (o *sqlOperation) toDomain() *domain.Operation {
	op := &domain.Operation{
		ID:          uuid.MustParse(o.ID),
		Type:        domain.OperationType(o.Type),
		Amount:      o.Amount,
		Description: o.Description,
		CreatedAt:   o.CreatedAt.UTC(),
	}
	if o.FromAccountID != "" {
		op.From = uuid.MustParse(o.FromAccountID)
	}
	if o.ToAccountID != "" {
		op.To = uuid.MustParse(o.ToAccountID)
	}
	return op
}

func toSQLTransaction(t *domain.Transaction) *sqlTransaction {
	row := &sqlTransaction{
		ID:           t.ID.String(),
		OperationID:  t.OperationID.String(),
		AccountID:    t.AccountID.String(),
		Type:         string(t.Type),
		Direction:    string(t.Direction),
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
		Description:  t.Description,
		CreatedAt:    t.CreatedAt,
	}
	if t.CounterpartyID != uuid.Nil {
		row.CounterpartyID = t.CounterpartyID.String()
	}
	return row
}

func (t *sqlTransaction) toDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ID:           uuid.MustParse(t.ID),
		Sequence:     t.Sequence,
		OperationID:  uuid.MustParse(t.OperationID),
		AccountID:    uuid.MustParse(t.AccountID),
		Type:         domain.OperationType(t.Type),
		Direction:    domain.Direction(t.Direction),
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
		Description:  t.Description,
		CreatedAt:    t.CreatedAt.UTC(),
	}
	if t.CounterpartyID != "" {
		tx.CounterpartyID = uuid.MustParse(t.CounterpartyID)
	}
	return tx
}
