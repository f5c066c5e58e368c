package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

// Store 以 MySQL (GORM) 實作的帳本
// 每筆交易在單一 DB Transaction 內以 SELECT ... FOR UPDATE 悲觀鎖定帳戶
type Store struct {
	client *mysql.Client
	now    func() time.Time
}

func NewStore(client *mysql.Client) *Store {
	return &Store{
		client: client,
		now:    time.Now,
	}
}

// maxPostAttempts 同一個 Operation ID 併發寫入時，輸的一方重試一次即可讀到先前的紀錄
const maxPostAttempts = 2

// errOperationRace 其他 DB Transaction 已先寫入同一個 Operation ID
var errOperationRace = errors.New("operation id inserted concurrently")

// Migrate 建立資料表 (clients / accounts / operations / transactions)
func (s *Store) Migrate(ctx context.Context) error {
	return s.db(ctx).AutoMigrate(&sqlClient{}, &sqlAccount{}, &sqlOperation{}, &sqlTransaction{})
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.client.DB().WithContext(ctx)
}

// PostOperation 處理交易
func (s *Store) PostOperation(ctx context.Context, op *domain.Operation) (*domain.Receipt, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = s.now().UTC()
	}

	var (
		receipt *domain.Receipt
		err     error
	)
	for attempt := 0; attempt < maxPostAttempts; attempt++ {
		receipt, err = s.postOnce(ctx, op)
		if !errors.Is(err, errOperationRace) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, errOperationRace) {
			return nil, domain.ErrIdempotencyConflict
		}
		return nil, err
	}
	return receipt, nil
}

// postOnce 在單一 DB Transaction 內處理交易
func (s *Store) postOnce(ctx context.Context, op *domain.Operation) (*domain.Receipt, error) {
	var receipt *domain.Receipt
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		// 取得鎖定帳號 以及 lockID 悲觀鎖，依 id 排序避免死鎖
		lockIDs := op.LockIDs()
		accounts, err := lockAccounts(tx, lockIDs)
		if err != nil {
			return err
		}

		// 鎖定帳戶後再檢查是否有這筆交易記錄，重送的請求會在此序列化
		var prev sqlOperation
		err = tx.Where("id = ?", op.ID.String()).Take(&prev).Error
		switch {
		case err == nil:
			receipt, err = replay(tx, op, prev.toDomain(), accounts, len(lockIDs))
			return err
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to check operation %s: %w", op.ID, err)
		}

		legs, err := op.Apply(accounts, s.now())
		if err != nil {
			return err
		}

		// 先寫入 Operation，主鍵衝突代表同 ID 的請求已在其他 DB Transaction 完成
		if err := tx.Create(toSQLOperation(op)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errOperationRace
			}
			return fmt.Errorf("failed to insert operation: %w", err)
		}

		// 更新餘額
		for _, account := range accounts {
			if err := tx.Model(&sqlAccount{}).
				Where("id = ?", account.ID.String()).
				Updates(map[string]any{"balance": account.Balance, "updated_at": account.UpdatedAt}).Error; err != nil {
				return fmt.Errorf("failed to update account %s: %w", account.ID, err)
			}
		}

		// 建立分錄
		rows := make([]*sqlTransaction, 0, len(legs))
		for _, leg := range legs {
			rows = append(rows, toSQLTransaction(leg))
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert transactions: %w", err)
		}
		for i, row := range rows {
			legs[i].Sequence = row.Sequence
		}

		// 提交前檢查呼叫端是否已取消
		if err := ctx.Err(); err != nil {
			return err
		}
		receipt = newReceipt(op, legs, accounts, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// replay 同一個 ID 已處理過：請求相同時回傳原分錄與帳戶目前的快照
// 任一帳戶已刪除時回傳 ErrAccountNotFound
func replay(tx *gorm.DB, op, prev *domain.Operation, accounts map[uuid.UUID]*domain.Account, want int) (*domain.Receipt, error) {
	if !op.SameRequest(prev) {
		return nil, domain.ErrIdempotencyConflict
	}
	if len(accounts) != want {
		return nil, domain.ErrAccountNotFound
	}
	var existing []sqlTransaction
	if err := tx.Where("operation_id = ?", op.ID.String()).Order("sequence").Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load operation %s: %w", op.ID, err)
	}
	return newReceipt(op, toDomainTransactions(existing), accounts, true), nil
}

// GetAccount 取得帳戶
func (s *Store) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var row sqlAccount
	err := s.db(ctx).Where("id = ?", accountID.String()).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return row.toDomain(), nil
}

// ListTransactions 取得帳戶分錄，由新到舊
func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	var rows []sqlTransaction
	err := s.db(ctx).
		Where("account_id = ?", accountID.String()).
		Order("created_at DESC").
		Order("sequence DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return toDomainTransactions(rows), nil
}

// lockAccounts 以 FOR UPDATE 鎖定帳戶，不存在的帳戶不會出現在結果中
func lockAccounts(tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	var rows []sqlAccount
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", keys).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	accounts := make(map[uuid.UUID]*domain.Account, len(rows))
	for i := range rows {
		a := rows[i].toDomain()
		accounts[a.ID] = a
	}
	return accounts, nil
}

func toDomainTransactions(rows []sqlTransaction) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out
}

func newReceipt(op *domain.Operation, legs []*domain.Transaction, accounts map[uuid.UUID]*domain.Account, replayed bool) *domain.Receipt {
	snapshot := make(map[uuid.UUID]*domain.Account, len(accounts))
	for id, a := range accounts {
		snapshot[id] = a.Clone()
	}
	return &domain.Receipt{
		Operation: op,
		Legs:      legs,
		Accounts:  snapshot,
		Replayed:  replayed,
	}
}

var _ usecase.Store = (*Store)(nil)
