package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// Store 以 PostgreSQL (pgx) 實作的帳本
// 交易在同一個 DB Transaction 內依 id 順序以 FOR UPDATE 鎖定帳戶
type Store struct {
	tm  *TransactionManager
	now func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		tm:  NewTransactionManager(pool),
		now: time.Now,
	}
}

const accountColumns = `id, client_id, number, account_type, currency, balance::text, created_at, updated_at`

const operationColumns = `id, type, from_account_id, to_account_id, amount::text, description, created_at`

// maxPostAttempts 同一個 Operation ID 併發寫入時，輸的一方重試一次即可讀到先前的紀錄
const maxPostAttempts = 2

// errOperationRace 其他 DB Transaction 已先寫入同一個 Operation ID
var errOperationRace = errors.New("operation id inserted concurrently")

const transactionColumns = `sequence, id, operation_id, account_id, counterparty_id, type, direction,
	amount::text, balance_after::text, description, created_at`

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
	err := s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		lockIDs := op.LockIDs()
		accounts := make(map[uuid.UUID]*domain.Account, len(lockIDs))
		for _, id := range lockIDs {
			account, err := s.lockAccount(ctx, id)
			if err != nil {
				if errors.Is(err, domain.ErrAccountNotFound) {
					continue
				}
				return err
			}
			accounts[id] = account
		}

		prev, err := s.getOperation(ctx, op.ID)
		if err != nil {
			return err
		}
		if prev != nil {
			receipt, err = s.replay(ctx, op, prev, accounts, len(lockIDs))
			return err
		}

		legs, err := op.Apply(accounts, s.now())
		if err != nil {
			return err
		}

		// 先寫入 Operation，主鍵衝突代表同 ID 的請求已在其他 DB Transaction 完成
		if err := s.insertOperation(ctx, op); err != nil {
			return err
		}

		for _, account := range accounts {
			if _, err := s.tm.querier(ctx).Exec(ctx,
				`UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`,
				account.ID, account.Balance.String(), account.UpdatedAt); err != nil {
				return fmt.Errorf("failed to update account %s: %w", account.ID, err)
			}
		}

		for _, leg := range legs {
			if err := s.insertTransaction(ctx, leg); err != nil {
				return err
			}
		}

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
func (s *Store) replay(ctx context.Context, op, prev *domain.Operation, accounts map[uuid.UUID]*domain.Account, want int) (*domain.Receipt, error) {
	if !op.SameRequest(prev) {
		return nil, domain.ErrIdempotencyConflict
	}
	if len(accounts) != want {
		return nil, domain.ErrAccountNotFound
	}
	legs, err := s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE operation_id = $1 ORDER BY sequence`, op.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load operation %s: %w", op.ID, err)
	}
	return newReceipt(op, legs, accounts, true), nil
}

// getOperation 查無紀錄時回傳 nil, nil
func (s *Store) getOperation(ctx context.Context, id uuid.UUID) (*domain.Operation, error) {
	var (
		op       domain.Operation
		typ      string
		from, to uuid.NullUUID
		amount   string
	)
	err := s.tm.querier(ctx).QueryRow(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1`, id).
		Scan(&op.ID, &typ, &from, &to, &amount, &op.Description, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check operation %s: %w", id, err)
	}
	op.Type = domain.OperationType(typ)
	if from.Valid {
		op.From = from.UUID
	}
	if to.Valid {
		op.To = to.UUID
	}
	if op.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid operation amount %q: %w", amount, err)
	}
	op.CreatedAt = op.CreatedAt.UTC()
	return &op, nil
}

func (s *Store) insertOperation(ctx context.Context, op *domain.Operation) error {
	_, err := s.tm.querier(ctx).Exec(ctx, `
		INSERT INTO operations (id, type, from_account_id, to_account_id, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		op.ID,
		string(op.Type),
		uuid.NullUUID{UUID: op.From, Valid: op.From != uuid.Nil},
		uuid.NullUUID{UUID: op.To, Valid: op.To != uuid.Nil},
		op.Amount.String(),
		op.Description,
		op.CreatedAt,
	)
	if err != nil {
		if code, _ := pgErrorCode(err); code == uniqueViolation {
			return errOperationRace
		}
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	row := s.tm.querier(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

// ListTransactions 取得帳戶分錄，由新到舊
func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	txs, err := s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, sequence DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// lockAccount 必須在 Transaction 內呼叫
func (s *Store) lockAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.tm.querier(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

func (s *Store) insertTransaction(ctx context.Context, leg *domain.Transaction) error {
	counterparty := uuid.NullUUID{UUID: leg.CounterpartyID, Valid: leg.CounterpartyID != uuid.Nil}
	err := s.tm.querier(ctx).QueryRow(ctx, `
		INSERT INTO transactions (id, operation_id, account_id, counterparty_id, type, direction,
			amount, balance_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING sequence`,
		leg.ID,
		leg.OperationID,
		leg.AccountID,
		counterparty,
		string(leg.Type),
		string(leg.Direction),
		leg.Amount.String(),
		leg.BalanceAfter.String(),
		leg.Description,
		leg.CreatedAt,
	).Scan(&leg.Sequence)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := s.tm.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		var (
			tx                   domain.Transaction
			counterparty         uuid.NullUUID
			typ, direction       string
			amount, balanceAfter string
		)
		if err := rows.Scan(
			&tx.Sequence,
			&tx.ID,
			&tx.OperationID,
			&tx.AccountID,
			&counterparty,
			&typ,
			&direction,
			&amount,
			&balanceAfter,
			&tx.Description,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		tx.Type = domain.OperationType(typ)
		tx.Direction = domain.Direction(direction)
		if counterparty.Valid {
			tx.CounterpartyID = counterparty.UUID
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if tx.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		out = append(out, &tx)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account domain.Account
		balance string
	)
	err := row.Scan(
		&account.ID,
		&account.ClientID,
		&account.Number,
		&account.Type,
		&account.Currency,
		&balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", balance, err)
	}
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
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
