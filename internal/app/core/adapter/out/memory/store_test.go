package memory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/storetest"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(nil)
	require.NoError(t, err)
	return s
}

func seedAccount(t *testing.T, s *Store, currency string) *domain.Account {
	t.Helper()
	ctx := context.Background()
	client, err := domain.NewClient("Test", uuid.NewString()+"@example.com", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateClient(ctx, client))

	acc, err := domain.NewAccount(client.ID, "", currency, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, acc))
	return acc
}

func post(t *testing.T, s *Store, op *domain.Operation) (*domain.Receipt, error) {
	t.Helper()
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	return s.PostOperation(context.Background(), op)
}

func deposit(accountID uuid.UUID, amount string) *domain.Operation {
	return &domain.Operation{Type: domain.OperationTypeDeposit, To: accountID, Amount: decimal.RequireFromString(amount)}
}

func withdrawal(accountID uuid.UUID, amount string) *domain.Operation {
	return &domain.Operation{Type: domain.OperationTypeWithdrawal, From: accountID, Amount: decimal.RequireFromString(amount)}
}

func transfer(from, to uuid.UUID, amount string) *domain.Operation {
	return &domain.Operation{Type: domain.OperationTypeTransfer, From: from, To: to, Amount: decimal.RequireFromString(amount)}
}

func balanceOf(t *testing.T, s *Store, id uuid.UUID) decimal.Decimal {
	t.Helper()
	acc, err := s.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func TestStore_DepositWithdrawHistory(t *testing.T) {
	s := newTestStore(t)
	acc := seedAccount(t, s, "USD")

	r, err := post(t, s, deposit(acc.ID, "1000.00"))
	require.NoError(t, err)
	assert.True(t, r.Account(acc.ID).Balance.Equal(decimal.NewFromInt(1000)))

	r, err = post(t, s, withdrawal(acc.ID, "250.00"))
	require.NoError(t, err)
	assert.True(t, r.Account(acc.ID).Balance.Equal(decimal.NewFromInt(750)))
	assert.True(t, balanceOf(t, s, acc.ID).Equal(decimal.NewFromInt(750)))

	txs, err := s.ListTransactions(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.OperationTypeWithdrawal, txs[0].Type)
	assert.Equal(t, domain.OperationTypeDeposit, txs[1].Type)
	assert.Greater(t, txs[0].Sequence, txs[1].Sequence)
}

func TestStore_WithdrawInsufficientFunds(t *testing.T) {
	s := newTestStore(t)
	acc := seedAccount(t, s, "USD")
	_, err := post(t, s, deposit(acc.ID, "100.00"))
	require.NoError(t, err)

	_, err = post(t, s, withdrawal(acc.ID, "250.00"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, balanceOf(t, s, acc.ID).Equal(decimal.NewFromInt(100)))

	txs, err := s.ListTransactions(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestStore_UnknownAccount(t *testing.T) {
	s := newTestStore(t)
	_, err := post(t, s, deposit(uuid.New(), "1"))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = s.GetAccount(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = s.ListTransactions(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStore_ConcurrentDepositsNoLostUpdate(t *testing.T) {
	s := newTestStore(t)
	acc := seedAccount(t, s, "USD")

	const n = 500
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.PostOperation(context.Background(), &domain.Operation{
				ID:     uuid.New(),
				Type:   domain.OperationTypeDeposit,
				To:     acc.ID,
				Amount: decimal.RequireFromString("10.25"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	want := decimal.RequireFromString("10.25").Mul(decimal.NewFromInt(n))
	assert.True(t, balanceOf(t, s, acc.ID).Equal(want))

	txs, err := s.ListTransactions(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Len(t, txs, n)
}

func TestStore_OpposingTransfersDoNotDeadlock(t *testing.T) {
	s := newTestStore(t)
	a := seedAccount(t, s, "USD")
	b := seedAccount(t, s, "USD")
	_, err := post(t, s, deposit(a.ID, "1000"))
	require.NoError(t, err)
	_, err = post(t, s, deposit(b.ID, "1000"))
	require.NoError(t, err)

	const n = 200
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.PostOperation(context.Background(), &domain.Operation{ID: uuid.New(), Type: domain.OperationTypeTransfer, From: a.ID, To: b.ID, Amount: decimal.NewFromInt(1)})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.PostOperation(context.Background(), &domain.Operation{ID: uuid.New(), Type: domain.OperationTypeTransfer, From: b.ID, To: a.ID, Amount: decimal.NewFromInt(1)})
			assert.NoError(t, err)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("transfers deadlocked")
	}

	assert.True(t, balanceOf(t, s, a.ID).Equal(decimal.NewFromInt(1000)))
	assert.True(t, balanceOf(t, s, b.ID).Equal(decimal.NewFromInt(1000)))
}

func TestStore_TransferAtomicity(t *testing.T) {
	s := newTestStore(t)
	a := seedAccount(t, s, "USD")
	b := seedAccount(t, s, "USD")
	eur := seedAccount(t, s, "EUR")
	_, err := post(t, s, deposit(a.ID, "100"))
	require.NoError(t, err)

	_, err = post(t, s, transfer(a.ID, b.ID, "100.01"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = post(t, s, transfer(a.ID, eur.ID, "10"))
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	assert.True(t, balanceOf(t, s, a.ID).Equal(decimal.NewFromInt(100)))
	assert.True(t, balanceOf(t, s, b.ID).IsZero())

	r, err := post(t, s, transfer(a.ID, b.ID, "40"))
	require.NoError(t, err)
	require.Len(t, r.Legs, 2)
	assert.True(t, r.Account(a.ID).Balance.Equal(decimal.NewFromInt(60)))
	assert.True(t, r.Account(b.ID).Balance.Equal(decimal.NewFromInt(40)))

	bTxs, err := s.ListTransactions(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, bTxs, 1)
	assert.Equal(t, domain.DirectionCredit, bTxs[0].Direction)
	assert.Equal(t, a.ID, bTxs[0].CounterpartyID)
}

func TestStore_IdempotentOperation(t *testing.T) {
	s := newTestStore(t)
	acc := seedAccount(t, s, "USD")

	op := deposit(acc.ID, "50")
	op.ID = uuid.New()

	first, err := s.PostOperation(context.Background(), op)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	retry := deposit(acc.ID, "50")
	retry.ID = op.ID
	second, err := s.PostOperation(context.Background(), retry)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Legs[0].ID, second.Legs[0].ID)

	assert.True(t, balanceOf(t, s, acc.ID).Equal(decimal.NewFromInt(50)))
}

func TestStore_CancelledContextHasNoEffect(t *testing.T) {
	s := newTestStore(t)
	acc := seedAccount(t, s, "USD")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.PostOperation(ctx, &domain.Operation{ID: uuid.New(), Type: domain.OperationTypeDeposit, To: acc.ID, Amount: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, balanceOf(t, s, acc.ID).IsZero())

	txs, err := s.ListTransactions(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_DirectoryConstraints(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	client, err := domain.NewClient("Ada", "ada@example.com", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateClient(ctx, client))

	dup, err := domain.NewClient("Other", "ada@example.com", time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, s.CreateClient(ctx, dup), domain.ErrDuplicateEmail)

	first, err := domain.NewAccount(client.ID, "", "", "ACC0000000000000001", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, first))

	second, err := domain.NewAccount(client.ID, "", "", "ACC0000000000000001", time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, s.CreateAccount(ctx, second), domain.ErrDuplicateAccountNumber)
	_, err = s.GetAccount(ctx, second.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	orphan, err := domain.NewAccount(uuid.New(), "", "", "", time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, s.CreateAccount(ctx, orphan), domain.ErrClientNotFound)

	byNumber, err := s.GetAccountByNumber(ctx, "ACC0000000000000001")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byNumber.ID)

	accounts, err := s.ListAccounts(ctx, client.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	assert.ErrorIs(t, s.DeleteClient(ctx, client.ID), domain.ErrClientHasAccounts)
	require.NoError(t, s.DeleteAccount(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteAccount(ctx, first.ID), domain.ErrAccountNotFound)
	require.NoError(t, s.DeleteClient(ctx, client.ID))

	_, err = s.GetClientByEmail(ctx, "ada@example.com")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestStore_DeletedAccountRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	acc := seedAccount(t, s, "USD")
	require.NoError(t, s.DeleteAccount(ctx, acc.ID))

	_, err := post(t, s, deposit(acc.ID, "1"))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStore_RecoverFromWAL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := wal.NewWAL(path)
	require.NoError(t, err)
	s, err := NewStore(w)
	require.NoError(t, err)

	a := seedAccount(t, s, "USD")
	b := seedAccount(t, s, "USD")
	gone := seedAccount(t, s, "USD")
	_, err = post(t, s, deposit(a.ID, "1000.00"))
	require.NoError(t, err)
	transferOp := transfer(a.ID, b.ID, "250.50")
	_, err = post(t, s, transferOp)
	require.NoError(t, err)
	_, err = post(t, s, deposit(gone.ID, "5"))
	require.NoError(t, err)
	require.NoError(t, s.DeleteAccount(ctx, gone.ID))

	client, err := s.GetClient(ctx, a.ClientID)
	require.NoError(t, err)
	client.Name = "Renamed"
	require.NoError(t, s.UpdateClient(ctx, client))
	require.NoError(t, w.Close())

	// 重新開啟並重放
	w, err = wal.NewWAL(path)
	require.NoError(t, err)
	defer w.Close()
	recovered, err := NewStore(w)
	require.NoError(t, err)

	assert.True(t, balanceOf(t, recovered, a.ID).Equal(decimal.RequireFromString("749.50")))
	assert.True(t, balanceOf(t, recovered, b.ID).Equal(decimal.RequireFromString("250.50")))
	_, err = recovered.GetAccount(ctx, gone.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	c, err := recovered.GetClient(ctx, a.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", c.Name)

	txs, err := recovered.ListTransactions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.OperationTypeTransfer, txs[0].Type)

	// 已處理的 Operation 重送不會再套用
	retry := transfer(a.ID, b.ID, "250.50")
	retry.ID = transferOp.ID
	r, err := recovered.PostOperation(ctx, retry)
	require.NoError(t, err)
	assert.True(t, r.Replayed)
	assert.True(t, balanceOf(t, recovered, a.ID).Equal(decimal.RequireFromString("749.50")))

	// 重放後的紀錄仍綁定原本的請求內容
	mismatch := transfer(a.ID, b.ID, "1.00")
	mismatch.ID = transferOp.ID
	_, err = recovered.PostOperation(ctx, mismatch)
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	// 序號延續
	r, err = post(t, recovered, deposit(a.ID, "1"))
	require.NoError(t, err)
	assert.Greater(t, r.Legs[0].Sequence, txs[0].Sequence)
}

func TestStore_Suite(t *testing.T) {
	storetest.Run(t, newTestStore(t))
}
