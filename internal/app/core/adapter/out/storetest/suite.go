// Package storetest 提供 usecase.Store 實作共用的行為測試
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// Run 對 store 執行所有共用測試
// 每個子測試使用獨立的客戶與帳戶，store 可在子測試間共用
func Run(t *testing.T, store usecase.Store) {
	t.Run("DepositWithdrawHistory", func(t *testing.T) { testDepositWithdrawHistory(t, store) })
	t.Run("InsufficientFunds", func(t *testing.T) { testInsufficientFunds(t, store) })
	t.Run("Transfer", func(t *testing.T) { testTransfer(t, store) })
	t.Run("Idempotency", func(t *testing.T) { testIdempotency(t, store) })
	t.Run("IdempotencyConflict", func(t *testing.T) { testIdempotencyConflict(t, store) })
	t.Run("ConcurrentSameOperationID", func(t *testing.T) { testConcurrentSameOperationID(t, store) })
	t.Run("ReplayAfterAccountDeleted", func(t *testing.T) { testReplayAfterAccountDeleted(t, store) })
	t.Run("ConcurrentDeposits", func(t *testing.T) { testConcurrentDeposits(t, store) })
	t.Run("OpposingTransfers", func(t *testing.T) { testOpposingTransfers(t, store) })
	t.Run("Directory", func(t *testing.T) { testDirectory(t, store) })
}

// SeedAccount 建立一個客戶與其名下餘額為 0 的帳戶
func SeedAccount(t *testing.T, store usecase.Store, currency string) *domain.Account {
	t.Helper()
	ctx := context.Background()
	client, err := domain.NewClient("Test Client", uuid.NewString()+"@example.com", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateClient(ctx, client))

	account, err := domain.NewAccount(client.ID, "", currency, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(ctx, account))
	return account
}

func post(t *testing.T, store usecase.Store, typ domain.OperationType, from, to uuid.UUID, amount string) (*domain.Receipt, error) {
	t.Helper()
	return store.PostOperation(context.Background(), &domain.Operation{
		ID:     uuid.New(),
		Type:   typ,
		From:   from,
		To:     to,
		Amount: decimal.RequireFromString(amount),
	})
}

func assertBalance(t *testing.T, store usecase.Store, id uuid.UUID, want string) {
	t.Helper()
	account, err := store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString(want)), "balance %s, want %s", account.Balance, want)
}

func testDepositWithdrawHistory(t *testing.T, store usecase.Store) {
	acc := SeedAccount(t, store, "USD")

	_, err := post(t, store, domain.OperationTypeDeposit, uuid.Nil, acc.ID, "1000.00")
	require.NoError(t, err)
	r, err := post(t, store, domain.OperationTypeWithdrawal, acc.ID, uuid.Nil, "250.00")
	require.NoError(t, err)
	assert.True(t, r.Account(acc.ID).Balance.Equal(decimal.NewFromInt(750)))
	assertBalance(t, store, acc.ID, "750")

	txs, err := store.ListTransactions(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.OperationTypeWithdrawal, txs[0].Type)
	assert.Equal(t, domain.OperationTypeDeposit, txs[1].Type)

	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.SignedAmount())
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(750)))

	_, err = post(t, store, domain.OperationTypeDeposit, uuid.Nil, uuid.New(), "1")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func testInsufficientFunds(t *testing.T, store usecase.Store) {
	acc := SeedAccount(t, store, "USD")
	_, err := post(t, store, domain.OperationTypeDeposit, uuid.Nil, acc.ID, "100.00")
	require.NoError(t, err)

	_, err = post(t, store, domain.OperationTypeWithdrawal, acc.ID, uuid.Nil, "250.00")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assertBalance(t, store, acc.ID, "100")

	txs, err := store.ListTransactions(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func testTransfer(t *testing.T, store usecase.Store) {
	a := SeedAccount(t, store, "USD")
	b := SeedAccount(t, store, "USD")
	_, err := post(t, store, domain.OperationTypeDeposit, uuid.Nil, a.ID, "100")
	require.NoError(t, err)

	_, err = post(t, store, domain.OperationTypeTransfer, a.ID, b.ID, "100.01")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assertBalance(t, store, a.ID, "100")
	assertBalance(t, store, b.ID, "0")

	r, err := post(t, store, domain.OperationTypeTransfer, a.ID, b.ID, "40.25")
	require.NoError(t, err)
	require.Len(t, r.Legs, 2)
	assertBalance(t, store, a.ID, "59.75")
	assertBalance(t, store, b.ID, "40.25")

	txs, err := store.ListTransactions(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.DirectionCredit, txs[0].Direction)
	assert.Equal(t, a.ID, txs[0].CounterpartyID)
}

func testIdempotency(t *testing.T, store usecase.Store) {
	acc := SeedAccount(t, store, "USD")
	opID := uuid.New()
	newOp := func() *domain.Operation {
		return &domain.Operation{ID: opID, Type: domain.OperationTypeDeposit, To: acc.ID, Amount: decimal.NewFromInt(50)}
	}

	first, err := store.PostOperation(context.Background(), newOp())
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := store.PostOperation(context.Background(), newOp())
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	require.Len(t, second.Legs, 1)
	assert.Equal(t, first.Legs[0].ID, second.Legs[0].ID)
	assertBalance(t, store, acc.ID, "50")
}

// testIdempotencyConflict 同一個 ID 用於不同帳戶、類型或金額時拒絕，且不產生任何變動
func testIdempotencyConflict(t *testing.T, store usecase.Store) {
	ctx := context.Background()
	a := SeedAccount(t, store, "USD")
	b := SeedAccount(t, store, "USD")
	opID := uuid.New()

	_, err := store.PostOperation(ctx, &domain.Operation{ID: opID, Type: domain.OperationTypeDeposit, To: a.ID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = post(t, store, domain.OperationTypeDeposit, uuid.Nil, b.ID, "50")
	require.NoError(t, err)

	reused := []*domain.Operation{
		{ID: opID, Type: domain.OperationTypeWithdrawal, From: b.ID, Amount: decimal.NewFromInt(30)},
		{ID: opID, Type: domain.OperationTypeDeposit, To: b.ID, Amount: decimal.NewFromInt(100)},
		{ID: opID, Type: domain.OperationTypeDeposit, To: a.ID, Amount: decimal.NewFromInt(101)},
		{ID: opID, Type: domain.OperationTypeTransfer, From: a.ID, To: b.ID, Amount: decimal.NewFromInt(100)},
	}
	for _, op := range reused {
		_, err := store.PostOperation(ctx, op)
		assert.ErrorIs(t, err, domain.ErrIdempotencyConflict, "%s %s", op.Type, op.Amount)
	}

	assertBalance(t, store, a.ID, "100")
	assertBalance(t, store, b.ID, "50")
	txs, err := store.ListTransactions(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

// testConcurrentSameOperationID 同一個 ID 同時送到不同帳戶，只有一筆會生效
func testConcurrentSameOperationID(t *testing.T, store usecase.Store) {
	const n = 8
	accounts := make([]*domain.Account, n)
	for i := range accounts {
		accounts[i] = SeedAccount(t, store, "USD")
	}
	opID := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(acc *domain.Account) {
			defer wg.Done()
			receipt, err := store.PostOperation(context.Background(), &domain.Operation{
				ID:     opID,
				Type:   domain.OperationTypeDeposit,
				To:     acc.ID,
				Amount: decimal.NewFromInt(10),
			})
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
				return
			}
			if !receipt.Replayed {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(accounts[i])
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	total := decimal.Zero
	for _, acc := range accounts {
		got, err := store.GetAccount(context.Background(), acc.ID)
		require.NoError(t, err)
		total = total.Add(got.Balance)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(10)), "total %s", total)
}

// testReplayAfterAccountDeleted 轉入帳戶刪除後重送同一筆轉帳回傳找不到帳戶
func testReplayAfterAccountDeleted(t *testing.T, store usecase.Store) {
	ctx := context.Background()
	a := SeedAccount(t, store, "USD")
	b := SeedAccount(t, store, "USD")
	_, err := post(t, store, domain.OperationTypeDeposit, uuid.Nil, a.ID, "100")
	require.NoError(t, err)

	opID := uuid.New()
	transfer := func() *domain.Operation {
		return &domain.Operation{ID: opID, Type: domain.OperationTypeTransfer, From: a.ID, To: b.ID, Amount: decimal.NewFromInt(40)}
	}
	_, err = store.PostOperation(ctx, transfer())
	require.NoError(t, err)
	require.NoError(t, store.DeleteAccount(ctx, b.ID))

	_, err = store.PostOperation(ctx, transfer())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assertBalance(t, store, a.ID, "60")
}

func testConcurrentDeposits(t *testing.T, store usecase.Store) {
	acc := SeedAccount(t, store, "USD")

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := post(t, store, domain.OperationTypeDeposit, uuid.Nil, acc.ID, "10.00")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assertBalance(t, store, acc.ID, "500")
}

func testOpposingTransfers(t *testing.T, store usecase.Store) {
	a := SeedAccount(t, store, "USD")
	b := SeedAccount(t, store, "USD")
	_, err := post(t, store, domain.OperationTypeDeposit, uuid.Nil, a.ID, "100")
	require.NoError(t, err)
	_, err = post(t, store, domain.OperationTypeDeposit, uuid.Nil, b.ID, "100")
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := post(t, store, domain.OperationTypeTransfer, a.ID, b.ID, "1")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := post(t, store, domain.OperationTypeTransfer, b.ID, a.ID, "1")
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
	case <-time.After(30 * time.Second):
		t.Fatal("opposing transfers did not finish")
	}

	assertBalance(t, store, a.ID, "100")
	assertBalance(t, store, b.ID, "100")
}

func testDirectory(t *testing.T, store usecase.Store) {
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"

	client, err := domain.NewClient("Ada", email, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateClient(ctx, client))

	dup, err := domain.NewClient("Other", email, time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, store.CreateClient(ctx, dup), domain.ErrDuplicateEmail)

	got, err := store.GetClientByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, client.ID, got.ID)

	got.Name = "Ada Lovelace"
	require.NoError(t, store.UpdateClient(ctx, got))
	got, err = store.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.Name)

	number := domain.NewAccountNumber()
	first, err := domain.NewAccount(client.ID, "savings", "EUR", number, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateAccount(ctx, first))

	second, err := domain.NewAccount(client.ID, "", "", number, time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, store.CreateAccount(ctx, second), domain.ErrDuplicateAccountNumber)
	_, err = store.GetAccount(ctx, second.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	orphan, err := domain.NewAccount(uuid.New(), "", "", "", time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, store.CreateAccount(ctx, orphan), domain.ErrClientNotFound)

	byNumber, err := store.GetAccountByNumber(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, first.ID, byNumber.ID)
	assert.Equal(t, "EUR", byNumber.Currency)

	accounts, err := store.ListAccounts(ctx, client.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	assert.ErrorIs(t, store.DeleteClient(ctx, client.ID), domain.ErrClientHasAccounts)

	_, err = post(t, store, domain.OperationTypeDeposit, uuid.Nil, first.ID, "5")
	require.NoError(t, err)
	require.NoError(t, store.DeleteAccount(ctx, first.ID))
	assert.ErrorIs(t, store.DeleteAccount(ctx, first.ID), domain.ErrAccountNotFound)
	_, err = store.ListTransactions(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	require.NoError(t, store.DeleteClient(ctx, client.ID))
	_, err = store.GetClient(ctx, client.ID)
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
	assert.ErrorIs(t, store.DeleteClient(ctx, client.ID), domain.ErrClientNotFound)
}
