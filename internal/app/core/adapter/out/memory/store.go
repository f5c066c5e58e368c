package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// accountEntry 單一帳戶的狀態與歷史
// mu 序列化對此帳戶的所有讀寫，不同帳戶互不阻塞
type accountEntry struct {
	mu      sync.Mutex
	account *domain.Account
	history []*domain.Transaction
	deleted bool
}

// Store 是一個以記憶體為主、WAL 為持久化的帳本
//
// 結構:
//
//	mu: 只保護各個 map 的結構，不保護餘額
//	accounts: 帳戶 ID 對應的 accountEntry，餘額由 entry.mu 保護
//	ops: Operation ID 的處理狀態，處理中的 ID 先佔位，其他同 ID 請求等待結果
//	wal: Write-Ahead Log 實例，nil 表示純記憶體
type Store struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]*domain.Client
	emails   map[string]uuid.UUID
	accounts map[uuid.UUID]*accountEntry
	numbers  map[string]uuid.UUID
	byClient map[uuid.UUID]map[uuid.UUID]struct{}

	opMu sync.Mutex
	ops  map[uuid.UUID]*opState

	seq atomic.Uint64
	wal *wal.WAL
	now func() time.Time
}

// NewStore 建立一個新的 Store 實例，並從 WAL 恢復狀態
//
// 參數:
//
//	w: Write-Ahead Log 實例，可為 nil
//
// 回傳:
//
//	*Store: Store 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewStore(w *wal.WAL) (*Store, error) {
	s := &Store{
		clients:   make(map[uuid.UUID]*domain.Client),
		emails:    make(map[string]uuid.UUID),
		accounts:  make(map[uuid.UUID]*accountEntry),
		numbers:   make(map[string]uuid.UUID),
		byClient:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
		ops:       make(map[uuid.UUID]*opState),
		wal:       w,
		now:       time.Now,
	}
	if w != nil {
		if err := s.recoverFromWAL(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// PostOperation 處理交易請求
// 依 LockIDs 順序鎖定帳戶，在複本上套用交易，寫入 WAL 後才提交到記憶體
//
// 參數:
//
//	ctx: 上下文，在寫入 WAL 前取消則不產生任何變動
//	op: 交易請求
//
// 回傳:
//
//	*domain.Receipt: 交易結果
//	error: 處理錯誤
func (s *Store) PostOperation(ctx context.Context, op *domain.Operation) (*domain.Receipt, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}

	for {
		state, owner := s.reserve(op.ID)
		if !owner {
			// 同 ID 的請求處理中，等待結果
			select {
			case <-state.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if state.legs == nil {
				// 前一個請求失敗，ID 已釋放，重新競爭
				continue
			}
			return s.replay(op, state)
		}

		receipt, err := s.apply(ctx, op)
		s.release(op.ID, state, receipt)
		return receipt, err
	}
}

// apply 鎖定帳戶並套用交易，呼叫端必須已佔住 op.ID
func (s *Store) apply(ctx context.Context, op *domain.Operation) (*domain.Receipt, error) {
	entries, err := s.lockEntries(op.LockIDs())
	if err != nil {
		return nil, err
	}
	defer unlockEntries(entries)

	working := make(map[uuid.UUID]*domain.Account, len(entries))
	for _, e := range entries {
		working[e.account.ID] = e.account.Clone()
	}
	now := s.now()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now.UTC()
	}
	legs, err := op.Apply(working, now)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, leg := range legs {
		leg.Sequence = s.seq.Add(1)
	}

	// 1. 寫入 WAL (Critical Path)
	if err := s.writeWAL(walRecord{Kind: kindOperationPosted, Operation: op, Legs: legs}); err != nil {
		return nil, err
	}

	// 2. 提交到記憶體
	for _, e := range entries {
		e.account = working[e.account.ID]
	}
	for _, leg := range legs {
		for _, e := range entries {
			if e.account.ID == leg.AccountID {
				e.history = append(e.history, leg)
			}
		}
	}

	return s.receipt(op, legs, entries, false), nil
}

// replay 回傳先前的分錄與帳戶目前的快照，請求內容不同時回傳 ErrIdempotencyConflict
func (s *Store) replay(op *domain.Operation, state *opState) (*domain.Receipt, error) {
	if !op.SameRequest(state.op) {
		return nil, domain.ErrIdempotencyConflict
	}
	entries, err := s.lockEntries(op.LockIDs())
	if err != nil {
		return nil, err
	}
	defer unlockEntries(entries)
	return s.receipt(op, state.legs, entries, true), nil
}

// GetAccount 取得帳戶快照
func (s *Store) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	entries, err := s.lookup([]uuid.UUID{accountID})
	if err != nil {
		return nil, err
	}
	e := entries[0]
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, domain.ErrAccountNotFound
	}
	return e.account.Clone(), nil
}

// ListTransactions 取得帳戶分錄，由新到舊
func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	entries, err := s.lookup([]uuid.UUID{accountID})
	if err != nil {
		return nil, err
	}
	e := entries[0]
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, domain.ErrAccountNotFound
	}
	history := slices.Clone(e.history)
	e.mu.Unlock()

	domain.SortNewestFirst(history)
	return history, nil
}

// lookup 依序取得帳戶 entry，任一不存在即回傳 ErrAccountNotFound
func (s *Store) lookup(ids []uuid.UUID) ([]*accountEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*accountEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := s.accounts[id]
		if !ok {
			return nil, domain.ErrAccountNotFound
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// lockEntries 依序鎖定帳戶，任一帳戶已刪除時全部解鎖並回傳 ErrAccountNotFound
func (s *Store) lockEntries(ids []uuid.UUID) ([]*accountEntry, error) {
	entries, err := s.lookup(ids)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		e.mu.Lock()
	}
	for _, e := range entries {
		if e.deleted {
			unlockEntries(entries)
			return nil, domain.ErrAccountNotFound
		}
	}
	return entries, nil
}

func unlockEntries(entries []*accountEntry) {
	for _, e := range entries {
		e.mu.Unlock()
	}
}

// opState 一個 Operation ID 的處理狀態
// done 關閉後 op 與 legs 不再變動；legs 為 nil 表示處理失敗，ID 已釋放
type opState struct {
	done chan struct{}
	op   *domain.Operation
	legs []*domain.Transaction
}

// reserve 佔住 Operation ID，owner 為 false 表示已有其他請求佔住或已處理完成
func (s *Store) reserve(opID uuid.UUID) (*opState, bool) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if state, ok := s.ops[opID]; ok {
		return state, false
	}
	state := &opState{done: make(chan struct{})}
	s.ops[opID] = state
	return state, true
}

// release 交易成功時保留分錄，失敗時釋放 ID 讓後續請求重新處理
func (s *Store) release(opID uuid.UUID, state *opState, receipt *domain.Receipt) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if receipt != nil {
		state.op = receipt.Operation
		state.legs = receipt.Legs
	} else {
		delete(s.ops, opID)
	}
	close(state.done)
}

// completedOp WAL 恢復時使用，直接標記為已完成
func completedOp(op *domain.Operation, legs []*domain.Transaction) *opState {
	state := &opState{done: make(chan struct{}), op: op, legs: legs}
	close(state.done)
	return state
}

// receipt 呼叫端必須持有 entries 的鎖
func (s *Store) receipt(op *domain.Operation, legs []*domain.Transaction, entries []*accountEntry, replayed bool) *domain.Receipt {
	accounts := make(map[uuid.UUID]*domain.Account, len(entries))
	for _, e := range entries {
		accounts[e.account.ID] = e.account.Clone()
	}
	return &domain.Receipt{
		Operation: op,
		Legs:      slices.Clone(legs),
		Accounts:  accounts,
		Replayed:  replayed,
	}
}

func (s *Store) writeWAL(rec walRecord) error {
	if s.wal == nil {
		return nil
	}
	if err := s.wal.Write(rec); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWALWriteFailed, err)
	}
	return nil
}

var _ usecase.Store = (*Store)(nil)
