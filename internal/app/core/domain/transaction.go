package domain

import (
	"bytes"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmountScale 金額最多兩位小數
const AmountScale = 2

// OperationType 交易類型
type OperationType string

const (
	// 存款
	OperationTypeDeposit OperationType = "deposit"
	// 提款
	OperationTypeWithdrawal OperationType = "withdrawal"
	// 轉帳
	OperationTypeTransfer OperationType = "transfer"
)

// ParseOperationType 解析交易類型，接受 "withdraw" 作為 "withdrawal" 的別名
func ParseOperationType(s string) (OperationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return OperationTypeDeposit, nil
	case "withdrawal", "withdraw":
		return OperationTypeWithdrawal, nil
	case "transfer":
		return OperationTypeTransfer, nil
	}
	return "", ErrInvalidTransactionType
}

// Direction 分錄方向
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// ValidateAmount 檢查金額為正數且不超過兩位小數
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return ErrInvalidAmount
	}
	return nil
}

// Operation 一次記帳請求
// ID 同時作為冪等鍵：同一個 ID 只會被套用一次
type Operation struct {
	ID          uuid.UUID       `json:"id"`
	Type        OperationType   `json:"type"`
	From        uuid.UUID       `json:"from"`
	To          uuid.UUID       `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate 檢查與帳戶狀態無關的前置條件
func (o *Operation) Validate() error {
	switch o.Type {
	case OperationTypeDeposit:
		if o.To == uuid.Nil {
			return ErrAccountNotFound
		}
	case OperationTypeWithdrawal:
		if o.From == uuid.Nil {
			return ErrAccountNotFound
		}
	case OperationTypeTransfer:
		if o.From == uuid.Nil || o.To == uuid.Nil {
			return ErrAccountNotFound
		}
		if o.From == o.To {
			return ErrSameAccount
		}
	default:
		return ErrInvalidTransactionType
	}
	return ValidateAmount(o.Amount)
}

// LockIDs 回傳需要鎖定的帳戶 ID，依位元組順序排序以避免死鎖
func (o *Operation) LockIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, 2)
	switch o.Type {
	case OperationTypeTransfer:
		if bytes.Compare(o.From[:], o.To[:]) < 0 {
			ids = append(ids, o.From, o.To)
		} else {
			ids = append(ids, o.To, o.From)
		}
	case OperationTypeDeposit:
		ids = append(ids, o.To)
	case OperationTypeWithdrawal:
		ids = append(ids, o.From)
	}
	return ids
}

// Apply 對已鎖定的帳戶套用交易，回傳新增的分錄
// 任何前置條件失敗時不會修改 accounts
//
// 參數:
//
//	accounts: LockIDs 對應的帳戶，缺少者視為不存在
//	now: 分錄時間
func (o *Operation) Apply(accounts map[uuid.UUID]*Account, now time.Time) ([]*Transaction, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	now = now.UTC()

	switch o.Type {
	case OperationTypeDeposit:
		to, ok := accounts[o.To]
		if !ok {
			return nil, ErrAccountNotFound
		}
		if err := to.Credit(o.Amount); err != nil {
			return nil, err
		}
		to.UpdatedAt = now
		return []*Transaction{o.leg(to, uuid.Nil, DirectionCredit, now)}, nil

	case OperationTypeWithdrawal:
		from, ok := accounts[o.From]
		if !ok {
			return nil, ErrAccountNotFound
		}
		if err := from.Debit(o.Amount); err != nil {
			return nil, err
		}
		from.UpdatedAt = now
		return []*Transaction{o.leg(from, uuid.Nil, DirectionDebit, now)}, nil

	case OperationTypeTransfer:
		from, ok := accounts[o.From]
		if !ok {
			return nil, ErrAccountNotFound
		}
		to, ok := accounts[o.To]
		if !ok {
			return nil, ErrAccountNotFound
		}
		if from.Currency != to.Currency {
			return nil, ErrCurrencyMismatch
		}
		// Debit 先檢查餘額，失敗時兩邊都未變動
		if err := from.Debit(o.Amount); err != nil {
			return nil, err
		}
		if err := to.Credit(o.Amount); err != nil {
			return nil, err
		}
		from.UpdatedAt = now
		to.UpdatedAt = now
		return []*Transaction{
			o.leg(from, to.ID, DirectionDebit, now),
			o.leg(to, from.ID, DirectionCredit, now),
		}, nil
	}
	return nil, ErrInvalidTransactionType
}

// SameRequest 判斷 prev (先前以同一個 ID 記錄的請求) 與本次請求是否相同
// 比對類型、帳戶與金額，描述與時間不列入
func (o *Operation) SameRequest(prev *Operation) bool {
	return prev != nil &&
		o.ID == prev.ID &&
		o.Type == prev.Type &&
		o.From == prev.From &&
		o.To == prev.To &&
		o.Amount.Equal(prev.Amount)
}

func (o *Operation) leg(account *Account, counterparty uuid.UUID, dir Direction, now time.Time) *Transaction {
	return &Transaction{
		ID:             uuid.New(),
		OperationID:    o.ID,
		AccountID:      account.ID,
		CounterpartyID: counterparty,
		Type:           o.Type,
		Direction:      dir,
		Amount:         o.Amount,
		BalanceAfter:   account.Balance,
		Description:    o.Description,
		CreatedAt:      now,
	}
}

// Transaction 帳本分錄，建立後不可修改
type Transaction struct {
	ID uuid.UUID `json:"id"`
	// Sequence: 由 store 分配的遞增序號，同一時間點的排序依據
	Sequence       uint64          `json:"sequence"`
	OperationID    uuid.UUID       `json:"operation_id"`
	AccountID      uuid.UUID       `json:"account_id"`
	CounterpartyID uuid.UUID       `json:"counterparty_id"`
	Type           OperationType   `json:"type"`
	Direction      Direction       `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SignedAmount 入帳為正，扣款為負
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// SortNewestFirst 依建立時間由新到舊排序，時間相同時以 Sequence 決定
func SortNewestFirst(txs []*Transaction) {
	slices.SortStableFunc(txs, func(a, b *Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.Sequence > b.Sequence:
			return -1
		case a.Sequence < b.Sequence:
			return 1
		}
		return 0
	})
}

// Receipt 記帳結果
type Receipt struct {
	Operation *Operation
	Legs      []*Transaction
	// Accounts 交易後的帳戶快照
	Accounts map[uuid.UUID]*Account
	// Replayed 表示該 Operation ID 先前已處理過，本次未產生新的變動
	Replayed bool
}

// Account 取得交易後的帳戶快照
func (r *Receipt) Account(id uuid.UUID) *Account {
	if r == nil || r.Accounts == nil {
		return nil
	}
	return r.Accounts[id]
}
