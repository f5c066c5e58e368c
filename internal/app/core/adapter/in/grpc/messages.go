package grpc

import (
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// 金額一律以字串傳遞，避免浮點誤差

// MovementRequest 存款 / 提款
type MovementRequest struct {
	// OperationID 冪等鍵，可省略
	OperationID string `json:"operation_id,omitempty"`
	AccountID   string `json:"account_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

type TransferRequest struct {
	OperationID   string `json:"operation_id,omitempty"`
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
}

// ReceiptResponse 記帳結果
// Balances: 帳戶 ID -> 交易後餘額
type ReceiptResponse struct {
	OperationID  string               `json:"operation_id"`
	Replayed     bool                 `json:"replayed"`
	Balances     map[string]string    `json:"balances"`
	Transactions []TransactionMessage `json:"transactions"`
}

type GetBalanceRequest struct {
	AccountID string `json:"account_id"`
}

type GetBalanceResponse struct {
	AccountID string `json:"account_id"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
}

type ListTransactionsRequest struct {
	AccountID string `json:"account_id"`
}

type ListTransactionsResponse struct {
	Transactions []TransactionMessage `json:"transactions"`
}

type TransactionMessage struct {
	ID             string `json:"id"`
	OperationID    string `json:"operation_id"`
	AccountID      string `json:"account_id"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
	Type           string `json:"type"`
	Direction      string `json:"direction"`
	Amount         string `json:"amount"`
	BalanceAfter   string `json:"balance_after"`
	Description    string `json:"description,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toTransactionMessage(t *domain.Transaction) TransactionMessage {
	msg := TransactionMessage{
		ID:           t.ID.String(),
		OperationID:  t.OperationID.String(),
		AccountID:    t.AccountID.String(),
		Type:         string(t.Type),
		Direction:    string(t.Direction),
		Amount:       t.Amount.StringFixed(domain.AmountScale),
		BalanceAfter: t.BalanceAfter.StringFixed(domain.AmountScale),
		Description:  t.Description,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339Nano),
	}
	if t.CounterpartyID != uuid.Nil {
		msg.CounterpartyID = t.CounterpartyID.String()
	}
	return msg
}

func toTransactionMessages(txs []*domain.Transaction) []TransactionMessage {
	out := make([]TransactionMessage, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionMessage(t))
	}
	return out
}

func toReceiptResponse(r *domain.Receipt) *ReceiptResponse {
	balances := make(map[string]string, len(r.Accounts))
	for id, a := range r.Accounts {
		balances[id.String()] = a.Balance.StringFixed(domain.AmountScale)
	}
	return &ReceiptResponse{
		OperationID:  r.Operation.ID.String(),
		Replayed:     r.Replayed,
		Balances:     balances,
		Transactions: toTransactionMessages(r.Legs),
	}
}
