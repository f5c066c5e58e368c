package rest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// ====== Request ======

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type clientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type createAccountRequest struct {
	AccountType   string `json:"account_type"`
	Currency      string `json:"currency"`
	AccountNumber string `json:"account_number"`
}

type movementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type transferRequest struct {
	ToAccountID uuid.UUID       `json:"to_account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type transactionRequest struct {
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	ToAccountID     uuid.UUID       `json:"to_account_id"`
}

// legacyMovementRequest 以帳號存提款
type legacyMovementRequest struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
}

// ====== Response ======

type errorResponse struct {
	Error string `json:"error"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// clientResponse 不含密碼雜湊
type clientResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type accountResponse struct {
	ID            uuid.UUID `json:"id"`
	ClientID      uuid.UUID `json:"client_id"`
	AccountNumber string    `json:"account_number"`
	AccountType   string    `json:"account_type"`
	Currency      string    `json:"currency"`
	Balance       string    `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type transactionResponse struct {
	ID              uuid.UUID  `json:"id"`
	OperationID     uuid.UUID  `json:"operation_id"`
	AccountID       uuid.UUID  `json:"account_id"`
	CounterpartyID  *uuid.UUID `json:"counterparty_id,omitempty"`
	TransactionType string     `json:"transaction_type"`
	Direction       string     `json:"direction"`
	Amount          string     `json:"amount"`
	BalanceAfter    string     `json:"balance_after"`
	Description     string     `json:"description,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type transferResponse struct {
	OperationID  uuid.UUID             `json:"operation_id"`
	From         accountResponse       `json:"from"`
	To           accountResponse       `json:"to"`
	Transactions []transactionResponse `json:"transactions"`
}

func toClientResponse(c *domain.Client) clientResponse {
	return clientResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		CreatedAt: c.CreatedAt,
	}
}

func toClientResponses(clients []*domain.Client) []clientResponse {
	out := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, toClientResponse(c))
	}
	return out
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		ClientID:      a.ClientID,
		AccountNumber: a.Number,
		AccountType:   a.Type,
		Currency:      a.Currency,
		Balance:       a.Balance.StringFixed(domain.AmountScale),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toAccountResponses(accounts []*domain.Account) []accountResponse {
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return out
}

func toTransactionResponse(t *domain.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:              t.ID,
		OperationID:     t.OperationID,
		AccountID:       t.AccountID,
		TransactionType: string(t.Type),
		Direction:       string(t.Direction),
		Amount:          t.Amount.StringFixed(domain.AmountScale),
		BalanceAfter:    t.BalanceAfter.StringFixed(domain.AmountScale),
		Description:     t.Description,
		CreatedAt:       t.CreatedAt,
	}
	if t.CounterpartyID != uuid.Nil {
		id := t.CounterpartyID
		resp.CounterpartyID = &id
	}
	return resp
}

func toTransactionResponses(txs []*domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	return out
}
