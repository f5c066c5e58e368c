package rest

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// ownedAccount 解析路徑中的帳戶 ID 並確認屬於呼叫者
func (h *Handler) ownedAccount(w http.ResponseWriter, r *http.Request, param string) (*domain.Account, bool) {
	id, ok := pathUUID(w, chi.URLParam(r, param), domain.ErrAccountNotFound)
	if !ok {
		return nil, false
	}
	account, err := h.accounts.GetOwnedAccount(r.Context(), callerID(r), id)
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	return account, true
}

// ====== Accounts ======

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := h.accounts.CreateAccount(r.Context(), usecase.CreateAccountInput{
		ClientID:    callerID(r),
		AccountType: req.AccountType,
		Currency:    req.Currency,
		Number:      req.AccountNumber,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context(), callerID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponses(accounts))
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r, "id")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r, "id")
	if !ok {
		return
	}
	if err := h.accounts.DeleteAccount(r.Context(), account.ID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ====== Ledger ======

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.ledger.Deposit)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, h.ledger.Withdraw)
}

type movementFunc func(ctx context.Context, in usecase.MovementInput) (*domain.Receipt, error)

// movement 存款與提款共用流程，回傳交易後的帳戶
func (h *Handler) movement(w http.ResponseWriter, r *http.Request, post movementFunc) {
	account, ok := h.ownedAccount(w, r, "id")
	if !ok {
		return
	}
	opID, ok := idempotencyKey(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	receipt, err := post(r.Context(), usecase.MovementInput{
		OperationID: opID,
		AccountID:   account.ID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(receipt.Account(account.ID)))
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r, "id")
	if !ok {
		return
	}
	opID, ok := idempotencyKey(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	receipt, err := h.ledger.Transfer(r.Context(), usecase.TransferInput{
		OperationID:   opID,
		FromAccountID: account.ID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Description:   req.Description,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{
		OperationID:  receipt.Operation.ID,
		From:         toAccountResponse(receipt.Account(account.ID)),
		To:           toAccountResponse(receipt.Account(req.ToAccountID)),
		Transactions: toTransactionResponses(receipt.Legs),
	})
}

// createTransaction 以 transaction_type 指定交易類型，回傳此帳戶的分錄
func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r, "account_id")
	if !ok {
		return
	}
	opID, ok := idempotencyKey(w, r)
	if !ok {
		return
	}
	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	typ, err := domain.ParseOperationType(req.TransactionType)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	op := &domain.Operation{
		ID:          opID,
		Type:        typ,
		Amount:      req.Amount,
		Description: req.Description,
	}
	switch typ {
	case domain.OperationTypeDeposit:
		op.To = account.ID
	case domain.OperationTypeWithdrawal:
		op.From = account.ID
	case domain.OperationTypeTransfer:
		if req.ToAccountID == uuid.Nil {
			writeError(w, http.StatusBadRequest, "to_account_id is required for transfers")
			return
		}
		op.From, op.To = account.ID, req.ToAccountID
	}

	receipt, err := h.ledger.Post(r.Context(), op)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	for _, leg := range receipt.Legs {
		if leg.AccountID == account.ID {
			writeJSON(w, http.StatusCreated, toTransactionResponse(leg))
			return
		}
	}
	writeDomainError(w, r, domain.ErrAccountNotFound)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r, "account_id")
	if !ok {
		return
	}
	txs, err := h.ledger.ListTransactions(r.Context(), account.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponses(txs))
}

// ====== 以帳號操作 ======

func (h *Handler) legacyDeposit(w http.ResponseWriter, r *http.Request) {
	h.legacyMovement(w, r, h.ledger.Deposit)
}

func (h *Handler) legacyWithdraw(w http.ResponseWriter, r *http.Request) {
	h.legacyMovement(w, r, h.ledger.Withdraw)
}

func (h *Handler) legacyMovement(w http.ResponseWriter, r *http.Request, post movementFunc) {
	opID, ok := idempotencyKey(w, r)
	if !ok {
		return
	}
	var req legacyMovementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := h.accounts.GetAccountByNumber(r.Context(), req.AccountNumber)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	receipt, err := post(r.Context(), usecase.MovementInput{
		OperationID: opID,
		AccountID:   account.ID,
		Amount:      req.Amount,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(receipt.Account(account.ID)))
}
