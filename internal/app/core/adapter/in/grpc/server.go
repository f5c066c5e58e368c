package grpc

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

type GrpcServer struct {
	ledger   *usecase.LedgerService
	accounts *usecase.AccountService
}

func NewGrpcServer(ledger *usecase.LedgerService, accounts *usecase.AccountService) *GrpcServer {
	return &GrpcServer{
		ledger:   ledger,
		accounts: accounts,
	}
}

func (s *GrpcServer) Deposit(ctx context.Context, req *MovementRequest) (*ReceiptResponse, error) {
	in, err := s.movementInput(ctx, req)
	if err != nil {
		return nil, err
	}
	receipt, err := s.ledger.Deposit(ctx, in)
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}
	return toReceiptResponse(receipt), nil
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *MovementRequest) (*ReceiptResponse, error) {
	in, err := s.movementInput(ctx, req)
	if err != nil {
		return nil, err
	}
	receipt, err := s.ledger.Withdraw(ctx, in)
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}
	return toReceiptResponse(receipt), nil
}

// Transfer 轉出帳戶須屬於呼叫者，轉入帳戶不限
func (s *GrpcServer) Transfer(ctx context.Context, req *TransferRequest) (*ReceiptResponse, error) {
	opID, err := parseOperationID(req.OperationID)
	if err != nil {
		return nil, err
	}
	from, err := s.ownedAccountID(ctx, req.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := parseAccountID(req.ToAccountID)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	receipt, err := s.ledger.Transfer(ctx, usecase.TransferInput{
		OperationID:   opID,
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        amount,
		Description:   req.Description,
	})
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}
	return toReceiptResponse(receipt), nil
}

func (s *GrpcServer) GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error) {
	id, err := s.ownedAccountID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	account, err := s.ledger.GetAccount(ctx, id)
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}
	return &GetBalanceResponse{
		AccountID: account.ID.String(),
		Currency:  account.Currency,
		Balance:   account.Balance.StringFixed(domain.AmountScale),
	}, nil
}

func (s *GrpcServer) ListTransactions(ctx context.Context, req *ListTransactionsRequest) (*ListTransactionsResponse, error) {
	id, err := s.ownedAccountID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	txs, err := s.ledger.ListTransactions(ctx, id)
	if err != nil {
		return nil, mapDomainErrorToGRPC(err)
	}
	return &ListTransactionsResponse{Transactions: toTransactionMessages(txs)}, nil
}

func (s *GrpcServer) movementInput(ctx context.Context, req *MovementRequest) (usecase.MovementInput, error) {
	opID, err := parseOperationID(req.OperationID)
	if err != nil {
		return usecase.MovementInput{}, err
	}
	accountID, err := s.ownedAccountID(ctx, req.AccountID)
	if err != nil {
		return usecase.MovementInput{}, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return usecase.MovementInput{}, err
	}
	return usecase.MovementInput{
		OperationID: opID,
		AccountID:   accountID,
		Amount:      amount,
		Description: req.Description,
	}, nil
}

// ownedAccountID 解析帳戶 ID
// 經過 AuthInterceptor 的請求，帳戶必須屬於該客戶，否則視為不存在
func (s *GrpcServer) ownedAccountID(ctx context.Context, raw string) (uuid.UUID, error) {
	id, err := parseAccountID(raw)
	if err != nil {
		return uuid.Nil, err
	}
	clientID, ok := ClientIDFromContext(ctx)
	if !ok {
		return id, nil
	}
	if _, err := s.accounts.GetOwnedAccount(ctx, clientID, id); err != nil {
		return uuid.Nil, mapDomainErrorToGRPC(err)
	}
	return id, nil
}

func parseAccountID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid account_id: %v", err)
	}
	return id, nil
}

func parseOperationID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid operation_id: %v", err)
	}
	return id, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, status.Error(codes.InvalidArgument, domain.ErrInvalidAmount.Error())
	}
	return amount, nil
}

// mapDomainErrorToGRPC 將 domain 錯誤轉成 gRPC status
func mapDomainErrorToGRPC(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidTransactionType),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrCurrencyMismatch):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrClientHasAccounts):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrClientNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateEmail),
		errors.Is(err, domain.ErrDuplicateAccountNumber),
		errors.Is(err, domain.ErrIdempotencyConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, domain.ErrUnauthorized.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		log.Printf("[grpc] internal error: %v", err)
		return status.Error(codes.Internal, "internal error")
	}
}

var _ LedgerServiceServer = (*GrpcServer)(nil)
