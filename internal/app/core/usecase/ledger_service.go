package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// publishTimeout 單次事件發布的上限
const publishTimeout = 5 * time.Second

// MovementInput 單一帳戶的存款或提款
type MovementInput struct {
	// OperationID 冪等鍵，uuid.Nil 時自動產生
	OperationID uuid.UUID
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Description string
}

// TransferInput 轉帳
type TransferInput struct {
	OperationID   uuid.UUID
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
	Description   string
}

// LedgerService 是核心業務邏輯層
// 驗證請求後交給 Ledger 以帳戶為單位序列化執行，提交後非同步發布事件
type LedgerService struct {
	ledger    Ledger
	publisher EventPublisher
	now       func() time.Time

	inflight sync.WaitGroup
}

// NewLedgerService 建立 LedgerService
// publisher 可為 nil，表示不發布事件
func NewLedgerService(ledger Ledger, publisher EventPublisher) *LedgerService {
	return &LedgerService{
		ledger:    ledger,
		publisher: publisher,
		now:       time.Now,
	}
}

// Deposit 存款
func (s *LedgerService) Deposit(ctx context.Context, in MovementInput) (*domain.Receipt, error) {
	return s.Post(ctx, &domain.Operation{
		ID:          in.OperationID,
		Type:        domain.OperationTypeDeposit,
		To:          in.AccountID,
		Amount:      in.Amount,
		Description: in.Description,
	})
}

// Withdraw 提款
func (s *LedgerService) Withdraw(ctx context.Context, in MovementInput) (*domain.Receipt, error) {
	return s.Post(ctx, &domain.Operation{
		ID:          in.OperationID,
		Type:        domain.OperationTypeWithdrawal,
		From:        in.AccountID,
		Amount:      in.Amount,
		Description: in.Description,
	})
}

// Transfer 轉帳，兩條分錄同時成立或同時不成立
func (s *LedgerService) Transfer(ctx context.Context, in TransferInput) (*domain.Receipt, error) {
	return s.Post(ctx, &domain.Operation{
		ID:          in.OperationID,
		Type:        domain.OperationTypeTransfer,
		From:        in.FromAccountID,
		To:          in.ToAccountID,
		Amount:      in.Amount,
		Description: in.Description,
	})
}

// Post 處理任意類型的交易
//
// 參數:
//
//	ctx: 上下文，在提交前取消則不產生任何變動
//	op: 交易請求
//
// 回傳:
//
//	*domain.Receipt: 交易結果
//	error: domain 定義的錯誤或儲存層錯誤
func (s *LedgerService) Post(ctx context.Context, op *domain.Operation) (*domain.Receipt, error) {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = s.now().UTC()
	}
	// 先驗證再碰儲存層
	if err := op.Validate(); err != nil {
		return nil, err
	}

	receipt, err := s.ledger.PostOperation(ctx, op)
	if err != nil {
		return nil, err
	}
	if !receipt.Replayed {
		s.publish(receipt)
	}
	return receipt, nil
}

// GetBalance 取得帳戶餘額
func (s *LedgerService) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// GetAccount 取得帳戶
func (s *LedgerService) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return s.ledger.GetAccount(ctx, accountID)
}

// ListTransactions 取得帳戶分錄，由新到舊
func (s *LedgerService) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	return s.ledger.ListTransactions(ctx, accountID)
}

// Wait 等待所有發布中的事件完成，關機前呼叫
func (s *LedgerService) Wait() {
	s.inflight.Wait()
}

// publish 提交後才發布 (best effort)，失敗只記錄 log
func (s *LedgerService) publish(receipt *domain.Receipt) {
	if s.publisher == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.publisher.PublishTransactionPosted(ctx, receipt); err != nil {
			log.Printf("warning: failed to publish operation %s: %v", receipt.Operation.ID, err)
		}
	}()
}
