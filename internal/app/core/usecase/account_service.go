package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// maxNumberAttempts 自動產生帳號碰撞時的重試次數
const maxNumberAttempts = 5

// CreateAccountInput 開戶參數
type CreateAccountInput struct {
	ClientID    uuid.UUID
	AccountType string
	Currency    string
	// Number 指定帳號，空字串時自動產生
	Number string
}

// AccountService 客戶與帳戶管理
type AccountService struct {
	store Store
	now   func() time.Time
}

func NewAccountService(store Store) *AccountService {
	return &AccountService{
		store: store,
		now:   time.Now,
	}
}

// CreateClient 建立客戶
func (s *AccountService) CreateClient(ctx context.Context, name, email string) (*domain.Client, error) {
	client, err := domain.NewClient(name, email, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *AccountService) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	return s.store.GetClient(ctx, id)
}

func (s *AccountService) GetClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	return s.store.GetClientByEmail(ctx, domain.NormalizeEmail(email))
}

func (s *AccountService) ListClients(ctx context.Context) ([]*domain.Client, error) {
	return s.store.ListClients(ctx)
}

// RenameClient 名稱是客戶唯一可修改的欄位
func (s *AccountService) RenameClient(ctx context.Context, id uuid.UUID, name string) (*domain.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidInput
	}
	client, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	client.Name = name
	if err := s.store.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *AccountService) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteClient(ctx, id)
}

// CreateAccount 開戶
// 未指定帳號時自動產生，碰撞則重新產生
func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (*domain.Account, error) {
	attempts := maxNumberAttempts
	if strings.TrimSpace(in.Number) != "" {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		account, err := domain.NewAccount(in.ClientID, in.AccountType, in.Currency, in.Number, s.now())
		if err != nil {
			return nil, err
		}
		err = s.store.CreateAccount(ctx, account)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, domain.ErrDuplicateAccountNumber) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *AccountService) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return s.store.GetAccountByNumber(ctx, strings.TrimSpace(number))
}

// GetOwnedAccount 取得屬於 clientID 的帳戶，不屬於時視為不存在
func (s *AccountService) GetOwnedAccount(ctx context.Context, clientID, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.ClientID != clientID {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func (s *AccountService) ListAccounts(ctx context.Context, clientID uuid.UUID) ([]*domain.Account, error) {
	return s.store.ListAccounts(ctx, clientID)
}

func (s *AccountService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteAccount(ctx, id)
}
