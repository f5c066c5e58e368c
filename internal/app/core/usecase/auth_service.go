package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

const minPasswordLength = 6

// TokenIssuer 簽發與驗證 Bearer Token (pkg/token.Manager)
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
	Parse(raw string) (string, error)
}

// AccessToken 登入結果
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// AuthService 註冊、登入與 Token 驗證
type AuthService struct {
	store      Store
	tokens     TokenIssuer
	now        func() time.Time
	bcryptCost int
}

func NewAuthService(store Store, tokens TokenIssuer) *AuthService {
	return &AuthService{
		store:      store,
		tokens:     tokens,
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Register 建立帶密碼的客戶
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*domain.Client, error) {
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	}
	client, err := domain.NewClient(name, email, s.now())
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	client.PasswordHash = string(hash)
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Login 以 Email 與密碼換取 Token
// 帳號不存在與密碼錯誤都回傳 domain.ErrUnauthorized
func (s *AuthService) Login(ctx context.Context, email, password string) (*AccessToken, error) {
	client, err := s.store.GetClientByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if client.PasswordHash == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	tok, expiresAt, err := s.tokens.Issue(client.ID.String())
	if err != nil {
		return nil, err
	}
	return &AccessToken{Token: tok, ExpiresAt: expiresAt}, nil
}

// Authenticate 驗證 Token 並回傳客戶 ID
func (s *AuthService) Authenticate(ctx context.Context, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, domain.ErrUnauthorized
	}
	subject, err := s.tokens.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	clientID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, domain.ErrUnauthorized
	}
	return clientID, nil
}
