package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

func newTestAuthService(store Store, tokens TokenIssuer) *AuthService {
	svc := NewAuthService(store, tokens)
	svc.bcryptCost = bcrypt.MinCost
	return svc
}

func TestAuthService_RegisterHashesPassword(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	svc := newTestAuthService(store, new(MockTokens))

	var stored *domain.Client
	store.On("CreateClient", ctx, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.Client)
	}).Return(nil)

	c, err := svc.Register(ctx, "Ada", "ada@example.com", "s3cret!")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Same(t, stored, c)
	assert.NotEqual(t, "s3cret!", c.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte("s3cret!")))
}

func TestAuthService_RegisterShortPassword(t *testing.T) {
	store := new(MockStore)
	svc := newTestAuthService(store, new(MockTokens))

	_, err := svc.Register(context.Background(), "Ada", "ada@example.com", "123")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	store.AssertNotCalled(t, "CreateClient", mock.Anything, mock.Anything)
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	tokens := new(MockTokens)
	svc := newTestAuthService(store, tokens)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	require.NoError(t, err)
	client := &domain.Client{ID: uuid.New(), Email: "ada@example.com", PasswordHash: string(hash)}
	expires := time.Now().Add(30 * time.Minute)

	store.On("GetClientByEmail", ctx, "ada@example.com").Return(client, nil)
	store.On("GetClientByEmail", ctx, "nobody@example.com").Return(nil, domain.ErrClientNotFound)
	tokens.On("Issue", client.ID.String()).Return("tok", expires, nil)

	got, err := svc.Login(ctx, " ADA@example.com", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, expires, got.ExpiresAt)

	_, err = svc.Login(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Login(ctx, "nobody@example.com", "s3cret!")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthService_LoginWithoutPassword(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	svc := newTestAuthService(store, new(MockTokens))

	store.On("GetClientByEmail", ctx, "plain@example.com").Return(&domain.Client{ID: uuid.New()}, nil)

	_, err := svc.Login(ctx, "plain@example.com", "anything")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()
	tokens := new(MockTokens)
	svc := newTestAuthService(new(MockStore), tokens)

	id := uuid.New()
	tokens.On("Parse", "good").Return(id.String(), nil)
	tokens.On("Parse", "expired").Return("", errors.New("token expired"))
	tokens.On("Parse", "weird").Return("not-a-uuid", nil)

	got, err := svc.Authenticate(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = svc.Authenticate(ctx, "expired")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "weird")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
