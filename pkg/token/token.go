package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken 簽章、格式或演算法錯誤
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken 已過期
	ErrExpiredToken = errors.New("token expired")
	// ErrUnsupportedAlgorithm 只支援 HS256
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// Config 定義 Token 簽發設定
type Config struct {
	SecretKey     string `yaml:"secret_key"`
	Algorithm     string `yaml:"algorithm"`
	ExpireMinutes int    `yaml:"access_token_expire_minutes"`
}

// Manager 簽發與驗證 Bearer Token
type Manager struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewManager 建立 Manager
//
// 參數:
//
//	cfg: Config - SecretKey 不可為空，Algorithm 只接受 HS256 (空值視為 HS256)，ExpireMinutes 預設 30
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("token: secret key is required")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	if alg != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	ttl := time.Duration(cfg.ExpireMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Manager{
		secret: []byte(cfg.SecretKey),
		method: jwt.SigningMethodHS256,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue 為 subject 簽發 Token，回傳 Token 與到期時間
func (m *Manager) Issue(subject string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse 驗證 Token 並回傳 subject
func (m *Manager) Parse(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// TTL Token 有效時間
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
