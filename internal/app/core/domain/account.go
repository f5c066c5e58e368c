package domain

import (
	"crypto/rand"
	"encoding/hex"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// AccountNumberPrefix 帳號前綴，後接 16 碼大寫十六進位
	AccountNumberPrefix = "ACC"

	DefaultAccountType = "checking"
	DefaultCurrency    = "USD"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Client 客戶
type Client struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	// PasswordHash 只有透過 /auth/register 建立的客戶才會有
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewClient 建立客戶並正規化 Email
func NewClient(name, email string, now time.Time) (*Client, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidInput
	}
	return &Client{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		CreatedAt: now.UTC(),
	}, nil
}

// NormalizeEmail 去除空白並轉小寫，唯一性以此為準
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Account 帳戶
// Balance 只能經由 Operation.Apply 變動
type Account struct {
	ID        uuid.UUID       `json:"id"`
	ClientID  uuid.UUID       `json:"client_id"`
	Number    string          `json:"number"`
	Type      string          `json:"type"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewAccount 建立餘額為 0 的帳戶
//
// 參數:
//
//	clientID: 持有人
//	accountType: 空字串時使用 DefaultAccountType
//	currency: 空字串時使用 DefaultCurrency，其餘必須為 3 碼大寫字母
//	number: 空字串時自動產生
func NewAccount(clientID uuid.UUID, accountType, currency, number string, now time.Time) (*Account, error) {
	accountType = strings.TrimSpace(accountType)
	if accountType == "" {
		accountType = DefaultAccountType
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return nil, ErrInvalidInput
	}
	number = strings.TrimSpace(number)
	if number == "" {
		number = NewAccountNumber()
	}
	now = now.UTC()
	return &Account{
		ID:        uuid.New(),
		ClientID:  clientID,
		Number:    number,
		Type:      accountType,
		Currency:  currency,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewAccountNumber 產生 "ACC" + 16 碼大寫十六進位的帳號
func NewAccountNumber() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand 失敗時退回 uuid 的亂數
		id := uuid.New()
		copy(b, id[:8])
	}
	return AccountNumberPrefix + strings.ToUpper(hex.EncodeToString(b))
}

// Credit 入帳
func (a *Account) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

// Debit 扣款，不允許透支
func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Clone 回傳複本，避免呼叫端修改 store 內部狀態
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
