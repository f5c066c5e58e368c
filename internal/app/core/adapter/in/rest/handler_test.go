package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/rest"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/token"
)

type testAPI struct {
	t      *testing.T
	server *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	tokens, err := token.NewManager(token.Config{SecretKey: "test-secret"})
	require.NoError(t, err)

	ledger := usecase.NewLedgerService(store, nil)
	handler := rest.NewHandler(ledger, usecase.NewAccountService(store), usecase.NewAuthService(store, tokens))
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return &testAPI{t: t, server: server}
}

// do 送出請求並把回應解析到 out (可為 nil)
func (a *testAPI) do(method, path, bearer string, body any, out any, headers ...string) int {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// login 註冊並取得 Token
func (a *testAPI) login(email string) string {
	a.t.Helper()
	code := a.do(http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Test User", "email": email, "password": "secret123",
	}, nil)
	require.Equal(a.t, http.StatusCreated, code)

	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	code = a.do(http.MethodPost, "/auth/token", "", map[string]string{"email": email, "password": "secret123"}, &tok)
	require.Equal(a.t, http.StatusOK, code)
	require.Equal(a.t, "bearer", tok.TokenType)
	return tok.AccessToken
}

type account struct {
	ID            string `json:"id"`
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
	Currency      string `json:"currency"`
	Balance       string `json:"balance"`
}

type transaction struct {
	ID              string `json:"id"`
	TransactionType string `json:"transaction_type"`
	Direction       string `json:"direction"`
	Amount          string `json:"amount"`
	BalanceAfter    string `json:"balance_after"`
}

type apiError struct {
	Error string `json:"error"`
}

func (a *testAPI) openAccount(bearer string) account {
	a.t.Helper()
	var acc account
	code := a.do(http.MethodPost, "/accounts", bearer, map[string]string{}, &acc)
	require.Equal(a.t, http.StatusCreated, code)
	return acc
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health", "", nil, &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestDepositWithdrawAndHistory(t *testing.T) {
	api := newTestAPI(t)
	tok := api.login("ada@example.com")
	acc := api.openAccount(tok)
	assert.Equal(t, "0.00", acc.Balance)
	assert.Equal(t, "checking", acc.AccountType)
	assert.Equal(t, "USD", acc.Currency)
	assert.Regexp(t, `^ACC[0-9A-F]{16}$`, acc.AccountNumber)

	var after account
	code := api.do(http.MethodPost, "/accounts/"+acc.ID+"/deposit", tok, map[string]any{"amount": 1000}, &after)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1000.00", after.Balance)

	code = api.do(http.MethodPost, "/accounts/"+acc.ID+"/withdraw", tok, map[string]any{"amount": "250.00"}, &after)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "750.00", after.Balance)

	var txs []transaction
	code = api.do(http.MethodGet, "/transactions/"+acc.ID, tok, nil, &txs)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, txs, 2)
	assert.Equal(t, "withdrawal", txs[0].TransactionType)
	assert.Equal(t, "250.00", txs[0].Amount)
	assert.Equal(t, "deposit", txs[1].TransactionType)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	api := newTestAPI(t)
	tok := api.login("bob@example.com")
	acc := api.openAccount(tok)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/accounts/"+acc.ID+"/deposit", tok, map[string]any{"amount": 100}, nil))

	var errBody apiError
	code := api.do(http.MethodPost, "/accounts/"+acc.ID+"/withdraw", tok, map[string]any{"amount": 250}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "insufficient funds", errBody.Error)

	var got account
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/accounts/"+acc.ID, tok, nil, &got))
	assert.Equal(t, "100.00", got.Balance)
}

func TestInvalidAmounts(t *testing.T) {
	api := newTestAPI(t)
	tok := api.login("carol@example.com")
	acc := api.openAccount(tok)

	for _, amount := range []any{-5, 0, "1.005"} {
		var errBody apiError
		code := api.do(http.MethodPost, "/accounts/"+acc.ID+"/deposit", tok, map[string]any{"amount": amount}, &errBody)
		assert.Equal(t, http.StatusBadRequest, code, "amount %v", amount)
		assert.Contains(t, errBody.Error, "invalid amount")
	}
}

func TestTransferAndTransactionsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	tok := api.login("dave@example.com")
	from := api.openAccount(tok)
	to := api.openAccount(tok)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/accounts/"+from.ID+"/deposit", tok, map[string]any{"amount": 100}, nil))

	var result struct {
		From         account       `json:"from"`
		To           account       `json:"to"`
		Transactions []transaction `json:"transactions"`
	}
	code := api.do(http.MethodPost, "/accounts/"+from.ID+"/transfer", tok,
		map[string]any{"to_account_id": to.ID, "amount": "40"}, &result)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "60.00", result.From.Balance)
	assert.Equal(t, "40.00", result.To.Balance)
	assert.Len(t, result.Transactions, 2)

	var errBody apiError
	code = api.do(http.MethodPost, "/accounts/"+from.ID+"/transfer", tok,
		map[string]any{"to_account_id": from.ID, "amount": "1"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)

	var leg transaction
	code = api.do(http.MethodPost, "/transactions/"+to.ID, tok,
		map[string]any{"transaction_type": "transfer", "amount": "15", "to_account_id": from.ID}, &leg)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "debit", leg.Direction)
	assert.Equal(t, "25.00", leg.BalanceAfter)

	code = api.do(http.MethodPost, "/transactions/"+to.ID, tok,
		map[string]any{"transaction_type": "refund", "amount": "1"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIdempotencyKeyHeader(t *testing.T) {
	api := newTestAPI(t)
	tok := api.login("erin@example.com")
	acc := api.openAccount(tok)
	key := uuid.NewString()

	for i := 0; i < 3; i++ {
		var got account
		code := api.do(http.MethodPost, "/accounts/"+acc.ID+"/deposit", tok, map[string]any{"amount": 10}, &got, "Idempotency-Key", key)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "10.00", got.Balance)
	}

	var errBody apiError
	code := api.do(http.MethodPost, "/accounts/"+acc.ID+"/deposit", tok, map[string]any{"amount": 10}, &errBody, "Idempotency-Key", "nope")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIdempotencyKeyReusedForDifferentRequest(t *testing.T) {
	api := newTestAPI(t)
	tok := api.login("erin2@example.com")
	a := api.openAccount(tok)
	b := api.openAccount(tok)
	key := uuid.NewString()

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/accounts/"+a.ID+"/deposit", tok, map[string]any{"amount": 100}, nil, "Idempotency-Key", key))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/accounts/"+b.ID+"/deposit", tok, map[string]any{"amount": 50}, nil))

	// 同一個 Key 用在另一個帳戶、另一種交易
	var errBody apiError
	code := api.do(http.MethodPost, "/accounts/"+b.ID+"/withdraw", tok, map[string]any{"amount": 30}, &errBody, "Idempotency-Key", key)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, errBody.Error, "operation id")

	code = api.do(http.MethodPost, "/transactions/"+b.ID, tok,
		map[string]any{"transaction_type": "withdrawal", "amount": "30"}, &errBody, "Idempotency-Key", key)
	assert.Equal(t, http.StatusConflict, code)

	// 同帳戶但金額不同
	code = api.do(http.MethodPost, "/accounts/"+a.ID+"/deposit", tok, map[string]any{"amount": 101}, &errBody, "Idempotency-Key", key)
	assert.Equal(t, http.StatusConflict, code)

	var got account
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/accounts/"+b.ID, tok, nil, &got))
	assert.Equal(t, "50.00", got.Balance)
	var txs []transaction
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/transactions/"+b.ID, tok, nil, &txs))
	assert.Len(t, txs, 1)
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/accounts/"+a.ID, tok, nil, &got))
	assert.Equal(t, "100.00", got.Balance)
}

func TestAccountsRequireOwnership(t *testing.T) {
	api := newTestAPI(t)
	owner := api.login("owner@example.com")
	other := api.login("other@example.com")
	acc := api.openAccount(owner)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/accounts/"+acc.ID, "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/accounts/"+acc.ID, "garbage", nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/accounts/"+acc.ID, other, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/accounts/"+acc.ID+"/deposit", other, map[string]any{"amount": 1}, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/accounts/not-a-uuid", owner, nil, nil))

	var mine []account
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/accounts", other, nil, &mine))
	assert.Empty(t, mine)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/accounts/"+acc.ID, owner, nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/accounts/"+acc.ID, owner, nil, nil))
}

func TestDuplicateAccountNumber(t *testing.T) {
	api := newTestAPI(t)
	tok := api.login("frank@example.com")

	body := map[string]string{"account_number": "ACC0000000000000001"}
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/accounts", tok, body, nil))

	var errBody apiError
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/accounts", tok, body, &errBody))
	assert.Equal(t, "account number already exists", errBody.Error)
}

func TestClientsCRUD(t *testing.T) {
	api := newTestAPI(t)

	var client struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Email        string `json:"email"`
		PasswordHash string `json:"password_hash"`
	}
	code := api.do(http.MethodPost, "/clients", "", map[string]string{"name": "Grace", "email": "Grace@Example.com"}, &client)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "grace@example.com", client.Email)
	assert.Empty(t, client.PasswordHash)

	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/clients", "", map[string]string{"name": "G", "email": "grace@example.com"}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/clients", "", map[string]string{"name": "", "email": "x@example.com"}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/clients", "", map[string]string{"name": "X", "email": "not-an-email"}, nil))

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/clients/"+client.ID, "", nil, nil))
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/clients/by-email/grace@example.com", "", nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/clients/"+uuid.NewString(), "", nil, nil))

	code = api.do(http.MethodPatch, "/clients/"+client.ID, "", map[string]string{"name": "Grace Hopper"}, &client)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Grace Hopper", client.Name)

	var all []map[string]any
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/clients", "", nil, &all))
	assert.Len(t, all, 1)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/clients/"+client.ID, "", nil, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, "/clients/"+client.ID, "", nil, nil))
}

func TestDeleteClientWithAccountsConflicts(t *testing.T) {
	api := newTestAPI(t)
	tok := api.login("henry@example.com")
	api.openAccount(tok)

	var client struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/clients/by-email/henry@example.com", "", nil, &client))
	assert.Equal(t, http.StatusConflict, api.do(http.MethodDelete, "/clients/"+client.ID, "", nil, nil))
}

func TestLoginFailures(t *testing.T) {
	api := newTestAPI(t)
	api.login("ivy@example.com")

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/auth/token", "", map[string]string{"email": "ivy@example.com", "password": "wrong-pass"}, nil))
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/auth/token", "", map[string]string{"email": "nobody@example.com", "password": "secret123"}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/auth/register", "", map[string]string{"name": "Ivy", "email": "ivy2@example.com", "password": "123"}, nil))
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/auth/register", "", map[string]string{"name": "Ivy", "email": "ivy@example.com", "password": "secret123"}, nil))
}

func TestLegacyAccountNumberRoutes(t *testing.T) {
	api := newTestAPI(t)
	tok := api.login("jack@example.com")
	acc := api.openAccount(tok)

	var got account
	code := api.do(http.MethodPost, "/deposit", "", map[string]any{"account_number": acc.AccountNumber, "amount": 80}, &got)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "80.00", got.Balance)

	code = api.do(http.MethodPost, "/withdraw", "", map[string]any{"account_number": acc.AccountNumber, "amount": 30}, &got)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "50.00", got.Balance)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/deposit", "", map[string]any{"account_number": "ACC_MISSING", "amount": 1}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/withdraw", "", map[string]any{"account_number": acc.AccountNumber, "amount": 500}, nil))
}

func TestMalformedBody(t *testing.T) {
	api := newTestAPI(t)
	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/clients", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := api.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
