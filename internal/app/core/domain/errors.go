package domain

import "errors"

var (
	// ErrInvalidAmount 金額必須為正數，且最多兩位小數
	ErrInvalidAmount = errors.New("invalid amount: must be positive with at most 2 decimal places")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrClientNotFound 找不到客戶
	ErrClientNotFound = errors.New("client not found")

	// ErrDuplicateEmail Email 已被其他客戶使用
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrDuplicateAccountNumber 帳號已存在
	ErrDuplicateAccountNumber = errors.New("account number already exists")

	// ErrUnauthorized 缺少或無效的身分憑證
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSameAccount 轉出與轉入帳戶相同
	ErrSameAccount = errors.New("source and destination must be different accounts")

	// ErrCurrencyMismatch 兩個帳戶幣別不同
	ErrCurrencyMismatch = errors.New("currency mismatch between accounts")

	// ErrInvalidInput 欄位格式錯誤 (名稱、Email、幣別等)
	ErrInvalidInput = errors.New("invalid input")

	// ErrClientHasAccounts 客戶名下仍有帳戶，不可刪除
	ErrClientHasAccounts = errors.New("client still owns accounts")

	// ErrInvalidTransactionType 不支援的交易類型
	ErrInvalidTransactionType = errors.New("invalid transaction type")

	// ErrIdempotencyConflict 同一個 Operation ID 已用於不同的交易內容
	ErrIdempotencyConflict = errors.New("operation id already used for a different request")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")
)
