package postgres

import (
	"context"
	"fmt"
)

// schema 依序執行的建表語句
var schema = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id            UUID PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL,
		CONSTRAINT clients_email_key UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id           UUID PRIMARY KEY,
		client_id    UUID NOT NULL REFERENCES clients(id),
		number       VARCHAR(64) NOT NULL,
		account_type VARCHAR(32) NOT NULL,
		currency     CHAR(3) NOT NULL,
		balance      NUMERIC(15,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		CONSTRAINT accounts_number_key UNIQUE (number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_client ON accounts(client_id)`,
	`CREATE TABLE IF NOT EXISTS operations (
		id              UUID PRIMARY KEY,
		type            VARCHAR(16) NOT NULL,
		from_account_id UUID,
		to_account_id   UUID,
		amount          NUMERIC(15,2) NOT NULL CHECK (amount > 0),
		description     TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		sequence        BIGSERIAL PRIMARY KEY,
		id              UUID NOT NULL UNIQUE,
		operation_id    UUID NOT NULL,
		account_id      UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		counterparty_id UUID,
		type            VARCHAR(16) NOT NULL,
		direction       VARCHAR(8) NOT NULL,
		amount          NUMERIC(15,2) NOT NULL CHECK (amount > 0),
		balance_after   NUMERIC(15,2) NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_operation ON transactions(operation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_created ON transactions(account_id, created_at DESC, sequence DESC)`,
}

// Migrate 建立資料表，可重複執行
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.tm.querier(ctx).Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
