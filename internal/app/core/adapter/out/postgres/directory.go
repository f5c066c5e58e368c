package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

const clientColumns = `id, name, email, password_hash, created_at`

func (s *Store) CreateClient(ctx context.Context, client *domain.Client) error {
	_, err := s.tm.querier(ctx).Exec(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		client.ID, client.Name, client.Email, client.PasswordHash, client.CreatedAt)
	if err != nil {
		if code, _ := pgErrorCode(err); code == uniqueViolation {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	return scanClient(s.tm.querier(ctx).QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
}

func (s *Store) GetClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	return scanClient(s.tm.querier(ctx).QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE email = $1`, email))
}

func (s *Store) ListClients(ctx context.Context) ([]*domain.Client, error) {
	rows, err := s.tm.querier(ctx).Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var out []*domain.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, client)
	}
	return out, rows.Err()
}

// UpdateClient 只更新名稱
func (s *Store) UpdateClient(ctx context.Context, client *domain.Client) error {
	tag, err := s.tm.querier(ctx).Exec(ctx, `UPDATE clients SET name = $2 WHERE id = $1`, client.ID, client.Name)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		// 先鎖客戶，避免與 CreateAccount 交錯
		if _, err := scanClient(s.tm.querier(ctx).QueryRow(ctx,
			`SELECT `+clientColumns+` FROM clients WHERE id = $1 FOR UPDATE`, id)); err != nil {
			return err
		}

		var count int64
		if err := s.tm.querier(ctx).QueryRow(ctx,
			`SELECT COUNT(*) FROM accounts WHERE client_id = $1`, id).Scan(&count); err != nil {
			return fmt.Errorf("failed to count accounts: %w", err)
		}
		if count > 0 {
			return domain.ErrClientHasAccounts
		}

		if _, err := s.tm.querier(ctx).Exec(ctx, `DELETE FROM clients WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}
		return nil
	})
}

// CreateAccount 開戶，持有人以 FOR SHARE 鎖定
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	return s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := scanClient(s.tm.querier(ctx).QueryRow(ctx,
			`SELECT `+clientColumns+` FROM clients WHERE id = $1 FOR SHARE`, account.ClientID)); err != nil {
			return err
		}

		_, err := s.tm.querier(ctx).Exec(ctx, `
			INSERT INTO accounts (id, client_id, number, account_type, currency, balance, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			account.ID,
			account.ClientID,
			account.Number,
			account.Type,
			account.Currency,
			account.Balance.String(),
			account.CreatedAt,
			account.UpdatedAt,
		)
		if err != nil {
			switch code, _ := pgErrorCode(err); code {
			case uniqueViolation:
				return domain.ErrDuplicateAccountNumber
			case foreignKeyViolation:
				return domain.ErrClientNotFound
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		return nil
	})
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return scanAccount(s.tm.querier(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE number = $1`, number))
}

func (s *Store) ListAccounts(ctx context.Context, clientID uuid.UUID) ([]*domain.Account, error) {
	rows, err := s.tm.querier(ctx).Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE client_id = $1 ORDER BY created_at, number`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

// DeleteAccount 分錄由 ON DELETE CASCADE 一併刪除
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.lockAccount(ctx, id); err != nil {
			return err
		}
		if _, err := s.tm.querier(ctx).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
}

func scanClient(row pgx.Row) (*domain.Client, error) {
	var client domain.Client
	err := row.Scan(&client.ID, &client.Name, &client.Email, &client.PasswordHash, &client.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	client.CreatedAt = client.CreatedAt.UTC()
	return &client, nil
}
