package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

func (s *Store) CreateClient(ctx context.Context, client *domain.Client) error {
	if err := s.db(ctx).Create(toSQLClient(client)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	return s.findClient(s.db(ctx).Where("id = ?", id.String()))
}

func (s *Store) GetClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	return s.findClient(s.db(ctx).Where("email = ?", email))
}

func (s *Store) findClient(q *gorm.DB) (*domain.Client, error) {
	var row sqlClient
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListClients(ctx context.Context) ([]*domain.Client, error) {
	var rows []sqlClient
	if err := s.db(ctx).Order("created_at").Order("email").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	out := make([]*domain.Client, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// UpdateClient 只更新名稱
func (s *Store) UpdateClient(ctx context.Context, client *domain.Client) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		var row sqlClient
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", client.ID.String()).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrClientNotFound
			}
			return fmt.Errorf("failed to get client: %w", err)
		}
		if err := tx.Model(&sqlClient{}).Where("id = ?", row.ID).Update("name", client.Name).Error; err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&sqlAccount{}).Where("client_id = ?", id.String()).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count accounts: %w", err)
		}
		if count > 0 {
			return domain.ErrClientHasAccounts
		}
		result := tx.Where("id = ?", id.String()).Delete(&sqlClient{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete client: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrClientNotFound
		}
		return nil
	})
}

// CreateAccount 開戶，持有人以 FOR SHARE 鎖定避免同時被刪除
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		var owner sqlClient
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).Where("id = ?", account.ClientID.String()).First(&owner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrClientNotFound
			}
			return fmt.Errorf("failed to get client: %w", err)
		}
		if err := tx.Create(toSQLAccount(account)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateAccountNumber
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		return nil
	})
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	var row sqlAccount
	if err := s.db(ctx).Where("number = ?", number).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAccounts(ctx context.Context, clientID uuid.UUID) ([]*domain.Account, error) {
	var rows []sqlAccount
	if err := s.db(ctx).Where("client_id = ?", clientID.String()).Order("created_at").Order("number").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	out := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// DeleteAccount 鎖定帳戶後刪除其分錄與帳戶本身
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		accounts, err := lockAccounts(tx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			return domain.ErrAccountNotFound
		}
		if err := tx.Where("account_id = ?", id.String()).Delete(&sqlTransaction{}).Error; err != nil {
			return fmt.Errorf("failed to delete transactions: %w", err)
		}
		if err := tx.Where("id = ?", id.String()).Delete(&sqlAccount{}).Error; err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
}
