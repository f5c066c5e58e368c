package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// CreateClient 建立客戶，Email 不可重複
func (s *Store) CreateClient(ctx context.Context, client *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[client.Email]; ok {
		return domain.ErrDuplicateEmail
	}
	c := *client
	if err := s.writeWAL(walRecord{Kind: kindClientCreated, Client: &c}); err != nil {
		return err
	}
	s.putClient(&c)
	return nil
}

func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	s.mu.RLock()
	id, ok := s.emails[email]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return s.GetClient(ctx, id)
}

// ListClients 依建立時間排序
func (s *Store) ListClients(ctx context.Context) ([]*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		cp := *c
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *domain.Client) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Email, b.Email)
	})
	return out, nil
}

// UpdateClient 只更新名稱
func (s *Store) UpdateClient(ctx context.Context, client *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.clients[client.ID]
	if !ok {
		return domain.ErrClientNotFound
	}
	updated := *existing
	updated.Name = client.Name
	if err := s.writeWAL(walRecord{Kind: kindClientUpdated, Client: &updated}); err != nil {
		return err
	}
	s.clients[client.ID] = &updated
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[id]; !ok {
		return domain.ErrClientNotFound
	}
	if len(s.byClient[id]) > 0 {
		return domain.ErrClientHasAccounts
	}
	if err := s.writeWAL(walRecord{Kind: kindClientDeleted, ID: id}); err != nil {
		return err
	}
	s.removeClient(id)
	return nil
}

// CreateAccount 開戶，持有人必須存在且帳號不可重複
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[account.ClientID]; !ok {
		return domain.ErrClientNotFound
	}
	if _, ok := s.numbers[account.Number]; ok {
		return domain.ErrDuplicateAccountNumber
	}
	a := account.Clone()
	if err := s.writeWAL(walRecord{Kind: kindAccountCreated, Account: a}); err != nil {
		return err
	}
	s.putAccount(a.Clone())
	return nil
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	s.mu.RLock()
	id, ok := s.numbers[number]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return s.GetAccount(ctx, id)
}

// ListAccounts 列出客戶名下帳戶，依建立時間排序
func (s *Store) ListAccounts(ctx context.Context, clientID uuid.UUID) ([]*domain.Account, error) {
	s.mu.RLock()
	entries := make([]*accountEntry, 0, len(s.byClient[clientID]))
	for id := range s.byClient[clientID] {
		entries = append(entries, s.accounts[id])
	}
	s.mu.RUnlock()

	out := make([]*domain.Account, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.account.Clone())
		}
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b *domain.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Number, b.Number)
	})
	return out, nil
}

// DeleteAccount 刪除帳戶與其分錄
// 持有 entry 鎖，等待進行中的交易結束
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.writeWAL(walRecord{Kind: kindAccountDeleted, ID: id}); err != nil {
		return err
	}
	e.deleted = true
	e.history = nil
	s.removeAccount(e.account)
	return nil
}

// 以下 helper 呼叫端必須持有 s.mu 寫鎖

func (s *Store) putClient(c *domain.Client) {
	s.clients[c.ID] = c
	s.emails[c.Email] = c.ID
}

func (s *Store) removeClient(id uuid.UUID) {
	if c, ok := s.clients[id]; ok {
		delete(s.emails, c.Email)
		delete(s.clients, id)
	}
	delete(s.byClient, id)
}

func (s *Store) putAccount(a *domain.Account) {
	s.accounts[a.ID] = &accountEntry{account: a}
	s.numbers[a.Number] = a.ID
	owned, ok := s.byClient[a.ClientID]
	if !ok {
		owned = make(map[uuid.UUID]struct{})
		s.byClient[a.ClientID] = owned
	}
	owned[a.ID] = struct{}{}
}

func (s *Store) removeAccount(a *domain.Account) {
	delete(s.accounts, a.ID)
	delete(s.numbers, a.Number)
	if owned, ok := s.byClient[a.ClientID]; ok {
		delete(owned, a.ID)
		if len(owned) == 0 {
			delete(s.byClient, a.ClientID)
		}
	}
}
