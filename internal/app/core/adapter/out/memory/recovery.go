package memory

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

type recordKind string

const (
	kindClientCreated   recordKind = "client_created"
	kindClientUpdated   recordKind = "client_updated"
	kindClientDeleted   recordKind = "client_deleted"
	kindAccountCreated  recordKind = "account_created"
	kindAccountDeleted  recordKind = "account_deleted"
	kindOperationPosted recordKind = "operation_posted"
)

// walRecord WAL 中的一筆紀錄
type walRecord struct {
	Kind      recordKind            `json:"kind"`
	ID        uuid.UUID             `json:"id"`
	Client    *domain.Client        `json:"client,omitempty"`
	Account   *domain.Account       `json:"account,omitempty"`
	Operation *domain.Operation     `json:"operation,omitempty"`
	Legs      []*domain.Transaction `json:"legs,omitempty"`
}

// recoverFromWAL 從 WAL 檔案恢復狀態
// 只有 NewStore 呼叫，無需 Lock (單執行緒)
func (s *Store) recoverFromWAL() error {
	var count int
	err := s.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		count++
		return s.applyRecord(&rec)
	})
	if err != nil {
		return fmt.Errorf("failed to recover from wal: %w", err)
	}
	if count > 0 {
		log.Printf("Recovered %d WAL records (%d clients, %d accounts)", count, len(s.clients), len(s.accounts))
	}
	return nil
}

// applyRecord 恢復單筆紀錄至記憶體 (不寫入 WAL)
func (s *Store) applyRecord(rec *walRecord) error {
	switch rec.Kind {
	case kindClientCreated, kindClientUpdated:
		if rec.Client == nil {
			return fmt.Errorf("wal record %s without client", rec.Kind)
		}
		if old, ok := s.clients[rec.Client.ID]; ok {
			delete(s.emails, old.Email)
		}
		s.putClient(rec.Client)

	case kindClientDeleted:
		s.removeClient(rec.ID)

	case kindAccountCreated:
		if rec.Account == nil {
			return fmt.Errorf("wal record %s without account", rec.Kind)
		}
		s.putAccount(rec.Account)

	case kindAccountDeleted:
		if e, ok := s.accounts[rec.ID]; ok {
			s.removeAccount(e.account)
		}

	case kindOperationPosted:
		if rec.Operation == nil {
			return fmt.Errorf("wal record %s without operation", rec.Kind)
		}
		for _, leg := range rec.Legs {
			e, ok := s.accounts[leg.AccountID]
			if !ok {
				return fmt.Errorf("wal operation %s references unknown account %s", rec.Operation.ID, leg.AccountID)
			}
			// 餘額直接採用分錄紀錄的 BalanceAfter，重放結果與寫入時一致
			e.account.Balance = leg.BalanceAfter
			e.account.UpdatedAt = leg.CreatedAt
			e.history = append(e.history, leg)
			if leg.Sequence > s.seq.Load() {
				s.seq.Store(leg.Sequence)
			}
		}
		s.ops[rec.Operation.ID] = completedOp(rec.Operation, rec.Legs)

	default:
		return fmt.Errorf("unknown wal record kind %q", rec.Kind)
	}
	return nil
}
