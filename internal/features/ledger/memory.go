package ledger

import (
	"context"
	"time"

	"serotonyl.ru/stars-bot/internal/db/memory"
)

// MemoryStore — журнал в памяти поверх общего memory.TxManager.
type MemoryStore struct {
	tx      *memory.TxManager
	entries []Entry
	nextID  int64
}

// NewMemoryStore создаёт журнал в памяти.
func NewMemoryStore(tx *memory.TxManager) *MemoryStore {
	return &MemoryStore{tx: tx}
}

func (s *MemoryStore) Append(ctx context.Context, e Entry) (out Entry, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		s.nextID++
		e.ID = s.nextID
		e.CreatedAt = time.Now()
		s.entries = append(s.entries, e)

		n := len(s.entries) - 1
		memory.Undo(ctx, func() {
			s.entries = s.entries[:n]
			s.nextID--
		})
		out = e
		return nil
	})
	return out, err
}

func (s *MemoryStore) Sum(ctx context.Context, userID int64) (sum int64, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, e := range s.entries {
			if e.UserID == userID {
				sum += e.Delta
			}
		}
		return nil
	})
	return sum, err
}

func (s *MemoryStore) SumByCause(ctx context.Context, userID int64, cause Cause) (sum int64, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, e := range s.entries {
			if e.UserID == userID && e.Cause == cause {
				sum += e.Delta
			}
		}
		return nil
	})
	return sum, err
}

func (s *MemoryStore) List(ctx context.Context, userID int64, limit int) (out []Entry, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
			if s.entries[i].UserID == userID {
				out = append(out, s.entries[i])
			}
		}
		return nil
	})
	return out, err
}
