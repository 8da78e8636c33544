package payments

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/memory"
)

type memoryRecord struct {
	Record
	seq     int64
	effects Effects
	applied bool
}

// MemoryStore — Store в памяти.
type MemoryStore struct {
	tx      *memory.TxManager
	records map[string]*memoryRecord
	seq     int64
}

func NewMemoryStore(tx *memory.TxManager) *MemoryStore {
	return &MemoryStore{tx: tx, records: make(map[string]*memoryRecord)}
}

func cloneEffects(e Effects) Effects {
	e.Commissions = slices.Clone(e.Commissions)
	e.Duplicate = false
	e.CommissionsSettled = false
	return e
}

func (s *MemoryStore) Claim(ctx context.Context, rec Record) (claimed bool, existing Effects, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if r, ok := s.records[rec.Token]; ok {
			existing = cloneEffects(r.effects)
			return nil
		}
		s.seq++
		s.records[rec.Token] = &memoryRecord{Record: rec, seq: s.seq}
		memory.Undo(ctx, func() { delete(s.records, rec.Token) })
		claimed = true
		return nil
	})
	return claimed, existing, err
}

func (s *MemoryStore) record(token string) (*memoryRecord, error) {
	r, ok := s.records[token]
	if !ok {
		return nil, fmt.Errorf("платёж %s: %w", token, common.ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) SaveEffects(ctx context.Context, token string, e Effects) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.record(token)
		if err != nil {
			return err
		}
		before := r.effects
		r.effects = cloneEffects(e)
		memory.Undo(ctx, func() { r.effects = before })
		return nil
	})
}

func (s *MemoryStore) LockSettlement(ctx context.Context, token string) (st Settlement, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.record(token)
		if err != nil {
			return err
		}
		st = Settlement{Record: r.Record, Effects: cloneEffects(r.effects), Applied: r.applied}
		return nil
	})
	return st, err
}

func (s *MemoryStore) MarkSettled(ctx context.Context, token string, e Effects) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.record(token)
		if err != nil {
			return err
		}
		before, wasApplied := r.effects, r.applied
		r.effects, r.applied = cloneEffects(e), true
		memory.Undo(ctx, func() { r.effects, r.applied = before, wasApplied })
		return nil
	})
}

func (s *MemoryStore) Pending(ctx context.Context, limit int) (tokens []string, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var pending []*memoryRecord
		for _, r := range s.records {
			if !r.applied {
				pending = append(pending, r)
			}
		}
		slices.SortFunc(pending, func(a, b *memoryRecord) int { return cmp.Compare(a.seq, b.seq) })
		for _, r := range pending {
			if len(tokens) == limit {
				break
			}
			tokens = append(tokens, r.Token)
		}
		return nil
	})
	return tokens, err
}

func (s *MemoryStore) SpentBy(ctx context.Context, userID int64) (stars int64, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, r := range s.records {
			if r.PayerID == userID {
				stars += r.Amount
			}
		}
		return nil
	})
	return stars, err
}

func (s *MemoryStore) TopSpenders(ctx context.Context, limit int) (top []Spender, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		totals := make(map[int64]int64)
		for _, r := range s.records {
			totals[r.PayerID] += r.Amount
		}
		for id, stars := range totals {
			top = append(top, Spender{UserID: id, Stars: stars})
		}
		slices.SortFunc(top, func(a, b Spender) int {
			if c := cmp.Compare(b.Stars, a.Stars); c != 0 {
				return c
			}
			return cmp.Compare(a.UserID, b.UserID)
		})
		if len(top) > limit {
			top = top[:limit]
		}
		return nil
	})
	return top, err
}
