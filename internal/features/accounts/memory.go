package accounts

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/memory"
)

// MemoryStore — Store в памяти. Все вызовы идут через общий memory.TxManager,
// поэтому блокировка строки совпадает с блокировкой всей транзакции.
type MemoryStore struct {
	tx       *memory.TxManager
	accounts map[int64]*Account
}

// NewMemoryStore создаёт хранилище аккаунтов в памяти.
func NewMemoryStore(tx *memory.TxManager) *MemoryStore {
	return &MemoryStore{tx: tx, accounts: make(map[int64]*Account)}
}

// mutate сохраняет копию аккаунта в журнал отката и вызывает fn.
func (s *MemoryStore) mutate(ctx context.Context, a *Account, fn func()) {
	before := *a
	memory.Undo(ctx, func() { *a = before })
	fn()
}

func (s *MemoryStore) Ensure(ctx context.Context, p Profile) (acc Account, created bool, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		now := time.Now()
		if a, ok := s.accounts[p.UserID]; ok {
			s.mutate(ctx, a, func() {
				if p.Username != "" {
					a.Username = p.Username
				}
				if p.FirstName != "" {
					a.FirstName = p.FirstName
				}
				a.UpdatedAt = now
			})
			acc = *a
			return nil
		}

		a := &Account{
			UserID:    p.UserID,
			Username:  p.Username,
			FirstName: p.FirstName,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.accounts[p.UserID] = a
		memory.Undo(ctx, func() { delete(s.accounts, p.UserID) })
		acc, created = *a, true
		return nil
	})
	return acc, created, err
}

func (s *MemoryStore) Get(ctx context.Context, userID int64) (acc Account, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, ok := s.accounts[userID]
		if !ok {
			return fmt.Errorf("аккаунт %d: %w", userID, common.ErrNotFound)
		}
		acc = *a
		return nil
	})
	return acc, err
}

func (s *MemoryStore) GetForUpdate(ctx context.Context, userID int64) (Account, error) {
	return s.Get(ctx, userID)
}

func (s *MemoryStore) AddBalance(ctx context.Context, userID, delta int64) (balance int64, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, ok := s.accounts[userID]
		if !ok {
			return fmt.Errorf("аккаунт %d: %w", userID, common.ErrNotFound)
		}
		if a.Balance+delta < 0 {
			return fmt.Errorf("аккаунт %d: %w", userID, common.ErrInsufficientBalance)
		}
		s.mutate(ctx, a, func() {
			a.Balance += delta
			a.UpdatedAt = time.Now()
		})
		balance = a.Balance
		return nil
	})
	return balance, err
}

func (s *MemoryStore) SetSponsors(ctx context.Context, userID int64, chain Chain) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, ok := s.accounts[userID]
		if !ok {
			return common.ErrAlreadyBound
		}
		if a.Sponsors[0] != 0 {
			return common.ErrAlreadyBound
		}
		s.mutate(ctx, a, func() { a.Sponsors = chain })
		return nil
	})
}

func (s *MemoryStore) SetVIPUntil(ctx context.Context, userID, until int64) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, ok := s.accounts[userID]
		if !ok {
			return fmt.Errorf("аккаунт %d: %w", userID, common.ErrNotFound)
		}
		s.mutate(ctx, a, func() { a.VIPUntil = until })
		return nil
	})
}
