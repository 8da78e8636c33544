// Package ledger — service.go содержит атомарные начисления и списания.
//
// Каждая операция в одной транзакции:
//  1. блокирует строку аккаунта (GetForUpdate);
//  2. проверяет остаток (для списания);
//  3. меняет баланс;
//  4. добавляет запись в журнал.
//
// Если транзакция уже открыта в ctx, операция присоединяется к ней.
package ledger

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/metrics"
)

// Service — операции над балансом.
type Service struct {
	tx       db.TxManager
	accounts accounts.Store
	entries  Store
}

// NewService создаёт сервис леджера.
func NewService(tx db.TxManager, accountStore accounts.Store, entries Store) *Service {
	return &Service{tx: tx, accounts: accountStore, entries: entries}
}

// Credit начисляет amount билетов и возвращает новый баланс.
func (s *Service) Credit(ctx context.Context, userID, amount int64, cause Cause, ref string) (int64, error) {
	return s.apply(ctx, userID, amount, amount, cause, ref)
}

// Debit списывает amount билетов. При нехватке — common.ErrInsufficientBalance,
// баланс и журнал не меняются.
func (s *Service) Debit(ctx context.Context, userID, amount int64, cause Cause, ref string) (int64, error) {
	return s.apply(ctx, userID, amount, -amount, cause, ref)
}

func (s *Service) apply(ctx context.Context, userID, amount, delta int64, cause Cause, ref string) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if !cause.Valid() {
		return 0, fmt.Errorf("%q: %w", cause, common.ErrUnknownCause)
	}

	var balance int64
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		acc, err := s.accounts.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if delta < 0 && acc.Balance < amount {
			return fmt.Errorf("нужно %d, есть %d: %w", amount, acc.Balance, common.ErrInsufficientBalance)
		}

		balance, err = s.accounts.AddBalance(ctx, userID, delta)
		if err != nil {
			return err
		}

		_, err = s.entries.Append(ctx, Entry{UserID: userID, Delta: delta, Cause: cause, Ref: ref})
		return err
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordLedgerEntry(string(cause), delta)
	log.WithFields(log.Fields{
		"user_id": userID,
		"delta":   delta,
		"cause":   cause,
		"ref":     ref,
		"balance": balance,
	}).Debug("Движение по балансу")
	return balance, nil
}

// Reconcile сверяет баланс аккаунта с суммой его записей.
func (s *Service) Reconcile(ctx context.Context, userID int64) (Reconciliation, error) {
	rec := Reconciliation{UserID: userID}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		acc, err := s.accounts.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		rec.Balance = acc.Balance

		rec.LedgerSum, err = s.entries.Sum(ctx, userID)
		return err
	})
	if err != nil {
		return Reconciliation{}, fmt.Errorf("ошибка сверки аккаунта %d: %w", userID, err)
	}
	if !rec.OK() {
		log.WithFields(log.Fields{
			"user_id":    userID,
			"balance":    rec.Balance,
			"ledger_sum": rec.LedgerSum,
		}).Error("Баланс не сходится с журналом")
	}
	return rec, nil
}

// History возвращает последние операции аккаунта.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.entries.List(ctx, userID, limit)
}

// Earned — сколько билетов аккаунт получил по причине cause.
func (s *Service) Earned(ctx context.Context, userID int64, cause Cause) (int64, error) {
	return s.entries.SumByCause(ctx, userID, cause)
}
