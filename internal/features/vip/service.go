package vip

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
)

// Extension — результат продления VIP.
type Extension struct {
	UserID   int64
	OldUntil int64
	NewUntil int64
	Bonus    int64 // Начисленный бонус (0, если бонус выключен)
	Balance  int64
}

// Service продлевает VIP.
type Service struct {
	tx       db.TxManager
	accounts accounts.Store
	ledger   *ledger.Service
	policy   Policy
}

// NewService создаёт VIP-сервис.
func NewService(tx db.TxManager, accountStore accounts.Store, ledgerService *ledger.Service, policy Policy) *Service {
	return &Service{tx: tx, accounts: accountStore, ledger: ledgerService, policy: policy}
}

// Policy возвращает действующую политику.
func (s *Service) Policy() Policy {
	return s.policy
}

// Extend продлевает VIP на days суток и начисляет бонус одной записью
// vip-bonus. Всё в одной транзакции. ref — ссылка на платёж.
func (s *Service) Extend(ctx context.Context, userID, days int64, now time.Time, ref string) (Extension, error) {
	if days <= 0 {
		return Extension{}, common.ErrInvalidAmount
	}

	ext := Extension{UserID: userID}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		acc, err := s.accounts.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		ext.OldUntil = acc.VIPUntil
		ext.NewUntil = NextExpiry(acc.VIPUntil, now, days)
		ext.Balance = acc.Balance

		if err := s.accounts.SetVIPUntil(ctx, userID, ext.NewUntil); err != nil {
			return err
		}

		if s.policy.Bonus > 0 {
			ext.Balance, err = s.ledger.Credit(ctx, userID, s.policy.Bonus, ledger.CauseVIPBonus, ref)
			if err != nil {
				return err
			}
			ext.Bonus = s.policy.Bonus
		}
		return nil
	})
	if err != nil {
		return Extension{}, fmt.Errorf("ошибка продления VIP для %d: %w", userID, err)
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"days":      days,
		"vip_until": ext.NewUntil,
		"bonus":     ext.Bonus,
	}).Info("VIP продлён")
	return ext, nil
}
