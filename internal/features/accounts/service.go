// Package accounts — service.go: регистрация и чтение аккаунтов.
package accounts

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Service управляет аккаунтами пользователей.
type Service struct {
	store Store
}

// NewService создаёт сервис аккаунтов.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Ensure гарантирует, что аккаунт существует. Повторный вызов безопасен:
// баланс, VIP и спонсоры не трогаются, обновляется только имя.
// created = true, если аккаунт создан именно этим вызовом.
func (s *Service) Ensure(ctx context.Context, p Profile) (Account, bool, error) {
	acc, created, err := s.store.Ensure(ctx, p)
	if err != nil {
		return Account{}, false, fmt.Errorf("ошибка регистрации аккаунта %d: %w", p.UserID, err)
	}
	if created {
		log.WithFields(log.Fields{
			"user_id":  p.UserID,
			"username": p.Username,
		}).Info("Новый аккаунт зарегистрирован")
	}
	return acc, created, nil
}

// Get возвращает аккаунт по Telegram user ID.
func (s *Service) Get(ctx context.Context, userID int64) (Account, error) {
	return s.store.Get(ctx, userID)
}
