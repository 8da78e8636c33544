package tasks

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db"
	"serotonyl.ru/stars-bot/internal/features/ledger"
)

// Service ведёт список заданий и выдаёт награды.
type Service struct {
	tx     db.TxManager
	store  Store
	ledger *ledger.Service
}

// NewService создаёт сервис заданий.
func NewService(tx db.TxManager, store Store, ledgerService *ledger.Service) *Service {
	return &Service{tx: tx, store: store, ledger: ledgerService}
}

// Add публикует задание с наградой reward билетов.
func (s *Service) Add(ctx context.Context, title, link string, reward int64) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, common.ErrInvalidTask
	}
	if reward <= 0 {
		return Task{}, common.ErrInvalidAmount
	}

	t, err := s.store.Create(ctx, Task{Title: title, Link: strings.TrimSpace(link), Reward: reward})
	if err != nil {
		return Task{}, err
	}
	log.WithFields(log.Fields{"task_id": t.ID, "reward": t.Reward}).Info("Задание опубликовано")
	return t, nil
}

// Disable снимает задание с публикации. Выполненные ранее остаются в журнале.
func (s *Service) Disable(ctx context.Context, id int64) error {
	return s.store.SetActive(ctx, id, false)
}

// List возвращает активные задания с отметкой выполнения для userID.
func (s *Service) List(ctx context.Context, userID int64) ([]Item, error) {
	var items []Item
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		active, err := s.store.ListActive(ctx)
		if err != nil {
			return err
		}
		done, err := s.store.CompletedBy(ctx, userID)
		if err != nil {
			return err
		}
		for _, t := range active {
			items = append(items, Item{Task: t, Done: done[t.ID]})
		}
		return nil
	})
	return items, err
}

// Complete засчитывает задание и начисляет награду в одной транзакции.
// Повторное выполнение — common.ErrTaskCompleted, без начисления.
func (s *Service) Complete(ctx context.Context, userID, taskID int64) (Completion, error) {
	var c Completion
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.store.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if !t.Active {
			return fmt.Errorf("задание %d: %w", taskID, common.ErrTaskInactive)
		}
		c.Task = t

		// Кредит блокирует аккаунт до записи выполнения
		c.Balance, err = s.ledger.Credit(ctx, userID, t.Reward, ledger.CauseTaskReward, fmt.Sprintf("task:%d", t.ID))
		if err != nil {
			return err
		}

		ok, err := s.store.MarkCompleted(ctx, userID, taskID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("задание %d: %w", taskID, common.ErrTaskCompleted)
		}
		return nil
	})
	if err != nil {
		return Completion{}, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"task_id": taskID,
		"reward":  c.Task.Reward,
	}).Info("Задание выполнено")
	return c, nil
}
