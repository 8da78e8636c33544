package tasks

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/memory"
)

type completionKey struct {
	userID, taskID int64
}

// MemoryStore — задания в памяти.
type MemoryStore struct {
	tx     *memory.TxManager
	tasks  []*Task
	done   map[completionKey]bool
	nextID int64
}

func NewMemoryStore(tx *memory.TxManager) *MemoryStore {
	return &MemoryStore{tx: tx, done: make(map[completionKey]bool)}
}

func (s *MemoryStore) find(id int64) (*Task, error) {
	for _, t := range s.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("задание %d: %w", id, common.ErrNotFound)
}

func (s *MemoryStore) Create(ctx context.Context, t Task) (out Task, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		s.nextID++
		t.ID, t.Active, t.CreatedAt = s.nextID, true, time.Now()
		s.tasks = append(s.tasks, &t)

		n := len(s.tasks) - 1
		memory.Undo(ctx, func() {
			s.tasks = s.tasks[:n]
			s.nextID--
		})
		out = t
		return nil
	})
	return out, err
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (out Task, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.find(id)
		if err != nil {
			return err
		}
		out = *t
		return nil
	})
	return out, err
}

func (s *MemoryStore) SetActive(ctx context.Context, id int64, active bool) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := s.find(id)
		if err != nil {
			return err
		}
		before := t.Active
		t.Active = active
		memory.Undo(ctx, func() { t.Active = before })
		return nil
	})
}

func (s *MemoryStore) ListActive(ctx context.Context) (out []Task, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, t := range s.tasks {
			if t.Active {
				out = append(out, *t)
			}
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) MarkCompleted(ctx context.Context, userID, taskID int64) (ok bool, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		key := completionKey{userID, taskID}
		if s.done[key] {
			return nil
		}
		s.done[key] = true
		memory.Undo(ctx, func() { delete(s.done, key) })
		ok = true
		return nil
	})
	return ok, err
}

func (s *MemoryStore) CompletedBy(ctx context.Context, userID int64) (out map[int64]bool, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		out = make(map[int64]bool)
		for key := range s.done {
			if key.userID == userID {
				out[key.taskID] = true
			}
		}
		return nil
	})
	return out, err
}
