package tasks

import "context"

// Store — хранилище заданий и журнала выполнений.
type Store interface {
	Create(ctx context.Context, t Task) (Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	SetActive(ctx context.Context, id int64, active bool) error
	ListActive(ctx context.Context) ([]Task, error)
	// MarkCompleted пишет выполнение. false — пользователь уже выполнял задание.
	MarkCompleted(ctx context.Context, userID, taskID int64) (bool, error)
	CompletedBy(ctx context.Context, userID int64) (map[int64]bool, error)
}
