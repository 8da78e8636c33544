package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/postgres"
)

// Repository — PostgreSQL-реализация Store (tasks, task_completions).
type Repository struct {
	db postgres.Pool
}

// NewRepository создаёт репозиторий заданий.
func NewRepository(db postgres.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, t Task) (Task, error) {
	query := `
		INSERT INTO tasks (title, link, reward, active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, created_at
	`
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, t.Title, t.Link, t.Reward).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("ошибка создания задания: %w", err)
	}
	t.Active = true
	return t, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Task, error) {
	query := `SELECT id, title, link, reward, active, created_at FROM tasks WHERE id = $1`
	var t Task
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, id).
		Scan(&t.ID, &t.Title, &t.Link, &t.Reward, &t.Active, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, fmt.Errorf("задание %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return Task{}, fmt.Errorf("ошибка получения задания: %w", err)
	}
	return t, nil
}

func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, `UPDATE tasks SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("ошибка обновления задания: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("задание %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *Repository) ListActive(ctx context.Context) ([]Task, error) {
	query := `
		SELECT id, title, link, reward, active, created_at
		FROM tasks
		WHERE active
		ORDER BY id
	`
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заданий: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Task, error) {
		var t Task
		err := row.Scan(&t.ID, &t.Title, &t.Link, &t.Reward, &t.Active, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения заданий: %w", err)
	}
	return list, nil
}

// MarkCompleted опирается на первичный ключ (user_id, task_id).
func (r *Repository) MarkCompleted(ctx context.Context, userID, taskID int64) (bool, error) {
	query := `
		INSERT INTO task_completions (user_id, task_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, task_id) DO NOTHING
	`
	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, query, userID, taskID)
	if err != nil {
		return false, fmt.Errorf("ошибка записи выполнения задания: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) CompletedBy(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, `SELECT task_id FROM task_completions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения выполненных заданий: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения выполненных заданий: %w", err)
	}

	done := make(map[int64]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}
