package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/stars-bot/internal/db/postgres"
)

// Repository — PostgreSQL-реализация Store (таблица ledger_entries).
type Repository struct {
	db postgres.Pool
}

// NewRepository создаёт репозиторий журнала.
func NewRepository(db postgres.Pool) *Repository {
	return &Repository{db: db}
}

// Append добавляет запись и возвращает её с ID и временем создания.
func (r *Repository) Append(ctx context.Context, e Entry) (Entry, error) {
	query := `
		INSERT INTO ledger_entries (user_id, delta, cause, ref)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := postgres.Conn(ctx, r.db).
		QueryRow(ctx, query, e.UserID, e.Delta, string(e.Cause), e.Ref).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	return e, nil
}

// Sum возвращает сумму всех движений аккаунта.
func (r *Repository) Sum(ctx context.Context, userID int64) (int64, error) {
	query := `SELECT COALESCE(SUM(delta), 0)::BIGINT FROM ledger_entries WHERE user_id = $1`
	var sum int64
	if err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта журнала: %w", err)
	}
	return sum, nil
}

func (r *Repository) SumByCause(ctx context.Context, userID int64, cause Cause) (int64, error) {
	query := `
		SELECT COALESCE(SUM(delta), 0)::BIGINT
		FROM ledger_entries
		WHERE user_id = $1 AND cause = $2
	`
	var sum int64
	if err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, userID, string(cause)).Scan(&sum); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта журнала по причине %s: %w", cause, err)
	}
	return sum, nil
}

// List возвращает последние записи аккаунта.
func (r *Repository) List(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	query := `
		SELECT id, user_id, delta, cause, ref, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var cause string
		err := row.Scan(&e.ID, &e.UserID, &e.Delta, &cause, &e.Ref, &e.CreatedAt)
		e.Cause = Cause(cause)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	return entries, nil
}
