package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/postgres"
)

// Repository — PostgreSQL-реализация Store. Эффекты лежат в JSONB.
type Repository struct {
	db postgres.Pool
}

// NewRepository создаёт репозиторий платежей.
func NewRepository(db postgres.Pool) *Repository {
	return &Repository{db: db}
}

// Claim вставляет токен; конфликт по первичному ключу значит повтор.
// Параллельный Claim того же токена ждёт коммита первой транзакции.
func (r *Repository) Claim(ctx context.Context, rec Record) (bool, Effects, error) {
	conn := postgres.Conn(ctx, r.db)

	query := `
		INSERT INTO payments (token, payer_id, amount, purpose)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO NOTHING
		RETURNING token
	`
	var token string
	err := conn.QueryRow(ctx, query, rec.Token, rec.PayerID, rec.Amount, rec.Purpose.String()).Scan(&token)
	if err == nil {
		return true, Effects{}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, Effects{}, fmt.Errorf("ошибка записи платежа: %w", err)
	}

	var raw []byte
	err = conn.QueryRow(ctx, `SELECT effects FROM payments WHERE token = $1`, rec.Token).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, Effects{}, fmt.Errorf("платёж %s: %w", rec.Token, common.ErrNotFound)
	}
	if err != nil {
		return false, Effects{}, fmt.Errorf("ошибка чтения платежа: %w", err)
	}

	var e Effects
	if err := json.Unmarshal(raw, &e); err != nil {
		return false, Effects{}, fmt.Errorf("ошибка разбора эффектов платежа: %w", err)
	}
	return false, e, nil
}

func (r *Repository) SaveEffects(ctx context.Context, token string, e Effects) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ошибка сериализации эффектов: %w", err)
	}

	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, `UPDATE payments SET effects = $2 WHERE token = $1`, token, raw)
	if err != nil {
		return fmt.Errorf("ошибка сохранения эффектов: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("платёж %s: %w", token, common.ErrNotFound)
	}
	return nil
}

func (r *Repository) LockSettlement(ctx context.Context, token string) (Settlement, error) {
	query := `
		SELECT token, payer_id, amount, purpose, effects, commissions_applied
		FROM payments
		WHERE token = $1
		FOR UPDATE
	`
	var (
		st      Settlement
		purpose string
		raw     []byte
	)
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, token).
		Scan(&st.Token, &st.PayerID, &st.Amount, &purpose, &raw, &st.Applied)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settlement{}, fmt.Errorf("платёж %s: %w", token, common.ErrNotFound)
	}
	if err != nil {
		return Settlement{}, fmt.Errorf("ошибка блокировки платежа: %w", err)
	}

	if st.Purpose, err = ParsePurpose(purpose); err != nil {
		return Settlement{}, err
	}
	if err := json.Unmarshal(raw, &st.Effects); err != nil {
		return Settlement{}, fmt.Errorf("ошибка разбора эффектов платежа: %w", err)
	}
	return st, nil
}

func (r *Repository) MarkSettled(ctx context.Context, token string, e Effects) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ошибка сериализации эффектов: %w", err)
	}

	query := `UPDATE payments SET effects = $2, commissions_applied = TRUE WHERE token = $1`
	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, query, token, raw)
	if err != nil {
		return fmt.Errorf("ошибка отметки комиссий: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("платёж %s: %w", token, common.ErrNotFound)
	}
	return nil
}

func (r *Repository) Pending(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT token FROM payments
		WHERE NOT commissions_applied
		ORDER BY processed_at, token
		LIMIT $1
	`
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска платежей без комиссий: %w", err)
	}
	tokens, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения платежей: %w", err)
	}
	return tokens, nil
}

// SpentBy — сколько звёзд пользователь потратил за всё время.
func (r *Repository) SpentBy(ctx context.Context, userID int64) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM payments WHERE payer_id = $1`
	var stars int64
	if err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, userID).Scan(&stars); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта трат: %w", err)
	}
	return stars, nil
}

// TopSpenders — лидеры по потраченным звёздам. При равенстве раньше идёт меньший ID.
func (r *Repository) TopSpenders(ctx context.Context, limit int) ([]Spender, error) {
	query := `
		SELECT payer_id, SUM(amount)::BIGINT AS stars
		FROM payments
		GROUP BY payer_id
		ORDER BY stars DESC, payer_id
		LIMIT $1
	`
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения рейтинга: %w", err)
	}
	top, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Spender, error) {
		var sp Spender
		err := row.Scan(&sp.UserID, &sp.Stars)
		return sp, err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения рейтинга: %w", err)
	}
	return top, nil
}
