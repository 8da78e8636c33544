// Package lottery — repository.go реализует Store поверх PostgreSQL.
// Время раундов хранится в unix-секундах, 0 — «не задано».
package lottery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/postgres"
)

const roundColumns = `id, status, jackpot, opened_at, closed_at, winner_id, draw_seed`

// Repository — PostgreSQL-реализация Store.
type Repository struct {
	db postgres.Pool
}

// NewRepository создаёт репозиторий лотереи.
func NewRepository(db postgres.Pool) *Repository {
	return &Repository{db: db}
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func scanRound(row pgx.Row) (Round, error) {
	var (
		r        Round
		status   string
		openedAt int64
		closedAt int64
	)
	if err := row.Scan(&r.ID, &status, &r.Jackpot, &openedAt, &closedAt, &r.WinnerID, &r.DrawSeed); err != nil {
		return Round{}, err
	}
	r.Status = Status(status)
	r.OpenedAt = unixOrZero(openedAt)
	r.ClosedAt = unixOrZero(closedAt)
	return r, nil
}

func (r *Repository) queryRound(ctx context.Context, what, query string, args ...any) (Round, error) {
	round, err := scanRound(postgres.Conn(ctx, r.db).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Round{}, fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	if err != nil {
		return Round{}, fmt.Errorf("ошибка получения раунда: %w", err)
	}
	return round, nil
}

func (r *Repository) LockOpenRound(ctx context.Context) (Round, error) {
	query := `SELECT ` + roundColumns + ` FROM lottery_rounds WHERE status = 'open' FOR UPDATE`
	return r.queryRound(ctx, "открытый раунд", query)
}

// CreateRound вставляет открытый раунд. Уникальный частичный индекс
// по status = 'open' не пускает второй открытый раунд.
func (r *Repository) CreateRound(ctx context.Context, openedAt time.Time) (Round, bool, error) {
	query := `
		INSERT INTO lottery_rounds (status, jackpot, opened_at)
		VALUES ('open', 0, $1)
		ON CONFLICT DO NOTHING
		RETURNING ` + roundColumns
	round, err := scanRound(postgres.Conn(ctx, r.db).QueryRow(ctx, query, openedAt.Unix()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Round{}, false, nil
	}
	if err != nil {
		return Round{}, false, fmt.Errorf("ошибка создания раунда: %w", err)
	}
	return round, true, nil
}

func (r *Repository) LockRound(ctx context.Context, id int64) (Round, error) {
	query := `SELECT ` + roundColumns + ` FROM lottery_rounds WHERE id = $1 FOR UPDATE`
	return r.queryRound(ctx, fmt.Sprintf("раунд %d", id), query, id)
}

func (r *Repository) GetRound(ctx context.Context, id int64) (Round, error) {
	query := `SELECT ` + roundColumns + ` FROM lottery_rounds WHERE id = $1`
	return r.queryRound(ctx, fmt.Sprintf("раунд %d", id), query, id)
}

func (r *Repository) LastClosed(ctx context.Context) (Round, error) {
	query := `SELECT ` + roundColumns + ` FROM lottery_rounds WHERE status = 'closed' ORDER BY id DESC LIMIT 1`
	return r.queryRound(ctx, "закрытый раунд", query)
}

func (r *Repository) AddStake(ctx context.Context, s Stake) (Stake, error) {
	query := `
		INSERT INTO lottery_stakes (round_id, user_id, amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, s.RoundID, s.UserID, s.Amount).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return Stake{}, fmt.Errorf("ошибка записи ставки: %w", err)
	}
	return s, nil
}

func (r *Repository) AddJackpot(ctx context.Context, roundID, amount int64) (int64, error) {
	query := `UPDATE lottery_rounds SET jackpot = jackpot + $2 WHERE id = $1 AND status = 'open' RETURNING jackpot`
	var jackpot int64
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, roundID, amount).Scan(&jackpot)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("раунд %d: %w", roundID, common.ErrRoundAlreadyClosed)
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка обновления банка: %w", err)
	}
	return jackpot, nil
}

func (r *Repository) Weights(ctx context.Context, roundID int64) ([]Weight, error) {
	query := `
		SELECT user_id, SUM(amount)::BIGINT
		FROM lottery_stakes
		WHERE round_id = $1
		GROUP BY user_id
		ORDER BY user_id
	`
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ставок: %w", err)
	}
	weights, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Weight, error) {
		var w Weight
		err := row.Scan(&w.UserID, &w.Amount)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ставок: %w", err)
	}
	return weights, nil
}

func (r *Repository) CloseRound(ctx context.Context, round Round) error {
	query := `
		UPDATE lottery_rounds
		SET status = 'closed', closed_at = $2, winner_id = $3, draw_seed = $4
		WHERE id = $1 AND status = 'open'
	`
	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, query, round.ID, round.ClosedAt.Unix(), round.WinnerID, round.DrawSeed)
	if err != nil {
		return fmt.Errorf("ошибка закрытия раунда: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("раунд %d: %w", round.ID, common.ErrRoundAlreadyClosed)
	}
	return nil
}

func (r *Repository) AddWinner(ctx context.Context, w Winner) error {
	query := `INSERT INTO lottery_winners (round_id, place, user_id, prize) VALUES ($1, $2, $3, $4)`
	if _, err := postgres.Conn(ctx, r.db).Exec(ctx, query, w.RoundID, w.Place, w.UserID, w.Prize); err != nil {
		return fmt.Errorf("ошибка записи победителя: %w", err)
	}
	return nil
}

func (r *Repository) Winners(ctx context.Context, roundID int64) ([]Winner, error) {
	query := `SELECT round_id, place, user_id, prize FROM lottery_winners WHERE round_id = $1 ORDER BY place`
	rows, err := postgres.Conn(ctx, r.db).Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения победителей: %w", err)
	}
	winners, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Winner, error) {
		var w Winner
		err := row.Scan(&w.RoundID, &w.Place, &w.UserID, &w.Prize)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения победителей: %w", err)
	}
	return winners, nil
}
