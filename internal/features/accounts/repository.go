// Package accounts — repository.go реализует Store поверх PostgreSQL.
// Запросы выполняются через postgres.Conn: внутри WithTx — в транзакции.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/postgres"
)

const accountColumns = `user_id, username, first_name, balance, vip_until,
	COALESCE(sponsor_l1, 0), COALESCE(sponsor_l2, 0), COALESCE(sponsor_l3, 0),
	created_at, updated_at`

// Repository — PostgreSQL-реализация Store.
type Repository struct {
	db postgres.Pool
}

// NewRepository создаёт репозиторий аккаунтов.
func NewRepository(db postgres.Pool) *Repository {
	return &Repository{db: db}
}

func scanAccount(row pgx.Row, extra ...any) (Account, error) {
	var a Account
	dest := []any{
		&a.UserID, &a.Username, &a.FirstName, &a.Balance, &a.VIPUntil,
		&a.Sponsors[0], &a.Sponsors[1], &a.Sponsors[2],
		&a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Account{}, err
	}
	return a, nil
}

// Ensure вставляет аккаунт или обновляет username/first_name.
// Пустые значения не затирают сохранённые. xmax = 0 только у вставленной строки.
func (r *Repository) Ensure(ctx context.Context, p Profile) (Account, bool, error) {
	query := `
		INSERT INTO accounts (user_id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET username = COALESCE(NULLIF(EXCLUDED.username, ''), accounts.username),
			first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), accounts.first_name),
			updated_at = NOW()
		RETURNING ` + accountColumns + `, (xmax = 0) AS created`

	var created bool
	a, err := scanAccount(postgres.Conn(ctx, r.db).QueryRow(ctx, query, p.UserID, p.Username, p.FirstName), &created)
	if err != nil {
		return Account{}, false, fmt.Errorf("ошибка создания аккаунта: %w", err)
	}
	return a, created, nil
}

// Get возвращает аккаунт или common.ErrNotFound.
func (r *Repository) Get(ctx context.Context, userID int64) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	return r.get(ctx, query, userID)
}

// GetForUpdate читает аккаунт с блокировкой строки (SELECT ... FOR UPDATE).
func (r *Repository) GetForUpdate(ctx context.Context, userID int64) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 FOR UPDATE`
	return r.get(ctx, query, userID)
}

func (r *Repository) get(ctx context.Context, query string, userID int64) (Account, error) {
	a, err := scanAccount(postgres.Conn(ctx, r.db).QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("аккаунт %d: %w", userID, common.ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("ошибка получения аккаунта: %w", err)
	}
	return a, nil
}

// AddBalance меняет баланс. Отрицательный итог отсекает CHECK (balance >= 0),
// но сервис леджера проверяет остаток раньше, под блокировкой.
func (r *Repository) AddBalance(ctx context.Context, userID, delta int64) (int64, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING balance
	`
	var balance int64
	err := postgres.Conn(ctx, r.db).QueryRow(ctx, query, userID, delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("аккаунт %d: %w", userID, common.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка изменения баланса: %w", err)
	}
	return balance, nil
}

// SetSponsors привязывает цепочку спонсоров, если она ещё не привязана.
func (r *Repository) SetSponsors(ctx context.Context, userID int64, chain Chain) error {
	query := `
		UPDATE accounts
		SET sponsor_l1 = $2,
			sponsor_l2 = NULLIF($3::BIGINT, 0),
			sponsor_l3 = NULLIF($4::BIGINT, 0),
			updated_at = NOW()
		WHERE user_id = $1 AND sponsor_l1 IS NULL
	`
	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, query, userID, chain[0], chain[1], chain[2])
	if err != nil {
		return fmt.Errorf("ошибка привязки спонсора: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrAlreadyBound
	}
	return nil
}

// SetVIPUntil записывает новый срок окончания VIP.
func (r *Repository) SetVIPUntil(ctx context.Context, userID, until int64) error {
	query := `UPDATE accounts SET vip_until = $2, updated_at = NOW() WHERE user_id = $1`
	tag, err := postgres.Conn(ctx, r.db).Exec(ctx, query, userID, until)
	if err != nil {
		return fmt.Errorf("ошибка обновления VIP: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("аккаунт %d: %w", userID, common.ErrNotFound)
	}
	return nil
}
