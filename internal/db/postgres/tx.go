package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

// Querier — общий набор методов пула и транзакции pgx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool — то, что нужно репозиториям от *pgxpool.Pool.
// Интерфейс позволяет подставить pgxmock в тестах.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// Conn возвращает транзакцию из ctx, если она есть, иначе сам пул.
// Все репозитории выполняют запросы только через Conn.
func Conn(ctx context.Context, pool Pool) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// TxManager открывает транзакции pgx и кладёт их в контекст.
type TxManager struct {
	pool Pool
}

// NewTxManager создаёт менеджер транзакций поверх пула.
func NewTxManager(pool Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithTx выполняет fn в транзакции. Вложенные вызовы присоединяются
// к внешней транзакции, фиксация происходит только на верхнем уровне.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Откат и при ошибке, и при панике в fn
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.WithError(rbErr).Warn("Не удалось откатить транзакцию")
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		committed = true // после неудачного Commit транзакция уже закрыта
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	committed = true
	return nil
}
