// Package postgres — queries.go содержит утилиты применения миграций.
package postgres

import (
	"context"
	"fmt"
)

// ExecMigrationSQL выполняет одну миграцию в транзакции и записывает версию
// в schema_migrations. Если запрос упадёт — транзакция откатится.
//
// Возвращает true, если миграция была применена сейчас,
// и false, если она уже была применена раньше.
func ExecMigrationSQL(ctx context.Context, tm *TxManager, pool Pool, version int, sql string) (bool, error) {
	applied := false
	err := tm.WithTx(ctx, func(ctx context.Context) error {
		q := Conn(ctx, pool)

		var exists bool
		if err := q.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("ошибка проверки миграции: %w", err)
		}
		if exists {
			return nil
		}

		if _, err := q.Exec(ctx, sql); err != nil {
			return fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
		}

		if _, err := q.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)", version,
		); err != nil {
			return fmt.Errorf("ошибка записи версии миграции: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}
