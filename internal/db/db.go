// Package db описывает общий контракт транзакций для всех хранилищ.
// Реализации: postgres (pgx) и memory (для тестов и локального запуска).
package db

import "context"

// TxManager выполняет fn в одной транзакции.
// Транзакция передаётся через ctx: вложенный вызов WithTx присоединяется
// к уже открытой транзакции, а не открывает новую.
// Если fn вернула ошибку, все изменения откатываются.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
