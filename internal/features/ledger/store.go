package ledger

import "context"

// Store — хранилище записей журнала. Записи только добавляются.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	Sum(ctx context.Context, userID int64) (int64, error)
	// SumByCause — сумма движений аккаунта по одной причине.
	SumByCause(ctx context.Context, userID int64, cause Cause) (int64, error)
	// List возвращает последние limit записей, новые первыми.
	List(ctx context.Context, userID int64, limit int) ([]Entry, error)
}
