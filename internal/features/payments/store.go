package payments

import "context"

// Store — журнал обработанных платежей.
type Store interface {
	// Claim занимает токен. claimed = false, если токен уже обработан;
	// тогда existing — сохранённые эффекты.
	Claim(ctx context.Context, rec Record) (claimed bool, existing Effects, err error)
	SaveEffects(ctx context.Context, token string, e Effects) error

	// LockSettlement блокирует строку платежа до конца транзакции.
	LockSettlement(ctx context.Context, token string) (Settlement, error)
	// MarkSettled сохраняет эффекты и отмечает комиссии начисленными.
	MarkSettled(ctx context.Context, token string, e Effects) error
	// Pending возвращает токены платежей без начисленных комиссий, старые первыми.
	Pending(ctx context.Context, limit int) ([]string, error)

	SpentBy(ctx context.Context, userID int64) (int64, error)
	TopSpenders(ctx context.Context, limit int) ([]Spender, error)
}
