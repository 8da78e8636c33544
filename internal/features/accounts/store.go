package accounts

import "context"

// Store — хранилище аккаунтов. Реализации: Repository (PostgreSQL)
// и MemoryStore. Методы с изменениями вызываются внутри db.TxManager.WithTx.
type Store interface {
	// Ensure создаёт аккаунт или обновляет имя существующего.
	// Баланс, VIP и спонсоры существующего аккаунта не меняются.
	Ensure(ctx context.Context, p Profile) (Account, bool, error)
	Get(ctx context.Context, userID int64) (Account, error)
	// GetForUpdate блокирует строку аккаунта до конца транзакции.
	GetForUpdate(ctx context.Context, userID int64) (Account, error)
	// AddBalance меняет баланс на delta и возвращает новый баланс.
	AddBalance(ctx context.Context, userID, delta int64) (int64, error)
	// SetSponsors записывает цепочку, только если первый уровень ещё пуст,
	// иначе возвращает common.ErrAlreadyBound.
	SetSponsors(ctx context.Context, userID int64, chain Chain) error
	SetVIPUntil(ctx context.Context, userID, until int64) error
}
