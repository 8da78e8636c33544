package lottery

import (
	"context"
	"time"
)

// Store — хранилище раундов, ставок и победителей.
// Методы Lock* блокируют строку раунда до конца транзакции.
type Store interface {
	// LockOpenRound возвращает открытый раунд или common.ErrNotFound.
	LockOpenRound(ctx context.Context) (Round, error)
	// CreateRound открывает раунд. created = false, если открытый раунд
	// уже создан параллельной транзакцией.
	CreateRound(ctx context.Context, openedAt time.Time) (Round, bool, error)
	LockRound(ctx context.Context, id int64) (Round, error)
	GetRound(ctx context.Context, id int64) (Round, error)
	// LastClosed возвращает последний закрытый раунд или common.ErrNotFound.
	LastClosed(ctx context.Context) (Round, error)

	AddStake(ctx context.Context, s Stake) (Stake, error)
	// AddJackpot увеличивает банк и возвращает новое значение.
	AddJackpot(ctx context.Context, roundID, amount int64) (int64, error)
	// Weights — суммы ставок по аккаунтам, упорядочены по user_id.
	Weights(ctx context.Context, roundID int64) ([]Weight, error)

	// CloseRound переводит открытый раунд в closed с итогами розыгрыша.
	CloseRound(ctx context.Context, r Round) error
	AddWinner(ctx context.Context, w Winner) error
	Winners(ctx context.Context, roundID int64) ([]Winner, error)
}
