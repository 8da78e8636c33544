// Package lottery — периодическая лотерея с розыгрышем, взвешенным по ставкам.
//
// Жизненный цикл раунда: open → closed. Открытый раунд всегда один;
// закрытие разыгрывает банк и сразу открывает следующий раунд.
package lottery

import (
	"fmt"
	"time"
)

// Status — состояние раунда.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Round — один цикл лотереи.
type Round struct {
	ID       int64
	Status   Status
	Jackpot  int64     // Сумма всех ставок раунда
	OpenedAt time.Time
	ClosedAt time.Time // Нулевое время, пока раунд открыт
	WinnerID int64     // Победитель первого места, 0 — нет
	DrawSeed string    // hex-сид розыгрыша, пусто до закрытия
}

// EndsAt — момент, после которого раунд можно закрывать.
func (r Round) EndsAt(period time.Duration) time.Time {
	return r.OpenedAt.Add(period)
}

// Ref — ссылка на раунд в журнале леджера.
func (r Round) Ref() string {
	return roundRef(r.ID)
}

func roundRef(id int64) string {
	return fmt.Sprintf("round:%d", id)
}

// Stake — одна ставка. Аккаунт может ставить несколько раз за раунд.
type Stake struct {
	ID        int64
	RoundID   int64
	UserID    int64
	Amount    int64
	CreatedAt time.Time
}

// Winner — призовое место закрытого раунда.
type Winner struct {
	RoundID int64
	Place   int // 1 — главный приз
	UserID  int64
	Prize   int64
}

// StakeResult — результат ставки.
type StakeResult struct {
	Round   Round // Раунд после ставки (с новым банком)
	Stake   Stake
	Balance int64 // Баланс игрока после списания
}

// CloseResult — результат закрытия раунда.
type CloseResult struct {
	Round         Round
	Winners       []Winner
	Participants  int
	Next          Round // Новый открытый раунд; пуст при AlreadyClosed
	AlreadyClosed bool  // Раунд был закрыт раньше, возвращён сохранённый результат
}

// Info — состояние лотереи для показа пользователю.
type Info struct {
	Round        Round
	EndsAt       time.Time
	Participants int
	UserStake    int64
	Previous     *CloseResult // Последний закрытый раунд, если был
}
