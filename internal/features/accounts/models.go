// Package accounts хранит аккаунты пользователей: баланс билетов,
// срок VIP и цепочку спонсоров до трёх уровней.
package accounts

import "time"

// Chain — спонсоры аккаунта: [0] — прямой пригласивший, [1] — его спонсор,
// [2] — спонсор второго уровня. Ноль означает «нет спонсора».
type Chain [3]int64

// Level возвращает спонсора уровня level (1..3) или 0.
func (c Chain) Level(level int) int64 {
	if level < 1 || level > len(c) {
		return 0
	}
	return c[level-1]
}

// Contains проверяет, есть ли userID в цепочке.
func (c Chain) Contains(userID int64) bool {
	if userID == 0 {
		return false
	}
	for _, id := range c {
		if id == userID {
			return true
		}
	}
	return false
}

// Inherit строит цепочку для приглашённого спонсором sponsor.
// Последний уровень спонсора отбрасывается.
func Inherit(sponsorID int64, sponsor Chain) Chain {
	return Chain{sponsorID, sponsor[0], sponsor[1]}
}

// Account — аккаунт пользователя в экономике бота.
type Account struct {
	UserID    int64     `db:"user_id"`
	Username  string    `db:"username"`
	FirstName string    `db:"first_name"`
	Balance   int64     `db:"balance"`   // Билеты, всегда >= 0
	VIPUntil  int64     `db:"vip_until"` // Unix-время окончания VIP, 0 — не было
	Sponsors  Chain     `db:"-"`         // sponsor_l1..sponsor_l3
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Profile — данные Telegram, с которыми создаётся или обновляется аккаунт.
type Profile struct {
	UserID    int64
	Username  string
	FirstName string
}

// DisplayName возвращает @username или имя.
func (a *Account) DisplayName() string {
	if a.Username != "" {
		return "@" + a.Username
	}
	if a.FirstName != "" {
		return a.FirstName
	}
	return "пользователь"
}
