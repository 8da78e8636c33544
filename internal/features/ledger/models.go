// Package ledger — журнал движений билетов. Каждое изменение баланса
// сопровождается записью Entry в той же транзакции, поэтому баланс
// аккаунта всегда равен сумме его записей.
package ledger

import "time"

// Cause — причина движения по балансу. Закрытый список.
type Cause string

const (
	CauseManualCredit       Cause = "manual-credit"
	CauseTicketPurchase     Cause = "ticket-purchase"
	CauseVIPBonus           Cause = "vip-bonus"
	CauseReferralCommission Cause = "referral-commission"
	CauseLotteryStake       Cause = "lottery-stake"
	CauseLotteryPrize       Cause = "lottery-prize"
	CauseTaskReward         Cause = "task-reward"
)

// Valid проверяет, что причина входит в закрытый список.
func (c Cause) Valid() bool {
	switch c {
	case CauseManualCredit, CauseTicketPurchase, CauseVIPBonus,
		CauseReferralCommission, CauseLotteryStake, CauseLotteryPrize, CauseTaskReward:
		return true
	}
	return false
}

// Title — подпись причины для истории операций.
func (c Cause) Title() string {
	switch c {
	case CauseManualCredit:
		return "Начисление от администратора"
	case CauseTicketPurchase:
		return "Покупка билетов"
	case CauseVIPBonus:
		return "Бонус VIP"
	case CauseReferralCommission:
		return "Реферальная комиссия"
	case CauseLotteryStake:
		return "Ставка в лотерее"
	case CauseLotteryPrize:
		return "Выигрыш в лотерее"
	case CauseTaskReward:
		return "Награда за задание"
	}
	return string(c)
}

// Entry — одна запись журнала. Delta со знаком: + начисление, - списание.
type Entry struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Delta     int64     `db:"delta"`
	Cause     Cause     `db:"cause"`
	Ref       string    `db:"ref"` // Ссылка на источник: токен платежа, round:<id>
	CreatedAt time.Time `db:"created_at"`
}

// Reconciliation — сверка баланса с журналом.
type Reconciliation struct {
	UserID    int64
	Balance   int64
	LedgerSum int64
}

// OK — баланс совпадает с суммой записей.
func (r Reconciliation) OK() bool {
	return r.Balance == r.LedgerSum
}
