// Package payments — подтверждение платежей в Telegram Stars.
//
// Каждый платёж несёт токен идемпотентности. Повторное подтверждение
// с тем же токеном ничего не начисляет и возвращает сохранённые эффекты.
package payments

import (
	"fmt"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/referral"
)

// Purpose — назначение платежа. Строковая форма идёт в payload инвойса.
type Purpose int

const (
	PurposeTicketPurchase Purpose = iota + 1
	PurposeVIPPurchase
	PurposeLotteryStakePurchase
)

var purposeNames = map[Purpose]string{
	PurposeTicketPurchase:       "ticket-purchase",
	PurposeVIPPurchase:          "vip-purchase",
	PurposeLotteryStakePurchase: "lottery-stake-purchase",
}

func (p Purpose) String() string {
	if name, ok := purposeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("purpose(%d)", int(p))
}

// ParsePurpose разбирает назначение из payload.
func ParsePurpose(v string) (Purpose, error) {
	for p, name := range purposeNames {
		if name == v {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", v, common.ErrUnknownPurpose)
}

// Confirmation — подтверждённый провайдером платёж.
type Confirmation struct {
	Payer   accounts.Profile
	Amount  int64 // Сумма в звёздах
	Purpose Purpose
	Token   string // ID платежа провайдера
}

// Record — строка таблицы payments.
type Record struct {
	Token   string
	PayerID int64
	Amount  int64
	Purpose Purpose
}

// Effects — что изменил платёж. Сохраняется вместе с токеном.
type Effects struct {
	Purpose     string                `json:"purpose"`
	Credited    int64                 `json:"credited,omitempty"`
	Bonus       int64                 `json:"bonus,omitempty"`
	Balance     int64                 `json:"balance"`
	VIPUntil    int64                 `json:"vip_until,omitempty"`
	RoundID     int64                 `json:"round_id,omitempty"`
	Stake       int64                 `json:"stake,omitempty"`
	Commissions []referral.Commission `json:"commissions,omitempty"`

	Duplicate bool `json:"-"` // Токен уже обработан, покупка повторно не применялась
	// CommissionsSettled — комиссии начислены именно этим вызовом.
	CommissionsSettled bool `json:"-"`
}

// Settlement — строка платежа с состоянием реферальных начислений.
type Settlement struct {
	Record
	Effects Effects
	Applied bool // commissions_applied
}

// Spender — строка рейтинга покупателей.
type Spender struct {
	UserID int64
	Stars  int64
}
