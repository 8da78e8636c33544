// Package engine — синхронный API экономики бота: аккаунты, платежи,
// лотерея и тик планировщика. Транспорт (Telegram) и планировщик
// обращаются к ядру только через Engine.
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/stars-bot/internal/config"
	"serotonyl.ru/stars-bot/internal/db"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
	"serotonyl.ru/stars-bot/internal/features/lottery"
	"serotonyl.ru/stars-bot/internal/features/payments"
	"serotonyl.ru/stars-bot/internal/features/referral"
	"serotonyl.ru/stars-bot/internal/features/tasks"
	"serotonyl.ru/stars-bot/internal/features/vip"
)

// Stores — хранилища, на которых строится ядро.
type Stores struct {
	Accounts accounts.Store
	Ledger   ledger.Store
	Lottery  lottery.Store
	Payments payments.Store
	Tasks    tasks.Store
}

// Settings — параметры экономики.
type Settings struct {
	ReferralPercents [referral.Levels]decimal.Decimal
	VIP              vip.Policy
	TicketsPerStar   int64
	Lottery          lottery.Config
}

// SettingsFromConfig собирает Settings из конфигурации приложения.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ReferralPercents: cfg.ReferralPercents(),
		VIP: vip.Policy{
			Multiplier: cfg.VIPMultiplier,
			Days:       cfg.VIPDaysDefault,
			Bonus:      cfg.VIPTicketsBonus,
		},
		TicketsPerStar: cfg.TicketsPerStar,
		Lottery: lottery.Config{
			Period:      cfg.LotteryPeriod,
			PrizeShares: cfg.LotteryPrizeShares,
		},
	}
}

// Engine — фасад над сервисами фич.
type Engine struct {
	tx       db.TxManager
	accounts *accounts.Service
	ledger   *ledger.Service
	vip      *vip.Service
	referral *referral.Service
	lottery  *lottery.Service
	payments *payments.Service
	tasks    *tasks.Service
	clock    func() time.Time
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// New собирает сервисы поверх stores и возвращает фасад.
func New(tx db.TxManager, stores Stores, s Settings, opts ...Option) *Engine {
	accountService := accounts.NewService(stores.Accounts)
	ledgerService := ledger.NewService(tx, stores.Accounts, stores.Ledger)
	vipService := vip.NewService(tx, stores.Accounts, ledgerService, s.VIP)
	referralService := referral.NewService(tx, stores.Accounts, ledgerService, s.ReferralPercents)
	lotteryService := lottery.NewService(tx, stores.Lottery, ledgerService, s.Lottery)
	paymentService := payments.NewService(tx, stores.Payments, accountService, ledgerService,
		vipService, referralService, lotteryService,
		payments.Config{TicketsPerStar: s.TicketsPerStar, VIPDays: s.VIP.Days})

	e := &Engine{
		tx:       tx,
		accounts: accountService,
		ledger:   ledgerService,
		vip:      vipService,
		referral: referralService,
		lottery:  lotteryService,
		payments: paymentService,
		tasks:    tasks.NewService(tx, stores.Tasks, ledgerService),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) now() time.Time {
	return e.clock()
}

// Now — текущее время по часам движка.
func (e *Engine) Now() time.Time {
	return e.now()
}

// VIPPolicy возвращает политику VIP.
func (e *Engine) VIPPolicy() vip.Policy {
	return e.vip.Policy()
}

// LotteryPeriod возвращает длительность раунда.
func (e *Engine) LotteryPeriod() time.Duration {
	return e.lottery.Period()
}
