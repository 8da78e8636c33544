package payments

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
	"serotonyl.ru/stars-bot/internal/features/lottery"
	"serotonyl.ru/stars-bot/internal/features/referral"
	"serotonyl.ru/stars-bot/internal/features/vip"
	"serotonyl.ru/stars-bot/internal/metrics"
)

// Config — курс и параметры покупок.
type Config struct {
	TicketsPerStar int64
	VIPDays        int64
}

// Service применяет подтверждённые платежи.
type Service struct {
	tx       db.TxManager
	store    Store
	accounts *accounts.Service
	ledger   *ledger.Service
	vip      *vip.Service
	referral *referral.Service
	lottery  *lottery.Service
	cfg      Config
}

// NewService создаёт сервис платежей.
func NewService(
	tx db.TxManager,
	store Store,
	accountService *accounts.Service,
	ledgerService *ledger.Service,
	vipService *vip.Service,
	referralService *referral.Service,
	lotteryService *lottery.Service,
	cfg Config,
) *Service {
	if cfg.TicketsPerStar <= 0 {
		cfg.TicketsPerStar = 1
	}
	return &Service{
		tx:       tx,
		store:    store,
		accounts: accountService,
		ledger:   ledgerService,
		vip:      vipService,
		referral: referralService,
		lottery:  lotteryService,
		cfg:      cfg,
	}
}

// Gross — база для комиссий: сумма платежа в билетах без множителя VIP.
func (s *Service) Gross(amount int64) int64 {
	return amount * s.cfg.TicketsPerStar
}

// Confirm применяет платёж ровно один раз на токен.
//
// Начисление по назначению идёт в одной транзакции с записью токена.
// Комиссии спонсорам начисляются второй транзакцией под блокировкой строки
// платежа и отмечаются флагом commissions_applied. Если она не удалась,
// Confirm возвращает common.ErrCommissionsPending, а повтор с тем же токеном
// или SettlePending доначисляют комиссии.
func (s *Service) Confirm(ctx context.Context, c Confirmation, now time.Time) (Effects, error) {
	if c.Token == "" {
		return Effects{}, common.ErrMissingToken
	}
	if c.Amount <= 0 {
		return Effects{}, common.ErrInvalidAmount
	}
	if _, ok := purposeNames[c.Purpose]; !ok {
		return Effects{}, fmt.Errorf("%s: %w", c.Purpose, common.ErrUnknownPurpose)
	}

	logger := log.WithFields(log.Fields{
		"token":   c.Token,
		"user_id": c.Payer.UserID,
		"amount":  c.Amount,
		"purpose": c.Purpose.String(),
	})

	duplicate := false
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		claimed, _, err := s.store.Claim(ctx, Record{
			Token:   c.Token,
			PayerID: c.Payer.UserID,
			Amount:  c.Amount,
			Purpose: c.Purpose,
		})
		if err != nil {
			return err
		}
		if !claimed {
			duplicate = true
			return nil
		}

		effects, err := s.apply(ctx, c, now)
		if err != nil {
			return err
		}
		return s.store.SaveEffects(ctx, c.Token, effects)
	})
	if err != nil {
		metrics.RecordPayment(c.Purpose.String(), "error")
		logger.WithError(err).Error("Ошибка обработки платежа")
		return Effects{}, fmt.Errorf("платёж %s: %w", c.Token, err)
	}

	effects, settled, err := s.settle(ctx, c.Token)
	if err != nil {
		metrics.RecordPayment(c.Purpose.String(), "pending")
		logger.WithError(err).Error("Комиссии по платежу не начислены, платёж ждёт повтора")
		return Effects{}, fmt.Errorf("платёж %s: %w: %w", c.Token, common.ErrCommissionsPending, err)
	}
	effects.CommissionsSettled = settled

	if duplicate {
		metrics.RecordPayment(c.Purpose.String(), "duplicate")
		logger.WithField("settled_now", settled).Warn("Повторное подтверждение платежа, начисления пропущены")
		effects.Duplicate = true
		return effects, nil
	}

	metrics.RecordPayment(c.Purpose.String(), "applied")
	logger.WithFields(log.Fields{
		"credited":    effects.Credited,
		"balance":     effects.Balance,
		"commissions": len(effects.Commissions),
	}).Info("Платёж обработан")
	return effects, nil
}

// settle начисляет комиссии по платежу, если они ещё не начислены.
// settled = true, если начисление произошло в этом вызове.
func (s *Service) settle(ctx context.Context, token string) (Effects, bool, error) {
	var (
		effects Effects
		settled bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		st, err := s.store.LockSettlement(ctx, token)
		if err != nil {
			return err
		}
		effects = st.Effects
		if st.Applied {
			return nil
		}

		commissions, err := s.referral.DistributeCommission(ctx, st.PayerID, s.Gross(st.Amount), token)
		if err != nil {
			return err
		}
		effects.Commissions = commissions
		if err := s.store.MarkSettled(ctx, token, effects); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return Effects{}, false, err
	}
	return effects, settled, nil
}

// SettlePending доначисляет комиссии по платежам, где они не прошли.
// Возвращает число обработанных платежей.
func (s *Service) SettlePending(ctx context.Context, limit int) (int, error) {
	tokens, err := s.store.Pending(ctx, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, token := range tokens {
		if _, settled, err := s.settle(ctx, token); err != nil {
			log.WithError(err).WithField("token", token).Warn("Комиссии по платежу снова не начислены")
			continue
		} else if settled {
			done++
		}
	}
	if done > 0 {
		log.WithField("payments", done).Info("Доначислены отложенные комиссии")
	}
	return done, nil
}

// SpentBy — сколько звёзд потратил пользователь.
func (s *Service) SpentBy(ctx context.Context, userID int64) (int64, error) {
	return s.store.SpentBy(ctx, userID)
}

// TopSpenders — рейтинг по потраченным звёздам.
func (s *Service) TopSpenders(ctx context.Context, limit int) ([]Spender, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.TopSpenders(ctx, limit)
}

func (s *Service) apply(ctx context.Context, c Confirmation, now time.Time) (Effects, error) {
	effects := Effects{Purpose: c.Purpose.String()}

	// Раунд блокируется раньше аккаунта, как при закрытии
	if c.Purpose == PurposeLotteryStakePurchase {
		if _, err := s.lottery.CurrentOpenRound(ctx, now); err != nil {
			return Effects{}, err
		}
	}

	acc, _, err := s.accounts.Ensure(ctx, c.Payer)
	if err != nil {
		return Effects{}, err
	}
	effects.VIPUntil = acc.VIPUntil

	switch c.Purpose {
	case PurposeVIPPurchase:
		ext, err := s.vip.Extend(ctx, acc.UserID, s.cfg.VIPDays, now, c.Token)
		if err != nil {
			return Effects{}, err
		}
		effects.Bonus = ext.Bonus
		effects.Balance = ext.Balance
		effects.VIPUntil = ext.NewUntil

	case PurposeTicketPurchase, PurposeLotteryStakePurchase:
		effects.Credited = s.vip.Policy().Apply(acc.VIPUntil, s.Gross(c.Amount), now)
		effects.Balance, err = s.ledger.Credit(ctx, acc.UserID, effects.Credited, ledger.CauseTicketPurchase, c.Token)
		if err != nil {
			return Effects{}, err
		}

		if c.Purpose == PurposeLotteryStakePurchase {
			res, err := s.lottery.Stake(ctx, acc.UserID, effects.Credited, now)
			if err != nil {
				return Effects{}, err
			}
			effects.Stake = res.Stake.Amount
			effects.RoundID = res.Round.ID
			effects.Balance = res.Balance
		}
	}
	return effects, nil
}
