package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
	"serotonyl.ru/stars-bot/internal/features/lottery"
	"serotonyl.ru/stars-bot/internal/features/payments"
	"serotonyl.ru/stars-bot/internal/features/tasks"
)

// pendingSettleBatch — сколько отложенных платежей тик доначисляет за раз.
const pendingSettleBatch = 50

// NewAccount — первый контакт пользователя с ботом.
type NewAccount struct {
	ID        int64
	Username  string
	FirstName string
	SponsorID int64 // Из deep-link /start <id>, 0 — без спонсора
}

// Welcome — результат OnNewAccount.
type Welcome struct {
	Account      accounts.Account
	Created      bool
	SponsorBound bool
}

// BalanceInfo — баланс, состояние VIP и статистика пользователя.
type BalanceInfo struct {
	Account    accounts.Account
	VIPActive  bool
	Multiplier decimal.Decimal
	VIPLeft    time.Duration

	SpentStars     int64 // Всего оплачено звёздами
	ReferralEarned int64 // Получено реферальных комиссий, в билетах
}

// Leader — строка рейтинга покупателей.
type Leader struct {
	Account accounts.Account
	Stars   int64
}

// OnNewAccount создаёт аккаунт. Спонсор привязывается только при создании:
// окно привязки — первое обращение.
func (e *Engine) OnNewAccount(ctx context.Context, n NewAccount) (Welcome, error) {
	var w Welcome
	err := e.tx.WithTx(ctx, func(ctx context.Context) error {
		acc, created, err := e.accounts.Ensure(ctx, accounts.Profile{
			UserID:    n.ID,
			Username:  n.Username,
			FirstName: n.FirstName,
		})
		if err != nil {
			return err
		}
		w.Account, w.Created = acc, created
		if !created || n.SponsorID == 0 {
			return nil
		}

		chain, bound, err := e.referral.BindSponsor(ctx, n.ID, n.SponsorID)
		if err != nil {
			return err
		}
		w.SponsorBound = bound
		w.Account.Sponsors = chain
		return nil
	})
	if err != nil {
		return Welcome{}, fmt.Errorf("новый аккаунт %d: %w", n.ID, err)
	}
	return w, nil
}

// OnPaymentConfirmed применяет подтверждённый платёж.
func (e *Engine) OnPaymentConfirmed(ctx context.Context, payer accounts.Profile, amount int64, purpose payments.Purpose, token string) (payments.Effects, error) {
	return e.payments.Confirm(ctx, payments.Confirmation{
		Payer:   payer,
		Amount:  amount,
		Purpose: purpose,
		Token:   token,
	}, e.now())
}

// OnLotteryJoinRequest делает ставку из баланса.
func (e *Engine) OnLotteryJoinRequest(ctx context.Context, userID, amount int64) (lottery.StakeResult, error) {
	return e.lottery.Stake(ctx, userID, amount, e.now())
}

// OnAdminDrawRequest закрывает раунд roundID, а при nil — текущий открытый.
func (e *Engine) OnAdminDrawRequest(ctx context.Context, roundID *int64) (lottery.CloseResult, error) {
	now := e.now()
	id := int64(0)
	if roundID != nil {
		id = *roundID
	} else {
		round, err := e.lottery.CurrentOpenRound(ctx, now)
		if err != nil {
			return lottery.CloseResult{}, err
		}
		id = round.ID
	}

	log.WithField("round_id", id).Info("Ручной розыгрыш раунда")
	return e.lottery.Close(ctx, id, now)
}

// Tick — точка входа планировщика: доначисляет отложенные комиссии
// и закрывает истёкший раунд.
func (e *Engine) Tick(ctx context.Context, now time.Time) (*lottery.CloseResult, error) {
	if _, err := e.payments.SettlePending(ctx, pendingSettleBatch); err != nil {
		log.WithError(err).Warn("Не удалось доначислить отложенные комиссии")
	}
	return e.lottery.CheckAndRollover(ctx, now)
}

// AdminGrant начисляет билеты вручную (manual-credit).
func (e *Engine) AdminGrant(ctx context.Context, adminID, userID, amount int64) (int64, error) {
	balance, err := e.ledger.Credit(ctx, userID, amount, ledger.CauseManualCredit, fmt.Sprintf("admin:%d", adminID))
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"amount":   amount,
	}).Info("Ручное начисление билетов")
	return balance, nil
}

// Balance возвращает баланс и состояние VIP.
func (e *Engine) Balance(ctx context.Context, userID int64) (BalanceInfo, error) {
	acc, err := e.accounts.Get(ctx, userID)
	if err != nil {
		return BalanceInfo{}, err
	}

	now := e.now()
	policy := e.vip.Policy()
	info := BalanceInfo{
		Account:    acc,
		VIPActive:  policy.IsActive(acc.VIPUntil, now),
		Multiplier: policy.MultiplierAt(acc.VIPUntil, now),
	}
	if info.VIPActive {
		info.VIPLeft = time.Unix(acc.VIPUntil, 0).Sub(now)
	}

	if info.SpentStars, err = e.payments.SpentBy(ctx, userID); err != nil {
		return BalanceInfo{}, err
	}
	if info.ReferralEarned, err = e.ledger.Earned(ctx, userID, ledger.CauseReferralCommission); err != nil {
		return BalanceInfo{}, err
	}
	return info, nil
}

// History возвращает последние записи леджера пользователя.
func (e *Engine) History(ctx context.Context, userID int64, limit int) ([]ledger.Entry, error) {
	return e.ledger.History(ctx, userID, limit)
}

// Reconcile сверяет баланс с журналом.
func (e *Engine) Reconcile(ctx context.Context, userID int64) (ledger.Reconciliation, error) {
	return e.ledger.Reconcile(ctx, userID)
}

// LotteryInfo — текущий раунд, время до розыгрыша и итоги прошлого.
func (e *Engine) LotteryInfo(ctx context.Context, userID int64) (lottery.Info, error) {
	return e.lottery.Info(ctx, userID, e.now())
}

// RoundResult — итоги раунда по номеру; у открытого раунда победителей нет.
func (e *Engine) RoundResult(ctx context.Context, roundID int64) (lottery.CloseResult, error) {
	return e.lottery.Result(ctx, roundID)
}

// TopSpenders — рейтинг по потраченным звёздам с данными аккаунтов.
func (e *Engine) TopSpenders(ctx context.Context, limit int) ([]Leader, error) {
	top, err := e.payments.TopSpenders(ctx, limit)
	if err != nil {
		return nil, err
	}

	leaders := make([]Leader, 0, len(top))
	for _, sp := range top {
		acc, err := e.accounts.Get(ctx, sp.UserID)
		if err != nil {
			return nil, fmt.Errorf("участник рейтинга %d: %w", sp.UserID, err)
		}
		leaders = append(leaders, Leader{Account: acc, Stars: sp.Stars})
	}
	return leaders, nil
}

// Tasks — активные задания с отметкой выполнения.
func (e *Engine) Tasks(ctx context.Context, userID int64) ([]tasks.Item, error) {
	return e.tasks.List(ctx, userID)
}

// CompleteTask засчитывает задание и начисляет награду (task-reward).
func (e *Engine) CompleteTask(ctx context.Context, userID, taskID int64) (tasks.Completion, error) {
	return e.tasks.Complete(ctx, userID, taskID)
}

// AdminAddTask публикует задание.
func (e *Engine) AdminAddTask(ctx context.Context, adminID int64, title, link string, reward int64) (tasks.Task, error) {
	t, err := e.tasks.Add(ctx, title, link, reward)
	if err != nil {
		return tasks.Task{}, err
	}
	log.WithFields(log.Fields{"admin_id": adminID, "task_id": t.ID}).Info("Админ добавил задание")
	return t, nil
}

// AdminDisableTask снимает задание с публикации.
func (e *Engine) AdminDisableTask(ctx context.Context, adminID, taskID int64) error {
	if err := e.tasks.Disable(ctx, taskID); err != nil {
		return err
	}
	log.WithFields(log.Fields{"admin_id": adminID, "task_id": taskID}).Info("Админ снял задание")
	return nil
}
