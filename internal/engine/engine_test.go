package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/memory"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
	"serotonyl.ru/stars-bot/internal/features/lottery"
	"serotonyl.ru/stars-bot/internal/features/payments"
	"serotonyl.ru/stars-bot/internal/features/tasks"
	"serotonyl.ru/stars-bot/internal/features/vip"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testSettings() Settings {
	return Settings{
		ReferralPercents: [3]decimal.Decimal{
			decimal.RequireFromString("0.10"),
			decimal.RequireFromString("0.05"),
			decimal.RequireFromString("0.02"),
		},
		VIP:            vip.Policy{Multiplier: decimal.NewFromInt(2), Days: 30, Bonus: 50},
		TicketsPerStar: 1,
		Lottery:        lottery.Config{Period: time.Hour, PrizeShares: []int{100}},
	}
}

func newMemoryEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	tm := memory.NewTxManager()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e := New(tm, Stores{
		Accounts: accounts.NewMemoryStore(tm),
		Ledger:   ledger.NewMemoryStore(tm),
		Lottery:  lottery.NewMemoryStore(tm),
		Payments: payments.NewMemoryStore(tm),
		Tasks:    tasks.NewMemoryStore(tm),
	}, testSettings(), WithClock(clock.Now))
	return e, clock
}

func reconciled(t *testing.T, e *Engine, id int64) int64 {
	t.Helper()
	rec, err := e.Reconcile(context.Background(), id)
	require.NoError(t, err)
	require.True(t, rec.OK(), "user %d: balance %d ledger %d", id, rec.Balance, rec.LedgerSum)
	return rec.Balance
}

func TestEngine_EndToEnd(t *testing.T) {
	ctx := context.Background()
	e, clock := newMemoryEngine(t)
	const (
		u  = int64(1)
		s  = int64(2)
		tt = int64(3)
	)

	_, err := e.OnNewAccount(ctx, NewAccount{ID: tt})
	require.NoError(t, err)
	w, err := e.OnNewAccount(ctx, NewAccount{ID: s, SponsorID: tt})
	require.NoError(t, err)
	require.True(t, w.SponsorBound)
	w, err = e.OnNewAccount(ctx, NewAccount{ID: u, Username: "user", SponsorID: s})
	require.NoError(t, err)
	require.True(t, w.Created)
	require.Equal(t, accounts.Chain{s, tt, 0}, w.Account.Sponsors)

	effects, err := e.OnPaymentConfirmed(ctx, accounts.Profile{UserID: u}, 500, payments.PurposeTicketPurchase, "charge-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), effects.Balance)
	assert.Equal(t, int64(500), reconciled(t, e, u))
	assert.Equal(t, int64(50), reconciled(t, e, s))
	assert.Equal(t, int64(25), reconciled(t, e, tt))

	res, err := e.OnLotteryJoinRequest(ctx, u, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(490), res.Balance)
	assert.Equal(t, int64(10), res.Round.Jackpot)

	clock.Advance(30 * time.Minute)
	closed, err := e.Tick(ctx, clock.Now())
	require.NoError(t, err)
	assert.Nil(t, closed)

	clock.Advance(30 * time.Minute)
	closed, err = e.Tick(ctx, clock.Now())
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, u, closed.Round.WinnerID)
	assert.Equal(t, int64(500), reconciled(t, e, u))

	info, err := e.LotteryInfo(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, closed.Next.ID, info.Round.ID)
	require.NotNil(t, info.Previous)
	assert.Equal(t, closed.Round.ID, info.Previous.Round.ID)

	history, err := e.History(ctx, u, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ledger.CauseLotteryPrize, history[0].Cause)
	assert.Equal(t, ledger.CauseLotteryStake, history[1].Cause)
	assert.Equal(t, ledger.CauseTicketPurchase, history[2].Cause)
}

func TestEngine_SponsorBoundOnlyOnCreation(t *testing.T) {
	ctx := context.Background()
	e, _ := newMemoryEngine(t)

	_, err := e.OnNewAccount(ctx, NewAccount{ID: 2})
	require.NoError(t, err)
	w, err := e.OnNewAccount(ctx, NewAccount{ID: 1})
	require.NoError(t, err)
	require.True(t, w.Created)

	// Повторный /start со ссылкой спонсора уже ничего не меняет
	w, err = e.OnNewAccount(ctx, NewAccount{ID: 1, SponsorID: 2})
	require.NoError(t, err)
	assert.False(t, w.Created)
	assert.False(t, w.SponsorBound)
	assert.Equal(t, accounts.Chain{}, w.Account.Sponsors)
}

func TestEngine_AdminOperations(t *testing.T) {
	ctx := context.Background()
	e, _ := newMemoryEngine(t)

	_, err := e.OnNewAccount(ctx, NewAccount{ID: 1})
	require.NoError(t, err)

	balance, err := e.AdminGrant(ctx, 99, 1, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)

	_, err = e.AdminGrant(ctx, 99, 404, 40)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.OnLotteryJoinRequest(ctx, 1, 40)
	require.NoError(t, err)

	// Ручной розыгрыш не ждёт конца периода
	res, err := e.OnAdminDrawRequest(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Round.WinnerID)
	assert.Equal(t, int64(40), reconciled(t, e, 1))

	again, err := e.OnAdminDrawRequest(ctx, &res.Round.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyClosed)
	assert.Equal(t, int64(40), reconciled(t, e, 1))
}

func TestEngine_Balance(t *testing.T) {
	ctx := context.Background()
	e, clock := newMemoryEngine(t)

	_, err := e.OnNewAccount(ctx, NewAccount{ID: 1})
	require.NoError(t, err)

	info, err := e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.False(t, info.VIPActive)
	assert.True(t, info.Multiplier.Equal(decimal.NewFromInt(1)))

	_, err = e.OnPaymentConfirmed(ctx, accounts.Profile{UserID: 1}, 100, payments.PurposeVIPPurchase, "charge-vip")
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	info, err = e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, info.VIPActive)
	assert.True(t, info.Multiplier.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 29*24*time.Hour, info.VIPLeft)
	assert.Equal(t, int64(50), info.Account.Balance)
	assert.Equal(t, int64(100), info.SpentStars)
	assert.Zero(t, info.ReferralEarned)

	_, err = e.Balance(ctx, 404)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestEngine_StatsAndLeaders(t *testing.T) {
	ctx := context.Background()
	e, _ := newMemoryEngine(t)

	_, err := e.OnNewAccount(ctx, NewAccount{ID: 2, Username: "sponsor"})
	require.NoError(t, err)
	_, err = e.OnNewAccount(ctx, NewAccount{ID: 1, FirstName: "Ира", SponsorID: 2})
	require.NoError(t, err)

	_, err = e.OnPaymentConfirmed(ctx, accounts.Profile{UserID: 1}, 300, payments.PurposeTicketPurchase, "c1")
	require.NoError(t, err)
	_, err = e.OnPaymentConfirmed(ctx, accounts.Profile{UserID: 2}, 100, payments.PurposeTicketPurchase, "c2")
	require.NoError(t, err)

	info, err := e.Balance(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(100), info.SpentStars)
	assert.Equal(t, int64(30), info.ReferralEarned)

	leaders, err := e.TopSpenders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, leaders, 2)
	assert.Equal(t, "Ира", leaders[0].Account.DisplayName())
	assert.Equal(t, int64(300), leaders[0].Stars)
	assert.Equal(t, "@sponsor", leaders[1].Account.DisplayName())
}

func TestEngine_Tasks(t *testing.T) {
	ctx := context.Background()
	e, _ := newMemoryEngine(t)

	_, err := e.OnNewAccount(ctx, NewAccount{ID: 1})
	require.NoError(t, err)

	task, err := e.AdminAddTask(ctx, 999, "Канал", "https://t.me/news", 7)
	require.NoError(t, err)

	c, err := e.CompleteTask(ctx, 1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.Balance)
	_, err = e.CompleteTask(ctx, 1, task.ID)
	assert.ErrorIs(t, err, common.ErrTaskCompleted)

	items, err := e.Tasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Done)

	require.NoError(t, e.AdminDisableTask(ctx, 999, task.ID))
	items, err = e.Tasks(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(7), reconciled(t, e, 1))
}

func TestEngine_RoundResult(t *testing.T) {
	ctx := context.Background()
	e, _ := newMemoryEngine(t)

	_, err := e.OnPaymentConfirmed(ctx, accounts.Profile{UserID: 1}, 10, payments.PurposeLotteryStakePurchase, "c1")
	require.NoError(t, err)

	open, err := e.LotteryInfo(ctx, 1)
	require.NoError(t, err)
	res, err := e.RoundResult(ctx, open.Round.ID)
	require.NoError(t, err)
	assert.Equal(t, lottery.StatusOpen, res.Round.Status)
	assert.Empty(t, res.Winners)

	_, err = e.OnAdminDrawRequest(ctx, nil)
	require.NoError(t, err)

	res, err = e.RoundResult(ctx, open.Round.ID)
	require.NoError(t, err)
	assert.Equal(t, lottery.StatusClosed, res.Round.Status)
	require.Len(t, res.Winners, 1)
	assert.Equal(t, int64(1), res.Winners[0].UserID)
	assert.Equal(t, int64(10), res.Winners[0].Prize)

	_, err = e.RoundResult(ctx, 404)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestEngine_ConcurrentTrafficConservesTickets(t *testing.T) {
	ctx := context.Background()
	e, clock := newMemoryEngine(t)
	const users = 10

	for id := int64(1); id <= users; id++ {
		_, err := e.OnNewAccount(ctx, NewAccount{ID: id})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for id := int64(1); id <= users; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				token := fmt.Sprintf("charge-%d-%d", id, i)
				_, err := e.OnPaymentConfirmed(ctx, accounts.Profile{UserID: id}, 10, payments.PurposeTicketPurchase, token)
				assert.NoError(t, err)
				// Повторная доставка того же события
				_, err = e.OnPaymentConfirmed(ctx, accounts.Profile{UserID: id}, 10, payments.PurposeTicketPurchase, token)
				assert.NoError(t, err)
				_, err = e.OnLotteryJoinRequest(ctx, id, 3)
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			clock.Advance(time.Hour)
			_, err := e.Tick(ctx, clock.Now())
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	info, err := e.LotteryInfo(ctx, 1)
	require.NoError(t, err)

	// 10 пользователей × 5 платежей × 10 билетов, ни один повтор не начислен
	total := info.Round.Jackpot
	for id := int64(1); id <= users; id++ {
		total += reconciled(t, e, id)
	}
	assert.Equal(t, int64(users*5*10), total)
}
