package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/stars-bot/internal/config"
	"serotonyl.ru/stars-bot/internal/db/memory"
	"serotonyl.ru/stars-bot/internal/engine"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
	"serotonyl.ru/stars-bot/internal/features/lottery"
	"serotonyl.ru/stars-bot/internal/features/payments"
	"serotonyl.ru/stars-bot/internal/features/tasks"
	"serotonyl.ru/stars-bot/internal/features/vip"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []*telego.SendMessageParams
	invoices []*telego.SendInvoiceParams
	answers  []*telego.AnswerPreCheckoutQueryParams
}

func (f *fakeSender) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, p)
	return &telego.Message{}, nil
}

func (f *fakeSender) SendInvoice(_ context.Context, p *telego.SendInvoiceParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices = append(f.invoices, p)
	return &telego.Message{}, nil
}

func (f *fakeSender) AnswerPreCheckoutQuery(_ context.Context, p *telego.AnswerPreCheckoutQueryParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, p)
	return nil
}

func (f *fakeSender) last(t *testing.T) *telego.SendMessageParams {
	t.Helper()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1]
}

func (f *fakeSender) to(chatID int64) []string {
	var out []string
	for _, m := range f.messages {
		if m.ChatID.ID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

const adminID = int64(999)

func newTestHandler(t *testing.T) (*Handler, *fakeSender) {
	t.Helper()
	tm := memory.NewTxManager()
	cfg := &config.Config{
		AdminIDs:       []int64{adminID},
		TicketsPerStar: 1,
		VIPPriceStars:  100,
	}
	eng := engine.New(tm, engine.Stores{
		Accounts: accounts.NewMemoryStore(tm),
		Ledger:   ledger.NewMemoryStore(tm),
		Lottery:  lottery.NewMemoryStore(tm),
		Payments: payments.NewMemoryStore(tm),
		Tasks:    tasks.NewMemoryStore(tm),
	}, engine.Settings{
		ReferralPercents: [3]decimal.Decimal{
			decimal.RequireFromString("0.10"),
			decimal.RequireFromString("0.05"),
			decimal.RequireFromString("0.02"),
		},
		VIP:            vip.Policy{Multiplier: decimal.NewFromInt(2), Days: 30, Bonus: 50},
		TicketsPerStar: 1,
		Lottery:        lottery.Config{Period: time.Hour},
	}, engine.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))

	sender := &fakeSender{}
	return NewHandler(sender, eng, cfg, "stars_test_bot"), sender
}

func textMessage(userID int64, text string) *telego.Message {
	return &telego.Message{
		From: &telego.User{ID: userID, FirstName: "User"},
		Chat: telego.Chat{ID: userID, Type: telego.ChatTypePrivate},
		Text: text,
	}
}

func paymentMessage(userID int64, stars int, purpose payments.Purpose, charge string) *telego.Message {
	msg := textMessage(userID, "")
	msg.SuccessfulPayment = &telego.SuccessfulPayment{
		Currency:                starsCurrency,
		TotalAmount:             stars,
		InvoicePayload:          purpose.String(),
		TelegramPaymentChargeID: charge,
	}
	return msg
}

func TestParseSponsor(t *testing.T) {
	assert.Equal(t, int64(0), parseSponsor(nil))
	assert.Equal(t, int64(42), parseSponsor([]string{"42"}))
	assert.Equal(t, int64(42), parseSponsor([]string{"ref_42"}))
	assert.Equal(t, int64(0), parseSponsor([]string{"abc"}))
	assert.Equal(t, int64(0), parseSponsor([]string{"-5"}))
}

func TestHandleMessage_StartWithReferral(t *testing.T) {
	ctx := context.Background()
	h, sender := newTestHandler(t)

	h.HandleMessage(ctx, textMessage(2, "/start"))
	assert.Contains(t, sender.last(t).Text, "https://t.me/stars_test_bot?start=ref_2")

	h.HandleMessage(ctx, textMessage(1, "/start ref_2"))
	assert.Contains(t, sender.last(t).Text, "спонсор закреплён")

	// Оплата приглашённого приносит комиссию спонсору и уведомление
	h.HandleMessage(ctx, paymentMessage(1, 100, payments.PurposeTicketPurchase, "charge-1"))
	replies := sender.to(1)
	require.NotEmpty(t, replies)
	assert.Contains(t, replies[len(replies)-1], "Баланс: 100 билетов")

	notices := sender.to(2)
	require.NotEmpty(t, notices)
	assert.Contains(t, notices[len(notices)-1], "+10 билетов")
	assert.Contains(t, notices[len(notices)-1], "платёж от User")

	// Повтор того же платежа спонсора не уведомляет
	h.HandleMessage(ctx, paymentMessage(1, 100, payments.PurposeTicketPurchase, "charge-1"))
	assert.Len(t, sender.to(2), len(notices))
}

func TestHandleMessage_DuplicatePayment(t *testing.T) {
	ctx := context.Background()
	h, sender := newTestHandler(t)

	h.HandleMessage(ctx, paymentMessage(1, 100, payments.PurposeTicketPurchase, "charge-1"))
	h.HandleMessage(ctx, paymentMessage(1, 100, payments.PurposeTicketPurchase, "charge-1"))
	assert.Contains(t, sender.last(t).Text, "уже обработан")

	h.HandleMessage(ctx, textMessage(1, "/balance"))
	assert.Contains(t, sender.last(t).Text, "100 билетов")
}

func TestHandleMessage_LotteryFlow(t *testing.T) {
	ctx := context.Background()
	h, sender := newTestHandler(t)

	h.HandleMessage(ctx, textMessage(1, "/lottery_join 5"))
	assert.Contains(t, sender.last(t).Text, "Недостаточно билетов")

	h.HandleMessage(ctx, textMessage(1, "/lottery_join abc"))
	assert.Contains(t, sender.last(t).Text, "Использование")

	h.HandleMessage(ctx, paymentMessage(1, 10, payments.PurposeTicketPurchase, "charge-1"))
	h.HandleMessage(ctx, textMessage(1, "/lottery_join 5"))
	assert.Contains(t, sender.last(t).Text, "Ставка 5 билетов принята")

	h.HandleMessage(ctx, textMessage(1, "/lottery"))
	assert.Contains(t, sender.last(t).Text, "Банк: 5 билетов")
	assert.Contains(t, sender.last(t).Text, "шанс 100.0%")

	// Розыгрыш только для админов
	h.HandleMessage(ctx, textMessage(1, "/lottery_draw"))
	assert.Contains(t, sender.last(t).Text, "только для администраторов")

	h.HandleMessage(ctx, textMessage(adminID, "/lottery_draw"))
	require.NotEmpty(t, sender.to(adminID))
	assert.Contains(t, sender.to(adminID)[len(sender.to(adminID))-1], "разыграна")
	assert.Contains(t, sender.last(t).Text, "Вы выиграли лотерею #1")
	assert.Equal(t, int64(1), sender.last(t).ChatID.ID)

	h.HandleMessage(ctx, textMessage(1, "/history"))
	assert.Contains(t, sender.last(t).Text, "Выигрыш в лотерее")

	h.HandleMessage(ctx, textMessage(1, "/round 1"))
	assert.Contains(t, sender.last(t).Text, "Лотерея #1, закрыта")
	assert.Contains(t, sender.last(t).Text, "1 место: 1 — 5 билетов")

	h.HandleMessage(ctx, textMessage(1, "/round 2"))
	assert.Contains(t, sender.last(t).Text, "Лотерея #2 ещё идёт")

	h.HandleMessage(ctx, textMessage(1, "/round 99"))
	assert.Contains(t, sender.last(t).Text, "Не найдено")
}

func TestHandleMessage_Tasks(t *testing.T) {
	ctx := context.Background()
	h, sender := newTestHandler(t)

	h.HandleMessage(ctx, textMessage(1, "/tasks"))
	assert.Contains(t, sender.last(t).Text, "Сейчас заданий нет")

	h.HandleMessage(ctx, textMessage(1, "/task_add 50 https://t.me/chan Канал"))
	assert.Contains(t, sender.last(t).Text, "только для администраторов")

	h.HandleMessage(ctx, textMessage(adminID, "/task_add 50"))
	assert.Contains(t, sender.last(t).Text, "Использование")

	h.HandleMessage(ctx, textMessage(adminID, "/task_add 50 https://t.me/chan Подписаться на канал"))
	assert.Contains(t, sender.last(t).Text, "Задание #1 добавлено: Подписаться на канал — 50 билетов")

	h.HandleMessage(ctx, textMessage(1, "/tasks"))
	assert.Contains(t, sender.last(t).Text, "▫️ #1 Подписаться на канал — 50 билетов")
	assert.Contains(t, sender.last(t).Text, "https://t.me/chan")

	h.HandleMessage(ctx, textMessage(1, "/task 1"))
	assert.Contains(t, sender.last(t).Text, "выполнено: +50 билетов")
	assert.Contains(t, sender.last(t).Text, "Баланс: 50 билетов")

	h.HandleMessage(ctx, textMessage(1, "/task 1"))
	assert.Contains(t, sender.last(t).Text, "уже выполнено")

	h.HandleMessage(ctx, textMessage(1, "/tasks"))
	assert.Contains(t, sender.last(t).Text, "✅ #1")

	h.HandleMessage(ctx, textMessage(adminID, "/task_off 1"))
	assert.Contains(t, sender.last(t).Text, "Задание #1 отключено")

	h.HandleMessage(ctx, textMessage(3, "/task 1"))
	assert.Contains(t, sender.last(t).Text, "больше не активно")
}

func TestHandleMessage_TopAndStats(t *testing.T) {
	ctx := context.Background()
	h, sender := newTestHandler(t)

	h.HandleMessage(ctx, textMessage(1, "/top"))
	assert.Contains(t, sender.last(t).Text, "Покупок пока не было")

	buyer := paymentMessage(2, 30, payments.PurposeTicketPurchase, "charge-2")
	buyer.From.Username = "kate"
	h.HandleMessage(ctx, buyer)
	h.HandleMessage(ctx, paymentMessage(1, 100, payments.PurposeTicketPurchase, "charge-1"))

	h.HandleMessage(ctx, textMessage(1, "/top"))
	text := sender.last(t).Text
	assert.Contains(t, text, "1. User — 100 звёзд")
	assert.Contains(t, text, "2. @kate — 30 звёзд")

	h.HandleMessage(ctx, textMessage(1, "/balance"))
	assert.Contains(t, sender.last(t).Text, "Оплачено: 100 звёзд")
}

func TestHandleMessage_AdminGive(t *testing.T) {
	ctx := context.Background()
	h, sender := newTestHandler(t)

	h.HandleMessage(ctx, textMessage(1, "/start"))

	h.HandleMessage(ctx, textMessage(1, "/give 1 100"))
	assert.Contains(t, sender.last(t).Text, "только для администраторов")

	h.HandleMessage(ctx, textMessage(adminID, "/give 1 100"))
	assert.Contains(t, sender.last(t).Text, "Вам начислено +100 билетов")

	h.HandleMessage(ctx, textMessage(adminID, "/give 404 100"))
	assert.Contains(t, sender.last(t).Text, "Не найдено")
}

func TestHandleMessage_Invoices(t *testing.T) {
	ctx := context.Background()
	h, sender := newTestHandler(t)

	h.HandleMessage(ctx, textMessage(1, "/buy_tickets 50"))
	h.HandleMessage(ctx, textMessage(1, "/buy_vip"))
	h.HandleMessage(ctx, textMessage(1, "/buy_stake 7"))

	require.Len(t, sender.invoices, 3)
	assert.Equal(t, "ticket-purchase", sender.invoices[0].Payload)
	assert.Equal(t, 50, sender.invoices[0].Prices[0].Amount)
	assert.Equal(t, starsCurrency, sender.invoices[0].Currency)
	assert.Equal(t, "vip-purchase", sender.invoices[1].Payload)
	assert.Equal(t, 100, sender.invoices[1].Prices[0].Amount)
	assert.Equal(t, "lottery-stake-purchase", sender.invoices[2].Payload)
	assert.Equal(t, int64(1), sender.invoices[2].ChatID.ID)
}

func TestHandlePreCheckout(t *testing.T) {
	ctx := context.Background()
	h, sender := newTestHandler(t)

	h.HandlePreCheckout(ctx, &telego.PreCheckoutQuery{
		ID: "q1", From: telego.User{ID: 1}, Currency: starsCurrency, TotalAmount: 10, InvoicePayload: "vip-purchase",
	})
	h.HandlePreCheckout(ctx, &telego.PreCheckoutQuery{
		ID: "q2", From: telego.User{ID: 1}, Currency: starsCurrency, TotalAmount: 10, InvoicePayload: "donation",
	})

	require.Len(t, sender.answers, 2)
	assert.True(t, sender.answers[0].Ok)
	assert.False(t, sender.answers[1].Ok)
	assert.NotEmpty(t, sender.answers[1].ErrorMessage)
}
