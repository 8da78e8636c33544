// Package bot содержит главный модуль бота — инициализацию, запуск и остановку.
// bot.go запускает long polling и раздаёт апдейты обработчикам.
package bot

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/bot/filters"
	"serotonyl.ru/stars-bot/internal/bot/middleware"
	"serotonyl.ru/stars-bot/internal/config"
	"serotonyl.ru/stars-bot/internal/engine"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *telego.Bot
	cfg *config.Config

	handler     *Handler
	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт бота поверх движка.
func New(ctx context.Context, api *telego.Bot, cfg *config.Config, eng *engine.Engine) (*Bot, error) {
	me, err := api.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка getMe: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)

	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:         api,
		cfg:         cfg,
		handler:     NewHandler(api, eng, cfg, me.Username),
		chatFilter:  filters.NewChatFilter(cfg.BotAllowGroups),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		inflight:    make(chan struct{}, maxInFlight),
	}, nil
}

// RegisterCommands публикует меню команд.
func (b *Bot) RegisterCommands(ctx context.Context) error {
	return b.api.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "start", Description: "Начать и получить реферальную ссылку"},
			{Command: "balance", Description: "Баланс и VIP"},
			{Command: "history", Description: "Последние операции"},
			{Command: "lottery", Description: "Текущий розыгрыш"},
			{Command: "lottery_join", Description: "Поставить билеты"},
			{Command: "round", Description: "Итоги розыгрыша по номеру"},
			{Command: "tasks", Description: "Задания за билеты"},
			{Command: "top", Description: "Топ покупателей"},
			{Command: "buy_tickets", Description: "Купить билеты за звёзды"},
			{Command: "buy_stake", Description: "Купить ставку за звёзды"},
			{Command: "buy_vip", Description: "Купить VIP"},
		},
	})
}

// Start запускает polling обновлений от Telegram и блокируется до отмены ctx.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: b.cfg.BotUpdateTimeoutSeconds,
		AllowedUpdates: []string{
			"message",
			"pre_checkout_query",
		},
	})
	if err != nil {
		return fmt.Errorf("ошибка запуска long polling: %w", err)
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.rateLimiter.Close()
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				b.rateLimiter.Close()
				return nil
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd telego.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	// Pre-checkout отвечаем без rate limit: у Telegram 10 секунд на ответ
	if update.PreCheckoutQuery != nil {
		b.handler.HandlePreCheckout(ctx, update.PreCheckoutQuery)
		return
	}

	message := update.Message
	if message == nil {
		return
	}

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}

	// Оплату обрабатываем всегда, иначе звёзды спишутся без начисления
	if message.SuccessfulPayment == nil && !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	b.handler.HandleMessage(ctx, message)
}

// SendMessageToUser отправляет сообщение пользователю (для планировщика).
func (b *Bot) SendMessageToUser(userID int64, text string) {
	b.handler.SendMessageToUser(context.Background(), userID, text)
}
