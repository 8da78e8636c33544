// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, движок экономики,
// бота и планировщик.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/bot"
	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/config"
	"serotonyl.ru/stars-bot/internal/db/postgres"
	"serotonyl.ru/stars-bot/internal/engine"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
	"serotonyl.ru/stars-bot/internal/features/lottery"
	"serotonyl.ru/stars-bot/internal/features/payments"
	"serotonyl.ru/stars-bot/internal/features/tasks"
	"serotonyl.ru/stars-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Engine    *engine.Engine
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	BotAPI    *telego.Bot
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Запускаем миграции
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	var opts []telego.BotOption
	if cfg.AppEnv == "development" {
		opts = append(opts, telego.WithDefaultDebugLogger())
	}
	botAPI, err := telego.NewBot(cfg.TelegramBotToken, opts...)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}

	// === 3. Репозитории ===
	stores := engine.Stores{
		Accounts: accounts.NewRepository(pool),
		Ledger:   ledger.NewRepository(pool),
		Lottery:  lottery.NewRepository(pool),
		Payments: payments.NewRepository(pool),
		Tasks:    tasks.NewRepository(pool),
	}

	// === 4. Движок экономики ===
	eng := engine.New(postgres.NewTxManager(pool), stores, engine.SettingsFromConfig(cfg))

	// === 5. Бот ===
	b, err := bot.New(ctx, botAPI, cfg, eng)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := b.RegisterCommands(ctx); err != nil {
		log.WithError(err).Warn("Не удалось зарегистрировать команды бота")
	}

	// === 6. Планировщик задач ===
	scheduler := jobs.NewScheduler(eng, cfg.LotteryCheckSchedule, common.DisplayLocation(), b.SendMessageToUser)

	return &App{
		Bot:       b,
		Engine:    eng,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
	}, nil
}
