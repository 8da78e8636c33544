// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config содержит все настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS"`
	AdminIDs         []int64 `envconfig:"-"` // заполняется в Load

	// --- Database ---
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"stars_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	BotMaxInflight          int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// Отвечать ли на команды в группах; платежи всегда идут в личке
	BotAllowGroups bool `envconfig:"BOT_ALLOW_GROUPS" default:"false"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Referral ---
	// Доли комиссии от суммы платежа для уровней 1..3
	RefLevel1Pct decimal.Decimal `envconfig:"REF_LVL1_PCT" default:"0.10"`
	RefLevel2Pct decimal.Decimal `envconfig:"REF_LVL2_PCT" default:"0.05"`
	RefLevel3Pct decimal.Decimal `envconfig:"REF_LVL3_PCT" default:"0.02"`

	// --- VIP ---
	VIPMultiplier   decimal.Decimal `envconfig:"VIP_MULTIPLIER" default:"2"`
	VIPDaysDefault  int64           `envconfig:"VIP_DAYS_DEFAULT" default:"30"`
	VIPTicketsBonus int64           `envconfig:"VIP_TICKETS_BONUS" default:"50"`
	VIPPriceStars   int64           `envconfig:"VIP_PRICE_STARS" default:"100"`

	// --- Tickets & lottery ---
	// 1 звезда = TICKETS_PER_STAR билетов
	TicketsPerStar       int64         `envconfig:"TICKETS_PER_STAR" default:"1"`
	LotteryPeriod        time.Duration `envconfig:"LOTTERY_PERIOD" default:"24h"`
	LotteryCheckSchedule string        `envconfig:"LOTTERY_CHECK_SCHEDULE" default:"@every 1m"`
	// Проценты банка по местам; по умолчанию один победитель забирает всё
	LotteryPrizeShares []int `envconfig:"LOTTERY_PRIZE_SHARES" default:"100"`

	// --- Metrics ---
	// Пустая строка отключает HTTP-эндпоинт /metrics
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// ReferralPercents возвращает доли комиссии по уровням.
func (c *Config) ReferralPercents() [3]decimal.Decimal {
	return [3]decimal.Decimal{c.RefLevel1Pct, c.RefLevel2Pct, c.RefLevel3Pct}
}

// IsAdmin проверяет, входит ли пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS и RATE_LIMIT_WINDOW должны быть > 0")
	}

	sum := decimal.Zero
	for i, p := range c.ReferralPercents() {
		if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("REF_LVL%d_PCT должен быть в диапазоне [0, 1], получено %s", i+1, p)
		}
		sum = sum.Add(p)
	}
	if sum.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("сумма REF_LVL*_PCT больше 1: %s", sum)
	}

	if c.VIPMultiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("VIP_MULTIPLIER должен быть >= 1")
	}
	if c.VIPDaysDefault <= 0 {
		return fmt.Errorf("VIP_DAYS_DEFAULT должен быть > 0")
	}
	if c.VIPTicketsBonus < 0 || c.VIPPriceStars <= 0 || c.TicketsPerStar <= 0 {
		return fmt.Errorf("некорректные VIP_TICKETS_BONUS/VIP_PRICE_STARS/TICKETS_PER_STAR")
	}

	if c.LotteryPeriod <= 0 {
		return fmt.Errorf("LOTTERY_PERIOD должен быть > 0")
	}
	if len(c.LotteryPrizeShares) == 0 {
		return fmt.Errorf("LOTTERY_PRIZE_SHARES не задан")
	}
	total := 0
	for _, s := range c.LotteryPrizeShares {
		if s <= 0 {
			return fmt.Errorf("LOTTERY_PRIZE_SHARES: доля должна быть > 0")
		}
		total += s
	}
	if total != 100 {
		return fmt.Errorf("LOTTERY_PRIZE_SHARES в сумме должны давать 100, получено %d", total)
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
