// Package jobs управляет фоновыми задачами (cron).
// scheduler.go по расписанию проверяет срок раунда лотереи,
// закрывает истёкший раунд и уведомляет победителей.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/features/lottery"
)

// Ticker — точка входа ядра для планировщика.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (*lottery.CloseResult, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	ticker   Ticker
	clock    func() time.Time
	sendFunc func(userID int64, text string)
}

// NewScheduler создаёт планировщик. spec — расписание проверки раунда
// в формате cron ("@every 1m", "*/5 * * * *").
func NewScheduler(ticker Ticker, spec string, loc *time.Location, sendFunc func(userID int64, text string)) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(
			cron.Recover(cron.PrintfLogger(log.StandardLogger())),
			cron.SkipIfStillRunning(cron.PrintfLogger(log.StandardLogger())),
		),
	)

	return &Scheduler{
		cron:     c,
		spec:     spec,
		ticker:   ticker,
		clock:    time.Now,
		sendFunc: sendFunc,
	}
}

// Start запускает фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("некорректное расписание %q: %w", s.spec, err)
	}

	s.cron.Start()
	log.WithField("schedule", s.spec).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт завершения текущей задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// RunOnce выполняет одну проверку раунда.
func (s *Scheduler) RunOnce(ctx context.Context) {
	log.Debug("[CRON] Проверка срока раунда лотереи")

	res, err := s.ticker.Tick(ctx, s.clock())
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка закрытия раунда")
		return
	}
	if res == nil || res.AlreadyClosed {
		return
	}

	log.WithFields(log.Fields{
		"round_id": res.Round.ID,
		"winners":  len(res.Winners),
	}).Info("[CRON] Раунд лотереи разыгран")
	s.notify(res)
}

func (s *Scheduler) notify(res *lottery.CloseResult) {
	if s.sendFunc == nil {
		return
	}
	for _, w := range res.Winners {
		s.sendFunc(w.UserID, WinnerMessage(res.Round, w))
	}
}

// WinnerMessage — уведомление победителю.
func WinnerMessage(round lottery.Round, w lottery.Winner) string {
	if w.Place == 1 {
		return fmt.Sprintf("🎉 Вы выиграли лотерею #%d!\nПриз: %s",
			round.ID, common.FormatTicketsDelta(w.Prize))
	}
	return fmt.Sprintf("🎉 %d место в лотерее #%d!\nПриз: %s",
		w.Place, round.ID, common.FormatTicketsDelta(w.Prize))
}
