// Package metrics — Prometheus-счётчики экономики бота.
// Все коллекторы живут в собственном реестре Registry, HTTP-эндпоинт
// поднимается отдельно через Serve.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	// Registry хранит коллекторы приложения.
	Registry = prometheus.NewRegistry()

	ledgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stars_bot",
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Количество записей в леджере по причине и направлению.",
		},
		[]string{"cause", "direction"},
	)

	ledgerVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stars_bot",
			Subsystem: "ledger",
			Name:      "volume_tickets_total",
			Help:      "Сумма движения билетов по причине.",
		},
		[]string{"cause"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stars_bot",
			Subsystem: "payments",
			Name:      "confirmed_total",
			Help:      "Подтверждённые платежи по назначению и результату.",
		},
		[]string{"purpose", "result"},
	)

	commissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stars_bot",
			Subsystem: "referral",
			Name:      "commission_tickets_total",
			Help:      "Начисленные реферальные комиссии по уровню.",
		},
		[]string{"level"},
	)

	roundsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stars_bot",
			Subsystem: "lottery",
			Name:      "rounds_closed_total",
			Help:      "Закрытые раунды лотереи.",
		},
	)

	prizesPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stars_bot",
			Subsystem: "lottery",
			Name:      "prizes_tickets_total",
			Help:      "Выплаченные призы в билетах.",
		},
	)
)

func init() {
	Registry.MustRegister(
		ledgerEntries,
		ledgerVolume,
		payments,
		commissions,
		roundsClosed,
		prizesPaid,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// RecordLedgerEntry учитывает одну запись леджера. delta со знаком.
func RecordLedgerEntry(cause string, delta int64) {
	direction := "credit"
	amount := delta
	if delta < 0 {
		direction = "debit"
		amount = -delta
	}
	ledgerEntries.WithLabelValues(cause, direction).Inc()
	ledgerVolume.WithLabelValues(cause).Add(float64(amount))
}

// RecordPayment учитывает подтверждение платежа; result — applied, duplicate, pending или error.
func RecordPayment(purpose, result string) {
	payments.WithLabelValues(purpose, result).Inc()
}

// RecordCommission учитывает комиссию уровня level (1..3).
func RecordCommission(level int, amount int64) {
	commissions.WithLabelValues(strconv.Itoa(level)).Add(float64(amount))
}

// RecordRoundClosed учитывает закрытие раунда и выплаченный банк.
func RecordRoundClosed(paid int64) {
	roundsClosed.Inc()
	prizesPaid.Add(float64(paid))
}

// Handler возвращает HTTP-обработчик /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve поднимает HTTP-сервер метрик и останавливает его по ctx.
// Пустой addr отключает сервер.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Метрики доступны на /metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("Сервер метрик остановлен с ошибкой")
	}
}
