// Package common содержит общие утилиты проекта: склонения,
// форматирование сумм и работу со временем.
package common

import (
	"fmt"
	"time"
)

// moscow — часовой пояс по умолчанию для отображения дат.
var moscow = loadLocation("Europe/Moscow")

// loadLocation загружает часовой пояс, при ошибке возвращает UTC+3.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// SetDisplayTimezone меняет пояс, в котором бот показывает даты (APP_TIMEZONE).
func SetDisplayTimezone(name string) {
	moscow = loadLocation(name)
}

// DisplayLocation возвращает текущий пояс отображения.
func DisplayLocation() *time.Location {
	return moscow
}

// FormatDateTime форматирует время как "02.01.2006 15:04".
func FormatDateTime(t time.Time) string {
	return t.In(moscow).Format("02.01.2006 15:04")
}

// FormatUnix форматирует unix-время в секундах. Ноль — "—".
func FormatUnix(sec int64) string {
	if sec <= 0 {
		return "—"
	}
	return FormatDateTime(time.Unix(sec, 0))
}

// FormatTimeLeft выводит оставшееся время как ЧЧ:ММ:СС.
// Отрицательная длительность превращается в 00:00:00, часы не обрезаются по 24.
func FormatTimeLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}
