// Package common — pluralize.go склоняет русские числительные
// и форматирует суммы билетов для сообщений бота.
package common

import "fmt"

// pluralRU выбирает форму слова для n по правилам русского языка:
// one (1, 21, 101), few (2-4, 22-24), many (0, 5-20, 25-30, 111).
func pluralRU(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeTickets возвращает форму слова «билет» для числа n.
//
//	PluralizeTickets(1)  → "билет"
//	PluralizeTickets(3)  → "билета"
//	PluralizeTickets(11) → "билетов"
func PluralizeTickets(n int64) string {
	return pluralRU(n, "билет", "билета", "билетов")
}

// PluralizeDays возвращает форму слова «день».
func PluralizeDays(n int64) string {
	return pluralRU(n, "день", "дня", "дней")
}

// PluralizeStars возвращает форму слова «звезда».
func PluralizeStars(n int64) string {
	return pluralRU(n, "звезда", "звезды", "звёзд")
}

// FormatTickets форматирует баланс: FormatTickets(2350) → "2 350 билетов".
func FormatTickets(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizeTickets(n))
}

// FormatTicketsDelta добавляет знак: "+100 билетов", "-5 билетов".
func FormatTicketsDelta(delta int64) string {
	if delta >= 0 {
		return "+" + FormatTickets(delta)
	}
	return FormatTickets(delta)
}

// FormatNumber форматирует число с пробелами между тысячами.
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}
