// Package vip — VIP-статус: чистая политика (активен ли, какой множитель)
// и продление срока с разовым бонусом.
package vip

import (
	"time"

	"github.com/shopspring/decimal"
)

const secondsPerDay = 24 * 60 * 60

// Policy — параметры VIP из конфигурации.
type Policy struct {
	Multiplier decimal.Decimal // Множитель начислений, >= 1
	Days       int64           // Срок одной покупки
	Bonus      int64           // Разовый бонус за покупку, 0 — без бонуса
}

// IsActive — VIP действует, пока vip_until строго больше now.
func (p Policy) IsActive(vipUntil int64, now time.Time) bool {
	return vipUntil > now.Unix()
}

// MultiplierAt возвращает множитель для начисления в момент now.
func (p Policy) MultiplierAt(vipUntil int64, now time.Time) decimal.Decimal {
	if p.IsActive(vipUntil, now) {
		return p.Multiplier
	}
	return decimal.NewFromInt(1)
}

// Apply умножает базовое начисление на множитель и отбрасывает дробную часть.
func (p Policy) Apply(vipUntil, base int64, now time.Time) int64 {
	if !p.IsActive(vipUntil, now) {
		return base
	}
	return decimal.NewFromInt(base).Mul(p.Multiplier).Floor().IntPart()
}

// NextExpiry продлевает VIP от более позднего из now и текущего срока.
func NextExpiry(current int64, now time.Time, days int64) int64 {
	start := now.Unix()
	if current > start {
		start = current
	}
	return start + days*secondsPerDay
}
