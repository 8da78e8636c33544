package vip

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/memory"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
)

var now = time.Unix(1_700_000_000, 0)

func TestPolicy(t *testing.T) {
	p := Policy{Multiplier: decimal.RequireFromString("1.5"), Days: 30, Bonus: 50}

	tests := []struct {
		name       string
		vipUntil   int64
		base       int64
		wantActive bool
		want       int64
	}{
		{"never vip", 0, 100, false, 100},
		{"expired", now.Unix() - 1, 100, false, 100},
		{"expires exactly now", now.Unix(), 100, false, 100},
		{"active", now.Unix() + 1, 100, true, 150},
		{"active floor", now.Unix() + 10, 7, true, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantActive, p.IsActive(tt.vipUntil, now))
			assert.Equal(t, tt.want, p.Apply(tt.vipUntil, tt.base, now))
		})
	}

	assert.True(t, p.MultiplierAt(0, now).Equal(decimal.NewFromInt(1)))
	assert.True(t, p.MultiplierAt(now.Unix()+5, now).Equal(decimal.RequireFromString("1.5")))
}

func TestNextExpiry(t *testing.T) {
	day := int64(secondsPerDay)

	tests := []struct {
		name    string
		current int64
		days    int64
		want    int64
	}{
		{"no vip starts from now", 0, 30, now.Unix() + 30*day},
		{"expired starts from now", now.Unix() - 5*day, 1, now.Unix() + day},
		{"active extends from expiry", now.Unix() + 10*day, 30, now.Unix() + 40*day},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextExpiry(tt.current, now, tt.days)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, tt.current)
			assert.GreaterOrEqual(t, got, now.Unix()+tt.days*day)
		})
	}
}

func newService(t *testing.T, bonus int64) (*Service, *ledger.Service) {
	t.Helper()
	tm := memory.NewTxManager()
	accs := accounts.NewMemoryStore(tm)
	_, _, err := accs.Ensure(context.Background(), accounts.Profile{UserID: 1})
	require.NoError(t, err)

	led := ledger.NewService(tm, accs, ledger.NewMemoryStore(tm))
	return NewService(tm, accs, led, Policy{Multiplier: decimal.NewFromInt(2), Days: 30, Bonus: bonus}), led
}

func TestService_Extend(t *testing.T) {
	ctx := context.Background()
	svc, led := newService(t, 50)

	ext, err := svc.Extend(ctx, 1, 30, now, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), ext.OldUntil)
	assert.Equal(t, now.Unix()+30*secondsPerDay, ext.NewUntil)
	assert.Equal(t, int64(50), ext.Bonus)
	assert.Equal(t, int64(50), ext.Balance)

	// Повторная покупка продлевает от текущего срока, бонус снова один
	ext2, err := svc.Extend(ctx, 1, 30, now.Add(time.Hour), "tok-2")
	require.NoError(t, err)
	assert.Equal(t, ext.NewUntil+30*secondsPerDay, ext2.NewUntil)
	assert.Equal(t, int64(100), ext2.Balance)

	history, err := led.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, e := range history {
		assert.Equal(t, ledger.CauseVIPBonus, e.Cause)
	}
}

func TestService_ExtendWithoutBonus(t *testing.T) {
	svc, led := newService(t, 0)

	ext, err := svc.Extend(context.Background(), 1, 7, now, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), ext.Bonus)

	history, err := led.History(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_ExtendErrors(t *testing.T) {
	svc, _ := newService(t, 50)

	_, err := svc.Extend(context.Background(), 1, 0, now, "")
	assert.ErrorIs(t, err, common.ErrInvalidAmount)

	_, err = svc.Extend(context.Background(), 404, 30, now, "")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
