package tasks

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/memory"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
)

func newMemoryService(t *testing.T, ids ...int64) (*Service, *ledger.Service) {
	t.Helper()
	tm := memory.NewTxManager()
	accs := accounts.NewMemoryStore(tm)
	for _, id := range ids {
		_, _, err := accs.Ensure(context.Background(), accounts.Profile{UserID: id})
		require.NoError(t, err)
	}
	led := ledger.NewService(tm, accs, ledger.NewMemoryStore(tm))
	return NewService(tm, NewMemoryStore(tm), led), led
}

func TestService_CompleteOnce(t *testing.T) {
	ctx := context.Background()
	svc, led := newMemoryService(t, 1)

	task, err := svc.Add(ctx, "Подписаться на канал", "https://t.me/stars_news", 5)
	require.NoError(t, err)
	assert.True(t, task.Active)

	c, err := svc.Complete(ctx, 1, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.Balance)
	assert.Equal(t, task.ID, c.Task.ID)

	_, err = svc.Complete(ctx, 1, task.ID)
	assert.ErrorIs(t, err, common.ErrTaskCompleted)

	rec, err := led.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rec.OK())
	assert.Equal(t, int64(5), rec.Balance)

	history, err := led.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.CauseTaskReward, history[0].Cause)
	assert.Equal(t, "task:1", history[0].Ref)
}

func TestService_CompleteRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryService(t, 1)

	task, err := svc.Add(ctx, "Пост", "", 3)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, 1, 404)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// Аккаунта нет: выполнение не засчитано
	_, err = svc.Complete(ctx, 2, task.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	items, err := svc.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Done)

	require.NoError(t, svc.Disable(ctx, task.ID))
	_, err = svc.Complete(ctx, 1, task.ID)
	assert.ErrorIs(t, err, common.ErrTaskInactive)

	_, err = svc.Add(ctx, "  ", "", 3)
	assert.ErrorIs(t, err, common.ErrInvalidTask)
	_, err = svc.Add(ctx, "Без награды", "", 0)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryService(t, 1)

	a, err := svc.Add(ctx, "A", "", 1)
	require.NoError(t, err)
	b, err := svc.Add(ctx, "B", "", 2)
	require.NoError(t, err)
	c, err := svc.Add(ctx, "C", "", 3)
	require.NoError(t, err)
	require.NoError(t, svc.Disable(ctx, c.ID))

	_, err = svc.Complete(ctx, 1, b.ID)
	require.NoError(t, err)

	items, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)
	assert.False(t, items[0].Done)
	assert.Equal(t, b.ID, items[1].ID)
	assert.True(t, items[1].Done)
}

func TestService_ConcurrentCompletePaysOnce(t *testing.T) {
	ctx := context.Background()
	svc, led := newMemoryService(t, 1)
	task, err := svc.Add(ctx, "Канал", "", 10)
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Complete(ctx, 1, task.ID); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
	rec, err := led.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Balance)
	assert.True(t, rec.OK())
}
