package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx_RollbackReplaysUndo(t *testing.T) {
	tm := NewTxManager()
	values := map[string]int{"a": 1}
	errBoom := errors.New("boom")

	set := func(ctx context.Context, k string, v int) {
		old, had := values[k]
		values[k] = v
		Undo(ctx, func() {
			if had {
				values[k] = old
			} else {
				delete(values, k)
			}
		})
	}

	err := tm.WithTx(context.Background(), func(ctx context.Context) error {
		set(ctx, "a", 2)
		set(ctx, "b", 3)
		return tm.WithTx(ctx, func(ctx context.Context) error {
			set(ctx, "a", 4)
			return errBoom
		})
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, map[string]int{"a": 1}, values)

	err = tm.WithTx(context.Background(), func(ctx context.Context) error {
		set(ctx, "a", 5)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, values["a"])
}

func TestWithTx_PanicRollsBack(t *testing.T) {
	tm := NewTxManager()
	n := 0

	assert.Panics(t, func() {
		_ = tm.WithTx(context.Background(), func(ctx context.Context) error {
			n = 1
			Undo(ctx, func() { n = 0 })
			panic("boom")
		})
	})
	assert.Equal(t, 0, n)

	// Мьютекс освобождён после паники
	require.NoError(t, tm.WithTx(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestWithTx_Serializes(t *testing.T) {
	tm := NewTxManager()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tm.WithTx(context.Background(), func(ctx context.Context) error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
