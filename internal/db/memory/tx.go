// Package memory — транзакции для хранилищ в памяти.
//
// Транзакция держит один общий мьютекс от начала до конца, поэтому все
// хранилища, созданные поверх одного TxManager, видят изменения атомарно.
// Каждое изменение регистрирует обратное действие через Undo; при ошибке
// журнал проигрывается в обратном порядке.
package memory

import (
	"context"
	"sync"
)

type txKey struct{}

type txState struct {
	owner *TxManager
	undo  []func()
}

func (st *txState) rollback() {
	for i := len(st.undo) - 1; i >= 0; i-- {
		st.undo[i]()
	}
	st.undo = nil
}

// TxManager реализует db.TxManager для хранилищ в памяти.
type TxManager struct {
	mu sync.Mutex
}

// NewTxManager создаёт менеджер транзакций.
func NewTxManager() *TxManager {
	return &TxManager{}
}

// WithTx выполняет fn под общим мьютексом. Вложенный вызов с тем же
// менеджером присоединяется к внешней транзакции.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok && st.owner == m {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := &txState{owner: m}
	defer func() {
		if p := recover(); p != nil {
			st.rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		st.rollback()
	}
	return err
}

// Undo регистрирует обратное действие в текущей транзакции.
// Вне транзакции вызов ничего не делает.
func Undo(ctx context.Context, fn func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.undo = append(st.undo, fn)
	}
}
