package lottery

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db/memory"
)

// MemoryStore — Store в памяти поверх общего memory.TxManager.
type MemoryStore struct {
	tx      *memory.TxManager
	rounds  []*Round // индекс = ID-1
	stakes  []Stake
	winners map[int64][]Winner
}

// NewMemoryStore создаёт хранилище лотереи в памяти.
func NewMemoryStore(tx *memory.TxManager) *MemoryStore {
	return &MemoryStore{tx: tx, winners: make(map[int64][]Winner)}
}

func (s *MemoryStore) round(id int64) (*Round, error) {
	if id < 1 || id > int64(len(s.rounds)) {
		return nil, fmt.Errorf("раунд %d: %w", id, common.ErrNotFound)
	}
	return s.rounds[id-1], nil
}

func (s *MemoryStore) openRound() *Round {
	for i := len(s.rounds) - 1; i >= 0; i-- {
		if s.rounds[i].Status == StatusOpen {
			return s.rounds[i]
		}
	}
	return nil
}

func (s *MemoryStore) LockOpenRound(ctx context.Context) (out Round, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		r := s.openRound()
		if r == nil {
			return fmt.Errorf("открытый раунд: %w", common.ErrNotFound)
		}
		out = *r
		return nil
	})
	return out, err
}

func (s *MemoryStore) CreateRound(ctx context.Context, openedAt time.Time) (out Round, created bool, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if s.openRound() != nil {
			return nil
		}
		r := &Round{
			ID:       int64(len(s.rounds)) + 1,
			Status:   StatusOpen,
			OpenedAt: time.Unix(openedAt.Unix(), 0),
		}
		s.rounds = append(s.rounds, r)
		n := len(s.rounds) - 1
		memory.Undo(ctx, func() { s.rounds = s.rounds[:n] })
		out, created = *r, true
		return nil
	})
	return out, created, err
}

func (s *MemoryStore) LockRound(ctx context.Context, id int64) (Round, error) {
	return s.GetRound(ctx, id)
}

func (s *MemoryStore) GetRound(ctx context.Context, id int64) (out Round, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.round(id)
		if err != nil {
			return err
		}
		out = *r
		return nil
	})
	return out, err
}

func (s *MemoryStore) LastClosed(ctx context.Context) (out Round, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for i := len(s.rounds) - 1; i >= 0; i-- {
			if s.rounds[i].Status == StatusClosed {
				out = *s.rounds[i]
				return nil
			}
		}
		return fmt.Errorf("закрытый раунд: %w", common.ErrNotFound)
	})
	return out, err
}

func (s *MemoryStore) AddStake(ctx context.Context, st Stake) (out Stake, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		st.ID = int64(len(s.stakes)) + 1
		st.CreatedAt = time.Now()
		s.stakes = append(s.stakes, st)
		n := len(s.stakes) - 1
		memory.Undo(ctx, func() { s.stakes = s.stakes[:n] })
		out = st
		return nil
	})
	return out, err
}

func (s *MemoryStore) AddJackpot(ctx context.Context, roundID, amount int64) (jackpot int64, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.round(roundID)
		if err != nil {
			return err
		}
		if r.Status != StatusOpen {
			return fmt.Errorf("раунд %d: %w", roundID, common.ErrRoundAlreadyClosed)
		}
		before := r.Jackpot
		r.Jackpot += amount
		memory.Undo(ctx, func() { r.Jackpot = before })
		jackpot = r.Jackpot
		return nil
	})
	return jackpot, err
}

func (s *MemoryStore) Weights(ctx context.Context, roundID int64) (out []Weight, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		totals := make(map[int64]int64)
		for _, st := range s.stakes {
			if st.RoundID == roundID {
				totals[st.UserID] += st.Amount
			}
		}
		for id, amount := range totals {
			out = append(out, Weight{UserID: id, Amount: amount})
		}
		slices.SortFunc(out, func(a, b Weight) int { return cmp.Compare(a.UserID, b.UserID) })
		return nil
	})
	return out, err
}

func (s *MemoryStore) CloseRound(ctx context.Context, round Round) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		r, err := s.round(round.ID)
		if err != nil {
			return err
		}
		if r.Status != StatusOpen {
			return fmt.Errorf("раунд %d: %w", round.ID, common.ErrRoundAlreadyClosed)
		}
		before := *r
		r.Status = StatusClosed
		r.ClosedAt = time.Unix(round.ClosedAt.Unix(), 0)
		r.WinnerID = round.WinnerID
		r.DrawSeed = round.DrawSeed
		memory.Undo(ctx, func() { *r = before })
		return nil
	})
}

func (s *MemoryStore) AddWinner(ctx context.Context, w Winner) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		n := len(s.winners[w.RoundID])
		s.winners[w.RoundID] = append(s.winners[w.RoundID], w)
		memory.Undo(ctx, func() {
			s.winners[w.RoundID] = s.winners[w.RoundID][:n]
			if n == 0 {
				delete(s.winners, w.RoundID)
			}
		})
		return nil
	})
}

func (s *MemoryStore) Winners(ctx context.Context, roundID int64) (out []Winner, err error) {
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		out = slices.Clone(s.winners[roundID])
		slices.SortFunc(out, func(a, b Winner) int { return a.Place - b.Place })
		return nil
	})
	return out, err
}
