package lottery

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db"
	"serotonyl.ru/stars-bot/internal/features/ledger"
	"serotonyl.ru/stars-bot/internal/metrics"
)

// openRoundAttempts — сколько раз пытаться найти или открыть раунд,
// пока параллельное закрытие открывает следующий.
const openRoundAttempts = 3

// Config — параметры лотереи.
type Config struct {
	Period      time.Duration // Длительность раунда
	PrizeShares []int         // Проценты банка по местам, в сумме 100
}

// Service — движок раундов лотереи.
//
// Порядок блокировок везде один: сначала раунд, потом аккаунт.
type Service struct {
	tx     db.TxManager
	store  Store
	ledger *ledger.Service
	cfg    Config
	nonce  func() ([]byte, error)
}

// NewService создаёт движок лотереи.
func NewService(tx db.TxManager, store Store, ledgerService *ledger.Service, cfg Config) *Service {
	if len(cfg.PrizeShares) == 0 {
		cfg.PrizeShares = []int{100}
	}
	return &Service{tx: tx, store: store, ledger: ledgerService, cfg: cfg, nonce: randomNonce}
}

func randomNonce() ([]byte, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Period возвращает длительность раунда.
func (s *Service) Period() time.Duration {
	return s.cfg.Period
}

// CurrentOpenRound возвращает открытый раунд, заблокировав его строку
// до конца транзакции. Если открытого раунда нет, открывает новый.
func (s *Service) CurrentOpenRound(ctx context.Context, now time.Time) (Round, error) {
	var round Round
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		for attempt := 0; attempt < openRoundAttempts; attempt++ {
			r, err := s.store.LockOpenRound(ctx)
			if err == nil {
				round = r
				return nil
			}
			if !errors.Is(err, common.ErrNotFound) {
				return err
			}

			r, created, err := s.store.CreateRound(ctx, now)
			if err != nil {
				return err
			}
			if created {
				log.WithField("round_id", r.ID).Info("Открыт новый раунд лотереи")
				round = r
				return nil
			}
			// Раунд открыт параллельной транзакцией — перечитываем
		}
		return fmt.Errorf("не удалось получить открытый раунд за %d попыток", openRoundAttempts)
	})
	return round, err
}

// Stake списывает amount билетов и записывает ставку в открытый раунд.
// Без частичных эффектов: либо списание, ставка и банк вместе, либо ничего.
func (s *Service) Stake(ctx context.Context, userID, amount int64, now time.Time) (StakeResult, error) {
	if amount <= 0 {
		return StakeResult{}, common.ErrInvalidAmount
	}

	var res StakeResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		round, err := s.CurrentOpenRound(ctx, now)
		if err != nil {
			return err
		}

		res.Balance, err = s.ledger.Debit(ctx, userID, amount, ledger.CauseLotteryStake, round.Ref())
		if err != nil {
			return err
		}

		res.Stake, err = s.store.AddStake(ctx, Stake{RoundID: round.ID, UserID: userID, Amount: amount})
		if err != nil {
			return err
		}

		round.Jackpot, err = s.store.AddJackpot(ctx, round.ID, amount)
		if err != nil {
			return err
		}
		res.Round = round
		return nil
	})
	if err != nil {
		return StakeResult{}, fmt.Errorf("ставка %d от %d: %w", amount, userID, err)
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"round_id": res.Round.ID,
		"amount":   amount,
		"jackpot":  res.Round.Jackpot,
	}).Info("Ставка в лотерее принята")
	return res, nil
}

// Close закрывает раунд: разыгрывает банк, выплачивает призы и открывает
// следующий раунд, всё в одной транзакции. Повторный вызов для закрытого
// раунда ничего не меняет и возвращает сохранённый результат.
func (s *Service) Close(ctx context.Context, roundID int64, now time.Time) (CloseResult, error) {
	var res CloseResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		round, err := s.store.LockRound(ctx, roundID)
		if err != nil {
			return err
		}

		if round.Status == StatusClosed {
			res, err = s.closedResult(ctx, round)
			return err
		}

		weights, err := s.store.Weights(ctx, round.ID)
		if err != nil {
			return err
		}

		nonce, err := s.nonce()
		if err != nil {
			return fmt.Errorf("ошибка генерации сида: %w", err)
		}
		seed := DeriveSeed(round.ID, round.OpenedAt, round.Jackpot, nonce)
		ids := PickN(weights, len(s.cfg.PrizeShares), NewRand(seed))
		prizes := SplitPrize(round.Jackpot, s.cfg.PrizeShares, len(ids))

		round.Status = StatusClosed
		round.ClosedAt = time.Unix(now.Unix(), 0)
		round.DrawSeed = seed.String()
		if len(ids) > 0 {
			round.WinnerID = ids[0]
		}
		if err := s.store.CloseRound(ctx, round); err != nil {
			return err
		}

		res = CloseResult{Round: round, Participants: len(weights)}
		for i, id := range ids {
			w := Winner{RoundID: round.ID, Place: i + 1, UserID: id, Prize: prizes[i]}
			if w.Prize > 0 {
				if _, err := s.ledger.Credit(ctx, id, w.Prize, ledger.CauseLotteryPrize, round.Ref()); err != nil {
					return err
				}
			}
			if err := s.store.AddWinner(ctx, w); err != nil {
				return err
			}
			res.Winners = append(res.Winners, w)
		}

		next, created, err := s.store.CreateRound(ctx, now)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("не удалось открыть раунд после %d", round.ID)
		}
		res.Next = next
		return nil
	})
	if err != nil {
		return CloseResult{}, fmt.Errorf("закрытие раунда %d: %w", roundID, err)
	}

	if res.AlreadyClosed {
		log.WithField("round_id", roundID).Debug("Раунд уже закрыт, возвращаем сохранённый результат")
		return res, nil
	}

	metrics.RecordRoundClosed(res.Round.Jackpot)
	log.WithFields(log.Fields{
		"round_id":     res.Round.ID,
		"jackpot":      res.Round.Jackpot,
		"participants": res.Participants,
		"winner_id":    res.Round.WinnerID,
		"next_round":   res.Next.ID,
	}).Info("Раунд лотереи закрыт")
	return res, nil
}

func (s *Service) closedResult(ctx context.Context, round Round) (CloseResult, error) {
	winners, err := s.store.Winners(ctx, round.ID)
	if err != nil {
		return CloseResult{}, err
	}
	weights, err := s.store.Weights(ctx, round.ID)
	if err != nil {
		return CloseResult{}, err
	}
	return CloseResult{
		Round:         round,
		Winners:       winners,
		Participants:  len(weights),
		AlreadyClosed: true,
	}, nil
}

// CheckAndRollover закрывает открытый раунд, если его срок истёк к now.
// Возвращает nil, если закрывать нечего.
func (s *Service) CheckAndRollover(ctx context.Context, now time.Time) (*CloseResult, error) {
	round, err := s.CurrentOpenRound(ctx, now)
	if err != nil {
		return nil, err
	}
	if now.Before(round.EndsAt(s.cfg.Period)) {
		return nil, nil
	}

	res, err := s.Close(ctx, round.ID, now)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Result возвращает итоги закрытого раунда.
func (s *Service) Result(ctx context.Context, roundID int64) (CloseResult, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return CloseResult{}, err
	}
	if round.Status != StatusClosed {
		return CloseResult{Round: round}, nil
	}
	res, err := s.closedResult(ctx, round)
	res.AlreadyClosed = false
	return res, err
}

// Info собирает состояние лотереи для пользователя userID.
func (s *Service) Info(ctx context.Context, userID int64, now time.Time) (Info, error) {
	var info Info
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		round, err := s.CurrentOpenRound(ctx, now)
		if err != nil {
			return err
		}
		info.Round = round
		info.EndsAt = round.EndsAt(s.cfg.Period)

		weights, err := s.store.Weights(ctx, round.ID)
		if err != nil {
			return err
		}
		info.Participants = len(weights)
		for _, w := range weights {
			if w.UserID == userID {
				info.UserStake = w.Amount
			}
		}

		last, err := s.store.LastClosed(ctx)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		prev, err := s.closedResult(ctx, last)
		if err != nil {
			return err
		}
		prev.AlreadyClosed = false
		info.Previous = &prev
		return nil
	})
	return info, err
}
