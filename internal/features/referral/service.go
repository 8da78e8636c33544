// Package referral — трёхуровневая реферальная сеть.
//
// Цепочка спонсоров фиксируется один раз при первой привязке и копирует
// цепочку спонсора со сдвигом на уровень. Комиссии с каждого платежа
// начисляются предкам по уровням: исчезнувший предок пропускается и не
// отменяет начисления остальным.
package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/db"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
	"serotonyl.ru/stars-bot/internal/metrics"
)

// Levels — глубина реферальной сети.
const Levels = 3

// Commission — одно начисление предку.
type Commission struct {
	Level     int
	SponsorID int64
	Amount    int64
}

// Service привязывает спонсоров и распределяет комиссии.
type Service struct {
	tx       db.TxManager
	accounts accounts.Store
	ledger   *ledger.Service
	percents [Levels]decimal.Decimal
}

// NewService создаёт реферальный сервис. percents — доли уровней 1..3.
func NewService(tx db.TxManager, accountStore accounts.Store, ledgerService *ledger.Service, percents [Levels]decimal.Decimal) *Service {
	return &Service{tx: tx, accounts: accountStore, ledger: ledgerService, percents: percents}
}

// BindSponsor привязывает claimed как спонсора первого уровня для invited.
// Ничего не делает, если claimed пуст, совпадает с invited, не существует,
// у invited уже есть спонсор или invited сам входит в цепочку claimed.
// bound = true, только если цепочка записана этим вызовом.
func (s *Service) BindSponsor(ctx context.Context, invited, claimed int64) (accounts.Chain, bool, error) {
	if claimed == 0 || claimed == invited {
		return accounts.Chain{}, false, nil
	}

	var (
		chain accounts.Chain
		bound bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		acc, err := s.accounts.GetForUpdate(ctx, invited)
		if err != nil {
			return err
		}
		if acc.Sponsors[0] != 0 {
			chain = acc.Sponsors
			return nil
		}

		sponsor, err := s.accounts.Get(ctx, claimed)
		if errors.Is(err, common.ErrNotFound) {
			log.WithFields(log.Fields{"user_id": invited, "sponsor_id": claimed}).Debug("Спонсор не найден, привязка пропущена")
			return nil
		}
		if err != nil {
			return err
		}

		candidate := accounts.Inherit(claimed, sponsor.Sponsors)
		if candidate.Contains(invited) {
			log.WithFields(log.Fields{"user_id": invited, "sponsor_id": claimed}).Warn("Привязка создала бы цикл, пропущена")
			return nil
		}

		err = s.accounts.SetSponsors(ctx, invited, candidate)
		if errors.Is(err, common.ErrAlreadyBound) {
			return nil
		}
		if err != nil {
			return err
		}
		chain, bound = candidate, true
		return nil
	})
	if err != nil {
		return accounts.Chain{}, false, fmt.Errorf("ошибка привязки спонсора %d -> %d: %w", invited, claimed, err)
	}

	if bound {
		log.WithFields(log.Fields{
			"user_id": invited,
			"l1":      chain[0],
			"l2":      chain[1],
			"l3":      chain[2],
		}).Info("Спонсор привязан")
	}
	return chain, bound, nil
}

// CommissionFor считает комиссию уровня level (1..3) с суммы gross.
// Округление банковское: половина — к чётному.
func (s *Service) CommissionFor(level int, gross int64) int64 {
	if level < 1 || level > Levels || gross <= 0 {
		return 0
	}
	return decimal.NewFromInt(gross).Mul(s.percents[level-1]).RoundBank(0).IntPart()
}

// DistributeCommission начисляет комиссии спонсорам плательщика с суммы gross.
// Вызывается один раз на подтверждённый платёж, обычно внутри транзакции
// платежа. Исчезнувший спонсор (common.ErrNotFound) пропускается с записью
// в лог, любая другая ошибка возвращается, и вызывающий откатывает раздачу.
// Возвращает начисленные комиссии в порядке уровней.
func (s *Service) DistributeCommission(ctx context.Context, payerID, gross int64, ref string) ([]Commission, error) {
	payer, err := s.accounts.Get(ctx, payerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения плательщика %d: %w", payerID, err)
	}

	var paid []Commission
	for level := 1; level <= Levels; level++ {
		sponsorID := payer.Sponsors.Level(level)
		if sponsorID == 0 {
			continue
		}
		amount := s.CommissionFor(level, gross)
		if amount <= 0 {
			continue
		}

		_, err := s.ledger.Credit(ctx, sponsorID, amount, ledger.CauseReferralCommission, ref)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("комиссия уровня %d спонсору %d: %w", level, sponsorID, err)
		}
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"payer_id":   payerID,
				"sponsor_id": sponsorID,
				"level":      level,
				"amount":     amount,
			}).Warn("Спонсор не найден, комиссия пропущена")
			continue
		}

		metrics.RecordCommission(level, amount)
		paid = append(paid, Commission{Level: level, SponsorID: sponsorID, Amount: amount})
	}
	return paid, nil
}

// ByAncestor сворачивает комиссии в карту {спонсор: сумма}.
func ByAncestor(list []Commission) map[int64]int64 {
	out := make(map[int64]int64, len(list))
	for _, c := range list {
		out[c.SponsorID] += c.Amount
	}
	return out
}
