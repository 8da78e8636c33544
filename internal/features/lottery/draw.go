package lottery

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Weight — суммарная ставка аккаунта в раунде.
type Weight struct {
	UserID int64
	Amount int64
}

// Seed — 32 байта для ChaCha8. Один сид даёт один и тот же розыгрыш.
type Seed [32]byte

// DeriveSeed смешивает параметры раунда со случайным nonce через BLAKE2b-256.
func DeriveSeed(roundID int64, openedAt time.Time, jackpot int64, nonce []byte) Seed {
	buf := make([]byte, 0, 24+len(nonce))
	buf = binary.BigEndian.AppendUint64(buf, uint64(roundID))
	buf = binary.BigEndian.AppendUint64(buf, uint64(openedAt.Unix()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(jackpot))
	buf = append(buf, nonce...)
	return blake2b.Sum256(buf)
}

// String — hex-представление для хранения в draw_seed.
func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

// ParseSeed разбирает hex из draw_seed.
func ParseSeed(v string) (Seed, error) {
	var s Seed
	b, err := hex.DecodeString(v)
	if err != nil {
		return s, fmt.Errorf("некорректный сид: %w", err)
	}
	if len(b) != len(s) {
		return s, fmt.Errorf("некорректная длина сида: %d", len(b))
	}
	copy(s[:], b)
	return s, nil
}

// NewRand создаёт генератор для розыгрыша по сиду.
func NewRand(seed Seed) *rand.Rand {
	return rand.New(rand.NewChaCha8(seed))
}

// Pick выбирает одного победителя: вероятность аккаунта равна его доле
// в общей сумме ставок. Поиск по префиксным суммам, без развёртывания
// ставок в список. ok = false, если ставок нет.
func Pick(weights []Weight, rng *rand.Rand) (userID int64, ok bool) {
	cum := make([]int64, len(weights))
	var total int64
	for i, w := range weights {
		if w.Amount > 0 {
			total += w.Amount
		}
		cum[i] = total
	}
	if total == 0 {
		return 0, false
	}

	x := rng.Int64N(total)
	i := sort.Search(len(cum), func(i int) bool { return cum[i] > x })
	return weights[i].UserID, true
}

// PickN проводит до n розыгрышей подряд, убирая победителей из пула.
// Победителей может быть меньше n, если участников меньше.
func PickN(weights []Weight, n int, rng *rand.Rand) []int64 {
	pool := slices.Clone(weights)
	winners := make([]int64, 0, n)
	for len(winners) < n {
		id, ok := Pick(pool, rng)
		if !ok {
			break
		}
		winners = append(winners, id)
		pool = slices.DeleteFunc(pool, func(w Weight) bool { return w.UserID == id })
	}
	return winners
}

// SplitPrize делит банк по долям в процентах между winners местами.
// Остаток от округления и доли незанятых мест уходят первому месту,
// поэтому сумма призов всегда равна банку.
func SplitPrize(jackpot int64, shares []int, winners int) []int64 {
	if winners <= 0 {
		return nil
	}
	if winners > len(shares) {
		winners = len(shares)
	}

	prizes := make([]int64, winners)
	var paid int64
	for i := 0; i < winners; i++ {
		prizes[i] = jackpot * int64(shares[i]) / 100
		paid += prizes[i]
	}
	prizes[0] += jackpot - paid
	return prizes
}
