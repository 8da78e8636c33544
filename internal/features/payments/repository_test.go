package payments

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/features/referral"
)

func NewMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)
	return NewRepository(mockDB), mockDB
}

func TestRepository_Claim(t *testing.T) {
	insert := regexp.QuoteMeta("INSERT INTO payments (token, payer_id, amount, purpose)")
	selectEffects := regexp.QuoteMeta("SELECT effects FROM payments WHERE token = $1")
	rec := Record{Token: "tok-1", PayerID: 1, Amount: 500, Purpose: PurposeTicketPurchase}

	tests := []struct {
		name        string
		mockSetup   func(mock pgxmock.PgxPoolIface)
		wantClaimed bool
		wantEffects Effects
		expectErr   bool
	}{
		{
			name: "new token",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(insert).
					WithArgs("tok-1", int64(1), int64(500), "ticket-purchase").
					WillReturnRows(pgxmock.NewRows([]string{"token"}).AddRow("tok-1"))
			},
			wantClaimed: true,
		},
		{
			name: "duplicate token",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(insert).
					WithArgs("tok-1", int64(1), int64(500), "ticket-purchase").
					WillReturnRows(pgxmock.NewRows([]string{"token"}))
				mock.ExpectQuery(selectEffects).
					WithArgs("tok-1").
					WillReturnRows(pgxmock.NewRows([]string{"effects"}).AddRow(
						[]byte(`{"purpose":"ticket-purchase","credited":500,"balance":500,"commissions":[{"Level":1,"SponsorID":2,"Amount":50}]}`)))
			},
			wantEffects: Effects{
				Purpose:     "ticket-purchase",
				Credited:    500,
				Balance:     500,
				Commissions: []referral.Commission{{Level: 1, SponsorID: 2, Amount: 50}},
			},
		},
		{
			name: "database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(insert).
					WithArgs("tok-1", int64(1), int64(500), "ticket-purchase").
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := NewMock(t)
			tt.mockSetup(mock)

			claimed, effects, err := repo.Claim(context.Background(), rec)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantClaimed, claimed)
				assert.Equal(t, tt.wantEffects, effects)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_SaveEffects(t *testing.T) {
	query := regexp.QuoteMeta("UPDATE payments SET effects = $2 WHERE token = $1")

	t.Run("saved", func(t *testing.T) {
		repo, mock := NewMock(t)
		mock.ExpectExec(query).
			WithArgs("tok-1", []byte(`{"purpose":"vip-purchase","bonus":50,"balance":50,"vip_until":1702592000}`)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.SaveEffects(context.Background(), "tok-1", Effects{
			Purpose:  "vip-purchase",
			Bonus:    50,
			Balance:  50,
			VIPUntil: 1_702_592_000,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		repo, mock := NewMock(t)
		mock.ExpectExec(query).
			WithArgs("tok-x", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.SaveEffects(context.Background(), "tok-x", Effects{})
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_LockSettlement(t *testing.T) {
	query := regexp.QuoteMeta("SELECT token, payer_id, amount, purpose, effects, commissions_applied FROM payments WHERE token = $1 FOR UPDATE")
	columns := []string{"token", "payer_id", "amount", "purpose", "effects", "commissions_applied"}

	t.Run("pending", func(t *testing.T) {
		repo, mock := NewMock(t)
		mock.ExpectQuery(query).WithArgs("tok-1").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("tok-1", int64(1), int64(500), "ticket-purchase", []byte(`{"purpose":"ticket-purchase","credited":500,"balance":500}`), false))

		st, err := repo.LockSettlement(context.Background(), "tok-1")
		require.NoError(t, err)
		assert.Equal(t, Settlement{
			Record:  Record{Token: "tok-1", PayerID: 1, Amount: 500, Purpose: PurposeTicketPurchase},
			Effects: Effects{Purpose: "ticket-purchase", Credited: 500, Balance: 500},
		}, st)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		repo, mock := NewMock(t)
		mock.ExpectQuery(query).WithArgs("tok-x").WillReturnRows(pgxmock.NewRows(columns))

		_, err := repo.LockSettlement(context.Background(), "tok-x")
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_MarkSettledAndPending(t *testing.T) {
	repo, mock := NewMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET effects = $2, commissions_applied = TRUE WHERE token = $1")).
		WithArgs("tok-1", []byte(`{"purpose":"ticket-purchase","balance":500,"commissions":[{"Level":1,"SponsorID":2,"Amount":50}]}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT token FROM payments WHERE NOT commissions_applied ORDER BY processed_at, token LIMIT $1")).
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"token"}).AddRow("tok-2").AddRow("tok-3"))

	err := repo.MarkSettled(context.Background(), "tok-1", Effects{
		Purpose:     "ticket-purchase",
		Balance:     500,
		Commissions: []referral.Commission{{Level: 1, SponsorID: 2, Amount: 50}},
	})
	require.NoError(t, err)

	tokens, err := repo.Pending(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-2", "tok-3"}, tokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Spending(t *testing.T) {
	repo, mock := NewMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0)::BIGINT FROM payments WHERE payer_id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(350)))
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY payer_id ORDER BY stars DESC, payer_id LIMIT $1")).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"payer_id", "stars"}).
			AddRow(int64(3), int64(900)).
			AddRow(int64(1), int64(350)))

	spent, err := repo.SpentBy(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(350), spent)

	top, err := repo.TopSpenders(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []Spender{{UserID: 3, Stars: 900}, {UserID: 1, Stars: 350}}, top)
	assert.NoError(t, mock.ExpectationsWereMet())
}
