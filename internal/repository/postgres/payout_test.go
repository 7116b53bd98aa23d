package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/repository"
)

func expectBalance(mock sqlmock.Sqlmock, affiliateID int32, open *sqlmock.Rows, paidOut, settled string) {
	mock.ExpectQuery("SELECT (.+) FROM commission_records WHERE affiliate_id = \\$1 AND status IN").
		WithArgs(affiliateID).
		WillReturnRows(open)
	mock.ExpectQuery("SELECT \\(SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payouts").
		WithArgs(affiliateID).
		WillReturnRows(sqlmock.NewRows([]string{"paid_out", "settled"}).AddRow(paidOut, settled))
}

func TestPayoutRepository_Balance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewPayoutRepository(db)
	now := time.Now().UTC()

	open := sqlmock.NewRows(recordRowColumns).
		AddRow(1, 2, "tx-1", 3, 1, "100", "10", "10", "pending", nil, now, nil, nil, nil).
		AddRow(2, 2, "tx-2", 3, 1, "200", "10", "20", "approved", nil, now, now, nil, nil)
	expectBalance(mock, 2, open, "15", "10")

	b, err := repo.Balance(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, b.Pending.Equal(decimal.NewFromInt(10)))
	assert.True(t, b.Approved.Equal(decimal.NewFromInt(20)))
	assert.True(t, b.UnallocatedCredit.Equal(decimal.NewFromInt(5)))
	assert.True(t, b.Available.Equal(decimal.NewFromInt(25)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPayoutRepository_Process(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewPayoutRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()
	allow := func(domain.Balance) error { return nil }

	openRows := func() *sqlmock.Rows {
		return sqlmock.NewRows(recordRowColumns).
			AddRow(1, 2, "tx-1", 3, 1, "100", "10", "10", "approved", nil, now.Add(-time.Hour), now, nil, nil).
			AddRow(2, 2, "tx-2", 3, 1, "200", "10", "20", "approved", nil, now, now, nil, nil)
	}

	t.Run("Settles whole records oldest first", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM users WHERE id = \\$1 FOR UPDATE").
			WithArgs(int32(2)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
		mock.ExpectQuery("SELECT user_id FROM payment_methods WHERE id = \\$1").
			WithArgs(int32(5)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(2))
		expectBalance(mock, 2, openRows(), "0", "0")
		mock.ExpectQuery("INSERT INTO payouts").
			WithArgs(int32(2), decimal.NewFromInt(15), int32(5), now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(40))
		mock.ExpectExec("UPDATE commission_records SET status = 'paid'").
			WithArgs(now, int32(40), pq.Array([]int32{1})).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		p := &domain.PayoutRequest{AffiliateID: 2, Amount: decimal.NewFromInt(15), PaymentMethodID: 5, ProcessedAt: now}
		require.NoError(t, repo.Process(ctx, p, allow))
		assert.Equal(t, int32(40), p.ID)
		assert.Equal(t, []int32{1}, p.SettledCommissionIDs)
	})

	t.Run("Rejected by authorizer", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM users WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
		mock.ExpectQuery("SELECT user_id FROM payment_methods").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(2))
		expectBalance(mock, 2, openRows(), "0", "0")
		mock.ExpectRollback()

		rejected := &domain.InsufficientFundsError{Requested: decimal.NewFromInt(100), Available: decimal.NewFromInt(30)}
		p := &domain.PayoutRequest{AffiliateID: 2, Amount: decimal.NewFromInt(100), PaymentMethodID: 5}
		err := repo.Process(ctx, p, func(domain.Balance) error { return rejected })
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Zero(t, p.ID)
	})

	t.Run("Payment method of another user", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM users WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
		mock.ExpectQuery("SELECT user_id FROM payment_methods").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(9))
		mock.ExpectRollback()

		p := &domain.PayoutRequest{AffiliateID: 2, Amount: decimal.NewFromInt(1), PaymentMethodID: 5}
		assert.ErrorIs(t, repo.Process(ctx, p, allow), repository.ErrPaymentMethodNotFound)
	})

	t.Run("Unknown affiliate", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id FROM users WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		p := &domain.PayoutRequest{AffiliateID: 77, Amount: decimal.NewFromInt(1), PaymentMethodID: 5}
		assert.ErrorIs(t, repo.Process(ctx, p, allow), repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
