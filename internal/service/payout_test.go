package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliate-network-backend/internal/domain"
)

// earner returns an affiliate holding open commissions of the given amounts,
// one transaction each, oldest first.
func (f *fixture) earner(t *testing.T, amounts ...string) (*domain.User, []domain.CommissionRecord) {
	t.Helper()
	affiliate := f.user(t, domain.RoleAffiliate, nil)
	var records []domain.CommissionRecord
	for _, a := range amounts {
		buyer := f.user(t, domain.RoleClient, affiliate)
		// Level one pays 15%, so the sale is amount / 0.15.
		sale := dec(a).Div(dec("0.15")).Round(2)
		created, err := f.commissions.RecordCommissionsForTransaction(f.ctx, "tx-"+buyer.Email, buyer.ID, sale)
		require.NoError(t, err)
		require.Len(t, created, 1)
		require.True(t, dec(a).Equal(created[0].Amount), "commission %s", created[0].Amount)
		records = append(records, created[0])
		f.clock.Advance(time.Minute)
	}
	return affiliate, records
}

func TestPayoutService_ProcessPayout(t *testing.T) {
	f := newFixture(t)
	affiliate, records := f.earner(t, "10", "20")
	pm := f.paymentMethod(t, affiliate.ID)

	balance, err := f.payouts.GetBalance(f.ctx, affiliate.ID)
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(balance.Available))

	payout, err := f.payouts.ProcessPayout(f.ctx, affiliate.ID, dec("15"), pm.ID)
	require.NoError(t, err)
	assert.NotZero(t, payout.ID)
	assert.Equal(t, []int32{records[0].ID}, payout.SettledCommissionIDs)

	balance, err = f.payouts.GetBalance(f.ctx, affiliate.ID)
	require.NoError(t, err)
	assert.True(t, dec("15").Equal(balance.Available), "available %s", balance.Available)
	assert.True(t, dec("5").Equal(balance.UnallocatedCredit))

	t.Run("Overdraw is refused with the available amount", func(t *testing.T) {
		_, err := f.payouts.ProcessPayout(f.ctx, affiliate.ID, dec("15.01"), pm.ID)
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		var insufficient *domain.InsufficientFundsError
		require.True(t, errors.As(err, &insufficient))
		assert.True(t, dec("15").Equal(insufficient.Available))
	})

	t.Run("Exact balance settles the rest", func(t *testing.T) {
		payout, err := f.payouts.ProcessPayout(f.ctx, affiliate.ID, dec("15"), pm.ID)
		require.NoError(t, err)
		assert.Equal(t, []int32{records[1].ID}, payout.SettledCommissionIDs)

		balance, err := f.payouts.GetBalance(f.ctx, affiliate.ID)
		require.NoError(t, err)
		assert.True(t, balance.Available.IsZero())
		assert.True(t, balance.UnallocatedCredit.IsZero())

		paid, err := f.commissions.ListCommissions(f.ctx, affiliate.ID, domain.CommissionPaid)
		require.NoError(t, err)
		assert.Len(t, paid, 2)
	})

	history, err := f.payouts.ListPayouts(f.ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	assert.Eventually(t, func() bool {
		_, _, payouts := f.notifier.counts()
		return payouts == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPayoutService_ProcessPayoutValidation(t *testing.T) {
	f := newFixture(t, withMinimumPayout(dec("5")))
	affiliate, _ := f.earner(t, "30")
	pm := f.paymentMethod(t, affiliate.ID)
	stranger := f.user(t, domain.RoleAffiliate, nil)
	foreign := f.paymentMethod(t, stranger.ID)

	tests := []struct {
		name        string
		affiliateID int32
		amount      string
		methodID    int32
		want        error
	}{
		{"Zero", affiliate.ID, "0", pm.ID, domain.ErrValidation},
		{"Negative", affiliate.ID, "-1", pm.ID, domain.ErrValidation},
		{"Sub-cent", affiliate.ID, "5.001", pm.ID, domain.ErrValidation},
		{"Below minimum", affiliate.ID, "4.99", pm.ID, domain.ErrValidation},
		{"Foreign payment method", affiliate.ID, "10", foreign.ID, domain.ErrNotFound},
		{"Unknown payment method", affiliate.ID, "10", 9999, domain.ErrNotFound},
		{"Unknown affiliate", 9999, "10", pm.ID, domain.ErrNotFound},
		{"No balance", stranger.ID, "10", foreign.ID, domain.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.payouts.ProcessPayout(f.ctx, tt.affiliateID, dec(tt.amount), tt.methodID)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	balance, err := f.payouts.GetBalance(f.ctx, affiliate.ID)
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(balance.Available))
}

func TestPayoutService_CancelledRecordsLeaveTheBalance(t *testing.T) {
	f := newFixture(t)
	affiliate, records := f.earner(t, "10", "20")

	_, err := f.commissions.CancelTransaction(f.ctx, records[1].TransactionID)
	require.NoError(t, err)

	balance, err := f.payouts.GetBalance(f.ctx, affiliate.ID)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(balance.Available))
	assert.True(t, dec("10").Equal(balance.Pending))
}

func TestPayoutService_ConcurrentPayouts(t *testing.T) {
	f := newFixture(t)
	affiliate, _ := f.earner(t, "10", "10", "10")
	pm := f.paymentMethod(t, affiliate.ID)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.payouts.ProcessPayout(f.ctx, affiliate.ID, dec("7"), pm.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	// 30 available covers four payouts of 7.
	assert.Equal(t, 4, accepted)
	balance, err := f.payouts.GetBalance(f.ctx, affiliate.ID)
	require.NoError(t, err)
	assert.True(t, dec("2").Equal(balance.Available), "available %s", balance.Available)
	assert.False(t, balance.Available.IsNegative())
}

func TestPayoutService_PaymentMethods(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, domain.RoleAffiliate, nil)

	methods, err := f.payouts.ListPaymentMethods(f.ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, methods)
	assert.Empty(t, methods)

	pm, err := f.payouts.AddPaymentMethod(f.ctx, u.ID, domain.PaymentMethodBankTransfer, " Main account ", "DE89 3704 0044 0532 0130 00")
	require.NoError(t, err)
	assert.Equal(t, "Main account", pm.Label)

	methods, err = f.payouts.ListPaymentMethods(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, methods, 1)

	_, err = f.payouts.AddPaymentMethod(f.ctx, u.ID, "cheque", "label", "details")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.payouts.AddPaymentMethod(f.ctx, u.ID, domain.PaymentMethodCrypto, "wallet", " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.payouts.AddPaymentMethod(f.ctx, 9999, domain.PaymentMethodCrypto, "wallet", "0xabc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
