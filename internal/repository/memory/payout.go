package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/repository"
)

type payoutRepository struct {
	s *state
}

func (r *payoutRepository) CreatePaymentMethod(_ context.Context, pm *domain.PaymentMethod) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[pm.UserID]; !ok {
		return repository.ErrNotFound
	}
	if pm.CreatedAt.IsZero() {
		pm.CreatedAt = time.Now().UTC()
	}
	r.s.nextMethodID++
	pm.ID = r.s.nextMethodID
	c := *pm
	r.s.methods[pm.ID] = &c
	return nil
}

func (r *payoutRepository) ListPaymentMethods(_ context.Context, userID int32) ([]domain.PaymentMethod, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.PaymentMethod
	for _, pm := range r.s.methods {
		if pm.UserID == userID {
			result = append(result, *pm)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *payoutRepository) Balance(_ context.Context, affiliateID int32) (*domain.Balance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b := r.s.balance(affiliateID)
	return &b, nil
}

func (r *payoutRepository) ListByAffiliate(_ context.Context, affiliateID int32) ([]domain.PayoutRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.PayoutRequest
	for _, p := range r.s.payouts {
		if p.AffiliateID == affiliateID {
			c := *p
			c.SettledCommissionIDs = append([]int32(nil), p.SettledCommissionIDs...)
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *payoutRepository) Process(_ context.Context, payout *domain.PayoutRequest, authorize repository.PayoutAuthorizer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[payout.AffiliateID]; !ok {
		return repository.ErrNotFound
	}
	pm, ok := r.s.methods[payout.PaymentMethodID]
	if !ok || pm.UserID != payout.AffiliateID {
		return repository.ErrPaymentMethodNotFound
	}

	balance := r.s.balance(payout.AffiliateID)
	if err := authorize(balance); err != nil {
		return err
	}

	if payout.ProcessedAt.IsZero() {
		payout.ProcessedAt = time.Now().UTC()
	}
	r.s.nextPayoutID++
	payout.ID = r.s.nextPayoutID

	open := r.s.openRecords(payout.AffiliateID)
	settled, _ := domain.AllocatePayout(open, balance.UnallocatedCredit.Add(payout.Amount))
	for _, id := range settled {
		rec := r.s.records[id]
		rec.Status = domain.CommissionPaid
		paidAt := payout.ProcessedAt
		rec.PaidAt = &paidAt
		pid := payout.ID
		rec.PayoutID = &pid
	}
	payout.SettledCommissionIDs = settled

	c := *payout
	c.SettledCommissionIDs = append([]int32(nil), settled...)
	r.s.payouts[payout.ID] = &c
	return nil
}

// Caller holds the lock.
func (s *state) openRecords(affiliateID int32) []domain.CommissionRecord {
	var open []domain.CommissionRecord
	for _, rec := range s.records {
		if rec.AffiliateID == affiliateID && rec.Status.Open() {
			open = append(open, *rec)
		}
	}
	return open
}

// Caller holds the lock.
func (s *state) balance(affiliateID int32) domain.Balance {
	paidOut := decimal.Zero
	for _, p := range s.payouts {
		if p.AffiliateID == affiliateID {
			paidOut = paidOut.Add(p.Amount)
		}
	}
	settled := decimal.Zero
	for _, rec := range s.records {
		if rec.AffiliateID == affiliateID && rec.Status == domain.CommissionPaid {
			settled = settled.Add(rec.Amount)
		}
	}
	return domain.ComputeBalance(affiliateID, s.openRecords(affiliateID), paidOut, settled)
}
