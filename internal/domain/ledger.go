package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethodType string

const (
	PaymentMethodBankTransfer PaymentMethodType = "bank_transfer"
	PaymentMethodPayPal       PaymentMethodType = "paypal"
	PaymentMethodCrypto       PaymentMethodType = "crypto"
)

func (t PaymentMethodType) Valid() bool {
	switch t {
	case PaymentMethodBankTransfer, PaymentMethodPayPal, PaymentMethodCrypto:
		return true
	}
	return false
}

type PaymentMethod struct {
	ID        int32             `json:"id"`
	UserID    int32             `json:"user_id"`
	Type      PaymentMethodType `json:"type"`
	Label     string            `json:"label"`
	Details   string            `json:"details"`
	CreatedAt time.Time         `json:"created_at"`
}

// PayoutRequest is an aggregate ledger debit against an affiliate's open
// commissions. SettledCommissionIDs lists the records it marked paid.
type PayoutRequest struct {
	ID                   int32           `json:"id"`
	AffiliateID          int32           `json:"affiliate_id"`
	Amount               decimal.Decimal `json:"amount"`
	PaymentMethodID      int32           `json:"payment_method_id"`
	SettledCommissionIDs []int32         `json:"settled_commission_ids"`
	ProcessedAt          time.Time       `json:"processed_at"`
}

// Balance of an affiliate. UnallocatedCredit is the part of past payouts not
// yet matched by whole paid records.
type Balance struct {
	AffiliateID       int32           `json:"affiliate_id"`
	Pending           decimal.Decimal `json:"pending"`
	Approved          decimal.Decimal `json:"approved"`
	UnallocatedCredit decimal.Decimal `json:"unallocated_credit"`
	Available         decimal.Decimal `json:"available"`
}

// ComputeBalance derives the payable balance from open records and the payout
// ledger totals.
func ComputeBalance(affiliateID int32, open []CommissionRecord, totalPayouts, totalPaidRecords decimal.Decimal) Balance {
	b := Balance{AffiliateID: affiliateID}
	for _, r := range open {
		switch r.Status {
		case CommissionPending:
			b.Pending = b.Pending.Add(r.Amount)
		case CommissionApproved:
			b.Approved = b.Approved.Add(r.Amount)
		}
	}
	b.UnallocatedCredit = totalPayouts.Sub(totalPaidRecords)
	if b.UnallocatedCredit.IsNegative() {
		b.UnallocatedCredit = decimal.Zero
	}
	b.Available = b.Pending.Add(b.Approved).Sub(b.UnallocatedCredit)
	if b.Available.IsNegative() {
		b.Available = decimal.Zero
	}
	return b
}

// SortFIFO orders records oldest first, id breaking ties.
func SortFIFO(records []CommissionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

// AllocatePayout settles open records oldest-first while a whole record fits
// in credit. It stops at the first record that does not fit, so settlement
// order stays strictly FIFO and no record is ever split.
func AllocatePayout(open []CommissionRecord, credit decimal.Decimal) ([]int32, decimal.Decimal) {
	ordered := make([]CommissionRecord, len(open))
	copy(ordered, open)
	SortFIFO(ordered)

	var settled []int32
	for _, r := range ordered {
		if !r.Status.Open() {
			continue
		}
		if r.Amount.GreaterThan(credit) {
			break
		}
		credit = credit.Sub(r.Amount)
		settled = append(settled, r.ID)
	}
	return settled, credit
}

// Shortfall is unallocated credit the open records no longer cover.
func (b Balance) Shortfall() decimal.Decimal {
	s := b.UnallocatedCredit.Sub(b.Pending.Add(b.Approved))
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

// UncoveredPayout is payout money whose backing commissions were cancelled.
type UncoveredPayout struct {
	AffiliateID int32           `json:"affiliate_id"`
	Amount      decimal.Decimal `json:"amount"`
}

// UncoveredByCancellation reports the shortfall each affiliate gains when the
// cancelled records leave its open balance. before holds balances read under
// the same lock, ahead of the cancellation.
func UncoveredByCancellation(before map[int32]Balance, cancelled []CommissionRecord) []UncoveredPayout {
	removed := make(map[int32]decimal.Decimal)
	for _, r := range cancelled {
		removed[r.AffiliateID] = removed[r.AffiliateID].Add(r.Amount)
	}
	ids := make([]int32, 0, len(removed))
	for id := range removed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var uncovered []UncoveredPayout
	for _, id := range ids {
		b, ok := before[id]
		if !ok {
			continue
		}
		after := b
		after.Pending = decimal.Zero
		after.Approved = b.Pending.Add(b.Approved).Sub(removed[id])
		if gained := after.Shortfall().Sub(b.Shortfall()); gained.IsPositive() {
			uncovered = append(uncovered, UncoveredPayout{AffiliateID: id, Amount: gained})
		}
	}
	return uncovered
}
