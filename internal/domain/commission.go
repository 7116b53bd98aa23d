package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the minor-unit precision of every stored monetary amount.
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half-up to MoneyScale decimals. Amounts are never negative,
// so decimal's half-away-from-zero rounding is half-up here.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// CommissionAmount is base * percentage / 100, rounded at creation time.
func CommissionAmount(base, percentage decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(percentage).Div(hundred))
}

type CommissionLevel struct {
	ID           int32           `json:"id"`
	Level        int             `json:"level"`
	Percentage   decimal.Decimal `json:"percentage"`
	Description  string          `json:"description"`
	IsActive     bool            `json:"is_active"`
	MinReferrals int             `json:"min_referrals"`
	MaxReferrals *int            `json:"max_referrals,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DefaultCommissionLevels is the baseline schedule restored by a reset.
func DefaultCommissionLevels() []CommissionLevel {
	return []CommissionLevel{
		{Level: 1, Percentage: decimal.NewFromInt(15), Description: "Direct referral", IsActive: true},
		{Level: 2, Percentage: decimal.NewFromInt(5), Description: "Second level referral", IsActive: true},
		{Level: 3, Percentage: decimal.RequireFromString("2.5"), Description: "Third level referral", IsActive: true},
	}
}

// PercentageBounds are the globally configured commission limits.
type PercentageBounds struct {
	Minimum decimal.Decimal
	Maximum decimal.Decimal
}

func (b PercentageBounds) Check(p decimal.Decimal) error {
	if p.IsNegative() {
		return ValidationError("percentage must not be negative")
	}
	if p.LessThan(b.Minimum) {
		return ValidationError("percentage %s is below the minimum commission %s", p.String(), b.Minimum.String())
	}
	if p.GreaterThan(b.Maximum) {
		return ValidationError("percentage %s exceeds the maximum commission %s", p.String(), b.Maximum.String())
	}
	return nil
}

// CommissionSchedule is an immutable snapshot of the active levels. A
// calculation works from one snapshot from start to finish.
type CommissionSchedule struct {
	Version int64             `json:"version"`
	Levels  []CommissionLevel `json:"levels"`
	TakenAt time.Time         `json:"taken_at"`
}

// NewCommissionSchedule keeps only active levels, ordered by level number.
func NewCommissionSchedule(version int64, levels []CommissionLevel, takenAt time.Time) *CommissionSchedule {
	active := make([]CommissionLevel, 0, len(levels))
	for _, l := range levels {
		if l.IsActive {
			active = append(active, l)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Level < active[j].Level })
	return &CommissionSchedule{Version: version, Levels: active, TakenAt: takenAt}
}

// Level returns the active level for a 1-indexed referral depth.
func (s *CommissionSchedule) Level(depth int) (CommissionLevel, bool) {
	for _, l := range s.Levels {
		if l.Level == depth {
			return l, true
		}
	}
	return CommissionLevel{}, false
}

func (s *CommissionSchedule) MaxLevel() int {
	if len(s.Levels) == 0 {
		return 0
	}
	return s.Levels[len(s.Levels)-1].Level
}

type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionApproved  CommissionStatus = "approved"
	CommissionPaid      CommissionStatus = "paid"
	CommissionCancelled CommissionStatus = "cancelled"
)

func (s CommissionStatus) Valid() bool {
	switch s {
	case CommissionPending, CommissionApproved, CommissionPaid, CommissionCancelled:
		return true
	}
	return false
}

// Open reports whether the record still counts towards the payable balance.
func (s CommissionStatus) Open() bool {
	return s == CommissionPending || s == CommissionApproved
}

// Transaction is a qualifying sale recorded once per id. ScheduleVersion is the
// commission schedule its records were computed from.
type Transaction struct {
	ID                string          `json:"id"`
	OriginatingUserID int32           `json:"originating_user_id"`
	Amount            decimal.Decimal `json:"amount"`
	ScheduleVersion   int64           `json:"schedule_version"`
	RecordedAt        time.Time       `json:"recorded_at"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
}

// CommissionRecord amounts are fixed at creation; later percentage edits never
// touch existing rows.
type CommissionRecord struct {
	ID            int32            `json:"id"`
	AffiliateID   int32            `json:"affiliate_id"`
	TransactionID string           `json:"transaction_id"`
	SourceUserID  int32            `json:"source_user_id"`
	Level         int              `json:"level"`
	BaseAmount    decimal.Decimal  `json:"base_amount"`
	Rate          decimal.Decimal  `json:"rate"`
	Amount        decimal.Decimal  `json:"amount"`
	Status        CommissionStatus `json:"status"`
	PayoutID      *int32           `json:"payout_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ApprovedAt    *time.Time       `json:"approved_at,omitempty"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`
	CancelledAt   *time.Time       `json:"cancelled_at,omitempty"`
}

// CancellationResult reports a refunded transaction. Paid records are not
// reversed; they are returned in Unreversed for reconciliation. Payout credit
// that only cancelled records were backing is listed in UncoveredPayouts.
type CancellationResult struct {
	TransactionID          string             `json:"transaction_id"`
	Cancelled              []CommissionRecord `json:"cancelled"`
	Unreversed             []CommissionRecord `json:"unreversed"`
	UncoveredPayouts       []UncoveredPayout  `json:"uncovered_payouts"`
	ReconciliationRequired bool               `json:"reconciliation_required"`
}

type EarningsSummary struct {
	AffiliateID int32           `json:"affiliate_id"`
	Pending     decimal.Decimal `json:"pending"`
	Approved    decimal.Decimal `json:"approved"`
	Paid        decimal.Decimal `json:"paid"`
	Cancelled   decimal.Decimal `json:"cancelled"`
	Total       decimal.Decimal `json:"total"`
	Records     int             `json:"records"`
}

// SummarizeEarnings totals records per status. Total excludes cancelled records.
func SummarizeEarnings(affiliateID int32, records []CommissionRecord) *EarningsSummary {
	s := &EarningsSummary{AffiliateID: affiliateID}
	for _, r := range records {
		switch r.Status {
		case CommissionPending:
			s.Pending = s.Pending.Add(r.Amount)
		case CommissionApproved:
			s.Approved = s.Approved.Add(r.Amount)
		case CommissionPaid:
			s.Paid = s.Paid.Add(r.Amount)
		case CommissionCancelled:
			s.Cancelled = s.Cancelled.Add(r.Amount)
		}
		s.Records++
	}
	s.Total = s.Pending.Add(s.Approved).Add(s.Paid)
	return s
}
