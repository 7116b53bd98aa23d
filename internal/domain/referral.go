package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralNetwork groups a user's descendants by depth.
type ReferralNetwork struct {
	UserID int32         `json:"user_id"`
	Level1 []User        `json:"level1"`
	Level2 []User        `json:"level2"`
	Level3 []User        `json:"level3"`
	Totals NetworkTotals `json:"totals"`
}

type NetworkTotals struct {
	Level1 int `json:"level1"`
	Level2 int `json:"level2"`
	Level3 int `json:"level3"`
	Total  int `json:"total"`
}

func (n *ReferralNetwork) ComputeTotals() {
	n.Totals = NetworkTotals{
		Level1: len(n.Level1),
		Level2: len(n.Level2),
		Level3: len(n.Level3),
	}
	n.Totals.Total = n.Totals.Level1 + n.Totals.Level2 + n.Totals.Level3
}

type InviteStatus string

const (
	InviteInvited   InviteStatus = "invited"
	InviteConfirmed InviteStatus = "confirmed"
	InviteConverted InviteStatus = "converted"
	InviteExpired   InviteStatus = "expired"
)

// EmailReferral is a prospect invited by an affiliate.
type EmailReferral struct {
	ID              int32            `json:"id"`
	AffiliateID     int32            `json:"affiliate_id"`
	Email           string           `json:"email"`
	Name            string           `json:"name,omitempty"`
	Phone           string           `json:"phone,omitempty"`
	Status          InviteStatus     `json:"status"`
	Token           string           `json:"-"`
	InvitedAt       time.Time        `json:"invited_at"`
	ExpiresAt       time.Time        `json:"expires_at"`
	ConfirmedAt     *time.Time       `json:"confirmed_at,omitempty"`
	ConvertedAt     *time.Time       `json:"converted_at,omitempty"`
	ConvertedUserID *int32           `json:"converted_user_id,omitempty"`
	ConversionValue *decimal.Decimal `json:"conversion_value,omitempty"`
}

// IsLive reports whether the invite still blocks a new invite to the same email.
func (r *EmailReferral) IsLive(now time.Time) bool {
	if r.Status != InviteInvited && r.Status != InviteConfirmed {
		return false
	}
	return r.ExpiresAt.After(now)
}

type AssignmentSkip struct {
	AffiliateID int32  `json:"affiliate_id"`
	Reason      string `json:"reason"`
}

// BulkAssignResult never aborts on a single affiliate; failures are skips.
type BulkAssignResult struct {
	CoordinatorID int32            `json:"coordinator_id"`
	Assigned      []int32          `json:"assigned"`
	Skipped       []AssignmentSkip `json:"skipped"`
}

type AffiliateSummary struct {
	User      User            `json:"user"`
	Earnings  EarningsSummary `json:"earnings"`
	Referrals NetworkTotals   `json:"referrals"`
}

type CoordinatorNetwork struct {
	Coordinator User               `json:"coordinator"`
	Affiliates  []AffiliateSummary `json:"affiliates"`
	Totals      NetworkSummary     `json:"totals"`
}

type NetworkSummary struct {
	Affiliates       int             `json:"affiliates"`
	ActiveAffiliates int             `json:"active_affiliates"`
	Earnings         decimal.Decimal `json:"earnings"`
	Referrals        int             `json:"referrals"`
}
