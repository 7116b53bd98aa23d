package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"affiliate-network-backend/internal/domain"
)

// LevelInput creates a commission level when ID is zero and updates it otherwise.
type LevelInput struct {
	ID           int32           `json:"id"`
	Level        int             `json:"level" validate:"gte=1"`
	Percentage   decimal.Decimal `json:"percentage"`
	Description  string          `json:"description" validate:"max=255"`
	IsActive     bool            `json:"is_active"`
	MinReferrals int             `json:"min_referrals" validate:"gte=0"`
	MaxReferrals *int            `json:"max_referrals,omitempty" validate:"omitempty,gte=0"`
}

type RegistrationInput struct {
	Name         string      `json:"name" validate:"required,max=120"`
	Email        string      `json:"email" validate:"required,email"`
	Password     string      `json:"password" validate:"required,min=8,max=72"`
	Role         domain.Role `json:"role"`
	ReferralCode string      `json:"referral_code,omitempty"`
}

type CommissionLevelService interface {
	GetActiveLevels(ctx context.Context) ([]domain.CommissionLevel, error)
	ListLevels(ctx context.Context) ([]domain.CommissionLevel, error)
	UpsertLevel(ctx context.Context, in LevelInput) (*domain.CommissionLevel, error)
	Deactivate(ctx context.Context, levelID int32) (*domain.CommissionLevel, error)
	Activate(ctx context.Context, levelID int32) (*domain.CommissionLevel, error)
	Delete(ctx context.Context, levelID int32) error
	ResetToDefaults(ctx context.Context) ([]domain.CommissionLevel, error)
	// Snapshot returns the versioned active schedule a calculation must use
	// from start to finish.
	Snapshot(ctx context.Context) (*domain.CommissionSchedule, error)
}

type ReferralTreeService interface {
	AncestorsOf(ctx context.Context, userID int32, maxDepth int) ([]domain.User, error)
	DescendantsOf(ctx context.Context, userID int32) (*domain.ReferralNetwork, error)
}

type AttachmentService interface {
	Register(ctx context.Context, in RegistrationInput) (*domain.User, error)
	CreateUser(ctx context.Context, in RegistrationInput) (*domain.User, error)
	AttachViaReferralCode(ctx context.Context, userID int32, code string) (*domain.User, error)
	AttachToCoordinator(ctx context.Context, affiliateID, coordinatorID int32) (*domain.User, error)
	BulkAssign(ctx context.Context, coordinatorID int32, affiliateIDs []int32) (*domain.BulkAssignResult, error)
	RegisterAffiliateUnderCoordinator(ctx context.Context, coordinatorID int32, name, email, password string) (*domain.User, error)
	SetUserStatus(ctx context.Context, userID int32, active bool) (*domain.User, error)
}

type CommissionService interface {
	RecordCommissionsForTransaction(ctx context.Context, transactionID string, originatingUserID int32, amount decimal.Decimal) ([]domain.CommissionRecord, error)
	CancelTransaction(ctx context.Context, transactionID string) (*domain.CancellationResult, error)
	ApproveCommissions(ctx context.Context, ids []int32) ([]domain.CommissionRecord, error)
	ApproveOlderThan(ctx context.Context, age time.Duration) (int64, error)
	ListCommissions(ctx context.Context, affiliateID int32, status domain.CommissionStatus) ([]domain.CommissionRecord, error)
	EarningsSummary(ctx context.Context, affiliateID int32) (*domain.EarningsSummary, error)
}

type PayoutService interface {
	ProcessPayout(ctx context.Context, affiliateID int32, amount decimal.Decimal, paymentMethodID int32) (*domain.PayoutRequest, error)
	GetBalance(ctx context.Context, affiliateID int32) (*domain.Balance, error)
	AddPaymentMethod(ctx context.Context, userID int32, typ domain.PaymentMethodType, label, details string) (*domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, userID int32) ([]domain.PaymentMethod, error)
	ListPayouts(ctx context.Context, affiliateID int32) ([]domain.PayoutRequest, error)
}

type CoordinatorService interface {
	GetNetwork(ctx context.Context, coordinatorID int32) (*domain.CoordinatorNetwork, error)
	ToggleCoordinatorStatus(ctx context.Context, coordinatorID int32, active bool) (*domain.User, error)
	AssignAffiliates(ctx context.Context, coordinatorID int32, affiliateIDs []int32) (*domain.BulkAssignResult, error)
	RegisterAffiliate(ctx context.Context, coordinatorID int32, name, email, password string) (*domain.User, error)
}

type InviteService interface {
	Invite(ctx context.Context, affiliateID int32, email, name, phone string) (*domain.EmailReferral, error)
	Confirm(ctx context.Context, token string) (*domain.EmailReferral, error)
	MarkConverted(ctx context.Context, affiliateID int32, email string, userID int32, value *decimal.Decimal) (*domain.EmailReferral, error)
	ListInvites(ctx context.Context, affiliateID int32) ([]domain.EmailReferral, error)
	ExpireStale(ctx context.Context) (int64, error)
}

type AuthService interface {
	// Login returns the user and a signed access token.
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
}

// Notifier delivers e-mails after a state change has been committed.
type Notifier interface {
	SendReferralInvite(ctx context.Context, affiliate *domain.User, invite *domain.EmailReferral) error
	SendCommissionEarned(ctx context.Context, affiliate *domain.User, record *domain.CommissionRecord) error
	SendPayoutProcessed(ctx context.Context, affiliate *domain.User, payout *domain.PayoutRequest) error
}
