package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affiliate-network-backend/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConcurrentUpdate is a serialization failure; the caller may retry once.
	ErrConcurrentUpdate = errors.New("concurrent update")
	// ErrAlreadySet is returned by write-once columns that already hold a value.
	ErrAlreadySet = errors.New("value already set")

	ErrEmailTaken            = fmt.Errorf("%w: email", ErrDuplicate)
	ErrReferralCodeTaken     = fmt.Errorf("%w: referral code", ErrDuplicate)
	ErrPaymentMethodNotFound = fmt.Errorf("%w: payment method", ErrNotFound)
)

type UserRepository interface {
	// Create inserts the user with its referrer and coordinator in one statement.
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int32) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByReferralCode(ctx context.Context, code string) (*domain.User, error)
	SetActive(ctx context.Context, id int32, active bool) error

	// SetReferrer and SetCoordinator are compare-and-set: they only write a
	// NULL column and return ErrAlreadySet otherwise.
	SetReferrer(ctx context.Context, userID, referrerID int32) error
	SetCoordinator(ctx context.Context, userID, coordinatorID int32) error

	// ListReferredBy returns the direct referees of all given users ordered by
	// creation time, then id.
	ListReferredBy(ctx context.Context, referrerIDs []int32) ([]domain.User, error)
	ListByCoordinator(ctx context.Context, coordinatorID int32) ([]domain.User, error)
}

// ScheduleMutation receives every level, active or not, and returns the full
// desired set. Levels with ID 0 are created and missing ones are deleted.
type ScheduleMutation func(levels []domain.CommissionLevel) ([]domain.CommissionLevel, error)

type CommissionLevelRepository interface {
	List(ctx context.Context) ([]domain.CommissionLevel, error)
	Snapshot(ctx context.Context) (*domain.CommissionSchedule, error)
	// UpdateSchedule applies fn under an exclusive lock, persists the result
	// and bumps the schedule version. Errors from fn abort without writing.
	UpdateSchedule(ctx context.Context, fn ScheduleMutation) (*domain.CommissionSchedule, error)
}

type CommissionRepository interface {
	// RecordTransaction stores the transaction and all of its records
	// atomically. ErrDuplicate when the transaction id is already known.
	RecordTransaction(ctx context.Context, txn *domain.Transaction, records []domain.CommissionRecord) ([]domain.CommissionRecord, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	// CancelTransaction cancels open records and returns the paid ones
	// untouched, along with payout credit the cancelled records were backing.
	// Balances are read under the same lock as the cancellation.
	CancelTransaction(ctx context.Context, id string, at time.Time) (*domain.CancellationResult, error)
	ListByAffiliate(ctx context.Context, affiliateID int32, status domain.CommissionStatus) ([]domain.CommissionRecord, error)
	// Approve moves pending records to approved and returns those it changed.
	Approve(ctx context.Context, ids []int32, at time.Time) ([]domain.CommissionRecord, error)
	ApproveCreatedBefore(ctx context.Context, cutoff, at time.Time) (int64, error)
}

// PayoutAuthorizer inspects the locked balance before a payout is written.
type PayoutAuthorizer func(balance domain.Balance) error

type PayoutRepository interface {
	CreatePaymentMethod(ctx context.Context, pm *domain.PaymentMethod) error
	ListPaymentMethods(ctx context.Context, userID int32) ([]domain.PaymentMethod, error)
	Balance(ctx context.Context, affiliateID int32) (*domain.Balance, error)
	ListByAffiliate(ctx context.Context, affiliateID int32) ([]domain.PayoutRequest, error)
	// Process serializes payouts per affiliate. Under the lock it checks the
	// payment method (ErrPaymentMethodNotFound), calls authorize with the
	// current balance, inserts the payout and settles open records FIFO.
	Process(ctx context.Context, payout *domain.PayoutRequest, authorize PayoutAuthorizer) error
}

type InviteRepository interface {
	// Create expires stale invites for the same pair and inserts the new one.
	// ErrDuplicate when a live invite still exists.
	Create(ctx context.Context, invite *domain.EmailReferral, now time.Time) error
	GetByID(ctx context.Context, id int32) (*domain.EmailReferral, error)
	GetByToken(ctx context.Context, token string) (*domain.EmailReferral, error)
	FindLive(ctx context.Context, affiliateID int32, email string, now time.Time) (*domain.EmailReferral, error)
	ListByAffiliate(ctx context.Context, affiliateID int32) ([]domain.EmailReferral, error)
	Update(ctx context.Context, invite *domain.EmailReferral) error
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}
