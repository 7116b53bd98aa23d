package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/repository/memory"
)

type recordingNotifier struct {
	mu          sync.Mutex
	invites     []domain.EmailReferral
	commissions []domain.CommissionRecord
	payouts     []domain.PayoutRequest
}

func (n *recordingNotifier) SendReferralInvite(_ context.Context, _ *domain.User, invite *domain.EmailReferral) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invites = append(n.invites, *invite)
	return nil
}

func (n *recordingNotifier) SendCommissionEarned(_ context.Context, _ *domain.User, record *domain.CommissionRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.commissions = append(n.commissions, *record)
	return nil
}

func (n *recordingNotifier) SendPayoutProcessed(_ context.Context, _ *domain.User, payout *domain.PayoutRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payouts = append(n.payouts, *payout)
	return nil
}

func (n *recordingNotifier) counts() (invites, commissions, payouts int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.invites), len(n.commissions), len(n.payouts)
}

// testClock is a settable clock shared by the services of one fixture.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	clock    *testClock
	notifier *recordingNotifier

	levels       CommissionLevelService
	tree         ReferralTreeService
	attachments  AttachmentService
	commissions  CommissionService
	payouts      PayoutService
	invites      InviteService
	coordinators CoordinatorService

	seq int
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	rejectInactiveReferrers bool
	minimumPayout           decimal.Decimal
	cache                   ScheduleCache
}

func withRejectInactiveReferrers() fixtureOption {
	return func(c *fixtureConfig) { c.rejectInactiveReferrers = true }
}

func withMinimumPayout(d decimal.Decimal) fixtureOption {
	return func(c *fixtureConfig) { c.minimumPayout = d }
}

func withScheduleCache(sc ScheduleCache) fixtureOption {
	return func(c *fixtureConfig) { c.cache = sc }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{minimumPayout: decimal.Zero}
	for _, o := range opts {
		o(&cfg)
	}

	store := memory.NewStore()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	bounds := domain.PercentageBounds{Minimum: decimal.Zero, Maximum: decimal.NewFromInt(50)}

	levels := NewCommissionLevelService(store.CommissionLevelRepository, cfg.cache, bounds, nil)
	tree := NewReferralTreeService(store.UserRepository)

	invites := NewInviteService(store.InviteRepository, store.UserRepository, notifier, 168*time.Hour, nil)
	invites.(*inviteService).now = clock.Now

	attachments := NewAttachmentService(store.UserRepository, tree, invites, cfg.rejectInactiveReferrers, nil)

	commissions := NewCommissionService(store.CommissionRepository, store.UserRepository, levels, tree, notifier, 3, nil)
	commissions.(*commissionService).now = clock.Now

	payouts := NewPayoutService(store.PayoutRepository, store.UserRepository, notifier, cfg.minimumPayout, nil)
	payouts.(*payoutService).now = clock.Now

	return &fixture{
		ctx:          context.Background(),
		store:        store,
		clock:        clock,
		notifier:     notifier,
		levels:       levels,
		tree:         tree,
		attachments:  attachments,
		commissions:  commissions,
		payouts:      payouts,
		invites:      invites,
		coordinators: NewCoordinatorService(store.UserRepository, attachments, commissions, tree),
	}
}

// user inserts a user straight into the store, skipping password hashing.
func (f *fixture) user(t *testing.T, role domain.Role, referrer *domain.User) *domain.User {
	t.Helper()
	f.seq++
	u := &domain.User{
		Name:         fmt.Sprintf("user-%d", f.seq),
		Email:        fmt.Sprintf("user-%d@example.com", f.seq),
		Role:         role,
		IsActive:     true,
		ReferralCode: fmt.Sprintf("CODE%04d", f.seq),
		CreatedAt:    f.clock.Now().Add(time.Duration(f.seq) * time.Second),
	}
	if referrer != nil {
		id := referrer.ID
		u.ReferredByID = &id
	}
	require.NoError(t, f.store.UserRepository.Create(f.ctx, u))
	return u
}

// chain builds root <- g1 <- g2 ... and returns it root first.
func (f *fixture) chain(t *testing.T, n int) []*domain.User {
	t.Helper()
	users := make([]*domain.User, 0, n)
	var parent *domain.User
	for i := 0; i < n; i++ {
		parent = f.user(t, domain.RoleAffiliate, parent)
		users = append(users, parent)
	}
	return users
}

func (f *fixture) paymentMethod(t *testing.T, userID int32) *domain.PaymentMethod {
	t.Helper()
	pm, err := f.payouts.AddPaymentMethod(f.ctx, userID, domain.PaymentMethodPayPal, "PayPal", "me@example.com")
	require.NoError(t, err)
	return pm
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sumAmounts(records []domain.CommissionRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}
