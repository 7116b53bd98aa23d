package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/repository"
)

// flakyUsers answers the first n compare-and-set writes with a
// serialization error before passing through to the store.
type flakyUsers struct {
	repository.UserRepository

	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyUsers) fail() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.calls <= r.failures
}

func (r *flakyUsers) SetReferrer(ctx context.Context, userID, referrerID int32) error {
	if r.fail() {
		return repository.ErrConcurrentUpdate
	}
	return r.UserRepository.SetReferrer(ctx, userID, referrerID)
}

func (r *flakyUsers) SetCoordinator(ctx context.Context, userID, coordinatorID int32) error {
	if r.fail() {
		return repository.ErrConcurrentUpdate
	}
	return r.UserRepository.SetCoordinator(ctx, userID, coordinatorID)
}

func registration(email, code string) RegistrationInput {
	return RegistrationInput{
		Name:         "New User",
		Email:        email,
		Password:     "correct-horse",
		ReferralCode: code,
	}
}

func TestAttachmentService_Register(t *testing.T) {
	f := newFixture(t)
	referrer := f.user(t, domain.RoleAffiliate, nil)
	coordinator := f.user(t, domain.RoleCoordinator, nil)

	t.Run("Without a code", func(t *testing.T) {
		u, err := f.attachments.Register(f.ctx, registration("Solo@Example.com", ""))
		require.NoError(t, err)
		assert.Equal(t, "solo@example.com", u.Email)
		assert.Equal(t, domain.RoleAffiliate, u.Role)
		assert.Len(t, u.ReferralCode, 8)
		assert.Nil(t, u.ReferredByID)
		assert.NotEqual(t, "correct-horse", u.PasswordHash)
	})

	t.Run("With an affiliate code", func(t *testing.T) {
		u, err := f.attachments.Register(f.ctx, registration("child@example.com", " code0001 "))
		require.NoError(t, err)
		require.NotNil(t, u.ReferredByID)
		assert.Equal(t, referrer.ID, *u.ReferredByID)
		assert.Nil(t, u.CoordinatorID)
	})

	t.Run("With a coordinator code", func(t *testing.T) {
		u, err := f.attachments.Register(f.ctx, registration("recruit@example.com", coordinator.ReferralCode))
		require.NoError(t, err)
		require.NotNil(t, u.ReferredByID)
		require.NotNil(t, u.CoordinatorID)
		assert.Equal(t, coordinator.ID, *u.CoordinatorID)
	})

	t.Run("Clients referred by a coordinator are not network members", func(t *testing.T) {
		in := registration("buyer@example.com", coordinator.ReferralCode)
		in.Role = domain.RoleClient
		u, err := f.attachments.Register(f.ctx, in)
		require.NoError(t, err)
		assert.NotNil(t, u.ReferredByID)
		assert.Nil(t, u.CoordinatorID)
	})

	errorCases := []struct {
		name string
		in   RegistrationInput
		want error
	}{
		{"Unknown code", registration("x1@example.com", "NOPE1234"), domain.ErrNotFound},
		{"Duplicate email", registration("SOLO@example.com", ""), domain.ErrValidation},
		{"Bad email", registration("not-an-email", ""), domain.ErrValidation},
		{"Short password", RegistrationInput{Name: "A", Email: "x2@example.com", Password: "short"}, domain.ErrValidation},
		{"Password over 72 bytes", RegistrationInput{Name: "A", Email: "x6@example.com", Password: strings.Repeat("a", 80)}, domain.ErrValidation},
		{"Multibyte password over 72 bytes", RegistrationInput{Name: "A", Email: "x7@example.com", Password: strings.Repeat("é", 40)}, domain.ErrValidation},
		{"Missing name", RegistrationInput{Email: "x3@example.com", Password: "long-enough"}, domain.ErrValidation},
		{"Admin self sign-up", RegistrationInput{Name: "A", Email: "x4@example.com", Password: "long-enough", Role: domain.RoleAdmin}, domain.ErrValidation},
		{"Coordinator self sign-up", RegistrationInput{Name: "A", Email: "x5@example.com", Password: "long-enough", Role: domain.RoleCoordinator}, domain.ErrValidation},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.attachments.Register(f.ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAttachmentService_RegisterInactiveReferrer(t *testing.T) {
	t.Run("Allowed by default", func(t *testing.T) {
		f := newFixture(t)
		r := f.user(t, domain.RoleAffiliate, nil)
		_, err := f.attachments.SetUserStatus(f.ctx, r.ID, false)
		require.NoError(t, err)

		u, err := f.attachments.Register(f.ctx, registration("a@example.com", r.ReferralCode))
		require.NoError(t, err)
		assert.Equal(t, r.ID, *u.ReferredByID)
	})

	t.Run("Rejected when configured", func(t *testing.T) {
		f := newFixture(t, withRejectInactiveReferrers())
		r := f.user(t, domain.RoleAffiliate, nil)
		_, err := f.attachments.SetUserStatus(f.ctx, r.ID, false)
		require.NoError(t, err)

		_, err = f.attachments.Register(f.ctx, registration("a@example.com", r.ReferralCode))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAttachmentService_CreateUser(t *testing.T) {
	f := newFixture(t)

	u, err := f.attachments.CreateUser(f.ctx, RegistrationInput{
		Name: "Coord", Email: "coord@example.com", Password: "long-enough", Role: domain.RoleCoordinator,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCoordinator, u.Role)

	_, err = f.attachments.CreateUser(f.ctx, RegistrationInput{
		Name: "X", Email: "x@example.com", Password: "long-enough", Role: "superuser",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAttachmentService_AttachViaReferralCode(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, domain.RoleAffiliate, nil)
	b := f.user(t, domain.RoleAffiliate, a)
	c := f.user(t, domain.RoleAffiliate, nil)
	d := f.user(t, domain.RoleAffiliate, nil)

	t.Run("Attaches once", func(t *testing.T) {
		u, err := f.attachments.AttachViaReferralCode(f.ctx, c.ID, b.ReferralCode)
		require.NoError(t, err)
		assert.Equal(t, b.ID, *u.ReferredByID)
	})

	t.Run("Never reassigned", func(t *testing.T) {
		_, err := f.attachments.AttachViaReferralCode(f.ctx, c.ID, d.ReferralCode)
		assert.ErrorIs(t, err, domain.ErrConflict)

		u, err := f.store.UserRepository.GetByID(f.ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, *u.ReferredByID)
	})

	t.Run("Own code", func(t *testing.T) {
		_, err := f.attachments.AttachViaReferralCode(f.ctx, d.ID, d.ReferralCode)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Would create a cycle", func(t *testing.T) {
		// c sits below a, so a may not join under c.
		_, err := f.attachments.AttachViaReferralCode(f.ctx, a.ID, c.ReferralCode)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Unknown code", func(t *testing.T) {
		_, err := f.attachments.AttachViaReferralCode(f.ctx, d.ID, "ZZZZZZZZ")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Unknown user", func(t *testing.T) {
		_, err := f.attachments.AttachViaReferralCode(f.ctx, 9999, a.ReferralCode)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAttachmentService_AttachToCoordinator(t *testing.T) {
	f := newFixture(t)
	c1 := f.user(t, domain.RoleCoordinator, nil)
	c2 := f.user(t, domain.RoleCoordinator, nil)
	aff := f.user(t, domain.RoleAffiliate, nil)
	client := f.user(t, domain.RoleClient, nil)

	u, err := f.attachments.AttachToCoordinator(f.ctx, aff.ID, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, *u.CoordinatorID)

	t.Run("Same coordinator again", func(t *testing.T) {
		_, err := f.attachments.AttachToCoordinator(f.ctx, aff.ID, c1.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Different coordinator", func(t *testing.T) {
		_, err := f.attachments.AttachToCoordinator(f.ctx, aff.ID, c2.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Not a coordinator", func(t *testing.T) {
		other := f.user(t, domain.RoleAffiliate, nil)
		_, err := f.attachments.AttachToCoordinator(f.ctx, other.ID, aff.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Not an affiliate", func(t *testing.T) {
		_, err := f.attachments.AttachToCoordinator(f.ctx, client.ID, c1.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Unknown coordinator", func(t *testing.T) {
		_, err := f.attachments.AttachToCoordinator(f.ctx, client.ID, 9999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAttachmentService_AttachToCoordinatorConcurrent(t *testing.T) {
	f := newFixture(t)
	aff := f.user(t, domain.RoleAffiliate, nil)
	coordinators := make([]*domain.User, 8)
	for i := range coordinators {
		coordinators[i] = f.user(t, domain.RoleCoordinator, nil)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []int32
		conflicts int
	)
	for _, c := range coordinators {
		wg.Add(1)
		go func(coordinatorID int32) {
			defer wg.Done()
			_, err := f.attachments.AttachToCoordinator(f.ctx, aff.ID, coordinatorID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, coordinatorID)
				return
			}
			assert.ErrorIs(t, err, domain.ErrConflict)
			conflicts++
		}(c.ID)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, len(coordinators)-1, conflicts)

	stored, err := f.store.UserRepository.GetByID(f.ctx, aff.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], *stored.CoordinatorID)
}

func TestAttachmentService_BulkAssign(t *testing.T) {
	f := newFixture(t)
	coordinator := f.user(t, domain.RoleCoordinator, nil)
	other := f.user(t, domain.RoleCoordinator, nil)
	free := f.user(t, domain.RoleAffiliate, nil)
	taken := f.user(t, domain.RoleAffiliate, nil)
	client := f.user(t, domain.RoleClient, nil)
	_, err := f.attachments.AttachToCoordinator(f.ctx, taken.ID, other.ID)
	require.NoError(t, err)

	result, err := f.attachments.BulkAssign(f.ctx, coordinator.ID, []int32{free.ID, taken.ID, client.ID, 9999, free.ID})
	require.NoError(t, err)

	assert.Equal(t, []int32{free.ID}, result.Assigned)
	require.Len(t, result.Skipped, 3)
	assert.Equal(t, taken.ID, result.Skipped[0].AffiliateID)
	assert.Equal(t, client.ID, result.Skipped[1].AffiliateID)
	assert.Equal(t, int32(9999), result.Skipped[2].AffiliateID)
	for _, s := range result.Skipped {
		assert.NotEmpty(t, s.Reason)
	}

	t.Run("Unknown coordinator fails the batch", func(t *testing.T) {
		_, err := f.attachments.BulkAssign(f.ctx, 9999, []int32{free.ID})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAttachmentService_RegisterAffiliateUnderCoordinator(t *testing.T) {
	f := newFixture(t)
	coordinator := f.user(t, domain.RoleCoordinator, nil)

	u, err := f.attachments.RegisterAffiliateUnderCoordinator(f.ctx, coordinator.ID, "Field Agent", "agent@example.com", "long-enough")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAffiliate, u.Role)
	assert.Equal(t, coordinator.ID, *u.CoordinatorID)
	assert.Nil(t, u.ReferredByID)

	_, err = f.attachments.RegisterAffiliateUnderCoordinator(f.ctx, coordinator.ID, "Dup", "AGENT@example.com", "long-enough")
	assert.ErrorIs(t, err, domain.ErrValidation)

	t.Run("Password over 72 bytes", func(t *testing.T) {
		_, err := f.attachments.RegisterAffiliateUnderCoordinator(f.ctx, coordinator.ID, "Agent", "long@example.com", strings.Repeat("a", 80))
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Contains(t, err.Error(), "at most 72 bytes")

		_, err = f.store.UserRepository.GetByEmail(f.ctx, "long@example.com")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestAttachmentService_CompareAndSetRetry(t *testing.T) {
	setup := func(t *testing.T, failures int) (*fixture, *flakyUsers, AttachmentService) {
		f := newFixture(t)
		users := &flakyUsers{UserRepository: f.store.UserRepository, failures: failures}
		svc := NewAttachmentService(users, f.tree, nil, false, nil)
		return f, users, svc
	}

	t.Run("Coordinator succeeds after one serialization failure", func(t *testing.T) {
		f, users, svc := setup(t, 1)
		coordinator := f.user(t, domain.RoleCoordinator, nil)
		aff := f.user(t, domain.RoleAffiliate, nil)

		u, err := svc.AttachToCoordinator(f.ctx, aff.ID, coordinator.ID)
		require.NoError(t, err)
		require.NotNil(t, u.CoordinatorID)
		assert.Equal(t, coordinator.ID, *u.CoordinatorID)
		assert.Equal(t, 2, users.calls)
	})

	t.Run("Coordinator conflict after two serialization failures", func(t *testing.T) {
		f, users, svc := setup(t, 2)
		coordinator := f.user(t, domain.RoleCoordinator, nil)
		aff := f.user(t, domain.RoleAffiliate, nil)

		_, err := svc.AttachToCoordinator(f.ctx, aff.ID, coordinator.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, 2, users.calls)

		stored, err := f.store.UserRepository.GetByID(f.ctx, aff.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.CoordinatorID)
	})

	t.Run("Referrer succeeds after one serialization failure", func(t *testing.T) {
		f, users, svc := setup(t, 1)
		referrer := f.user(t, domain.RoleAffiliate, nil)
		newcomer := f.user(t, domain.RoleAffiliate, nil)

		u, err := svc.AttachViaReferralCode(f.ctx, newcomer.ID, referrer.ReferralCode)
		require.NoError(t, err)
		require.NotNil(t, u.ReferredByID)
		assert.Equal(t, referrer.ID, *u.ReferredByID)
		assert.Equal(t, 2, users.calls)
	})

	t.Run("Referrer conflict after two serialization failures", func(t *testing.T) {
		f, users, svc := setup(t, 2)
		referrer := f.user(t, domain.RoleAffiliate, nil)
		newcomer := f.user(t, domain.RoleAffiliate, nil)

		_, err := svc.AttachViaReferralCode(f.ctx, newcomer.ID, referrer.ReferralCode)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, 2, users.calls)

		stored, err := f.store.UserRepository.GetByID(f.ctx, newcomer.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.ReferredByID)
	})
}

func TestAttachmentService_SetUserStatus(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, domain.RoleAffiliate, nil)

	updated, err := f.attachments.SetUserStatus(f.ctx, u.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = f.attachments.SetUserStatus(f.ctx, 9999, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
