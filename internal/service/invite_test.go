package service

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliate-network-backend/internal/domain"
)

func TestInviteService_Invite(t *testing.T) {
	f := newFixture(t)
	affiliate := f.user(t, domain.RoleAffiliate, nil)

	invite, err := f.invites.Invite(f.ctx, affiliate.ID, " Friend@Example.com ", " Friend ", "+1 555 0100")
	require.NoError(t, err)
	assert.NotZero(t, invite.ID)
	assert.Equal(t, "friend@example.com", invite.Email)
	assert.Equal(t, "Friend", invite.Name)
	assert.Equal(t, domain.InviteInvited, invite.Status)
	assert.Equal(t, f.clock.Now().Add(168*time.Hour), invite.ExpiresAt)

	t.Run("Live duplicate is a conflict", func(t *testing.T) {
		_, err := f.invites.Invite(f.ctx, affiliate.ID, "friend@example.com", "", "")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Another affiliate may invite the same email", func(t *testing.T) {
		other := f.user(t, domain.RoleAffiliate, nil)
		_, err := f.invites.Invite(f.ctx, other.ID, "friend@example.com", "", "")
		assert.NoError(t, err)
	})

	t.Run("Own email", func(t *testing.T) {
		_, err := f.invites.Invite(f.ctx, affiliate.ID, affiliate.Email, "", "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Malformed email", func(t *testing.T) {
		_, err := f.invites.Invite(f.ctx, affiliate.ID, "friend@", "", "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Unknown affiliate", func(t *testing.T) {
		_, err := f.invites.Invite(f.ctx, 9999, "x@example.com", "", "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Expired invite no longer blocks", func(t *testing.T) {
		f.clock.Advance(169 * time.Hour)
		again, err := f.invites.Invite(f.ctx, affiliate.ID, "friend@example.com", "", "")
		require.NoError(t, err)
		assert.NotEqual(t, invite.ID, again.ID)

		invites, err := f.invites.ListInvites(f.ctx, affiliate.ID)
		require.NoError(t, err)
		require.Len(t, invites, 2)
		assert.Equal(t, again.ID, invites[0].ID)
		assert.Equal(t, domain.InviteExpired, invites[1].Status)
	})

	assert.Eventually(t, func() bool {
		invites, _, _ := f.notifier.counts()
		return invites == 3
	}, time.Second, 10*time.Millisecond)
}

func TestInviteService_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	affiliate := f.user(t, domain.RoleAffiliate, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.invites.Invite(f.ctx, affiliate.ID, "race@example.com", "", "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			assert.ErrorIs(t, err, domain.ErrConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestInviteService_Confirm(t *testing.T) {
	f := newFixture(t)
	affiliate := f.user(t, domain.RoleAffiliate, nil)
	invite, err := f.invites.Invite(f.ctx, affiliate.ID, "guest@example.com", "", "")
	require.NoError(t, err)

	require.Len(t, invite.Token, 32)

	confirmed, err := f.invites.Confirm(f.ctx, invite.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.InviteConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	again, err := f.invites.Confirm(f.ctx, strings.ToUpper(invite.Token))
	require.NoError(t, err)
	assert.Equal(t, confirmed.ConfirmedAt, again.ConfirmedAt)

	t.Run("Unknown token", func(t *testing.T) {
		for _, token := range []string{"", strconv.Itoa(int(invite.ID)), strings.Repeat("0", 32)} {
			_, err := f.invites.Confirm(f.ctx, token)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		}
	})

	t.Run("Tokens are unique per invite", func(t *testing.T) {
		other, err := f.invites.Invite(f.ctx, affiliate.ID, "other@example.com", "", "")
		require.NoError(t, err)
		assert.NotEqual(t, invite.Token, other.Token)
	})

	t.Run("Expired", func(t *testing.T) {
		late, err := f.invites.Invite(f.ctx, affiliate.ID, "late@example.com", "", "")
		require.NoError(t, err)
		f.clock.Advance(200 * time.Hour)
		_, err = f.invites.Confirm(f.ctx, late.Token)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestInviteService_ConvertedOnRegistration(t *testing.T) {
	f := newFixture(t)
	affiliate := f.user(t, domain.RoleAffiliate, nil)
	invite, err := f.invites.Invite(f.ctx, affiliate.ID, "joiner@example.com", "", "")
	require.NoError(t, err)

	user, err := f.attachments.Register(f.ctx, registration("JOINER@example.com", affiliate.ReferralCode))
	require.NoError(t, err)

	invites, err := f.invites.ListInvites(f.ctx, affiliate.ID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, invite.ID, invites[0].ID)
	assert.Equal(t, domain.InviteConverted, invites[0].Status)
	require.NotNil(t, invites[0].ConvertedUserID)
	assert.Equal(t, user.ID, *invites[0].ConvertedUserID)

	_, err = f.invites.Confirm(f.ctx, invite.Token)
	assert.ErrorIs(t, err, domain.ErrConflict)

	t.Run("Converted invite frees the address", func(t *testing.T) {
		_, err := f.invites.Invite(f.ctx, affiliate.ID, "joiner@example.com", "", "")
		assert.NoError(t, err)
	})

	t.Run("Sign-up without an invite", func(t *testing.T) {
		_, err := f.attachments.Register(f.ctx, registration("uninvited@example.com", affiliate.ReferralCode))
		assert.NoError(t, err)
	})
}

func TestInviteService_ExpireStale(t *testing.T) {
	f := newFixture(t)
	affiliate := f.user(t, domain.RoleAffiliate, nil)
	_, err := f.invites.Invite(f.ctx, affiliate.ID, "one@example.com", "", "")
	require.NoError(t, err)
	f.clock.Advance(100 * time.Hour)
	_, err = f.invites.Invite(f.ctx, affiliate.ID, "two@example.com", "", "")
	require.NoError(t, err)

	n, err := f.invites.ExpireStale(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(100 * time.Hour)
	n, err = f.invites.ExpireStale(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	invites, err := f.invites.ListInvites(f.ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InviteInvited, invites[0].Status)
	assert.Equal(t, domain.InviteExpired, invites[1].Status)
}
