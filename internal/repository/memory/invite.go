package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/repository"
)

type inviteRepository struct {
	s *state
}

func (r *inviteRepository) Create(_ context.Context, invite *domain.EmailReferral, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(invite.Email)
	for _, existing := range r.s.invites {
		if existing.AffiliateID != invite.AffiliateID || strings.ToLower(existing.Email) != email {
			continue
		}
		if existing.IsLive(now) {
			return repository.ErrDuplicate
		}
		if existing.Status == domain.InviteInvited || existing.Status == domain.InviteConfirmed {
			existing.Status = domain.InviteExpired
		}
	}

	r.s.nextInviteID++
	invite.ID = r.s.nextInviteID
	c := *invite
	r.s.invites[invite.ID] = &c
	return nil
}

func (r *inviteRepository) GetByID(_ context.Context, id int32) (*domain.EmailReferral, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	inv, ok := r.s.invites[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *inv
	return &c, nil
}

func (r *inviteRepository) GetByToken(_ context.Context, token string) (*domain.EmailReferral, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, inv := range r.s.invites {
		if token != "" && inv.Token == token {
			c := *inv
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *inviteRepository) FindLive(_ context.Context, affiliateID int32, email string, now time.Time) (*domain.EmailReferral, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, inv := range r.s.invites {
		if inv.AffiliateID == affiliateID && strings.ToLower(inv.Email) == email && inv.IsLive(now) {
			c := *inv
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *inviteRepository) ListByAffiliate(_ context.Context, affiliateID int32) ([]domain.EmailReferral, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.EmailReferral
	for _, inv := range r.s.invites {
		if inv.AffiliateID == affiliateID {
			result = append(result, *inv)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (r *inviteRepository) Update(_ context.Context, invite *domain.EmailReferral) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.invites[invite.ID]; !ok {
		return repository.ErrNotFound
	}
	c := *invite
	r.s.invites[invite.ID] = &c
	return nil
}

func (r *inviteRepository) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, inv := range r.s.invites {
		if (inv.Status == domain.InviteInvited || inv.Status == domain.InviteConfirmed) && !inv.ExpiresAt.After(now) {
			inv.Status = domain.InviteExpired
			n++
		}
	}
	return n, nil
}
