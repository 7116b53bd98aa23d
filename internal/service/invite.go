package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/metrics"
	"affiliate-network-backend/internal/repository"
)

type inviteService struct {
	inviteRepo repository.InviteRepository
	userRepo   repository.UserRepository
	notifier   Notifier
	ttl        time.Duration
	metrics    *metrics.Metrics
	now        Clock
}

func NewInviteService(inviteRepo repository.InviteRepository, userRepo repository.UserRepository, notifier Notifier, ttl time.Duration, m *metrics.Metrics) InviteService {
	return &inviteService{
		inviteRepo: inviteRepo,
		userRepo:   userRepo,
		notifier:   notifier,
		ttl:        ttl,
		metrics:    m,
		now:        utcNow,
	}
}

// Invite creates a live invite. At most one invite per (affiliate, email)
// can be live; an expired one no longer blocks.
func (s *inviteService) Invite(ctx context.Context, affiliateID int32, email, name, phone string) (*domain.EmailReferral, error) {
	logger.EnterMethod("inviteService.Invite", "affiliateID", affiliateID)

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	affiliate, err := s.userRepo.GetByID(ctx, affiliateID)
	if err != nil {
		return nil, notFound(err, "affiliate %d not found", affiliateID)
	}
	if strings.EqualFold(affiliate.Email, email) {
		return nil, domain.ValidationError("cannot invite your own email address")
	}

	token, err := generateInviteToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	invite := &domain.EmailReferral{
		AffiliateID: affiliateID,
		Email:       email,
		Name:        strings.TrimSpace(name),
		Phone:       strings.TrimSpace(phone),
		Status:      domain.InviteInvited,
		Token:       token,
		InvitedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	err = s.inviteRepo.Create(ctx, invite, now)
	if errors.Is(err, repository.ErrDuplicate) {
		err = domain.ConflictError("%s has already been invited", email)
	}
	if err != nil {
		logger.ExitMethodWithError("inviteService.Invite", err, "affiliateID", affiliateID)
		return nil, err
	}

	s.metrics.RecordInviteSent()
	if s.notifier != nil {
		inv := *invite
		dispatch(ctx, "referral_invite", func(ctx context.Context) error {
			return s.notifier.SendReferralInvite(ctx, affiliate, &inv)
		})
	}

	logger.ExitMethod("inviteService.Invite", "inviteID", invite.ID)
	return invite, nil
}

// Confirm marks the invite holding token as confirmed. The token only
// travels in the invite email, so invite ids cannot be confirmed by guessing.
func (s *inviteService) Confirm(ctx context.Context, token string) (*domain.EmailReferral, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return nil, domain.NotFoundError("invite not found")
	}
	invite, err := s.inviteRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, notFound(err, "invite not found")
	}

	now := s.now()
	switch {
	case invite.Status == domain.InviteConfirmed && invite.IsLive(now):
		return invite, nil
	case invite.Status == domain.InviteConverted:
		return nil, domain.ConflictError("invite %d was already used", invite.ID)
	case !invite.IsLive(now):
		return nil, domain.ConflictError("invite %d has expired", invite.ID)
	}

	invite.Status = domain.InviteConfirmed
	invite.ConfirmedAt = &now
	if err := s.inviteRepo.Update(ctx, invite); err != nil {
		return nil, notFound(err, "invite %d not found", invite.ID)
	}
	logger.Event(ctx, "invite_confirmed", "inviteID", invite.ID)
	return invite, nil
}

// MarkConverted closes the live invite of affiliateID to email once the
// invitee has signed up.
func (s *inviteService) MarkConverted(ctx context.Context, affiliateID int32, email string, userID int32, value *decimal.Decimal) (*domain.EmailReferral, error) {
	now := s.now()
	invite, err := s.inviteRepo.FindLive(ctx, affiliateID, normalizeEmail(email), now)
	if err != nil {
		return nil, notFound(err, "no open invite for %s", email)
	}

	invite.Status = domain.InviteConverted
	invite.ConvertedAt = &now
	invite.ConvertedUserID = &userID
	invite.ConversionValue = value
	if err := s.inviteRepo.Update(ctx, invite); err != nil {
		return nil, err
	}
	logger.Event(ctx, "invite_converted", "inviteID", invite.ID, "userID", userID)
	return invite, nil
}

func (s *inviteService) ListInvites(ctx context.Context, affiliateID int32) ([]domain.EmailReferral, error) {
	invites, err := s.inviteRepo.ListByAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if invites == nil {
		invites = []domain.EmailReferral{}
	}
	return invites, nil
}

func (s *inviteService) ExpireStale(ctx context.Context) (int64, error) {
	return s.inviteRepo.ExpireBefore(ctx, s.now())
}
