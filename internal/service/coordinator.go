package service

import (
	"context"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/repository"
)

type coordinatorService struct {
	userRepo    repository.UserRepository
	attachments AttachmentService
	commissions CommissionService
	tree        ReferralTreeService
}

func NewCoordinatorService(userRepo repository.UserRepository, attachments AttachmentService, commissions CommissionService, tree ReferralTreeService) CoordinatorService {
	return &coordinatorService{
		userRepo:    userRepo,
		attachments: attachments,
		commissions: commissions,
		tree:        tree,
	}
}

func (s *coordinatorService) load(ctx context.Context, coordinatorID int32) (*domain.User, error) {
	c, err := s.userRepo.GetByID(ctx, coordinatorID)
	if err != nil {
		return nil, notFound(err, "coordinator %d not found", coordinatorID)
	}
	if c.Role != domain.RoleCoordinator {
		return nil, domain.NotFoundError("coordinator %d not found", coordinatorID)
	}
	return c, nil
}

// GetNetwork annotates every assigned affiliate with its earnings and
// referral counts. Read only.
func (s *coordinatorService) GetNetwork(ctx context.Context, coordinatorID int32) (*domain.CoordinatorNetwork, error) {
	coordinator, err := s.load(ctx, coordinatorID)
	if err != nil {
		return nil, err
	}
	members, err := s.userRepo.ListByCoordinator(ctx, coordinatorID)
	if err != nil {
		return nil, err
	}

	network := &domain.CoordinatorNetwork{
		Coordinator: *coordinator,
		Affiliates:  make([]domain.AffiliateSummary, 0, len(members)),
	}
	for _, m := range members {
		earnings, err := s.commissions.EarningsSummary(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		referrals, err := s.tree.DescendantsOf(ctx, m.ID)
		if err != nil {
			return nil, err
		}

		network.Affiliates = append(network.Affiliates, domain.AffiliateSummary{
			User:      m,
			Earnings:  *earnings,
			Referrals: referrals.Totals,
		})
		network.Totals.Affiliates++
		if m.IsActive {
			network.Totals.ActiveAffiliates++
		}
		network.Totals.Earnings = network.Totals.Earnings.Add(earnings.Total)
		network.Totals.Referrals += referrals.Totals.Total
	}
	return network, nil
}

// ToggleCoordinatorStatus changes only the coordinator; assigned affiliates
// stay attached and keep their own status.
func (s *coordinatorService) ToggleCoordinatorStatus(ctx context.Context, coordinatorID int32, active bool) (*domain.User, error) {
	if _, err := s.load(ctx, coordinatorID); err != nil {
		return nil, err
	}
	user, err := s.attachments.SetUserStatus(ctx, coordinatorID, active)
	if err != nil {
		return nil, err
	}
	logger.Event(ctx, "coordinator_status_changed", "coordinatorID", coordinatorID, "active", active)
	return user, nil
}

func (s *coordinatorService) AssignAffiliates(ctx context.Context, coordinatorID int32, affiliateIDs []int32) (*domain.BulkAssignResult, error) {
	if len(affiliateIDs) == 0 {
		return nil, domain.ValidationError("no affiliate ids given")
	}
	return s.attachments.BulkAssign(ctx, coordinatorID, affiliateIDs)
}

func (s *coordinatorService) RegisterAffiliate(ctx context.Context, coordinatorID int32, name, email, password string) (*domain.User, error) {
	return s.attachments.RegisterAffiliateUnderCoordinator(ctx, coordinatorID, name, email, password)
}
