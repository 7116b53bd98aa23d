package service

import (
	"context"
	"errors"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/repository"
)

// networkDepth is how many generations DescendantsOf reports.
const networkDepth = 3

type referralTreeService struct {
	userRepo repository.UserRepository
}

func NewReferralTreeService(userRepo repository.UserRepository) ReferralTreeService {
	return &referralTreeService{userRepo: userRepo}
}

// AncestorsOf walks referrer pointers upwards, nearest first. The walk stops
// at maxDepth, at a missing parent, or when a user repeats.
func (s *referralTreeService) AncestorsOf(ctx context.Context, userID int32, maxDepth int) ([]domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user %d not found", userID)
	}

	visited := map[int32]bool{user.ID: true}
	ancestors := make([]domain.User, 0, maxDepth)
	for current := user; len(ancestors) < maxDepth && current.ReferredByID != nil; {
		parentID := *current.ReferredByID
		if visited[parentID] {
			logger.WarnContext(ctx, "Referral cycle detected, truncating walk", "userID", userID, "repeatedID", parentID)
			break
		}
		parent, err := s.userRepo.GetByID(ctx, parentID)
		if errors.Is(err, repository.ErrNotFound) {
			logger.WarnContext(ctx, "Dangling referrer", "userID", current.ID, "referrerID", parentID)
			break
		}
		if err != nil {
			return nil, err
		}
		visited[parentID] = true
		ancestors = append(ancestors, *parent)
		current = parent
	}
	return ancestors, nil
}

// DescendantsOf loads one generation per query.
func (s *referralTreeService) DescendantsOf(ctx context.Context, userID int32) (*domain.ReferralNetwork, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, notFound(err, "user %d not found", userID)
	}

	network := &domain.ReferralNetwork{
		UserID: userID,
		Level1: []domain.User{},
		Level2: []domain.User{},
		Level3: []domain.User{},
	}
	seen := map[int32]bool{userID: true}
	frontier := []int32{userID}
	for depth := 1; depth <= networkDepth && len(frontier) > 0; depth++ {
		children, err := s.userRepo.ListReferredBy(ctx, frontier)
		if err != nil {
			return nil, err
		}

		generation := make([]domain.User, 0, len(children))
		frontier = frontier[:0]
		for _, c := range children {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			generation = append(generation, c)
			frontier = append(frontier, c.ID)
		}

		switch depth {
		case 1:
			network.Level1 = generation
		case 2:
			network.Level2 = generation
		case 3:
			network.Level3 = generation
		}
	}
	network.ComputeTotals()
	return network, nil
}
