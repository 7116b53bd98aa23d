package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/repository"
)

type userRepository struct {
	s *state
}

func (r *userRepository) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, u := range r.s.users {
		if strings.ToLower(u.Email) == email {
			return repository.ErrEmailTaken
		}
		if u.ReferralCode == user.ReferralCode {
			return repository.ErrReferralCodeTaken
		}
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	r.s.nextUserID++
	user.ID = r.s.nextUserID
	c := *user
	r.s.users[user.ID] = &c
	return nil
}

func (r *userRepository) GetByID(_ context.Context, id int32) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, u := range r.s.users {
		if strings.ToLower(u.Email) == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepository) GetByReferralCode(_ context.Context, code string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if u.ReferralCode == code {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepository) SetActive(_ context.Context, id int32, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *userRepository) SetReferrer(_ context.Context, userID, referrerID int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.ReferredByID != nil {
		return repository.ErrAlreadySet
	}
	id := referrerID
	u.ReferredByID = &id
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *userRepository) SetCoordinator(_ context.Context, userID, coordinatorID int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.CoordinatorID != nil {
		return repository.ErrAlreadySet
	}
	id := coordinatorID
	u.CoordinatorID = &id
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *userRepository) ListReferredBy(_ context.Context, referrerIDs []int32) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	wanted := make(map[int32]struct{}, len(referrerIDs))
	for _, id := range referrerIDs {
		wanted[id] = struct{}{}
	}

	var result []domain.User
	for _, u := range r.s.users {
		if u.ReferredByID == nil {
			continue
		}
		if _, ok := wanted[*u.ReferredByID]; ok {
			result = append(result, *u)
		}
	}
	sortUsers(result)
	return result, nil
}

func (r *userRepository) ListByCoordinator(_ context.Context, coordinatorID int32) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.User
	for _, u := range r.s.users {
		if u.CoordinatorID != nil && *u.CoordinatorID == coordinatorID {
			result = append(result, *u)
		}
	}
	sortUsers(result)
	return result, nil
}

func sortUsers(users []domain.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}
