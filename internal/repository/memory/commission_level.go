package memory

import (
	"context"
	"sort"
	"time"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/repository"
)

type commissionLevelRepository struct {
	s *state
}

func (s *state) seedLevels() {
	now := time.Now().UTC()
	for _, l := range domain.DefaultCommissionLevels() {
		s.nextLevelID++
		l.ID = s.nextLevelID
		l.CreatedAt, l.UpdatedAt = now, now
		c := l
		s.levels[l.ID] = &c
	}
	s.version = 1
}

func (s *state) levelList() []domain.CommissionLevel {
	levels := make([]domain.CommissionLevel, 0, len(s.levels))
	for _, l := range s.levels {
		levels = append(levels, *l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })
	return levels
}

func (r *commissionLevelRepository) List(_ context.Context) ([]domain.CommissionLevel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.levelList(), nil
}

func (r *commissionLevelRepository) Snapshot(_ context.Context) (*domain.CommissionSchedule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return domain.NewCommissionSchedule(r.s.version, r.s.levelList(), time.Now().UTC()), nil
}

func (r *commissionLevelRepository) UpdateSchedule(_ context.Context, fn repository.ScheduleMutation) (*domain.CommissionSchedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	next, err := fn(r.s.levelList())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	kept := make(map[int32]*domain.CommissionLevel, len(next))
	for _, l := range next {
		c := l
		if c.ID == 0 {
			r.s.nextLevelID++
			c.ID = r.s.nextLevelID
			c.CreatedAt = now
		} else if old, ok := r.s.levels[c.ID]; ok {
			c.CreatedAt = old.CreatedAt
		} else {
			return nil, repository.ErrNotFound
		}
		c.UpdatedAt = now
		kept[c.ID] = &c
	}
	r.s.levels = kept
	r.s.version++

	return domain.NewCommissionSchedule(r.s.version, r.s.levelList(), now), nil
}
