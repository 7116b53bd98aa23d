package service

import (
	"context"
	"errors"

	"affiliate-network-backend/internal/cache"
	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/metrics"
	"affiliate-network-backend/internal/repository"
)

// ScheduleCache is the optional shared snapshot cache in front of the store.
type ScheduleCache interface {
	Get(ctx context.Context) (*domain.CommissionSchedule, error)
	Set(ctx context.Context, schedule *domain.CommissionSchedule) error
	Invalidate(ctx context.Context) error
}

type commissionLevelService struct {
	levelRepo repository.CommissionLevelRepository
	cache     ScheduleCache
	bounds    domain.PercentageBounds
	metrics   *metrics.Metrics
}

// NewCommissionLevelService builds the registry. cache and m may be nil.
func NewCommissionLevelService(levelRepo repository.CommissionLevelRepository, cache ScheduleCache, bounds domain.PercentageBounds, m *metrics.Metrics) CommissionLevelService {
	return &commissionLevelService{
		levelRepo: levelRepo,
		cache:     cache,
		bounds:    bounds,
		metrics:   m,
	}
}

func (s *commissionLevelService) GetActiveLevels(ctx context.Context) ([]domain.CommissionLevel, error) {
	schedule, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return schedule.Levels, nil
}

func (s *commissionLevelService) ListLevels(ctx context.Context) ([]domain.CommissionLevel, error) {
	return s.levelRepo.List(ctx)
}

func (s *commissionLevelService) Snapshot(ctx context.Context) (*domain.CommissionSchedule, error) {
	if s.cache != nil {
		schedule, err := s.cache.Get(ctx)
		if err == nil {
			s.metrics.RecordCacheLookup(true)
			return schedule, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logger.WarnContext(ctx, "Schedule cache unavailable, reading store", "error", err)
		}
		s.metrics.RecordCacheLookup(false)
	}

	schedule, err := s.levelRepo.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, schedule); err != nil {
			logger.WarnContext(ctx, "Failed to cache schedule", "version", schedule.Version, "error", err)
		}
	}
	return schedule, nil
}

func (s *commissionLevelService) validate(in LevelInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if err := s.bounds.Check(in.Percentage); err != nil {
		return err
	}
	if !in.Percentage.Equal(in.Percentage.Round(percentageScale)) {
		return domain.ValidationError("percentage allows at most %d decimal places", percentageScale)
	}
	if in.MaxReferrals != nil && *in.MaxReferrals < in.MinReferrals {
		return domain.ValidationError("max_referrals must not be below min_referrals")
	}
	return nil
}

func requireActiveLevel(levels []domain.CommissionLevel) error {
	for _, l := range levels {
		if l.IsActive {
			return nil
		}
	}
	return domain.ConstraintError("at least one commission level must remain active")
}

func findLevel(levels []domain.CommissionLevel, id int32) int {
	for i, l := range levels {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// update runs fn as one locked read-modify-write of the schedule and
// refreshes the cache with the new version.
func (s *commissionLevelService) update(ctx context.Context, op string, fn repository.ScheduleMutation) (*domain.CommissionSchedule, error) {
	schedule, err := s.levelRepo.UpdateSchedule(ctx, func(levels []domain.CommissionLevel) ([]domain.CommissionLevel, error) {
		next, err := fn(levels)
		if err != nil {
			return nil, err
		}
		if err := requireActiveLevel(next); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return nil, notFound(err, "commission level not found")
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			logger.WarnContext(ctx, "Failed to invalidate schedule cache", "error", err)
		} else if err := s.cache.Set(ctx, schedule); err != nil {
			logger.WarnContext(ctx, "Failed to cache schedule", "error", err)
		}
	}
	logger.Event(ctx, "commission_schedule_updated", "operation", op, "version", schedule.Version)
	return schedule, nil
}

// levelByNumber reloads a level after a write so callers see stored ids and
// timestamps, inactive levels included.
func (s *commissionLevelService) levelByNumber(ctx context.Context, level int) (*domain.CommissionLevel, error) {
	levels, err := s.levelRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range levels {
		if levels[i].Level == level {
			return &levels[i], nil
		}
	}
	return nil, domain.NotFoundError("commission level %d not found", level)
}

func (s *commissionLevelService) UpsertLevel(ctx context.Context, in LevelInput) (*domain.CommissionLevel, error) {
	logger.EnterMethod("commissionLevelService.UpsertLevel", "id", in.ID, "level", in.Level)

	if err := s.validate(in); err != nil {
		logger.ExitMethodWithError("commissionLevelService.UpsertLevel", err)
		return nil, err
	}

	_, err := s.update(ctx, "upsert", func(levels []domain.CommissionLevel) ([]domain.CommissionLevel, error) {
		for _, l := range levels {
			if l.Level == in.Level && l.ID != in.ID {
				return nil, domain.ValidationError("commission level %d already exists", in.Level)
			}
		}

		target := domain.CommissionLevel{}
		idx := -1
		if in.ID != 0 {
			if idx = findLevel(levels, in.ID); idx < 0 {
				return nil, domain.NotFoundError("commission level %d not found", in.ID)
			}
			target = levels[idx]
		}
		target.Level = in.Level
		target.Percentage = in.Percentage
		target.Description = in.Description
		target.IsActive = in.IsActive
		target.MinReferrals = in.MinReferrals
		target.MaxReferrals = in.MaxReferrals

		if idx < 0 {
			return append(levels, target), nil
		}
		levels[idx] = target
		return levels, nil
	})
	if err != nil {
		logger.ExitMethodWithError("commissionLevelService.UpsertLevel", err, "level", in.Level)
		return nil, err
	}

	level, err := s.levelByNumber(ctx, in.Level)
	if err != nil {
		return nil, err
	}
	logger.ExitMethod("commissionLevelService.UpsertLevel", "id", level.ID)
	return level, nil
}

func (s *commissionLevelService) setActive(ctx context.Context, levelID int32, active bool) (*domain.CommissionLevel, error) {
	var number int
	_, err := s.update(ctx, "set_active", func(levels []domain.CommissionLevel) ([]domain.CommissionLevel, error) {
		idx := findLevel(levels, levelID)
		if idx < 0 {
			return nil, domain.NotFoundError("commission level %d not found", levelID)
		}
		levels[idx].IsActive = active
		number = levels[idx].Level
		return levels, nil
	})
	if err != nil {
		return nil, err
	}
	return s.levelByNumber(ctx, number)
}

func (s *commissionLevelService) Deactivate(ctx context.Context, levelID int32) (*domain.CommissionLevel, error) {
	return s.setActive(ctx, levelID, false)
}

func (s *commissionLevelService) Activate(ctx context.Context, levelID int32) (*domain.CommissionLevel, error) {
	return s.setActive(ctx, levelID, true)
}

func (s *commissionLevelService) Delete(ctx context.Context, levelID int32) error {
	_, err := s.update(ctx, "delete", func(levels []domain.CommissionLevel) ([]domain.CommissionLevel, error) {
		idx := findLevel(levels, levelID)
		if idx < 0 {
			return nil, domain.NotFoundError("commission level %d not found", levelID)
		}
		return append(levels[:idx], levels[idx+1:]...), nil
	})
	return err
}

func (s *commissionLevelService) ResetToDefaults(ctx context.Context) ([]domain.CommissionLevel, error) {
	schedule, err := s.update(ctx, "reset", func(levels []domain.CommissionLevel) ([]domain.CommissionLevel, error) {
		defaults := domain.DefaultCommissionLevels()
		// Reuse rows that already carry a default level number.
		for i := range defaults {
			for _, l := range levels {
				if l.Level == defaults[i].Level {
					defaults[i].ID = l.ID
					defaults[i].CreatedAt = l.CreatedAt
				}
			}
		}
		return defaults, nil
	})
	if err != nil {
		return nil, err
	}
	return schedule.Levels, nil
}
