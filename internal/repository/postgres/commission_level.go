package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/repository"
)

const levelColumns = `id, level, percentage, description, is_active, min_referrals, max_referrals, created_at, updated_at`

type commissionLevelRepository struct {
	db *sql.DB
}

func NewCommissionLevelRepository(db *sql.DB) repository.CommissionLevelRepository {
	return &commissionLevelRepository{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listLevels(ctx context.Context, q querier) ([]domain.CommissionLevel, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+levelColumns+` FROM commission_levels ORDER BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []domain.CommissionLevel
	for rows.Next() {
		var l domain.CommissionLevel
		if err := rows.Scan(&l.ID, &l.Level, &l.Percentage, &l.Description, &l.IsActive,
			&l.MinReferrals, &l.MaxReferrals, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

func (r *commissionLevelRepository) List(ctx context.Context) ([]domain.CommissionLevel, error) {
	levels, err := listLevels(ctx, r.db)
	return levels, translateError(err)
}

// Snapshot reads version and levels from one repeatable-read transaction so
// the pair is consistent.
func (r *commissionLevelRepository) Snapshot(ctx context.Context) (*domain.CommissionSchedule, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, translateError(err)
	}
	defer tx.Rollback()

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM commission_schedule WHERE id = 1`).Scan(&version); err != nil {
		return nil, translateError(err)
	}
	levels, err := listLevels(ctx, tx)
	if err != nil {
		return nil, translateError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return domain.NewCommissionSchedule(version, levels, time.Now().UTC()), nil
}

func (r *commissionLevelRepository) UpdateSchedule(ctx context.Context, fn repository.ScheduleMutation) (*domain.CommissionSchedule, error) {
	logger.EnterMethod("commissionLevelRepository.UpdateSchedule")

	var schedule *domain.CommissionSchedule
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var version int64
		if err := tx.QueryRowContext(ctx, `SELECT version FROM commission_schedule WHERE id = 1 FOR UPDATE`).Scan(&version); err != nil {
			return err
		}

		current, err := listLevels(ctx, tx)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}

		existing := make(map[int32]bool, len(current))
		for _, l := range current {
			existing[l.ID] = true
		}

		kept := make(map[int32]bool, len(next))
		for _, l := range next {
			if l.ID == 0 {
				continue
			}
			if !existing[l.ID] {
				return repository.ErrNotFound
			}
			kept[l.ID] = true
		}

		var removed []int32
		for id := range existing {
			if !kept[id] {
				removed = append(removed, id)
			}
		}
		if len(removed) > 0 {
			logger.DatabaseCall("DELETE", "commission_levels", "count", len(removed))
			if _, err := tx.ExecContext(ctx, `DELETE FROM commission_levels WHERE id = ANY($1)`, pq.Array(removed)); err != nil {
				return err
			}
		}

		for _, l := range next {
			if l.ID == 0 {
				_, err = tx.ExecContext(ctx,
					`INSERT INTO commission_levels (level, percentage, description, is_active, min_referrals, max_referrals, created_at, updated_at)
					 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
					l.Level, l.Percentage, l.Description, l.IsActive, l.MinReferrals, l.MaxReferrals)
			} else {
				_, err = tx.ExecContext(ctx,
					`UPDATE commission_levels SET level = $1, percentage = $2, description = $3, is_active = $4,
					 min_referrals = $5, max_referrals = $6, updated_at = NOW() WHERE id = $7`,
					l.Level, l.Percentage, l.Description, l.IsActive, l.MinReferrals, l.MaxReferrals, l.ID)
			}
			if err != nil {
				return err
			}
		}

		if err := tx.QueryRowContext(ctx,
			`UPDATE commission_schedule SET version = version + 1, updated_at = NOW() WHERE id = 1 RETURNING version`,
		).Scan(&version); err != nil {
			return err
		}

		levels, err := listLevels(ctx, tx)
		if err != nil {
			return err
		}
		schedule = domain.NewCommissionSchedule(version, levels, time.Now().UTC())
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("commissionLevelRepository.UpdateSchedule", err)
		return nil, err
	}

	logger.ExitMethod("commissionLevelRepository.UpdateSchedule", "version", schedule.Version)
	return schedule, nil
}
