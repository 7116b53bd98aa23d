package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"affiliate-network-backend/internal/repository"
)

type Store struct {
	db *sql.DB
	repository.UserRepository
	repository.CommissionLevelRepository
	repository.CommissionRepository
	repository.PayoutRepository
	repository.InviteRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                        db,
		UserRepository:            NewUserRepository(db),
		CommissionLevelRepository: NewCommissionLevelRepository(db),
		CommissionRepository:      NewCommissionRepository(db),
		PayoutRepository:          NewPayoutRepository(db),
		InviteRepository:          NewInviteRepository(db),
	}
}

// Ping checks the connection for the health endpoint
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back on any error
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return translateError(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return translateError(err)
	}
	return translateError(tx.Commit())
}

// translateError maps driver errors to repository sentinels
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505": // unique_violation
		switch pqErr.Constraint {
		case "users_email_key":
			return repository.ErrEmailTaken
		case "users_referral_code_key":
			return repository.ErrReferralCodeTaken
		}
		return repository.ErrDuplicate
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return repository.ErrConcurrentUpdate
	}
	return err
}
