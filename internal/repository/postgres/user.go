package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/repository"
)

const userColumns = `id, name, email, password_hash, role, is_active, referral_code, referred_by_id, coordinator_id, created_at, updated_at`

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.ReferralCode,
		&u.ReferredByID, &u.CoordinatorID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	logger.EnterMethod("userRepository.Create", "email", u.Email, "role", u.Role)

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO users (name, email, password_hash, role, is_active, referral_code,
	          referred_by_id, coordinator_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`
	logger.DatabaseCall("INSERT", "users")
	err := r.db.QueryRowContext(ctx, query, u.Name, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.IsActive,
		u.ReferralCode, u.ReferredByID, u.CoordinatorID, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		err = translateError(err)
		logger.ExitMethodWithError("userRepository.Create", err, "email", u.Email)
		return err
	}
	u.UpdatedAt = u.CreatedAt

	logger.ExitMethod("userRepository.Create", "userID", u.ID)
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	return u, translateError(err)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	return u, translateError(err)
}

func (r *userRepository) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, code))
	return u, translateError(err)
}

func (r *userRepository) SetActive(ctx context.Context, id int32, active bool) error {
	query := `UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepository) SetReferrer(ctx context.Context, userID, referrerID int32) error {
	return r.compareAndSet(ctx, "referred_by_id", userID, referrerID)
}

func (r *userRepository) SetCoordinator(ctx context.Context, userID, coordinatorID int32) error {
	return r.compareAndSet(ctx, "coordinator_id", userID, coordinatorID)
}

// compareAndSet writes a write-once column only while it is still NULL. A
// zero row count is told apart from a missing user with a follow-up lookup.
func (r *userRepository) compareAndSet(ctx context.Context, column string, userID, value int32) error {
	logger.EnterMethod("userRepository.compareAndSet", "column", column, "userID", userID, "value", value)

	query := `UPDATE users SET ` + column + ` = $1, updated_at = NOW() WHERE id = $2 AND ` + column + ` IS NULL`
	logger.DatabaseCall("UPDATE", query)
	res, err := r.db.ExecContext(ctx, query, value, userID)
	if err != nil {
		err = translateError(err)
		logger.ExitMethodWithError("userRepository.compareAndSet", err, "userID", userID)
		return err
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err)
	if err != nil {
		return err
	}
	if n == 1 {
		logger.ExitMethod("userRepository.compareAndSet", "userID", userID)
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return translateError(err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrAlreadySet
}

func (r *userRepository) ListReferredBy(ctx context.Context, referrerIDs []int32) ([]domain.User, error) {
	if len(referrerIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE referred_by_id = ANY($1) ORDER BY created_at, id`
	return r.list(ctx, query, pq.Array(referrerIDs))
}

func (r *userRepository) ListByCoordinator(ctx context.Context, coordinatorID int32) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE coordinator_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, coordinatorID)
}

func (r *userRepository) list(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
