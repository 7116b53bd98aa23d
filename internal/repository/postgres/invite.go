package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/repository"
)

const inviteColumns = `id, affiliate_id, email, name, phone, status, token, invited_at, expires_at, confirmed_at, converted_at, converted_user_id, conversion_value`

type inviteRepository struct {
	db *sql.DB
}

func NewInviteRepository(db *sql.DB) repository.InviteRepository {
	return &inviteRepository{db: db}
}

func scanInvite(row rowScanner) (*domain.EmailReferral, error) {
	var inv domain.EmailReferral
	err := row.Scan(&inv.ID, &inv.AffiliateID, &inv.Email, &inv.Name, &inv.Phone, &inv.Status, &inv.Token, &inv.InvitedAt,
		&inv.ExpiresAt, &inv.ConfirmedAt, &inv.ConvertedAt, &inv.ConvertedUserID, &inv.ConversionValue)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create relies on the partial unique index over open invites; a concurrent
// duplicate fails with a unique violation and surfaces as ErrDuplicate.
func (r *inviteRepository) Create(ctx context.Context, inv *domain.EmailReferral, now time.Time) error {
	logger.EnterMethod("inviteRepository.Create", "affiliateID", inv.AffiliateID)

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE email_referrals SET status = 'expired'
			 WHERE affiliate_id = $1 AND LOWER(email) = LOWER($2) AND status IN ('invited', 'confirmed') AND expires_at <= $3`,
			inv.AffiliateID, inv.Email, now)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO email_referrals (affiliate_id, email, name, phone, status, token, invited_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			inv.AffiliateID, strings.ToLower(inv.Email), inv.Name, inv.Phone, inv.Status, inv.Token, inv.InvitedAt, inv.ExpiresAt,
		).Scan(&inv.ID)
	})
	if err != nil {
		logger.ExitMethodWithError("inviteRepository.Create", err, "affiliateID", inv.AffiliateID)
		return err
	}

	logger.ExitMethod("inviteRepository.Create", "inviteID", inv.ID)
	return nil
}

func (r *inviteRepository) GetByID(ctx context.Context, id int32) (*domain.EmailReferral, error) {
	inv, err := scanInvite(r.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM email_referrals WHERE id = $1`, id))
	return inv, translateError(err)
}

func (r *inviteRepository) GetByToken(ctx context.Context, token string) (*domain.EmailReferral, error) {
	inv, err := scanInvite(r.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM email_referrals WHERE token = $1`, token))
	return inv, translateError(err)
}

func (r *inviteRepository) FindLive(ctx context.Context, affiliateID int32, email string, now time.Time) (*domain.EmailReferral, error) {
	inv, err := scanInvite(r.db.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM email_referrals
		 WHERE affiliate_id = $1 AND LOWER(email) = LOWER($2) AND status IN ('invited', 'confirmed') AND expires_at > $3`,
		affiliateID, email, now))
	return inv, translateError(err)
}

func (r *inviteRepository) ListByAffiliate(ctx context.Context, affiliateID int32) ([]domain.EmailReferral, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+inviteColumns+` FROM email_referrals WHERE affiliate_id = $1 ORDER BY invited_at DESC, id DESC`, affiliateID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var invites []domain.EmailReferral
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, *inv)
	}
	return invites, rows.Err()
}

func (r *inviteRepository) Update(ctx context.Context, inv *domain.EmailReferral) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE email_referrals SET status = $1, confirmed_at = $2, converted_at = $3, converted_user_id = $4, conversion_value = $5
		 WHERE id = $6`,
		inv.Status, inv.ConfirmedAt, inv.ConvertedAt, inv.ConvertedUserID, inv.ConversionValue, inv.ID)
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

func (r *inviteRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	logger.DatabaseCall("UPDATE", "email_referrals expire", "now", now)
	res, err := r.db.ExecContext(ctx,
		`UPDATE email_referrals SET status = 'expired' WHERE status IN ('invited', 'confirmed') AND expires_at <= $1`, now)
	if err != nil {
		return 0, translateError(err)
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err)
	return n, err
}
