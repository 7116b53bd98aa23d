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

const recordColumns = `id, affiliate_id, transaction_id, source_user_id, level, base_amount, rate, amount, status, payout_id, created_at, approved_at, paid_at, cancelled_at`

type commissionRepository struct {
	db *sql.DB
}

func NewCommissionRepository(db *sql.DB) repository.CommissionRepository {
	return &commissionRepository{db: db}
}

func scanRecords(rows *sql.Rows) ([]domain.CommissionRecord, error) {
	defer rows.Close()

	var records []domain.CommissionRecord
	for rows.Next() {
		var c domain.CommissionRecord
		if err := rows.Scan(&c.ID, &c.AffiliateID, &c.TransactionID, &c.SourceUserID, &c.Level, &c.BaseAmount,
			&c.Rate, &c.Amount, &c.Status, &c.PayoutID, &c.CreatedAt, &c.ApprovedAt, &c.PaidAt, &c.CancelledAt); err != nil {
			return nil, err
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

func (r *commissionRepository) RecordTransaction(ctx context.Context, txn *domain.Transaction, records []domain.CommissionRecord) ([]domain.CommissionRecord, error) {
	logger.EnterMethod("commissionRepository.RecordTransaction", "transactionID", txn.ID, "records", len(records))

	created := make([]domain.CommissionRecord, 0, len(records))
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		logger.DatabaseCall("INSERT", "transactions", "transactionID", txn.ID)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (id, originating_user_id, amount, schedule_version, recorded_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			txn.ID, txn.OriginatingUserID, txn.Amount, txn.ScheduleVersion, txn.RecordedAt)
		if err != nil {
			return err
		}

		for _, rec := range records {
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = txn.RecordedAt
			}
			err := tx.QueryRowContext(ctx,
				`INSERT INTO commission_records (affiliate_id, transaction_id, source_user_id, level, base_amount, rate, amount, status, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
				rec.AffiliateID, rec.TransactionID, rec.SourceUserID, rec.Level, rec.BaseAmount, rec.Rate, rec.Amount,
				rec.Status, rec.CreatedAt).Scan(&rec.ID)
			if err != nil {
				return err
			}
			created = append(created, rec)
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("commissionRepository.RecordTransaction", err, "transactionID", txn.ID)
		return nil, err
	}

	logger.ExitMethod("commissionRepository.RecordTransaction", "transactionID", txn.ID, "created", len(created))
	return created, nil
}

func (r *commissionRepository) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.QueryRowContext(ctx,
		`SELECT id, originating_user_id, amount, schedule_version, recorded_at, cancelled_at FROM transactions WHERE id = $1`, id,
	).Scan(&t.ID, &t.OriginatingUserID, &t.Amount, &t.ScheduleVersion, &t.RecordedAt, &t.CancelledAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &t, nil
}

func (r *commissionRepository) CancelTransaction(ctx context.Context, id string, at time.Time) (*domain.CancellationResult, error) {
	logger.EnterMethod("commissionRepository.CancelTransaction", "transactionID", id)

	result := &domain.CancellationResult{TransactionID: id}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE transactions SET cancelled_at = COALESCE(cancelled_at, $1) WHERE id = $2`, at, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return repository.ErrNotFound
		}

		// Same lock Process takes, so no payout interleaves with the balance read.
		logger.DatabaseCall("SELECT FOR UPDATE", "users affected by cancellation", "transactionID", id)
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM users WHERE id IN (
			   SELECT affiliate_id FROM commission_records WHERE transaction_id = $1 AND status IN ('pending', 'approved'))
			 ORDER BY id FOR UPDATE`, id)
		if err != nil {
			return err
		}
		affiliateIDs, err := scanIDs(rows)
		if err != nil {
			return err
		}
		before := make(map[int32]domain.Balance, len(affiliateIDs))
		for _, affiliateID := range affiliateIDs {
			b, _, err := loadBalance(ctx, tx, affiliateID)
			if err != nil {
				return err
			}
			before[affiliateID] = b
		}

		rows, err = tx.QueryContext(ctx,
			`UPDATE commission_records SET status = 'cancelled', cancelled_at = $1
			 WHERE transaction_id = $2 AND status IN ('pending', 'approved')
			 RETURNING `+recordColumns, at, id)
		if err != nil {
			return err
		}
		if result.Cancelled, err = scanRecords(rows); err != nil {
			return err
		}
		result.UncoveredPayouts = domain.UncoveredByCancellation(before, result.Cancelled)

		rows, err = tx.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM commission_records WHERE transaction_id = $1 AND status = 'paid' ORDER BY level`, id)
		if err != nil {
			return err
		}
		result.Unreversed, err = scanRecords(rows)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("commissionRepository.CancelTransaction", err, "transactionID", id)
		return nil, err
	}

	logger.ExitMethod("commissionRepository.CancelTransaction", "transactionID", id,
		"cancelled", len(result.Cancelled), "unreversed", len(result.Unreversed), "uncovered", len(result.UncoveredPayouts))
	return result, nil
}

func scanIDs(rows *sql.Rows) ([]int32, error) {
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *commissionRepository) ListByAffiliate(ctx context.Context, affiliateID int32, status domain.CommissionStatus) ([]domain.CommissionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM commission_records WHERE affiliate_id = $1`
	args := []any{affiliateID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	return scanRecords(rows)
}

func (r *commissionRepository) Approve(ctx context.Context, ids []int32, at time.Time) ([]domain.CommissionRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`UPDATE commission_records SET status = 'approved', approved_at = $1
		 WHERE id = ANY($2) AND status = 'pending'
		 RETURNING `+recordColumns, at, pq.Array(ids))
	if err != nil {
		return nil, translateError(err)
	}
	return scanRecords(rows)
}

func (r *commissionRepository) ApproveCreatedBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	logger.DatabaseCall("UPDATE", "commission_records auto-approve", "cutoff", cutoff)
	res, err := r.db.ExecContext(ctx,
		`UPDATE commission_records SET status = 'approved', approved_at = $1 WHERE status = 'pending' AND created_at < $2`,
		at, cutoff)
	if err != nil {
		return 0, translateError(err)
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err)
	return n, err
}
