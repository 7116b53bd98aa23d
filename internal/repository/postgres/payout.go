package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/repository"
)

type payoutRepository struct {
	db *sql.DB
}

func NewPayoutRepository(db *sql.DB) repository.PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) CreatePaymentMethod(ctx context.Context, pm *domain.PaymentMethod) error {
	if pm.CreatedAt.IsZero() {
		pm.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO payment_methods (user_id, type, label, details, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		pm.UserID, pm.Type, pm.Label, pm.Details, pm.CreatedAt).Scan(&pm.ID)
	return translateError(err)
}

func (r *payoutRepository) ListPaymentMethods(ctx context.Context, userID int32) ([]domain.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, label, details, created_at FROM payment_methods WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		var pm domain.PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.UserID, &pm.Type, &pm.Label, &pm.Details, &pm.CreatedAt); err != nil {
			return nil, err
		}
		methods = append(methods, pm)
	}
	return methods, rows.Err()
}

type queryRower interface {
	querier
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loadBalance reads open records and ledger totals for one affiliate.
func loadBalance(ctx context.Context, q queryRower, affiliateID int32) (domain.Balance, []domain.CommissionRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM commission_records
		 WHERE affiliate_id = $1 AND status IN ('pending', 'approved') ORDER BY created_at, id`, affiliateID)
	if err != nil {
		return domain.Balance{}, nil, err
	}
	open, err := scanRecords(rows)
	if err != nil {
		return domain.Balance{}, nil, err
	}

	var paidOut, settled decimal.Decimal
	err = q.QueryRowContext(ctx,
		`SELECT (SELECT COALESCE(SUM(amount), 0) FROM payouts WHERE affiliate_id = $1),
		        (SELECT COALESCE(SUM(amount), 0) FROM commission_records WHERE affiliate_id = $1 AND status = 'paid')`,
		affiliateID).Scan(&paidOut, &settled)
	if err != nil {
		return domain.Balance{}, nil, err
	}
	return domain.ComputeBalance(affiliateID, open, paidOut, settled), open, nil
}

func (r *payoutRepository) Balance(ctx context.Context, affiliateID int32) (*domain.Balance, error) {
	b, _, err := loadBalance(ctx, r.db, affiliateID)
	if err != nil {
		return nil, translateError(err)
	}
	return &b, nil
}

func (r *payoutRepository) ListByAffiliate(ctx context.Context, affiliateID int32) ([]domain.PayoutRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.affiliate_id, p.amount, p.payment_method_id, p.processed_at,
		        COALESCE(ARRAY_AGG(c.id ORDER BY c.created_at, c.id) FILTER (WHERE c.id IS NOT NULL), '{}')
		 FROM payouts p LEFT JOIN commission_records c ON c.payout_id = p.id
		 WHERE p.affiliate_id = $1
		 GROUP BY p.id ORDER BY p.id`, affiliateID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var payouts []domain.PayoutRequest
	for rows.Next() {
		var p domain.PayoutRequest
		var settled pq.Int64Array
		if err := rows.Scan(&p.ID, &p.AffiliateID, &p.Amount, &p.PaymentMethodID, &p.ProcessedAt, &settled); err != nil {
			return nil, err
		}
		for _, id := range settled {
			p.SettledCommissionIDs = append(p.SettledCommissionIDs, int32(id))
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// Process locks the affiliate row so concurrent payouts for the same
// affiliate run one after another against a fresh balance.
func (r *payoutRepository) Process(ctx context.Context, p *domain.PayoutRequest, authorize repository.PayoutAuthorizer) error {
	logger.EnterMethod("payoutRepository.Process", "affiliateID", p.AffiliateID, "amount", p.Amount.String())

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var locked int32
		logger.DatabaseCall("SELECT FOR UPDATE", "users", "affiliateID", p.AffiliateID)
		if err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, p.AffiliateID).Scan(&locked); err != nil {
			return err
		}

		var owner int32
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM payment_methods WHERE id = $1`, p.PaymentMethodID).Scan(&owner)
		if err == sql.ErrNoRows || (err == nil && owner != p.AffiliateID) {
			return repository.ErrPaymentMethodNotFound
		}
		if err != nil {
			return err
		}

		balance, open, err := loadBalance(ctx, tx, p.AffiliateID)
		if err != nil {
			return err
		}
		if err := authorize(balance); err != nil {
			return err
		}

		if p.ProcessedAt.IsZero() {
			p.ProcessedAt = time.Now().UTC()
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO payouts (affiliate_id, amount, payment_method_id, processed_at) VALUES ($1, $2, $3, $4) RETURNING id`,
			p.AffiliateID, p.Amount, p.PaymentMethodID, p.ProcessedAt).Scan(&p.ID)
		if err != nil {
			return err
		}

		settled, _ := domain.AllocatePayout(open, balance.UnallocatedCredit.Add(p.Amount))
		p.SettledCommissionIDs = settled
		if len(settled) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE commission_records SET status = 'paid', paid_at = $1, payout_id = $2 WHERE id = ANY($3)`,
			p.ProcessedAt, p.ID, pq.Array(settled))
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("payoutRepository.Process", err, "affiliateID", p.AffiliateID)
		return err
	}

	logger.ExitMethod("payoutRepository.Process", "payoutID", p.ID, "settled", len(p.SettledCommissionIDs))
	return nil
}
