package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/metrics"
	"affiliate-network-backend/internal/repository"
)

type commissionService struct {
	commissionRepo repository.CommissionRepository
	userRepo       repository.UserRepository
	levels         CommissionLevelService
	tree           ReferralTreeService
	notifier       Notifier
	maxLevels      int
	metrics        *metrics.Metrics
	now            Clock
}

func NewCommissionService(
	commissionRepo repository.CommissionRepository,
	userRepo repository.UserRepository,
	levels CommissionLevelService,
	tree ReferralTreeService,
	notifier Notifier,
	maxLevels int,
	m *metrics.Metrics,
) CommissionService {
	return &commissionService{
		commissionRepo: commissionRepo,
		userRepo:       userRepo,
		levels:         levels,
		tree:           tree,
		notifier:       notifier,
		maxLevels:      maxLevels,
		metrics:        m,
		now:            utcNow,
	}
}

// RecordCommissionsForTransaction computes every level from one schedule
// snapshot and stores the transaction with all of its records atomically.
func (s *commissionService) RecordCommissionsForTransaction(ctx context.Context, transactionID string, originatingUserID int32, amount decimal.Decimal) ([]domain.CommissionRecord, error) {
	logger.EnterMethod("commissionService.RecordCommissionsForTransaction", "transactionID", transactionID, "userID", originatingUserID)

	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, domain.ValidationError("transaction id is required")
	}
	if !amount.IsPositive() {
		return nil, domain.ValidationError("transaction amount must be positive")
	}
	if !amount.Equal(domain.RoundMoney(amount)) {
		return nil, domain.ValidationError("transaction amount has more than %d decimal places", domain.MoneyScale)
	}

	schedule, err := s.levels.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ancestors, err := s.tree.AncestorsOf(ctx, originatingUserID, s.maxLevels)
	if err != nil {
		return nil, err
	}

	now := s.now()
	records := make([]domain.CommissionRecord, 0, len(ancestors))
	for i, ancestor := range ancestors {
		depth := i + 1
		level, ok := schedule.Level(depth)
		if !ok {
			continue
		}
		commission := domain.CommissionAmount(amount, level.Percentage)
		if commission.IsZero() {
			continue
		}
		records = append(records, domain.CommissionRecord{
			AffiliateID:   ancestor.ID,
			TransactionID: transactionID,
			SourceUserID:  originatingUserID,
			Level:         depth,
			BaseAmount:    amount,
			Rate:          level.Percentage,
			Amount:        commission,
			Status:        domain.CommissionPending,
			CreatedAt:     now,
		})
	}

	txn := &domain.Transaction{
		ID:                transactionID,
		OriginatingUserID: originatingUserID,
		Amount:            amount,
		ScheduleVersion:   schedule.Version,
		RecordedAt:        now,
	}
	created, err := s.commissionRepo.RecordTransaction(ctx, txn, records)
	if errors.Is(err, repository.ErrDuplicate) {
		s.metrics.RecordTransaction("duplicate")
		err = domain.ConflictError("transaction %s was already recorded", transactionID)
	}
	if err != nil {
		logger.ExitMethodWithError("commissionService.RecordCommissionsForTransaction", err, "transactionID", transactionID)
		return nil, err
	}

	s.metrics.RecordTransaction("recorded")
	for i := range created {
		s.metrics.RecordCommission(created[i].Level, created[i].Amount)
		s.notifyEarned(ctx, ancestors[created[i].Level-1], created[i])
	}

	logger.Event(ctx, "commissions_recorded", "transactionID", transactionID,
		"scheduleVersion", schedule.Version, "records", len(created))
	logger.ExitMethod("commissionService.RecordCommissionsForTransaction", "records", len(created))
	return created, nil
}

func (s *commissionService) notifyEarned(ctx context.Context, affiliate domain.User, record domain.CommissionRecord) {
	if s.notifier == nil {
		return
	}
	dispatch(ctx, "commission_earned", func(ctx context.Context) error {
		return s.notifier.SendCommissionEarned(ctx, &affiliate, &record)
	})
}

// CancelTransaction cancels open records. Paid records stay paid and are
// returned for reconciliation, as is payout credit the cancelled records were
// still backing.
func (s *commissionService) CancelTransaction(ctx context.Context, transactionID string) (*domain.CancellationResult, error) {
	logger.EnterMethod("commissionService.CancelTransaction", "transactionID", transactionID)

	result, err := s.commissionRepo.CancelTransaction(ctx, strings.TrimSpace(transactionID), s.now())
	if err != nil {
		err = notFound(err, "transaction %s not found", transactionID)
		logger.ExitMethodWithError("commissionService.CancelTransaction", err, "transactionID", transactionID)
		return nil, err
	}

	result.TransactionID = transactionID
	result.Cancelled = nonNilRecords(result.Cancelled)
	result.Unreversed = nonNilRecords(result.Unreversed)
	if result.UncoveredPayouts == nil {
		result.UncoveredPayouts = []domain.UncoveredPayout{}
	}
	result.ReconciliationRequired = len(result.Unreversed) > 0 || len(result.UncoveredPayouts) > 0

	s.metrics.RecordTransaction("cancelled")
	if len(result.Unreversed) > 0 {
		logger.WarnContext(ctx, "Cancelled transaction has paid commissions that were not reversed",
			"transactionID", transactionID, "paidRecords", len(result.Unreversed))
	}
	for _, u := range result.UncoveredPayouts {
		logger.WarnContext(ctx, "Cancelled transaction leaves paid-out credit uncovered",
			"transactionID", transactionID, "affiliateID", u.AffiliateID, "amount", u.Amount.String())
	}

	logger.ExitMethod("commissionService.CancelTransaction", "cancelled", len(result.Cancelled),
		"unreversed", len(result.Unreversed), "uncovered", len(result.UncoveredPayouts))
	return result, nil
}

func (s *commissionService) ApproveCommissions(ctx context.Context, ids []int32) ([]domain.CommissionRecord, error) {
	if len(ids) == 0 {
		return nil, domain.ValidationError("no commission ids given")
	}
	approved, err := s.commissionRepo.Approve(ctx, ids, s.now())
	if err != nil {
		return nil, err
	}
	logger.Event(ctx, "commissions_approved", "requested", len(ids), "approved", len(approved))
	return nonNilRecords(approved), nil
}

// ApproveOlderThan approves pending records created more than age ago. A
// negative age disables auto-approval.
func (s *commissionService) ApproveOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age < 0 {
		return 0, nil
	}
	now := s.now()
	return s.commissionRepo.ApproveCreatedBefore(ctx, now.Add(-age), now)
}

func (s *commissionService) ListCommissions(ctx context.Context, affiliateID int32, status domain.CommissionStatus) ([]domain.CommissionRecord, error) {
	if status != "" && !status.Valid() {
		return nil, domain.ValidationError("unknown commission status %q", status)
	}
	if _, err := s.userRepo.GetByID(ctx, affiliateID); err != nil {
		return nil, notFound(err, "user %d not found", affiliateID)
	}
	records, err := s.commissionRepo.ListByAffiliate(ctx, affiliateID, status)
	if err != nil {
		return nil, err
	}
	return nonNilRecords(records), nil
}

func (s *commissionService) EarningsSummary(ctx context.Context, affiliateID int32) (*domain.EarningsSummary, error) {
	records, err := s.ListCommissions(ctx, affiliateID, "")
	if err != nil {
		return nil, err
	}
	return domain.SummarizeEarnings(affiliateID, records), nil
}

func nonNilRecords(records []domain.CommissionRecord) []domain.CommissionRecord {
	if records == nil {
		return []domain.CommissionRecord{}
	}
	return records
}
