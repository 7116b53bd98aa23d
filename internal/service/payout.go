package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/metrics"
	"affiliate-network-backend/internal/repository"
)

type payoutService struct {
	payoutRepo repository.PayoutRepository
	userRepo   repository.UserRepository
	notifier   Notifier
	minimum    decimal.Decimal
	metrics    *metrics.Metrics
	now        Clock
}

func NewPayoutService(payoutRepo repository.PayoutRepository, userRepo repository.UserRepository, notifier Notifier, minimum decimal.Decimal, m *metrics.Metrics) PayoutService {
	return &payoutService{
		payoutRepo: payoutRepo,
		userRepo:   userRepo,
		notifier:   notifier,
		minimum:    minimum,
		metrics:    m,
		now:        utcNow,
	}
}

// ProcessPayout debits the affiliate's ledger. The balance check and the
// write happen under the store's per-affiliate lock.
func (s *payoutService) ProcessPayout(ctx context.Context, affiliateID int32, amount decimal.Decimal, paymentMethodID int32) (*domain.PayoutRequest, error) {
	logger.EnterMethod("payoutService.ProcessPayout", "affiliateID", affiliateID, "amount", amount.String())

	if !amount.IsPositive() {
		return nil, domain.ValidationError("payout amount must be positive")
	}
	if !amount.Equal(domain.RoundMoney(amount)) {
		return nil, domain.ValidationError("payout amount has more than %d decimal places", domain.MoneyScale)
	}
	if amount.LessThan(s.minimum) {
		return nil, domain.ValidationError("payout amount is below the minimum of %s", s.minimum.StringFixed(domain.MoneyScale))
	}

	affiliate, err := s.userRepo.GetByID(ctx, affiliateID)
	if err != nil {
		return nil, notFound(err, "affiliate %d not found", affiliateID)
	}

	payout := &domain.PayoutRequest{
		AffiliateID:     affiliateID,
		Amount:          amount,
		PaymentMethodID: paymentMethodID,
		ProcessedAt:     s.now(),
	}
	err = s.payoutRepo.Process(ctx, payout, func(b domain.Balance) error {
		if amount.GreaterThan(b.Available) {
			return &domain.InsufficientFundsError{Requested: amount, Available: b.Available}
		}
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrPaymentMethodNotFound):
		err = domain.NotFoundError("payment method %d not found for affiliate %d", paymentMethodID, affiliateID)
	case errors.Is(err, domain.ErrInsufficientFunds):
		s.metrics.RecordPayoutRejected()
	case err != nil:
		err = notFound(err, "affiliate %d not found", affiliateID)
	}
	if err != nil {
		logger.ExitMethodWithError("payoutService.ProcessPayout", err, "affiliateID", affiliateID)
		return nil, err
	}

	s.metrics.RecordPayout(amount)
	if s.notifier != nil {
		p := *payout
		dispatch(ctx, "payout_processed", func(ctx context.Context) error {
			return s.notifier.SendPayoutProcessed(ctx, affiliate, &p)
		})
	}

	logger.Event(ctx, "payout_processed", "payoutID", payout.ID, "affiliateID", affiliateID,
		"amount", amount.StringFixed(domain.MoneyScale), "settled", len(payout.SettledCommissionIDs))
	logger.ExitMethod("payoutService.ProcessPayout", "payoutID", payout.ID)
	return payout, nil
}

func (s *payoutService) GetBalance(ctx context.Context, affiliateID int32) (*domain.Balance, error) {
	if _, err := s.userRepo.GetByID(ctx, affiliateID); err != nil {
		return nil, notFound(err, "affiliate %d not found", affiliateID)
	}
	return s.payoutRepo.Balance(ctx, affiliateID)
}

func (s *payoutService) AddPaymentMethod(ctx context.Context, userID int32, typ domain.PaymentMethodType, label, details string) (*domain.PaymentMethod, error) {
	if !typ.Valid() {
		return nil, domain.ValidationError("unknown payment method type %q", typ)
	}
	label, details = strings.TrimSpace(label), strings.TrimSpace(details)
	if label == "" || details == "" {
		return nil, domain.ValidationError("payment method label and details are required")
	}
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, notFound(err, "user %d not found", userID)
	}

	pm := &domain.PaymentMethod{
		UserID:    userID,
		Type:      typ,
		Label:     label,
		Details:   details,
		CreatedAt: s.now(),
	}
	if err := s.payoutRepo.CreatePaymentMethod(ctx, pm); err != nil {
		return nil, err
	}
	return pm, nil
}

func (s *payoutService) ListPaymentMethods(ctx context.Context, userID int32) ([]domain.PaymentMethod, error) {
	methods, err := s.payoutRepo.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	if methods == nil {
		methods = []domain.PaymentMethod{}
	}
	return methods, nil
}

func (s *payoutService) ListPayouts(ctx context.Context, affiliateID int32) ([]domain.PayoutRequest, error) {
	payouts, err := s.payoutRepo.ListByAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if payouts == nil {
		payouts = []domain.PayoutRequest{}
	}
	return payouts, nil
}
