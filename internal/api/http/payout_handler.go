package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"affiliate-network-backend/internal/domain"
)

type payoutRequest struct {
	AffiliateID     int32           `json:"affiliate_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID int32           `json:"payment_method_id" validate:"required"`
}

type paymentMethodRequest struct {
	Type    domain.PaymentMethodType `json:"type" validate:"required"`
	Label   string                   `json:"label" validate:"required"`
	Details string                   `json:"details" validate:"required"`
}

func (s *server) processPayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	payout, err := s.svc.Payouts.ProcessPayout(r.Context(), req.AffiliateID, req.Amount, req.PaymentMethodID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payout)
}

func (s *server) myBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.svc.Payouts.GetBalance(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *server) myPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := s.svc.Payouts.ListPayouts(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payouts)
}

func (s *server) addPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pm, err := s.svc.Payouts.AddPaymentMethod(r.Context(), caller(r).UserID, req.Type, req.Label, req.Details)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pm)
}

func (s *server) myPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := s.svc.Payouts.ListPaymentMethods(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}
