package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/service"
)

type levelRequest struct {
	Level        int             `json:"level" validate:"required"`
	Percentage   decimal.Decimal `json:"percentage"`
	Description  string          `json:"description"`
	IsActive     *bool           `json:"is_active"`
	MinReferrals int             `json:"min_referrals"`
	MaxReferrals *int            `json:"max_referrals"`
}

func (req levelRequest) input(id int32) service.LevelInput {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return service.LevelInput{
		ID:           id,
		Level:        req.Level,
		Percentage:   req.Percentage,
		Description:  req.Description,
		IsActive:     active,
		MinReferrals: req.MinReferrals,
		MaxReferrals: req.MaxReferrals,
	}
}

type transactionRequest struct {
	TransactionID string          `json:"transaction_id" validate:"required"`
	UserID        int32           `json:"user_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

type approveRequest struct {
	IDs []int32 `json:"ids" validate:"required,min=1"`
}

// listLevels returns the active schedule; ?all=true includes inactive levels
// and needs the manage capability.
func (s *server) listLevels(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		if !caller(r).Role.Can(domain.CapManageCommissionLevels) {
			writeErrorCode(w, http.StatusForbidden, "forbidden", "missing capability "+string(domain.CapManageCommissionLevels))
			return
		}
		levels, err := s.svc.Levels.ListLevels(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, levels)
		return
	}

	levels, err := s.svc.Levels.GetActiveLevels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (s *server) createLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	level, err := s.svc.Levels.UpsertLevel(r.Context(), req.input(0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, level)
}

func (s *server) updateLevel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req levelRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	level, err := s.svc.Levels.UpsertLevel(r.Context(), req.input(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (s *server) deactivateLevel(w http.ResponseWriter, r *http.Request) {
	s.toggleLevel(w, r, s.svc.Levels.Deactivate)
}

func (s *server) activateLevel(w http.ResponseWriter, r *http.Request) {
	s.toggleLevel(w, r, s.svc.Levels.Activate)
}

func (s *server) toggleLevel(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int32) (*domain.CommissionLevel, error)) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	level, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (s *server) deleteLevel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Levels.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) resetLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.svc.Levels.ResetToDefaults(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (s *server) recordTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	records, err := s.svc.Commissions.RecordCommissionsForTransaction(r.Context(), req.TransactionID, req.UserID, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, records)
}

func (s *server) cancelTransaction(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.Commissions.CancelTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) approveCommissions(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	records, err := s.svc.Commissions.ApproveCommissions(r.Context(), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *server) myCommissions(w http.ResponseWriter, r *http.Request) {
	status := domain.CommissionStatus(r.URL.Query().Get("status"))
	records, err := s.svc.Commissions.ListCommissions(r.Context(), caller(r).UserID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *server) myEarnings(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Commissions.EarningsSummary(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
