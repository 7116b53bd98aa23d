package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/service"
)

var validate = validator.New()

// maxBodyBytes caps request bodies; every payload here is a small JSON object.
const maxBodyBytes = 1 << 20

type errorDetail struct {
	Code      string           `json:"code"`
	Message   string           `json:"message"`
	Available *decimal.Decimal `json:"available,omitempty"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps engine errors to status codes. Anything unclassified is a
// 500 and its text is not leaked to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var funds *domain.InsufficientFundsError
	if errors.As(err, &funds) {
		available := funds.Available
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: errorDetail{
			Code:      string(domain.KindInsufficientFunds),
			Message:   err.Error(),
			Available: &available,
		}})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	case errors.Is(err, service.ErrAccountDisabled):
		writeErrorCode(w, http.StatusForbidden, "forbidden", err.Error())
		return
	}

	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindConstraint:
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErrorCode(w, status, "internal", "internal server error")
		return
	}
	writeErrorCode(w, status, string(kind), err.Error())
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ValidationError("invalid request body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.ValidationError("field %s failed on the '%s' rule", fe.Field(), fe.Tag())
		}
		return domain.ValidationError("%v", err)
	}
	return nil
}
