package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/repository"
)

const (
	referralCodeLength   = 8
	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referralCodeAttempts = 5
	minPasswordLength    = 8
	maxPasswordBytes     = 72
	percentageScale      = 4 // NUMERIC(7, 4)
	inviteTokenBytes     = 16
)

var validate = validator.New()

// Clock is injected so tests can move time.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// validateStruct runs the struct tags and turns the first failure into a
// ValidationError with a readable message.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.ValidationError("invalid input: %v", err)
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return domain.ValidationError("%s is required", field)
	case "email":
		return domain.ValidationError("malformed email address")
	case "min":
		if fe.Field() == "Password" {
			return domain.ValidationError("password must be at least %d characters", minPasswordLength)
		}
		return domain.ValidationError("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Field() == "Password" {
			return domain.ValidationError("password must be at most %d bytes", maxPasswordBytes)
		}
		return domain.ValidationError("%s must be at most %s", field, fe.Param())
	case "gte":
		return domain.ValidationError("%s must be >= %s", field, fe.Param())
	}
	return domain.ValidationError("%s is invalid", field)
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return domain.ValidationError("malformed email address")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// hashPassword rejects what bcrypt cannot hash as a validation failure. The
// max tag counts runes, so multibyte passwords are checked here by byte length.
func hashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", domain.ValidationError("password must be at most %d bytes", maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func generateReferralCode() (string, error) {
	max := big.NewInt(int64(len(referralCodeAlphabet)))
	var sb strings.Builder
	sb.Grow(referralCodeLength)
	for i := 0; i < referralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(referralCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// generateInviteToken returns the hex secret an invitee confirms with.
func generateInviteToken() (string, error) {
	b := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// notFound maps repository.ErrNotFound to a NotFoundError naming what, and
// leaves everything else untouched.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFoundError(format, args...)
	}
	return err
}

// dispatch runs a notification after commit. Failures are logged only.
func dispatch(ctx context.Context, event string, send func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := send(ctx); err != nil {
			logger.WarnContext(ctx, "Notification failed", "event", event, "error", err)
		}
	}()
}
