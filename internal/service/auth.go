package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/metrics"
	"affiliate-network-backend/internal/repository"
	"affiliate-network-backend/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is deactivated")
)

type authService struct {
	userRepo repository.UserRepository
	tokens   security.TokenManager
	metrics  *metrics.Metrics
}

func NewAuthService(userRepo repository.UserRepository, tokens security.TokenManager, m *metrics.Metrics) AuthService {
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		metrics:  m,
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.RecordLoginAttempt(false)
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.metrics.RecordLoginAttempt(false)
		return nil, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		s.metrics.RecordLoginAttempt(false)
		return nil, "", ErrAccountDisabled
	}

	token, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, "", err
	}
	s.metrics.RecordLoginAttempt(true)
	logger.InfoContext(ctx, "User logged in", "userID", user.ID, "role", user.Role)
	return user, token, nil
}
