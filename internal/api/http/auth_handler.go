package http

import (
	"net/http"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/service"
)

type registerRequest struct {
	Name         string      `json:"name" validate:"required"`
	Email        string      `json:"email" validate:"required"`
	Password     string      `json:"password" validate:"required,max=72"`
	Role         domain.Role `json:"role"`
	ReferralCode string      `json:"referral_code"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.svc.Attachments.Register(r.Context(), service.RegistrationInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Role:         req.Role,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, token, err := s.svc.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}
