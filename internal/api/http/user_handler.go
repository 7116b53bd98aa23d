package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/service"
)

type inviteRequest struct {
	Email string `json:"email" validate:"required"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type createUserRequest struct {
	Name         string      `json:"name" validate:"required"`
	Email        string      `json:"email" validate:"required"`
	Password     string      `json:"password" validate:"required,max=72"`
	Role         domain.Role `json:"role" validate:"required"`
	ReferralCode string      `json:"referral_code"`
}

type statusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type referrerRequest struct {
	ReferralCode string `json:"referral_code" validate:"required"`
}

func (s *server) myNetwork(w http.ResponseWriter, r *http.Request) {
	network, err := s.svc.Tree.DescendantsOf(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, network)
}

func (s *server) createInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	invite, err := s.svc.Invites.Invite(r.Context(), caller(r).UserID, req.Email, req.Name, req.Phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}

func (s *server) myInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := s.svc.Invites.ListInvites(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invites)
}

func (s *server) confirmInvite(w http.ResponseWriter, r *http.Request) {
	invite, err := s.svc.Invites.Confirm(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invite)
}

func (s *server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.svc.Attachments.CreateUser(r.Context(), service.RegistrationInput{
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

func (s *server) setUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.svc.Attachments.SetUserStatus(r.Context(), id, *req.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *server) attachReferrer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req referrerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.svc.Attachments.AttachViaReferralCode(r.Context(), id, req.ReferralCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
