package http

import (
	"net/http"
)

type networkAffiliateRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
}

type assignmentRequest struct {
	AffiliateIDs []int32 `json:"affiliate_ids" validate:"required,min=1"`
}

// coordinatorID resolves {id} and enforces that coordinators only reach their
// own network. It writes the error response itself.
func coordinatorID(w http.ResponseWriter, r *http.Request) (int32, bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return 0, false
	}
	if !ownNetwork(caller(r), id) {
		writeErrorCode(w, http.StatusForbidden, "forbidden", "coordinators may only manage their own network")
		return 0, false
	}
	return id, true
}

func (s *server) coordinatorNetwork(w http.ResponseWriter, r *http.Request) {
	id, ok := coordinatorID(w, r)
	if !ok {
		return
	}
	network, err := s.svc.Coordinators.GetNetwork(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, network)
}

func (s *server) registerNetworkAffiliate(w http.ResponseWriter, r *http.Request) {
	id, ok := coordinatorID(w, r)
	if !ok {
		return
	}
	var req networkAffiliateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.svc.Coordinators.RegisterAffiliate(r.Context(), id, req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *server) assignAffiliates(w http.ResponseWriter, r *http.Request) {
	id, ok := coordinatorID(w, r)
	if !ok {
		return
	}
	var req assignmentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.Coordinators.AssignAffiliates(r.Context(), id, req.AffiliateIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) toggleCoordinator(w http.ResponseWriter, r *http.Request) {
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
	user, err := s.svc.Coordinators.ToggleCoordinatorStatus(r.Context(), id, *req.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
