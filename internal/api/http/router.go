package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/metrics"
	"affiliate-network-backend/internal/security"
	"affiliate-network-backend/internal/service"
)

// Services are the engine entry points the REST layer exposes.
type Services struct {
	Auth         service.AuthService
	Levels       service.CommissionLevelService
	Tree         service.ReferralTreeService
	Attachments  service.AttachmentService
	Commissions  service.CommissionService
	Payouts      service.PayoutService
	Coordinators service.CoordinatorService
	Invites      service.InviteService
}

type RouterConfig struct {
	Services *Services
	Tokens   security.TokenManager
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics; nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	// Ping backs /healthz; nil always reports healthy.
	Ping func(ctx context.Context) error
}

type server struct {
	svc    *Services
	tokens security.TokenManager
	ping   func(ctx context.Context) error
}

// NewRouter builds the API router with logging, metrics and per-route auth.
func NewRouter(cfg RouterConfig) *mux.Router {
	s := &server{svc: cfg.Services, tokens: cfg.Tokens, ping: cfg.Ping}

	router := mux.NewRouter()
	router.Use(requestLogging)
	router.Use(cfg.Metrics.Middleware)

	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// Auth
	api.Handle("/auth/register", s.guard(domain.OpRegister, s.register)).Methods(http.MethodPost)
	api.Handle("/auth/login", s.guard(domain.OpLogin, s.login)).Methods(http.MethodPost)

	// Commission levels
	api.Handle("/commission-levels", s.guard(domain.OpListCommissionLevels, s.listLevels)).Methods(http.MethodGet)
	api.Handle("/commission-levels", s.guard(domain.OpUpsertCommissionLevel, s.createLevel)).Methods(http.MethodPost)
	api.Handle("/commission-levels/reset", s.guard(domain.OpResetCommissionLevels, s.resetLevels)).Methods(http.MethodPost)
	api.Handle("/commission-levels/{id:[0-9]+}", s.guard(domain.OpUpsertCommissionLevel, s.updateLevel)).Methods(http.MethodPut)
	api.Handle("/commission-levels/{id:[0-9]+}", s.guard(domain.OpDeleteCommissionLevel, s.deleteLevel)).Methods(http.MethodDelete)
	api.Handle("/commission-levels/{id:[0-9]+}/deactivate", s.guard(domain.OpDeactivateCommissionLevel, s.deactivateLevel)).Methods(http.MethodPost)
	api.Handle("/commission-levels/{id:[0-9]+}/activate", s.guard(domain.OpActivateCommissionLevel, s.activateLevel)).Methods(http.MethodPost)

	// Transactions and commissions
	api.Handle("/transactions", s.guard(domain.OpRecordTransaction, s.recordTransaction)).Methods(http.MethodPost)
	api.Handle("/transactions/{id}/cancel", s.guard(domain.OpCancelTransaction, s.cancelTransaction)).Methods(http.MethodPost)
	api.Handle("/commissions/approve", s.guard(domain.OpApproveCommissions, s.approveCommissions)).Methods(http.MethodPost)

	// Self service
	api.Handle("/me/commissions", s.guard(domain.OpListOwnCommissions, s.myCommissions)).Methods(http.MethodGet)
	api.Handle("/me/earnings", s.guard(domain.OpGetOwnEarnings, s.myEarnings)).Methods(http.MethodGet)
	api.Handle("/me/balance", s.guard(domain.OpGetOwnBalance, s.myBalance)).Methods(http.MethodGet)
	api.Handle("/me/network", s.guard(domain.OpGetOwnReferrals, s.myNetwork)).Methods(http.MethodGet)
	api.Handle("/me/payouts", s.guard(domain.OpListOwnPayouts, s.myPayouts)).Methods(http.MethodGet)
	api.Handle("/me/invites", s.guard(domain.OpInvite, s.createInvite)).Methods(http.MethodPost)
	api.Handle("/me/invites", s.guard(domain.OpListInvites, s.myInvites)).Methods(http.MethodGet)
	api.Handle("/me/payment-methods", s.guard(domain.OpAddPaymentMethod, s.addPaymentMethod)).Methods(http.MethodPost)
	api.Handle("/me/payment-methods", s.guard(domain.OpListPaymentMethods, s.myPaymentMethods)).Methods(http.MethodGet)
	api.Handle("/invites/{token:[0-9a-fA-F]{32}}/confirm", s.guard(domain.OpConfirmInvite, s.confirmInvite)).Methods(http.MethodPost)

	// Admin
	api.Handle("/payouts", s.guard(domain.OpProcessPayout, s.processPayout)).Methods(http.MethodPost)
	api.Handle("/users", s.guard(domain.OpCreateUser, s.createUser)).Methods(http.MethodPost)
	api.Handle("/users/{id:[0-9]+}/status", s.guard(domain.OpSetUserStatus, s.setUserStatus)).Methods(http.MethodPost)
	api.Handle("/users/{id:[0-9]+}/referrer", s.guard(domain.OpAttachReferrer, s.attachReferrer)).Methods(http.MethodPost)

	// Coordinator network
	api.Handle("/coordinators/{id:[0-9]+}/network", s.guard(domain.OpGetCoordinatorNetwork, s.coordinatorNetwork)).Methods(http.MethodGet)
	api.Handle("/coordinators/{id:[0-9]+}/affiliates", s.guard(domain.OpRegisterNetworkAffiliate, s.registerNetworkAffiliate)).Methods(http.MethodPost)
	api.Handle("/coordinators/{id:[0-9]+}/assignments", s.guard(domain.OpAssignAffiliates, s.assignAffiliates)).Methods(http.MethodPost)
	api.Handle("/coordinators/{id:[0-9]+}/status", s.guard(domain.OpToggleCoordinatorStatus, s.toggleCoordinator)).Methods(http.MethodPost)

	return router
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			writeErrorCode(w, http.StatusServiceUnavailable, "unavailable", "storage is not reachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses the {id} route variable as a user, level or invite id.
func pathID(r *http.Request) (int32, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, domain.ValidationError("invalid id %q", raw)
	}
	return int32(id), nil
}

func caller(r *http.Request) Caller {
	c, _ := CallerFrom(r.Context())
	return c
}
