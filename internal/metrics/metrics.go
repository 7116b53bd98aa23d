package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so services can be built without a registry.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	UsersRegistered     *prometheus.CounterVec
	LoginAttempts       *prometheus.CounterVec
	CommissionsRecorded *prometheus.CounterVec
	CommissionAmount    *prometheus.CounterVec
	TransactionsTotal   *prometheus.CounterVec
	PayoutsProcessed    prometheus.Counter
	PayoutAmount        prometheus.Counter
	PayoutsRejected     prometheus.Counter
	InvitesSent         prometheus.Counter
	AttachmentConflicts *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		UsersRegistered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "users_registered_total",
				Help: "Total number of users registered",
			},
			[]string{"role"},
		),
		LoginAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"}, // success, failed
		),
		CommissionsRecorded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_records_created_total",
				Help: "Commission records created, by referral level",
			},
			[]string{"level"},
		),
		CommissionAmount: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_amount_total",
				Help: "Sum of commission amounts created, by referral level",
			},
			[]string{"level"},
		),
		TransactionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_total",
				Help: "Qualifying transactions by outcome",
			},
			[]string{"outcome"}, // recorded, duplicate, cancelled
		),
		PayoutsProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "payouts_processed_total",
			Help: "Total number of payouts processed",
		}),
		PayoutAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "payout_amount_total",
			Help: "Sum of processed payout amounts",
		}),
		PayoutsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "payouts_rejected_insufficient_funds_total",
			Help: "Payouts rejected because they exceeded the available balance",
		}),
		InvitesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "referral_invites_sent_total",
			Help: "Email referral invites created",
		}),
		AttachmentConflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attachment_conflicts_total",
				Help: "Attachment attempts rejected because the edge was already set",
			},
			[]string{"kind"}, // referrer, coordinator
		),

		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "schedule_cache_hits_total",
			Help: "Commission schedule cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "schedule_cache_misses_total",
			Help: "Commission schedule cache misses",
		}),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency labelled by route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		status := strconv.Itoa(rec.status)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) RecordUserRegistered(role string) {
	if m == nil {
		return
	}
	m.UsersRegistered.WithLabelValues(role).Inc()
}

func (m *Metrics) RecordLoginAttempt(success bool) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "success"
	}
	m.LoginAttempts.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordCommission(level int, amount decimal.Decimal) {
	if m == nil {
		return
	}
	l := strconv.Itoa(level)
	m.CommissionsRecorded.WithLabelValues(l).Inc()
	m.CommissionAmount.WithLabelValues(l).Add(amount.InexactFloat64())
}

func (m *Metrics) RecordTransaction(outcome string) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPayout(amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.PayoutsProcessed.Inc()
	m.PayoutAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) RecordPayoutRejected() {
	if m == nil {
		return
	}
	m.PayoutsRejected.Inc()
}

func (m *Metrics) RecordInviteSent() {
	if m == nil {
		return
	}
	m.InvitesSent.Inc()
}

func (m *Metrics) RecordAttachmentConflict(kind string) {
	if m == nil {
		return
	}
	m.AttachmentConflicts.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}
