package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"affiliate-network-backend/internal/config"
	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/security"
)

const requestIDHeader = "X-Request-ID"

// Caller is the authenticated identity of a request.
type Caller struct {
	UserID int32
	Role   domain.Role
}

type callerKey struct{}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by the auth middleware.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestLogging tags the request with an id and logs its outcome.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		logger.DebugContext(ctx, "HTTP request", "method", r.Method, "path", r.URL.Path,
			"status", sw.status, "duration", time.Since(start))
	})
}

func extractToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

// guard authenticates the request and checks the capability op requires.
func (s *server) guard(op domain.Operation, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.GetSecurityLevel(op) == config.SecurityPublic {
			next(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "authorization token is not provided")
			return
		}
		claims, err := s.tokens.ValidateToken(token)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "invalid token: "+err.Error())
			return
		}
		if claims.Type != security.TokenTypeAccess {
			writeErrorCode(w, http.StatusForbidden, "forbidden", "access token required")
			return
		}
		if capability, ok := op.RequiredCapability(); ok && !claims.Role.Can(capability) {
			logger.WarnContext(r.Context(), "Capability check failed", "operation", op,
				"userID", claims.UserID, "role", claims.Role, "capability", capability)
			writeErrorCode(w, http.StatusForbidden, "forbidden", "missing capability "+string(capability))
			return
		}

		ctx := withCaller(r.Context(), Caller{UserID: claims.UserID, Role: claims.Role})
		next(w, r.WithContext(ctx))
	})
}

// ownNetwork reports whether the caller may act on coordinatorID's network.
// Coordinators are limited to their own; admins see every network.
func ownNetwork(c Caller, coordinatorID int32) bool {
	return c.Role == domain.RoleAdmin || c.UserID == coordinatorID
}
