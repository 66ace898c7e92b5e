package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/slotcore/internal/audit"
	"github.com/avolkov/slotcore/internal/auth"
	"go.uber.org/zap"
)

type contextKey int

const (
	sessionKey contextKey = iota
	accountKey
)

// sessionFrom returns the authenticated session from a request context.
// Only reachable behind AuthMiddleware, so the value is always present.
func sessionFrom(ctx context.Context) *auth.Session {
	return ctx.Value(sessionKey).(*auth.Session)
}

// accountFrom returns the authenticated account from a request context.
func accountFrom(ctx context.Context) *auth.Account {
	return ctx.Value(accountKey).(*auth.Account)
}

// AuthMiddleware validates the bearer token and loads the session and
// account into the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respondError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid authorization header format")
			return
		}

		session, account, err := h.auth.ValidateToken(r.Context(), parts[1])
		if err != nil {
			switch err {
			case auth.ErrSessionExpired:
				respondError(w, http.StatusUnauthorized, "SESSION_EXPIRED", "Session has expired")
			case auth.ErrSessionNotFound:
				respondError(w, http.StatusUnauthorized, "SESSION_NOT_FOUND", "Session not found")
			default:
				respondError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
			}
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		ctx = context.WithValue(ctx, accountKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware writes one structured access-log line per request.
func (h *Handler) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		h.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", getClientIP(r)))
	})
}

// CORSMiddleware handles cross-origin requests.
func (h *Handler) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware recovers from handler panics and returns a 500.
func (h *Handler) RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.log.Error("handler panic",
					zap.Any("panic", err),
					zap.String("path", r.URL.Path))
				h.audit.Log(r.Context(), audit.EventSystemError, audit.SeverityCritical,
					fmt.Sprintf("Handler panic on %s: %v", r.URL.Path, err), nil,
					audit.WithComponent("api"), audit.WithIP(getClientIP(r)))
				respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
