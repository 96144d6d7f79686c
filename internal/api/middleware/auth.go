package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/pdfgate/internal/api/response"
	"github.com/kiranshivaraju/pdfgate/internal/auth"
	"github.com/kiranshivaraju/pdfgate/internal/plan"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// PrincipalResolver maps request credentials to a principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, rawKey, clientIP string) (models.Principal, error)
}

// Auth resolves the caller of every metered request.
type Auth struct {
	resolver PrincipalResolver
}

// NewAuth creates a new Auth middleware.
func NewAuth(resolver PrincipalResolver) *Auth {
	return &Auth{resolver: resolver}
}

// Authenticate resolves X-API-Key (or the client IP when absent) to a
// principal and stores it in the request context. A present but blank key
// is rejected rather than treated as anonymous.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rawKey string
		if values := r.Header.Values(APIKeyHeader); len(values) > 0 {
			rawKey = strings.TrimSpace(values[0])
			if rawKey == "" {
				response.Error(w, http.StatusUnauthorized,
					"INVALID_API_KEY", "Invalid or inactive API key", nil)
				return
			}
		}

		p, err := a.resolver.Resolve(r.Context(), rawKey, ClientIP(r))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidCredential):
				response.Error(w, http.StatusUnauthorized,
					"INVALID_API_KEY", "Invalid or inactive API key", nil)
			case errors.Is(err, auth.ErrLookupFailed):
				slog.Error("api key lookup failed", "error", err, "request_id", GetRequestID(r.Context()))
				response.Error(w, http.StatusServiceUnavailable,
					"STORAGE_UNAVAILABLE", "Usage storage is temporarily unavailable", nil)
			case errors.Is(err, plan.ErrUnknownPlan):
				slog.Error("api key has unknown plan", "error", err)
				response.Error(w, http.StatusInternalServerError,
					"CONFIGURATION_ERROR", "API key plan is not configured", nil)
			default:
				slog.Error("resolving principal", "error", err)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "Failed to validate API key", nil)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), p)))
	})
}

// ClientIP returns the host part of RemoteAddr. Behind a trusted proxy the
// router rewrites RemoteAddr from forwarding headers first.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
