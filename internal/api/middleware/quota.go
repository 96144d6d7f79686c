package middleware

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/pdfgate/internal/api/response"
	"github.com/kiranshivaraju/pdfgate/internal/plan"
	"github.com/kiranshivaraju/pdfgate/internal/quota"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

// Admitter decides whether a principal may perform one more billable call.
type Admitter interface {
	Admit(ctx context.Context, p models.Principal, endpoint string) (*quota.Decision, error)
}

// QuotaExceededBody is the 429 payload for an exhausted monthly quota.
type QuotaExceededBody struct {
	Error      string      `json:"error"`
	Used       int         `json:"used"`
	Limit      int         `json:"limit"`
	Plan       models.Plan `json:"plan"`
	ResetDate  string      `json:"reset_date"`
	UpgradeURL string      `json:"upgrade_url"`
}

// Quota meters requests against the monthly plan allowance.
type Quota struct {
	enforcer   Admitter
	upgradeURL string
}

// NewQuota creates a new Quota middleware.
func NewQuota(enforcer Admitter, upgradeURL string) *Quota {
	return &Quota{enforcer: enforcer, upgradeURL: upgradeURL}
}

// Enforce admits the request or rejects it with 429. Admitted requests are
// billed before the handler runs and carry X-RateLimit-* headers.
func (q *Quota) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r)
		if !ok {
			slog.Error("quota middleware mounted without authentication", "path", r.URL.Path)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		d, err := q.enforcer.Admit(r.Context(), p, r.URL.Path)
		if err != nil {
			var exceeded *quota.ExceededError
			switch {
			case errors.As(err, &exceeded):
				q.writeExceeded(w, exceeded)
			case errors.Is(err, quota.ErrStorage):
				response.Error(w, http.StatusServiceUnavailable,
					"STORAGE_UNAVAILABLE", "Usage storage is temporarily unavailable", nil)
			case errors.Is(err, plan.ErrUnknownPlan):
				slog.Error("quota check with unknown plan", "error", err)
				response.Error(w, http.StatusInternalServerError,
					"CONFIGURATION_ERROR", "Plan is not configured", nil)
			default:
				slog.Error("quota check failed", "error", err)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limits.MonthlyLimit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", d.ResetAt.Format(time.RFC3339))

		next.ServeHTTP(w, r.WithContext(SetDecision(r.Context(), d)))
	})
}

func (q *Quota) writeExceeded(w http.ResponseWriter, e *quota.ExceededError) {
	reset := e.ResetAt.Format(time.RFC3339)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(e.Limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", reset)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))

	response.Write(w, http.StatusTooManyRequests, QuotaExceededBody{
		Error:      "Monthly rate limit exceeded",
		Used:       e.Used,
		Limit:      e.Limit,
		Plan:       e.Plan,
		ResetDate:  reset,
		UpgradeURL: q.upgradeURL,
	})
}
