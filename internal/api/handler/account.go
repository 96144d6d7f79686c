package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/pdfgate/internal/account"
	mw "github.com/kiranshivaraju/pdfgate/internal/api/middleware"
	"github.com/kiranshivaraju/pdfgate/internal/api/response"
	"github.com/kiranshivaraju/pdfgate/internal/identity"
	"github.com/kiranshivaraju/pdfgate/internal/plan"
	"github.com/kiranshivaraju/pdfgate/internal/quota"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

// AdminTokenHeader gates key issuance when an admin token is configured.
const AdminTokenHeader = "X-Admin-Token"

// UsageReader reports the caller's current month without billing it.
type UsageReader interface {
	Usage(ctx context.Context, p models.Principal) (*quota.Usage, error)
}

// KeyIssuer mints new API keys.
type KeyIssuer interface {
	IssueKey(ctx context.Context, p models.Plan, email, externalID string) (*account.IssuedKey, error)
}

// Accounts is the identity-verified account surface.
type Accounts interface {
	Register(ctx context.Context, id identity.Identity) (*account.Registration, error)
	Dashboard(ctx context.Context, uid string) (*account.Dashboard, error)
	Regenerate(ctx context.Context, uid string) (*account.IssuedKey, error)
}

var registrationMessages = map[string]string{
	account.StatusExisting: "Account already registered",
	account.StatusLinked:   "Account linked to existing subscription",
	account.StatusCreated:  "Account created",
}

type issuedKeyResponse struct {
	*account.IssuedKey
	Message string `json:"message"`
}

type registrationResponse struct {
	Message string      `json:"message"`
	Status  string      `json:"status"`
	Plan    models.Plan `json:"plan"`
	APIKey  string      `json:"api_key,omitempty"`
}

// NewUsageHandler returns an http.HandlerFunc for GET /api/v1/usage.
func NewUsageHandler(usage UsageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mw.GetPrincipal(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_API_KEY", "Missing principal", nil)
			return
		}
		u, err := usage.Usage(r.Context(), p)
		if err != nil {
			writeAccountError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}

// NewGenerateKeyHandler returns an http.HandlerFunc for POST
// /api/v1/generate-key. An empty adminToken leaves the endpoint public.
func NewGenerateKeyHandler(keys KeyIssuer, adminToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if adminToken != "" {
			got := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(adminToken)) != 1 {
				response.Error(w, http.StatusUnauthorized, "INVALID_ADMIN_TOKEN", "Missing or invalid admin token", nil)
				return
			}
		}

		req := generateKeyRequest{
			Plan:  formValue(r, "plan", string(models.PlanFree)),
			Email: r.FormValue("email"),
		}
		if !validate(w, &req) {
			return
		}

		issued, err := keys.IssueKey(r.Context(), models.Plan(req.Plan), req.Email, "")
		if err != nil {
			writeAccountError(w, r, err)
			return
		}
		response.Created(w, issuedKeyResponse{
			IssuedKey: issued,
			Message:   "Save this key securely. It cannot be retrieved again.",
		})
	}
}

// NewRegisterHandler returns an http.HandlerFunc for POST /api/v1/auth/register.
func NewRegisterHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := mw.GetIdentity(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}
		reg, err := accounts.Register(r.Context(), id)
		if err != nil {
			writeAccountError(w, r, err)
			return
		}
		response.JSON(w, registrationResponse{
			Message: registrationMessages[reg.Status],
			Status:  reg.Status,
			Plan:    reg.Plan,
			APIKey:  reg.APIKey,
		})
	}
}

// NewDashboardHandler returns an http.HandlerFunc for GET /api/v1/auth/dashboard.
func NewDashboardHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := mw.GetIdentity(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}
		d, err := accounts.Dashboard(r.Context(), id.UID)
		if err != nil {
			writeAccountError(w, r, err)
			return
		}
		response.JSON(w, d)
	}
}

// NewRegenerateHandler returns an http.HandlerFunc for POST
// /api/v1/auth/regenerate-key.
func NewRegenerateHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := mw.GetIdentity(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}
		issued, err := accounts.Regenerate(r.Context(), id.UID)
		if err != nil {
			writeAccountError(w, r, err)
			return
		}
		response.JSON(w, issuedKeyResponse{
			IssuedKey: issued,
			Message:   "API key regenerated. Your old key is now invalid.",
		})
	}
}

func writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, account.ErrNoKey):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "No API key found. Please register first.", nil)
	case errors.Is(err, quota.ErrStorage):
		response.Error(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE",
			"Usage storage is temporarily unavailable", nil)
	case errors.Is(err, plan.ErrUnknownPlan):
		slog.Error("account has unknown plan", "error", err)
		response.Error(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", "Plan is not configured", nil)
	default:
		slog.Error("account operation failed", "error", err, "request_id", mw.GetRequestID(r.Context()))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
