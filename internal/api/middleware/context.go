package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/pdfgate/internal/identity"
	"github.com/kiranshivaraju/pdfgate/internal/quota"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	principalKey contextKey = "principal"
	decisionKey  contextKey = "quota_decision"
	identityKey  contextKey = "identity"
)

// GetRequestID returns the request ID, or "" when RequestID did not run.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func SetPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(r *http.Request) (models.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(models.Principal)
	return p, ok
}

func SetDecision(ctx context.Context, d *quota.Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// GetDecision returns the admission decision recorded by Quota.
func GetDecision(r *http.Request) (*quota.Decision, bool) {
	d, ok := r.Context().Value(decisionKey).(*quota.Decision)
	return d, ok && d != nil
}

func SetIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func GetIdentity(r *http.Request) (identity.Identity, bool) {
	id, ok := r.Context().Value(identityKey).(identity.Identity)
	return id, ok
}
