package middleware

import (
	"net/http"

	"github.com/kiranshivaraju/pdfgate/internal/api/response"
	"github.com/kiranshivaraju/pdfgate/internal/identity"
)

// RequireIdentity verifies the bearer token and stores the identity in the
// request context.
func RequireIdentity(v identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				response.Error(w, http.StatusUnauthorized,
					"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
				return
			}

			id, err := v.Verify(r.Context(), token)
			if err != nil {
				response.Error(w, http.StatusUnauthorized,
					"INVALID_TOKEN", "Invalid identity token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), id)))
		})
	}
}
