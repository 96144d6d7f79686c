// Package identity verifies Firebase ID tokens presented by the dashboard.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid identity token")

const issuerPrefix = "https://securetoken.google.com/"

// Identity is a verified end user.
type Identity struct {
	UID   string
	Email string
}

// Verifier verifies a bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type firebaseClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// FirebaseVerifier checks RS256 tokens issued for a single Firebase project.
type FirebaseVerifier struct {
	projectID string
	keys      keyfunc.Keyfunc
}

// NewFirebaseVerifier creates a verifier for projectID that resolves
// signing keys from keys.
func NewFirebaseVerifier(projectID string, keys keyfunc.Keyfunc) *FirebaseVerifier {
	return &FirebaseVerifier{projectID: projectID, keys: keys}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	lookup := v.keys.KeyfuncCtx(ctx)
	claims := &firebaseClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if kid, _ := t.Header["kid"].(string); kid == "" {
			return nil, errors.New("missing kid header")
		}
		return lookup(t)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return Identity{UID: claims.Subject, Email: claims.Email}, nil
}

var _ Verifier = (*FirebaseVerifier)(nil)
