package models

// PrincipalKind distinguishes keyed callers from anonymous ones.
type PrincipalKind string

const (
	PrincipalKeyed     PrincipalKind = "keyed"
	PrincipalAnonymous PrincipalKind = "anonymous"
)

// Principal is the resolved identity of a request, used for quota accounting.
// Identity is the key hash for keyed principals and the client IP otherwise.
type Principal struct {
	Kind      PrincipalKind `json:"kind"`
	Identity  string        `json:"-"`
	Plan      Plan          `json:"plan"`
	KeyPrefix string        `json:"key_prefix,omitempty"`
	ClientIP  string        `json:"-"`
}

// Keyed reports whether the principal authenticated with an API key.
func (p Principal) Keyed() bool {
	return p.Kind == PrincipalKeyed
}
