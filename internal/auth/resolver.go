// Package auth resolves request credentials to quota principals.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/pdfgate/internal/plan"
	"github.com/kiranshivaraju/pdfgate/internal/store"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

var (
	// ErrInvalidCredential means a key was presented but matches no active record.
	ErrInvalidCredential = errors.New("invalid or inactive API key")
	// ErrLookupFailed means the key store could not be queried.
	ErrLookupFailed = errors.New("api key lookup failed")
)

// KeyLookup finds active key records by hash.
type KeyLookup interface {
	GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
}

// Resolver maps a raw API key, or its absence, to a Principal.
type Resolver struct {
	keys  KeyLookup
	plans *plan.Registry
}

// NewResolver creates a Resolver.
func NewResolver(keys KeyLookup, plans *plan.Registry) *Resolver {
	return &Resolver{keys: keys, plans: plans}
}

// Resolve returns a keyed principal when rawKey is non-empty and active, or
// an anonymous free-plan principal identified by clientIP when rawKey is
// empty. A presented key never falls back to anonymous.
func (r *Resolver) Resolve(ctx context.Context, rawKey, clientIP string) (models.Principal, error) {
	if rawKey == "" {
		return models.Principal{
			Kind:     models.PrincipalAnonymous,
			Identity: clientIP,
			Plan:     models.PlanFree,
			ClientIP: clientIP,
		}, nil
	}

	hash := HashKey(rawKey)
	key, err := r.keys.GetActiveAPIKeyByHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return models.Principal{}, ErrInvalidCredential
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if !key.Active {
		return models.Principal{}, ErrInvalidCredential
	}
	if _, err := r.plans.Lookup(key.Plan); err != nil {
		return models.Principal{}, fmt.Errorf("key %s: %w", key.KeyPrefix, err)
	}

	return models.Principal{
		Kind:      models.PrincipalKeyed,
		Identity:  hash,
		Plan:      key.Plan,
		KeyPrefix: key.KeyPrefix,
		ClientIP:  clientIP,
	}, nil
}
