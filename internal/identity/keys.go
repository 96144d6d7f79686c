package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/MicahParks/keyfunc/v3"
)

// NewRemoteKeys returns a key set backed by the JWK Set published at url.
// The set is refreshed in the background until ctx is done, and a token
// with an unknown kid triggers a rate-limited refetch.
func NewRemoteKeys(ctx context.Context, url string, timeout time.Duration) (keyfunc.Keyfunc, error) {
	return keyfunc.NewDefaultOverrideCtx(ctx, []string{url}, keyfunc.Override{
		HTTPTimeout:      timeout,
		RateLimitWaitMax: timeout,
		RefreshErrorHandlerFunc: func(u string) func(context.Context, error) {
			return func(ctx context.Context, err error) {
				slog.WarnContext(ctx, "identity key refresh failed", "url", u, "error", err)
			}
		},
	})
}
