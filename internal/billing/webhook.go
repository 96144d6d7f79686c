// Package billing handles Stripe subscription events and customer portal
// sessions.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// DefaultTolerance is the maximum accepted age of a signed webhook.
const DefaultTolerance = webhook.DefaultTolerance

// ParseEvent verifies payload against a Stripe-Signature header and decodes
// it. An empty secret skips verification. Events are accepted regardless of
// the account's pinned API version.
func ParseEvent(payload []byte, header, secret string, tolerance time.Duration) (stripe.Event, error) {
	if secret == "" {
		var ev stripe.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return stripe.Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return ev, nil
	}

	ev, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ev, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
