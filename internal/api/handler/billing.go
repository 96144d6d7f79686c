package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"

	mw "github.com/kiranshivaraju/pdfgate/internal/api/middleware"
	"github.com/kiranshivaraju/pdfgate/internal/api/response"
	"github.com/kiranshivaraju/pdfgate/internal/billing"
)

const (
	// SignatureHeader carries the Stripe webhook signature.
	SignatureHeader = "Stripe-Signature"

	maxWebhookBytes = 1 << 20
)

// Portal opens billing portal sessions for existing customers.
type Portal interface {
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// EventHandler applies a verified webhook event.
type EventHandler interface {
	Handle(ctx context.Context, ev stripe.Event) error
}

// WebhookConfig controls signature verification. An empty Secret accepts
// unsigned payloads.
type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

// NewManageSubscriptionHandler returns an http.HandlerFunc for POST
// /api/v1/manage-subscription. The customer is looked up by the verified
// identity's email.
func NewManageSubscriptionHandler(portal Portal, returnURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := mw.GetIdentity(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
			return
		}
		if id.Email == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Email is required", nil)
			return
		}

		customerID, err := portal.FindCustomerByEmail(r.Context(), id.Email)
		if err != nil {
			writeBillingError(w, r, err)
			return
		}
		url, err := portal.CreatePortalSession(r.Context(), customerID, returnURL)
		if err != nil {
			writeBillingError(w, r, err)
			return
		}
		response.JSON(w, map[string]string{"url": url})
	}
}

// NewStripeWebhookHandler returns an http.HandlerFunc for POST /stripe/webhook.
func NewStripeWebhookHandler(events EventHandler, cfg WebhookConfig) http.HandlerFunc {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = billing.DefaultTolerance
	}

	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read webhook body", nil)
			return
		}

		ev, err := billing.ParseEvent(payload, r.Header.Get(SignatureHeader), cfg.Secret, cfg.Tolerance)
		if errors.Is(err, billing.ErrInvalidSignature) {
			slog.Warn("rejected webhook", "error", err, "request_id", mw.GetRequestID(r.Context()))
			response.Error(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Invalid webhook signature", nil)
			return
		}
		if err != nil || ev.Type == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid webhook payload", nil)
			return
		}

		if err := events.Handle(r.Context(), ev); err != nil {
			if errors.Is(err, billing.ErrMalformedEvent) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid webhook payload", nil)
				return
			}
			slog.Error("webhook processing failed",
				"event_id", ev.ID,
				"event_type", ev.Type,
				"error", err,
			)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Webhook processing failed", nil)
			return
		}
		response.JSON(w, map[string]string{"status": "ok"})
	}
}

func writeBillingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "No subscription found for this email", nil)
	case errors.Is(err, billing.ErrStripeRequest):
		slog.Error("stripe request failed", "error", err, "request_id", mw.GetRequestID(r.Context()))
		response.Error(w, http.StatusBadGateway, "BILLING_UNAVAILABLE", "The billing provider rejected the request", nil)
	default:
		slog.Error("billing operation failed", "error", err, "request_id", mw.GetRequestID(r.Context()))
		response.Error(w, http.StatusBadGateway, "BILLING_UNAVAILABLE", "The billing provider is not available", nil)
	}
}
