package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v76"

	"github.com/kiranshivaraju/pdfgate/pkg/models"
)

// Event types handled by Processor.
const (
	EventCheckoutCompleted   = stripe.EventTypeCheckoutSessionCompleted
	EventSubscriptionDeleted = stripe.EventTypeCustomerSubscriptionDeleted
)

// ErrMalformedEvent is returned when an event body cannot be decoded.
var ErrMalformedEvent = errors.New("malformed webhook event")

// PlanApplier moves the key(s) for an email to a plan, issuing a key when
// the email has none.
type PlanApplier interface {
	ApplyPlan(ctx context.Context, email string, p models.Plan) error
}

// Processor maps subscription events to plan changes.
type Processor struct {
	api         API
	plans       PlanApplier
	priceToPlan map[string]models.Plan
	logger      *slog.Logger
}

// NewProcessor creates a webhook event processor.
func NewProcessor(api API, plans PlanApplier, priceToPlan map[string]models.Plan, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{api: api, plans: plans, priceToPlan: priceToPlan, logger: logger}
}

// PlanForPrice returns the plan bought by priceID. Unknown prices map to
// starter.
func (p *Processor) PlanForPrice(priceID string) models.Plan {
	if plan, ok := p.priceToPlan[priceID]; ok {
		return plan
	}
	return models.PlanStarter
}

// Handle applies ev. Unhandled event types are ignored.
func (p *Processor) Handle(ctx context.Context, ev stripe.Event) error {
	switch ev.Type {
	case EventCheckoutCompleted:
		return p.checkoutCompleted(ctx, ev)
	case EventSubscriptionDeleted:
		return p.subscriptionDeleted(ctx, ev)
	default:
		p.logger.Debug("ignoring webhook event", "type", ev.Type, "event_id", ev.ID)
		return nil
	}
}

func (p *Processor) checkoutCompleted(ctx context.Context, ev stripe.Event) error {
	var session stripe.CheckoutSession
	if err := decodeObject(ev, &session); err != nil {
		return err
	}
	if session.ID == "" {
		return fmt.Errorf("%w: checkout session without id", ErrMalformedEvent)
	}

	priceID, err := p.api.CheckoutPriceID(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("fetching line items: %w", err)
	}
	if priceID == "" {
		p.logger.Warn("checkout session has no line items", "session_id", session.ID)
		return nil
	}

	var email string
	if session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}
	if email == "" {
		p.logger.Warn("checkout session has no customer email", "session_id", session.ID)
		return nil
	}

	plan := p.PlanForPrice(priceID)
	if err := p.plans.ApplyPlan(ctx, email, plan); err != nil {
		return fmt.Errorf("applying %s plan: %w", plan, err)
	}
	p.logger.Info("subscription activated", "plan", plan, "session_id", session.ID)
	return nil
}

func (p *Processor) subscriptionDeleted(ctx context.Context, ev stripe.Event) error {
	var sub stripe.Subscription
	if err := decodeObject(ev, &sub); err != nil {
		return err
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil
	}

	email, err := p.api.CustomerEmail(ctx, sub.Customer.ID)
	if err != nil {
		return fmt.Errorf("fetching customer: %w", err)
	}
	if email == "" {
		return nil
	}

	if err := p.plans.ApplyPlan(ctx, email, models.PlanFree); err != nil {
		return fmt.Errorf("downgrading to free: %w", err)
	}
	p.logger.Info("subscription cancelled, downgraded to free", "customer", sub.Customer.ID)
	return nil
}

func decodeObject(ev stripe.Event, out any) error {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data object", ErrMalformedEvent, ev.ID)
	}
	if err := json.Unmarshal(ev.Data.Raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
