package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"golang.org/x/time/rate"
)

// Sentinel errors for Stripe API failures.
var (
	ErrNotFound      = errors.New("stripe resource not found")
	ErrStripeRequest = errors.New("stripe request failed")
)

// API is the subset of the Stripe REST API used by billing.
type API interface {
	CheckoutPriceID(ctx context.Context, sessionID string) (string, error)
	CustomerEmail(ctx context.Context, customerID string) (string, error)
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// ClientConfig configures a StripeClient.
type ClientConfig struct {
	BaseURL           string
	SecretKey         string
	RequestsPerSecond float64
	Timeout           time.Duration
	MaxRetries        int64
	Logger            *slog.Logger
}

// StripeClient implements API with stripe-go. Outbound calls are paced by a
// token bucket shared across all resources.
type StripeClient struct {
	sc      *client.API
	limiter *rate.Limiter
}

// NewStripeClient creates a Stripe client from cfg.
func NewStripeClient(cfg ClientConfig) *StripeClient {
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		LeveledLogger:     slogLeveled{logger: logger.With("component", "stripe")},
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.BaseURL, "/"))
	}

	return &StripeClient{
		sc:      client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(backendCfg)),
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *StripeClient) CheckoutPriceID(ctx context.Context, sessionID string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	iter := c.sc.CheckoutSessions.ListLineItems(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return "", mapError(err)
		}
		return "", nil
	}
	item := iter.LineItem()
	if item.Price == nil {
		return "", nil
	}
	return item.Price.ID, nil
}

func (c *StripeClient) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := c.sc.Customers.Get(customerID, params)
	if err != nil {
		return "", mapError(err)
	}
	if cust.Deleted {
		return "", ErrNotFound
	}
	return cust.Email, nil
}

func (c *StripeClient) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	params := &stripe.CustomerSearchParams{}
	params.Context = ctx
	params.Query = fmt.Sprintf("email:'%s'", strings.ReplaceAll(email, "'", `\'`))
	params.Limit = stripe.Int64(1)
	params.Single = true

	iter := c.sc.Customers.Search(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return "", mapError(err)
		}
		return "", ErrNotFound
	}
	return iter.Customer().ID, nil
}

func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	params := &stripe.BillingPortalSessionParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}

	session, err := c.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", mapError(err)
	}
	return session.URL, nil
}

func (c *StripeClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// mapError folds stripe-go errors into the package sentinels.
func mapError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing {
			return ErrNotFound
		}
		return fmt.Errorf("%w: status %d: %s", ErrStripeRequest, se.HTTPStatusCode, se.Msg)
	}
	return fmt.Errorf("%w: %v", ErrStripeRequest, err)
}

// slogLeveled routes stripe-go's printf-style logging through slog.
type slogLeveled struct {
	logger *slog.Logger
}

func (l slogLeveled) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l slogLeveled) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l slogLeveled) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l slogLeveled) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

var (
	_ API                          = (*StripeClient)(nil)
	_ stripe.LeveledLoggerInterface = slogLeveled{}
)
