package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStripe(t *testing.T, handler http.HandlerFunc) *StripeClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewStripeClient(ClientConfig{
		BaseURL:   ts.URL,
		SecretKey: "sk_test_123",
		Timeout:   5 * time.Second,
	})
}

func TestCheckoutPriceID(t *testing.T) {
	c := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_1/line_items", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		w.Write([]byte(`{"object":"list","data":[{"id":"li_1","price":{"id":"price_pro"}}],"has_more":false}`))
	})

	id, err := c.CheckoutPriceID(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "price_pro", id)
}

func TestCheckoutPriceID_NoLineItems(t *testing.T) {
	c := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"list","data":[],"has_more":false}`))
	})

	id, err := c.CheckoutPriceID(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFindCustomerByEmail(t *testing.T) {
	c := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers/search", r.URL.Path)
		if r.URL.Query().Get("query") == "email:'known@example.com'" {
			w.Write([]byte(`{"object":"search_result","data":[{"id":"cus_9","email":"known@example.com"}],"has_more":false}`))
			return
		}
		w.Write([]byte(`{"object":"search_result","data":[],"has_more":false}`))
	})

	id, err := c.FindCustomerByEmail(context.Background(), "known@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_9", id)

	_, err = c.FindCustomerByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCustomerEmail(t *testing.T) {
	c := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers/cus_1", r.URL.Path)
		w.Write([]byte(`{"id":"cus_1","object":"customer","email":"buyer@example.com"}`))
	})

	email, err := c.CustomerEmail(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", email)
}

func TestCustomerEmail_Deleted(t *testing.T) {
	c := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"cus_1","object":"customer","deleted":true}`))
	})
	_, err := c.CustomerEmail(context.Background(), "cus_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCustomerEmail_Missing(t *testing.T) {
	c := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such customer: 'cus_1'"}}`))
	})
	_, err := c.CustomerEmail(context.Background(), "cus_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePortalSession(t *testing.T) {
	c := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/billing_portal/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "https://pdfgate.example.com", r.PostForm.Get("return_url"))
		w.Write([]byte(`{"id":"bps_1","object":"billing_portal.session","url":"https://billing.stripe.com/session/abc"}`))
	})

	u, err := c.CreatePortalSession(context.Background(), "cus_1", "https://pdfgate.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.com/session/abc", u)
}

func TestStripeError_Message(t *testing.T) {
	c := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key"}}`))
	})

	_, err := c.CustomerEmail(context.Background(), "cus_1")
	assert.ErrorIs(t, err, ErrStripeRequest)
	assert.Contains(t, err.Error(), "Invalid API Key")
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c := NewStripeClient(ClientConfig{
		BaseURL:           "http://127.0.0.1:1",
		SecretKey:         "sk",
		RequestsPerSecond: 0.001,
		Timeout:           time.Second,
	})
	c.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.CustomerEmail(ctx, "cus_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter wait")
}
