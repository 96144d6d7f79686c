package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/kiranshivaraju/pdfgate/internal/billing"
)

const testSecret = "whsec_test"

func signed(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

func TestParseEvent_Signed(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)

	ev, err := billing.ParseEvent(payload, signed(payload, testSecret, time.Now()), testSecret, billing.DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, billing.EventCheckoutCompleted, ev.Type)
	require.NotNil(t, ev.Data)
	assert.JSONEq(t, `{"id":"cs_1"}`, string(ev.Data.Raw))
}

func TestParseEvent_ForeignAPIVersion(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid","api_version":"2019-02-19","data":{"object":{}}}`)

	_, err := billing.ParseEvent(payload, signed(payload, testSecret, time.Now()), testSecret, billing.DefaultTolerance)
	assert.NoError(t, err)
}

func TestParseEvent_SignatureFailures(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{}}}`)
	good := signed(payload, testSecret, time.Now())

	tests := []struct {
		name    string
		payload []byte
		header  string
	}{
		{"wrong secret", payload, signed(payload, "whsec_other", time.Now())},
		{"tampered payload", []byte(`{"id":"evt_2","type":"invoice.paid","data":{"object":{}}}`), good},
		{"stale", payload, signed(payload, testSecret, time.Now().Add(-time.Hour))},
		{"empty header", payload, ""},
		{"no v1", payload, "t=1746093600"},
		{"bad timestamp", payload, "t=abc,v1=00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := billing.ParseEvent(tt.payload, tt.header, testSecret, billing.DefaultTolerance)
			assert.ErrorIs(t, err, billing.ErrInvalidSignature)
		})
	}
}

func TestParseEvent_AnyV1Matches(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{}}}`)
	header := signed(payload, testSecret, time.Now()) + ",v1=deadbeef"

	_, err := billing.ParseEvent(payload, header, testSecret, billing.DefaultTolerance)
	assert.NoError(t, err)
}

func TestParseEvent_Unsigned(t *testing.T) {
	ev, err := billing.ParseEvent([]byte(`{"id":"evt_1","type":"invoice.paid"}`), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)

	_, err = billing.ParseEvent([]byte("not json"), "", "", 0)
	assert.ErrorIs(t, err, billing.ErrMalformedEvent)
}

func TestParseEvent_SignedButNotJSON(t *testing.T) {
	payload := []byte("not json")

	_, err := billing.ParseEvent(payload, signed(payload, testSecret, time.Now()), testSecret, billing.DefaultTolerance)
	assert.ErrorIs(t, err, billing.ErrMalformedEvent)
	assert.NotErrorIs(t, err, billing.ErrInvalidSignature)
}
