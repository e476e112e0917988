package providers

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubtel(t *testing.T, handler http.HandlerFunc) *Hubtel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHubtel(HubtelConfig{
		BaseURL:               srv.URL,
		ClientID:              "client",
		ClientSecret:          "secret",
		MerchantAccountNumber: "HM123",
		CallbackSecret:        "cb-secret",
		CallbackURL:           "https://awards.example/api/v1/webhooks/hubtel",
	}, srv.Client())
}

func TestHubtel_Initiate(t *testing.T) {
	var raw map[string]json.RawMessage
	h := newHubtel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/create", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"responseCode":"0000","status":"Success","data":{"checkoutUrl":"https://pay.hubtel.com/chk-1","checkoutId":"chk-1","clientReference":"ref-1"}}`))
	})

	res, err := h.Initiate(context.Background(), InitiateRequest{
		Reference: "ref-1",
		Amount:    payment.Amount{ValueMinor: 1005, Currency: "GHS"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.ProviderReference)
	assert.Equal(t, "chk-1", *res.ProviderReference)
	assert.Equal(t, "https://pay.hubtel.com/chk-1", *res.RedirectURL)

	assert.Equal(t, "10.05", string(raw["totalAmount"]), "amount is a bare decimal number")
	assert.Equal(t, `"ref-1"`, string(raw["clientReference"]))
	assert.Equal(t, `"HM123"`, string(raw["merchantAccountNumber"]))
}

func TestHubtel_Initiate_BusinessRejection(t *testing.T) {
	h := newHubtel(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responseCode":"2001","status":"Failed"}`))
	})
	_, err := h.Initiate(context.Background(), InitiateRequest{Reference: "ref-1"})
	assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)
}

func TestHubtel_Verify(t *testing.T) {
	status := "Unpaid"
	h := newHubtel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/chk-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"responseCode":"0000","data":{"status":"` + status + `"}}`))
	})

	ok, err := h.Verify(context.Background(), "chk-1")
	require.NoError(t, err)
	assert.False(t, ok)

	status = "Paid"
	ok, err = h.Verify(context.Background(), "chk-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHubtel_Callback(t *testing.T) {
	h := NewHubtel(HubtelConfig{CallbackSecret: "cb-secret"}, nil)
	payload := []byte(`{"ResponseCode":"0000","Status":"Success","Data":{"CheckoutId":"chk-1","ClientReference":"ref-1","Status":"Paid"}}`)

	assert.NoError(t, h.ValidateSignature(payload, Sign(sha256.New, "cb-secret", payload)))
	assert.ErrorIs(t, h.ValidateSignature(payload, Sign(sha256.New, "wrong", payload)), domainErrors.ErrInvalidSignature)

	ev, err := h.ParseWebhook(payload)
	require.NoError(t, err)
	assert.Equal(t, WebhookSuccess, ev.Kind)
	assert.Equal(t, "ref-1", ev.Reference)
	assert.Equal(t, "chk-1", ev.ProviderReference)

	ev, err = h.ParseWebhook([]byte(`{"Data":{"ClientReference":"ref-1","Status":"Cancelled","Description":"user cancelled"}}`))
	require.NoError(t, err)
	assert.Equal(t, WebhookFailure, ev.Kind)
	assert.Equal(t, "user cancelled", ev.Reason)
}

func TestHubtel_CallbackWithoutSecretRejected(t *testing.T) {
	h := NewHubtel(HubtelConfig{}, nil)
	payload := []byte(`{}`)
	assert.ErrorIs(t, h.ValidateSignature(payload, Sign(sha256.New, "", payload)), domainErrors.ErrInvalidSignature)
}
