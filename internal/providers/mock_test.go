package providers

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sandboxRequest() InitiateRequest {
	return InitiateRequest{
		Reference: uuid.NewString(),
		Amount:    payment.Amount{ValueMinor: 100, Currency: "GHS"},
		Payer:     payment.PayerContact{Email: "voter@example.com", Phone: "233241234567"},
	}
}

func TestMockProvider_Initiate_Redirect(t *testing.T) {
	provider := NewMockProvider(payment.MethodPaystack, WithLatency(0))
	req := sandboxRequest()

	result, err := provider.Initiate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result.RedirectURL)
	assert.Contains(t, *result.RedirectURL, req.Reference)
}

func TestMockProvider_Initiate_Push(t *testing.T) {
	provider := NewMockProvider(payment.MethodMoMo, WithLatency(0))

	result, err := provider.Initiate(context.Background(), sandboxRequest())
	require.NoError(t, err)
	assert.Nil(t, result.RedirectURL)
	assert.Nil(t, result.ProviderReference)
}

func TestMockProvider_Initiate_Failures(t *testing.T) {
	rejecting := NewMockProvider(payment.MethodPaystack, WithLatency(0), WithFailureRate(1.0))
	_, err := rejecting.Initiate(context.Background(), sandboxRequest())
	assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)

	down := NewMockProvider(payment.MethodPaystack, WithLatency(0), WithUnavailableRate(1.0))
	_, err = down.Initiate(context.Background(), sandboxRequest())
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
}

func TestMockProvider_Initiate_ContextCancelled(t *testing.T) {
	provider := NewMockProvider(payment.MethodPaystack, WithLatency(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Initiate(ctx, sandboxRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockProvider_Verify(t *testing.T) {
	provider := NewMockProvider(payment.MethodMoMo, WithLatency(0))
	ctx := context.Background()
	req := sandboxRequest()
	_, err := provider.Initiate(ctx, req)
	require.NoError(t, err)

	ok, err := provider.Verify(ctx, req.Reference)
	require.NoError(t, err)
	assert.False(t, ok, "outstanding until settled")

	provider.Settle(req.Reference, true)
	ok, err = provider.Verify(ctx, req.Reference)
	require.NoError(t, err)
	assert.True(t, ok)

	provider.Settle(req.Reference, false)
	_, err = provider.Verify(ctx, req.Reference)
	assert.ErrorIs(t, err, domainErrors.ErrProviderRejected)
}

func TestMockProvider_AutoApprove(t *testing.T) {
	provider := NewMockProvider(payment.MethodMoMo, WithLatency(0), WithAutoApprove(time.Nanosecond))
	req := sandboxRequest()
	_, err := provider.Initiate(context.Background(), req)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	ok, err := provider.Verify(context.Background(), req.Reference)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMockProvider_Webhook(t *testing.T) {
	provider := NewMockProvider(payment.MethodPaystack, WithWebhookSecret("sandbox-secret"))
	payload := []byte(`{"event":"charge.success","reference":"ref-1"}`)

	assert.NoError(t, provider.ValidateSignature(payload, Sign(sha256.New, "sandbox-secret", payload)))
	assert.ErrorIs(t, provider.ValidateSignature(payload, Sign(sha256.New, "other", payload)), domainErrors.ErrInvalidSignature)

	ev, err := provider.ParseWebhook(payload)
	require.NoError(t, err)
	assert.Equal(t, WebhookSuccess, ev.Kind)
	assert.Equal(t, "ref-1", ev.Reference)
}
