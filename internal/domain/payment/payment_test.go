package payment_test

import (
	"testing"

	"github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() payment.Metadata {
	return payment.Metadata{NomineeID: uuid.New(), EventID: uuid.New(), PositionID: uuid.New()}
}

func ghs(minor int64) payment.Amount {
	return payment.Amount{ValueMinor: minor, Currency: "GHS"}
}

func newPending(t *testing.T, method payment.Method) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(uuid.New(), ghs(100), method, validMetadata(), payment.PayerContact{Email: "voter@example.com", Phone: "233241234567"})
	require.NoError(t, err)
	return p
}

func TestNewPayment_Valid(t *testing.T) {
	p := newPending(t, payment.MethodPaystack)

	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, payment.StateInitiated, p.State())
	assert.NotEmpty(t, p.Reference)
	_, err := uuid.Parse(p.Reference)
	assert.NoError(t, err, "reference must be usable as X-Reference-Id")
	assert.Nil(t, p.InitiatedAt)
	assert.Nil(t, p.SettledAt)
}

func TestNewPayment_UniqueReferences(t *testing.T) {
	a := newPending(t, payment.MethodPaystack)
	b := newPending(t, payment.MethodPaystack)
	assert.NotEqual(t, a.Reference, b.Reference)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewPayment_Validation(t *testing.T) {
	tests := []struct {
		name   string
		amount payment.Amount
		method payment.Method
		meta   payment.Metadata
		payer  payment.PayerContact
		field  string
	}{
		{"negative amount", ghs(-500), payment.MethodPaystack, validMetadata(), payment.PayerContact{Email: "a@b.c"}, "amount"},
		{"zero amount", ghs(0), payment.MethodPaystack, validMetadata(), payment.PayerContact{Email: "a@b.c"}, "amount"},
		{"empty currency", payment.Amount{ValueMinor: 100}, payment.MethodPaystack, validMetadata(), payment.PayerContact{Email: "a@b.c"}, "currency"},
		{"lowercase currency", payment.Amount{ValueMinor: 100, Currency: "ghs"}, payment.MethodPaystack, validMetadata(), payment.PayerContact{Email: "a@b.c"}, "currency"},
		{"unknown method", ghs(100), payment.Method("bitcoin"), validMetadata(), payment.PayerContact{Email: "a@b.c"}, "payment_method"},
		{"missing nominee", ghs(100), payment.MethodPaystack, payment.Metadata{EventID: uuid.New(), PositionID: uuid.New()}, payment.PayerContact{Email: "a@b.c"}, "nominee_id"},
		{"momo without phone", ghs(100), payment.MethodMoMo, validMetadata(), payment.PayerContact{Email: "a@b.c"}, "phone"},
		{"paystack without email", ghs(100), payment.MethodPaystack, validMetadata(), payment.PayerContact{Phone: "233241234567"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := payment.NewPayment(uuid.New(), tt.amount, tt.method, tt.meta, tt.payer)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, errors.ErrValidationFailed)

			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestParseMethod(t *testing.T) {
	m, err := payment.ParseMethod(" MTN_MOMO ")
	require.NoError(t, err)
	assert.Equal(t, payment.MethodMoMo, m)
	assert.True(t, m.IsPush())

	_, err = payment.ParseMethod("cash")
	assert.ErrorIs(t, err, errors.ErrUnknownMethod)
}

func TestPayment_StateDerivation(t *testing.T) {
	p := newPending(t, payment.MethodMoMo)
	assert.Equal(t, payment.StateInitiated, p.State())

	require.NoError(t, p.MarkInitiated(nil, nil))
	assert.Equal(t, payment.StatePendingConfirmation, p.State())
	assert.Equal(t, 1, p.InitiationAttempts)

	require.NoError(t, p.TransitionTo(payment.StatusSuccess))
	assert.Equal(t, payment.StateConfirmed, p.State())
	assert.NotNil(t, p.SettledAt)

	failed := newPending(t, payment.MethodPaystack)
	require.NoError(t, failed.TransitionTo(payment.StatusFailed))
	assert.Equal(t, payment.StateRejected, failed.State())
}

func TestPayment_TerminalStatesNeverChange(t *testing.T) {
	for _, terminal := range []payment.Status{payment.StatusSuccess, payment.StatusFailed} {
		p := newPending(t, payment.MethodPaystack)
		require.NoError(t, p.TransitionTo(terminal))

		for _, next := range []payment.Status{payment.StatusPending, payment.StatusSuccess, payment.StatusFailed} {
			err := p.TransitionTo(next)
			assert.ErrorIs(t, err, errors.ErrInvalidTransition, "%s -> %s", terminal, next)
			assert.Equal(t, terminal, p.Status)
		}
		assert.ErrorIs(t, p.MarkInitiated(nil, nil), errors.ErrNotInitiable)
	}
}

func TestPayment_RecordInitiationFailure(t *testing.T) {
	p := newPending(t, payment.MethodPaystack)
	p.RecordInitiationFailure("provider timeout")

	assert.Equal(t, payment.StateInitiated, p.State())
	require.NotNil(t, p.LastError)
	assert.Equal(t, "provider timeout", *p.LastError)

	ref := "chk_1"
	url := "https://checkout.example/abc"
	require.NoError(t, p.MarkInitiated(&ref, &url))
	assert.Nil(t, p.LastError)
	assert.Equal(t, 2, p.InitiationAttempts)
}

func TestPayment_VerifyReference(t *testing.T) {
	p := newPending(t, payment.MethodHubtel)
	assert.Equal(t, p.Reference, p.VerifyReference())

	checkout := "chk_42"
	require.NoError(t, p.MarkInitiated(&checkout, nil))
	assert.Equal(t, checkout, p.VerifyReference())

	ps := newPending(t, payment.MethodPaystack)
	other := "ignored"
	ps.ProviderReference = &other
	assert.Equal(t, ps.Reference, ps.VerifyReference())
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "1.00 GHS", ghs(100).String())
	assert.Equal(t, "12.05 GHS", ghs(1205).String())
	assert.Equal(t, "0.50 GHS", ghs(50).String())
}
