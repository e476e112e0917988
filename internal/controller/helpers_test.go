package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{
			name:         "simple map",
			status:       http.StatusOK,
			payload:      map[string]string{"message": "hello"},
			expectedBody: `{"message":"hello"}`,
		},
		{
			name:         "struct",
			status:       http.StatusCreated,
			payload:      struct{ ID string }{ID: "123"},
			expectedBody: `{"ID":"123"}`,
		},
		{
			name:         "error response",
			status:       http.StatusBadRequest,
			payload:      ErrorResponse{Error: "bad request", Code: "invalid_input"},
			expectedBody: `{"error":"bad request","code":"invalid_input"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	err := domainErrors.NewValidationError("email", "must be valid email")

	writeError(w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	json.NewDecoder(w.Body).Decode(&response)
	assert.Equal(t, "validation_error", response.Code)
	assert.Contains(t, response.Error, "email")
}

func TestWriteError_DomainErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"payment not found", domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
		{"nominee not found", domainErrors.ErrNomineeNotFound, http.StatusNotFound, "not_found"},
		{"event not open", domainErrors.ErrEventNotOpen, http.StatusUnprocessableEntity, "event_not_open"},
		{"cross event vote", domainErrors.ErrCrossEventVote, http.StatusUnprocessableEntity, "invalid_target"},
		{"invalid transition", domainErrors.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{"not initiable", domainErrors.ErrNotInitiable, http.StatusConflict, "not_initiable"},
		{"duplicate idempotency key", domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
		{"provider rejected", domainErrors.ErrProviderRejected, http.StatusPaymentRequired, "payment_rejected"},
		{"provider unavailable", domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
		{"wrapped provider unavailable", fmt.Errorf("paystack: %w", domainErrors.ErrProviderUnavailable), http.StatusServiceUnavailable, "provider_unavailable"},
		{"invalid signature", domainErrors.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
		{"forbidden", domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			err := json.NewDecoder(w.Body).Decode(&response)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCode, response.Code)
		})
	}
}

func TestWritePaymentError_IncludesPayment(t *testing.T) {
	p := &payment.Payment{
		ID:        uuid.New(),
		Reference: "ref-1",
		Amount:    payment.Amount{ValueMinor: 150, Currency: "GHS"},
		Method:    payment.MethodMoMo,
		Status:    payment.StatusPending,
	}
	w := httptest.NewRecorder()

	writePaymentError(w, domainErrors.ErrProviderUnavailable, p)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.NotNil(t, response.Payment)
	assert.Equal(t, p.ID.String(), response.Payment.ID)
	assert.Equal(t, "1.50", response.Payment.Amount)
	assert.Equal(t, string(payment.StateInitiated), response.Payment.State)
}

func TestWriteError_GenericDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	err := domainErrors.NewDomainError("custom_error", "custom error message", nil)

	writeError(w, err)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response ErrorResponse
	json.NewDecoder(w.Body).Decode(&response)
	assert.Equal(t, "custom_error", response.Code)
	assert.Equal(t, "custom error message", response.Error)
}

func TestWriteError_UnknownError_FallbackToInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	err := errors.New("unexpected error")

	writeError(w, err)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response ErrorResponse
	json.NewDecoder(w.Body).Decode(&response)
	assert.Equal(t, "internal_error", response.Code)
	assert.Equal(t, "internal server error", response.Error)
}

func TestDecodeAndValidate_Success(t *testing.T) {
	type TestStruct struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"required,email"`
	}

	body := `{"name":"John","email":"john@example.com"}`
	req := httptest.NewRequest("POST", "/test", strings.NewReader(body))

	var result TestStruct
	err := decodeAndValidate(req, &result)

	require.NoError(t, err)
	assert.Equal(t, "John", result.Name)
	assert.Equal(t, "john@example.com", result.Email)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	type TestStruct struct {
		Name string `json:"name"`
	}

	body := `{invalid json}`
	req := httptest.NewRequest("POST", "/test", strings.NewReader(body))

	var result TestStruct
	err := decodeAndValidate(req, &result)

	assert.Error(t, err)
	var validationErr *domainErrors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "body", validationErr.Field)
	assert.Contains(t, validationErr.Message, "invalid JSON")
}

func TestDecodeAndValidate_ValidationFailure_RequiredField(t *testing.T) {
	type TestStruct struct {
		Name string `json:"name" validate:"required"`
	}

	body := `{"name":""}`
	req := httptest.NewRequest("POST", "/test", strings.NewReader(body))

	var result TestStruct
	err := decodeAndValidate(req, &result)

	assert.Error(t, err)
	var validationErr *domainErrors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Contains(t, validationErr.Message, "validation failed")
}

func TestDecodeAndValidate_ValidationFailure_EmailFormat(t *testing.T) {
	type TestStruct struct {
		Email string `json:"email" validate:"required,email"`
	}

	body := `{"email":"not-an-email"}`
	req := httptest.NewRequest("POST", "/test", strings.NewReader(body))

	var result TestStruct
	err := decodeAndValidate(req, &result)

	assert.Error(t, err)
	var validationErr *domainErrors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "Email", validationErr.Field)
	assert.Contains(t, validationErr.Message, "validation failed")
}

func TestDecodeAndValidate_EmptyBody(t *testing.T) {
	type TestStruct struct {
		Name string `json:"name" validate:"required"`
	}

	req := httptest.NewRequest("POST", "/test", bytes.NewReader([]byte{}))

	var result TestStruct
	err := decodeAndValidate(req, &result)

	assert.Error(t, err)
}

func TestMajorToMinor(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1.00", 100, false},
		{"1", 100, false},
		{"0.5", 50, false},
		{"12345.67", 1234567, false},
		{"-5", -500, false},
		{"0", 0, false},
		{"1.005", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"99999999999999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := majorToMinor(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinorToMajor(t *testing.T) {
	assert.Equal(t, "1.00", minorToMajor(100))
	assert.Equal(t, "0.05", minorToMajor(5))
	assert.Equal(t, "-0.99", minorToMajor(-99))
	assert.Equal(t, "123.45", minorToMajor(12345))
}
