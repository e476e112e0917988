package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrEventNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrPositionNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrNomineeNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrUserNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrEventNotOpen, http.StatusUnprocessableEntity, "event_not_open"},
	{domainErrors.ErrCrossEventVote, http.StatusUnprocessableEntity, "invalid_target"},
	{domainErrors.ErrUnknownMethod, http.StatusBadRequest, "unknown_method"},
	{domainErrors.ErrProviderNotFound, http.StatusUnprocessableEntity, "provider_not_configured"},
	{domainErrors.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domainErrors.ErrNotInitiable, http.StatusConflict, "not_initiable"},
	{domainErrors.ErrDuplicatePayment, http.StatusConflict, "duplicate_vote"},
	{domainErrors.ErrPaymentNotSettled, http.StatusConflict, "not_settled"},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
	{domainErrors.ErrLockAcquisitionFailed, http.StatusConflict, "conflict"},
	{domainErrors.ErrProviderRejected, http.StatusPaymentRequired, "payment_rejected"},
	{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{domainErrors.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, resp := errorResponse(err)
	writeJSON(w, status, resp)
}

// writePaymentError reports err but still tells the client which payment it
// concerns, so it can retry or poll it.
func writePaymentError(w http.ResponseWriter, err error, p *payment.Payment) {
	status, resp := errorResponse(err)
	if p != nil {
		resp.Payment = FromPayment(p)
	}
	writeJSON(w, status, resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		resp.Field = validationErr.Field
		return http.StatusBadRequest, resp
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			return m.status, resp
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		return http.StatusUnprocessableEntity, resp
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	return http.StatusInternalServerError, resp
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError(name, "must be a UUID")
	}
	return id, nil
}

// pagination reads limit and offset, capping limit at 100.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
