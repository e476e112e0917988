package controller

import (
	"net/http"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/service"
)

// PaymentController exposes a voter's payments: status, retry and verify.
type PaymentController struct {
	settlement *service.SettlementService
	ledger     *service.Ledger
	authz      *service.AuthzService
}

func NewPaymentController(settlement *service.SettlementService, ledger *service.Ledger, authz *service.AuthzService) *PaymentController {
	return &PaymentController{settlement: settlement, ledger: ledger, authz: authz}
}

// load fetches the payment named in the URL and checks the caller may see it.
func (h *PaymentController) load(w http.ResponseWriter, r *http.Request) (*payment.Payment, bool) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	p, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if err := h.authz.VerifyPaymentAccess(r.Context(), p); err != nil {
		writeError(w, err)
		return nil, false
	}
	return p, true
}

// Get handles GET /api/v1/payments/{id}
func (h *PaymentController) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// Events handles GET /api/v1/payments/{id}/events
func (h *PaymentController) Events(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	events, err := h.ledger.History(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]PaymentEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, FromPaymentEvent(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Retry handles POST /api/v1/payments/{id}/retry
func (h *PaymentController) Retry(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	retried, err := h.settlement.RetryInitiation(r.Context(), p.ID)
	if err != nil {
		writePaymentError(w, err, retried)
		return
	}
	writeJSON(w, http.StatusOK, FromPayment(retried))
}

// Verify handles POST /api/v1/payments/{id}/verify
func (h *PaymentController) Verify(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	outcome, err := h.settlement.Verify(r.Context(), p.Reference)
	if err != nil {
		writePaymentError(w, err, p)
		return
	}
	current, err := h.ledger.Get(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Outcome: string(outcome), Payment: FromPayment(current)})
}
