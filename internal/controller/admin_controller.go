package controller

import (
	"net/http"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/service"
	"github.com/go-chi/chi/v5"
)

// AdminController exposes settlement operations to administrators.
type AdminController struct {
	ledger     *service.Ledger
	settlement *service.SettlementService
	reconciler *service.Reconciler
}

func NewAdminController(ledger *service.Ledger, settlement *service.SettlementService, reconciler *service.Reconciler) *AdminController {
	return &AdminController{ledger: ledger, settlement: settlement, reconciler: reconciler}
}

// Anomalies handles GET /api/v1/admin/anomalies
func (h *AdminController) Anomalies(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	events, err := h.ledger.Anomalies(r.Context(), limit, offset)
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

// Pending handles GET /api/v1/admin/payments/pending
func (h *AdminController) Pending(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r)
	filter := payment.PendingFilter{Limit: limit}
	if s := r.URL.Query().Get("payment_method"); s != "" {
		m, err := payment.ParseMethod(s)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Method = &m
	}

	payments, err := h.ledger.Pending(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Verify handles POST /api/v1/admin/payments/{reference}/verify
func (h *AdminController) Verify(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	outcome, err := h.settlement.Verify(r.Context(), reference)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.ledger.Find(r.Context(), reference)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Outcome: string(outcome), Payment: FromPayment(p)})
}

// Reconcile handles POST /api/v1/admin/reconcile
func (h *AdminController) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.RunOnce(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromReport(report))
}
