package controller

import (
	"io"
	"net/http"

	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxWebhookBody = 1 << 20

// WebhookController receives provider notifications. Anything the provider
// should not resend is answered 200.
type WebhookController struct {
	settlement *service.SettlementService
	providers  service.ProviderRegistry
}

func NewWebhookController(settlement *service.SettlementService, providers service.ProviderRegistry) *WebhookController {
	return &WebhookController{settlement: settlement, providers: providers}
}

// Handle handles POST /api/v1/webhooks/{method}
func (h *WebhookController) Handle(w http.ResponseWriter, r *http.Request) {
	method, err := payment.ParseMethod(chi.URLParam(r, "method"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "unknown_method"})
		return
	}
	wp, err := h.providers.Webhook(method)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "unknown_method"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Code: "invalid_body"})
		return
	}

	result, err := h.settlement.HandleWebhook(r.Context(), method, body, r.Header.Get(wp.SignatureHeader()))
	if err != nil {
		log.Warn().Err(err).Str("method", string(method)).Msg("webhook not processed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Result: string(result)})
}
