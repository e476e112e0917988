package controller

import (
	"net/http"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/middleware"
	"github.com/cassiomorais/awards/internal/service"
	"github.com/google/uuid"
)

// VoteController handles vote purchases and voter history.
type VoteController struct {
	settlement *service.SettlementService
	votes      *service.VoteStore
	authz      *service.AuthzService
}

func NewVoteController(settlement *service.SettlementService, votes *service.VoteStore, authz *service.AuthzService) *VoteController {
	return &VoteController{settlement: settlement, votes: votes, authz: authz}
}

// Create handles POST /api/v1/votes. The vote is only counted once the
// payment confirms; the response carries the pending payment.
func (h *VoteController) Create(w http.ResponseWriter, r *http.Request) {
	voterID, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	var req VoteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := majorToMinor(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.settlement.InitiateVote(r.Context(), service.InitiateVoteRequest{
		VoterID:    voterID,
		NomineeID:  uuid.MustParse(req.NomineeID),
		EventID:    uuid.MustParse(req.EventID),
		PositionID: uuid.MustParse(req.PositionID),
		Amount:     amount,
		Currency:   req.Currency,
		Method:     req.PaymentMethod,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		writePaymentError(w, err, p)
		return
	}

	writeJSON(w, http.StatusCreated, FromPayment(p))
}

// History handles GET /api/v1/voters/{id}/votes
func (h *VoteController) History(w http.ResponseWriter, r *http.Request) {
	voterID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.authz.VerifyVoterAccess(r.Context(), voterID); err != nil {
		writeError(w, err)
		return
	}

	limit, offset := pagination(r)
	entries, err := h.votes.History(r.Context(), voterID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]VoteHistoryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, FromHistoryEntry(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
