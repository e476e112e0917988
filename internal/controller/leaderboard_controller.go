package controller

import (
	"net/http"

	"github.com/cassiomorais/awards/internal/service"
	"github.com/google/uuid"
)

// LeaderboardController serves public vote projections.
type LeaderboardController struct {
	votes *service.VoteStore
}

func NewLeaderboardController(votes *service.VoteStore) *LeaderboardController {
	return &LeaderboardController{votes: votes}
}

// Leaderboard handles GET /api/v1/events/{id}/leaderboard. An optional
// position_id narrows the standings to one category.
func (h *LeaderboardController) Leaderboard(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var positionID uuid.UUID
	if s := r.URL.Query().Get("position_id"); s != "" {
		if positionID, err = uuid.Parse(s); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid position_id", Code: "validation_error", Field: "position_id"})
			return
		}
	}

	tallies, err := h.votes.Rank(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := LeaderboardResponse{EventID: eventID.String(), Standings: []StandingResponse{}}
	for _, t := range tallies {
		if positionID != uuid.Nil && t.PositionID != positionID {
			continue
		}
		resp.Standings = append(resp.Standings, StandingResponse{
			Rank:       len(resp.Standings) + 1,
			NomineeID:  t.NomineeID.String(),
			PositionID: t.PositionID.String(),
			Name:       t.Name,
			Votes:      t.Votes,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// NomineeVotes handles GET /api/v1/nominees/{id}/votes
func (h *LeaderboardController) NomineeVotes(w http.ResponseWriter, r *http.Request) {
	nomineeID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := h.votes.CountFor(r.Context(), nomineeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NomineeVotesResponse{NomineeID: nomineeID.String(), Votes: n})
}
