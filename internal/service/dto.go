package service

import "github.com/google/uuid"

// InitiateVoteRequest is what a voter submits to buy one vote.
// Controllers convert their HTTP DTOs to this type.
type InitiateVoteRequest struct {
	VoterID    uuid.UUID
	NomineeID  uuid.UUID
	EventID    uuid.UUID
	PositionID uuid.UUID
	Amount     int64 // minor units
	Currency   string
	Method     string
	Email      string
	Phone      string
}
