package catalog

import (
	"slices"
	"time"

	"github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/google/uuid"
)

type EventStatus string

const (
	EventDraft  EventStatus = "draft"
	EventActive EventStatus = "active"
	EventPaused EventStatus = "paused"
	EventEnded  EventStatus = "ended"
)

// Event is an awards event that sells votes at a fixed price
type Event struct {
	ID        uuid.UUID
	Name      string
	VotePrice int64 // minor units
	Currency  string
	StartAt   time.Time
	EndAt     time.Time
	Status    EventStatus
}

// VotingStatus computes the effective status at t. An active event outside its
// window reports draft before the start and ended after the end.
func (e *Event) VotingStatus(t time.Time) EventStatus {
	if e.Status != EventActive {
		return e.Status
	}
	if t.Before(e.StartAt) {
		return EventDraft
	}
	if !e.EndAt.IsZero() && !t.Before(e.EndAt) {
		return EventEnded
	}
	return EventActive
}

// EnsureOpen returns ErrEventNotOpen unless votes can be bought at t.
func (e *Event) EnsureOpen(t time.Time) error {
	if status := e.VotingStatus(t); status != EventActive {
		return errors.NewDomainError("event_not_open", "event is "+string(status), errors.ErrEventNotOpen)
	}
	return nil
}

type Position struct {
	ID           uuid.UUID
	EventID      uuid.UUID
	Name         string
	DisplayOrder int
}

type Nominee struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	PositionID uuid.UUID
	Name       string
	CreatedAt  time.Time
}

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleVoter   Role = "voter"
	RoleNominee Role = "nominee"
)

type User struct {
	ID       uuid.UUID
	Email    string
	FullName string
	Phone    string
	Roles    []Role
}

func (u *User) HasRole(r Role) bool {
	return slices.Contains(u.Roles, r)
}

// Target is a resolved, consistent vote target
type Target struct {
	Event    *Event
	Position *Position
	Nominee  *Nominee
}

// ResolveTarget checks that nominee, position and event all belong together.
func ResolveTarget(event *Event, position *Position, nominee *Nominee) (*Target, error) {
	if position.EventID != event.ID || nominee.EventID != event.ID || nominee.PositionID != position.ID {
		return nil, errors.ErrCrossEventVote
	}
	return &Target{Event: event, Position: position, Nominee: nominee}, nil
}
