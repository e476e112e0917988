package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the read-only view of events, positions, nominees and users
type Repository interface {
	// GetEvent retrieves an event by ID
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)

	// GetPosition retrieves a position by ID
	GetPosition(ctx context.Context, id uuid.UUID) (*Position, error)

	// GetNominee retrieves a nominee by ID
	GetNominee(ctx context.Context, id uuid.UUID) (*Nominee, error)

	// GetUser retrieves a user with their roles
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}
