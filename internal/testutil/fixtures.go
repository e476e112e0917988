package testutil

import (
	"time"

	"github.com/cassiomorais/awards/internal/domain/catalog"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/google/uuid"
)

// VotePrice is the fixture event's per-vote price in pesewas.
const VotePrice = 100

// Catalog is a consistent event with one position, one nominee and a voter.
type Catalog struct {
	Event    *catalog.Event
	Position *catalog.Position
	Nominee  *catalog.Nominee
	Voter    *catalog.User
	Admin    *catalog.User
}

// NewCatalog registers an open event and its collaborators on repo.
func NewCatalog(repo *MockCatalogRepository) *Catalog {
	now := time.Now().UTC()
	event := &catalog.Event{
		ID:        uuid.New(),
		Name:      "Campus Awards",
		VotePrice: VotePrice,
		Currency:  "GHS",
		StartAt:   now.Add(-time.Hour),
		EndAt:     now.Add(24 * time.Hour),
		Status:    catalog.EventActive,
	}
	position := &catalog.Position{ID: uuid.New(), EventID: event.ID, Name: "Best Artist", DisplayOrder: 1}
	nominee := &catalog.Nominee{
		ID:         uuid.New(),
		EventID:    event.ID,
		PositionID: position.ID,
		Name:       "Ama",
		CreatedAt:  now.Add(-time.Hour),
	}
	voter := &catalog.User{ID: uuid.New(), Email: "voter@example.com", Phone: "233241234567", Roles: []catalog.Role{catalog.RoleVoter}}
	admin := &catalog.User{ID: uuid.New(), Email: "admin@example.com", Roles: []catalog.Role{catalog.RoleAdmin, catalog.RoleVoter}}

	repo.AddEvent(event)
	repo.AddPosition(position)
	repo.AddNominee(nominee)
	repo.AddUser(voter)
	repo.AddUser(admin)

	return &Catalog{Event: event, Position: position, Nominee: nominee, Voter: voter, Admin: admin}
}

// Metadata returns payment metadata targeting the fixture nominee.
func (c *Catalog) Metadata() payment.Metadata {
	return payment.Metadata{NomineeID: c.Nominee.ID, EventID: c.Event.ID, PositionID: c.Position.ID}
}

// NewTestPayment builds a pending payment for the fixture nominee.
func (c *Catalog) NewTestPayment(method payment.Method) *payment.Payment {
	now := time.Now().UTC()
	return &payment.Payment{
		ID:        uuid.New(),
		Reference: uuid.NewString(),
		VoterID:   c.Voter.ID,
		Amount:    payment.Amount{ValueMinor: VotePrice, Currency: "GHS"},
		Method:    method,
		Status:    payment.StatusPending,
		Metadata:  c.Metadata(),
		Payer:     payment.PayerContact{Email: c.Voter.Email, Phone: c.Voter.Phone},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewInitiatedPayment builds a pending payment already accepted by the provider.
func (c *Catalog) NewInitiatedPayment(method payment.Method, createdAt time.Time) *payment.Payment {
	p := c.NewTestPayment(method)
	p.CreatedAt = createdAt
	p.UpdatedAt = createdAt
	p.InitiatedAt = &createdAt
	p.InitiationAttempts = 1
	return p
}
