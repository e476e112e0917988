package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cassiomorais/awards/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/outbox"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/cassiomorais/awards/internal/domain/vote"
	"github.com/google/uuid"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory payment.Repository. Settlement uses
// the same pending-only guard as the SQL implementation.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment
	byRef    map[string]uuid.UUID
	byProv   map[string]uuid.UUID
	events   []*payment.Event

	// Votes backs ListSettledWithoutVote.
	Votes *MockVoteRepository

	CreateFunc        func(ctx context.Context, p *payment.Payment) error
	SettleFunc        func(ctx context.Context, reference string, status payment.Status, reason *string) (bool, error)
	MarkInitiatedFunc func(ctx context.Context, id uuid.UUID, providerRef, redirectURL *string) error
	AddEventFunc      func(ctx context.Context, event *payment.Event) error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[uuid.UUID]*payment.Payment),
		byRef:    make(map[string]uuid.UUID),
		byProv:   make(map[string]uuid.UUID),
	}
}

func clonePayment(p *payment.Payment) *payment.Payment {
	c := *p
	return &c
}

// Put stores p as-is, bypassing validation.
func (m *MockPaymentRepository) Put(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = clonePayment(p)
	m.byRef[p.Reference] = p.ID
	if p.ProviderReference != nil {
		m.byProv[*p.ProviderReference] = p.ID
	}
}

// Count returns how many payments are stored.
func (m *MockPaymentRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRef[p.Reference]; ok {
		return domainErrors.ErrDuplicateIdempotencyKey
	}
	m.payments[p.ID] = clonePayment(p)
	m.byRef[p.Reference] = p.ID
	return nil
}

func (m *MockPaymentRepository) GetByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (m *MockPaymentRepository) GetByReference(_ context.Context, reference string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[reference]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(m.payments[id]), nil
}

func (m *MockPaymentRepository) GetByProviderReference(_ context.Context, providerRef string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byProv[providerRef]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(m.payments[id]), nil
}

func (m *MockPaymentRepository) Settle(ctx context.Context, reference string, status payment.Status, reason *string) (bool, error) {
	if m.SettleFunc != nil {
		return m.SettleFunc(ctx, reference, status, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[reference]
	if !ok {
		return false, domainErrors.ErrPaymentNotFound
	}
	p := m.payments[id]
	if p.Status != payment.StatusPending {
		return false, nil
	}
	if err := p.TransitionTo(status); err != nil {
		return false, err
	}
	if reason != nil {
		p.LastError = reason
	}
	return true, nil
}

func (m *MockPaymentRepository) MarkInitiated(ctx context.Context, id uuid.UUID, providerRef, redirectURL *string) error {
	if m.MarkInitiatedFunc != nil {
		return m.MarkInitiatedFunc(ctx, id, providerRef, redirectURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	if err := p.MarkInitiated(providerRef, redirectURL); err != nil {
		return err
	}
	if providerRef != nil {
		m.byProv[*providerRef] = id
	}
	return nil
}

func (m *MockPaymentRepository) RecordInitiationFailure(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	if p.Status != payment.StatusPending {
		return domainErrors.ErrNotInitiable
	}
	p.RecordInitiationFailure(reason)
	return nil
}

func (m *MockPaymentRepository) ListPending(_ context.Context, filter payment.PendingFilter) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.payments {
		if p.Status != payment.StatusPending {
			continue
		}
		if filter.Method != nil && p.Method != *filter.Method {
			continue
		}
		if filter.CreatedBefore != nil && !p.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListSettledWithoutVote needs the vote side; wire it with Votes.
func (m *MockPaymentRepository) ListSettledWithoutVote(ctx context.Context, limit int) ([]*payment.Payment, error) {
	m.mu.Lock()
	var settled []*payment.Payment
	for _, p := range m.payments {
		if p.Status == payment.StatusSuccess {
			settled = append(settled, clonePayment(p))
		}
	}
	m.mu.Unlock()

	var out []*payment.Payment
	for _, p := range settled {
		if m.Votes != nil && m.Votes.has(p.ID) {
			continue
		}
		out = append(out, p)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepository) AddEvent(ctx context.Context, event *payment.Event) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockPaymentRepository) GetEvents(_ context.Context, paymentID uuid.UUID) ([]*payment.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Event
	for _, e := range m.events {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockPaymentRepository) ListEvents(_ context.Context, eventType string, limit, offset int) ([]*payment.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].EventType == eventType {
			out = append(out, m.events[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// EventTypes lists the audit trail of a payment by type, oldest first.
func (m *MockPaymentRepository) EventTypes(paymentID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		if e.PaymentID == paymentID {
			out = append(out, e.EventType)
		}
	}
	return out
}

// --- Vote Repository Mock ---

// MockVoteRepository is an in-memory vote.Repository keyed by payment id.
// With Payments set it refuses votes for payments that are not success.
type MockVoteRepository struct {
	mu        sync.Mutex
	byPayment map[uuid.UUID]*vote.Vote
	order     []*vote.Vote
	nominees  []*catalog.Nominee

	Payments *MockPaymentRepository
	// Catalog resolves names for ListByVoter.
	Catalog *MockCatalogRepository

	CreateFunc func(ctx context.Context, v *vote.Vote) error
}

// NewMockVoteRepository links the vote and payment mocks both ways.
func NewMockVoteRepository(payments *MockPaymentRepository) *MockVoteRepository {
	m := &MockVoteRepository{byPayment: make(map[uuid.UUID]*vote.Vote), Payments: payments}
	if payments != nil {
		payments.Votes = m
	}
	return m
}

// AddNominee registers a nominee for Rank.
func (m *MockVoteRepository) AddNominee(n *catalog.Nominee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nominees = append(m.nominees, n)
}

func (m *MockVoteRepository) has(paymentID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPayment[paymentID]
	return ok
}

// Count returns the number of stored votes.
func (m *MockVoteRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

func (m *MockVoteRepository) Create(ctx context.Context, v *vote.Vote) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, v)
	}
	if m.Payments != nil {
		p, err := m.Payments.GetByID(ctx, v.PaymentID)
		if err != nil {
			return err
		}
		if p.Status != payment.StatusSuccess {
			return domainErrors.ErrPaymentNotSettled
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPayment[v.PaymentID]; ok {
		return domainErrors.ErrDuplicatePayment
	}
	c := *v
	m.byPayment[v.PaymentID] = &c
	m.order = append(m.order, &c)
	return nil
}

func (m *MockVoteRepository) GetByPaymentID(_ context.Context, paymentID uuid.UUID) (*vote.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byPayment[paymentID]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	c := *v
	return &c, nil
}

func (m *MockVoteRepository) CountByNominee(_ context.Context, nomineeID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, v := range m.order {
		if v.NomineeID == nomineeID {
			n++
		}
	}
	return n, nil
}

func (m *MockVoteRepository) Rank(_ context.Context, eventID uuid.UUID) ([]vote.Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uuid.UUID]int64)
	for _, v := range m.order {
		counts[v.NomineeID]++
	}
	var tallies []vote.Tally
	for _, n := range m.nominees {
		if n.EventID != eventID {
			continue
		}
		tallies = append(tallies, vote.Tally{
			NomineeID:        n.ID,
			PositionID:       n.PositionID,
			Name:             n.Name,
			Votes:            counts[n.ID],
			NomineeCreatedAt: n.CreatedAt,
		})
	}
	vote.SortTallies(tallies)
	return tallies, nil
}

func (m *MockVoteRepository) ListByVoter(ctx context.Context, voterID uuid.UUID, limit, offset int) ([]vote.HistoryEntry, error) {
	m.mu.Lock()
	var out []vote.Vote
	for i := len(m.order) - 1; i >= 0; i-- {
		if m.order[i].VoterID == voterID {
			out = append(out, *m.order[i])
		}
	}
	m.mu.Unlock()

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	entries := make([]vote.HistoryEntry, 0, len(out))
	for _, v := range out {
		h := vote.HistoryEntry{Vote: v}
		if m.Catalog != nil {
			if n, err := m.Catalog.GetNominee(ctx, v.NomineeID); err == nil {
				h.NomineeName = n.Name
			}
			if p, err := m.Catalog.GetPosition(ctx, v.PositionID); err == nil {
				h.PositionName = p.Name
			}
			if e, err := m.Catalog.GetEvent(ctx, v.EventID); err == nil {
				h.EventName = e.Name
			}
		}
		entries = append(entries, h)
	}
	return entries, nil
}

// --- Catalog Repository Mock ---

type MockCatalogRepository struct {
	mu        sync.Mutex
	events    map[uuid.UUID]*catalog.Event
	positions map[uuid.UUID]*catalog.Position
	nominees  map[uuid.UUID]*catalog.Nominee
	users     map[uuid.UUID]*catalog.User
}

func NewMockCatalogRepository() *MockCatalogRepository {
	return &MockCatalogRepository{
		events:    make(map[uuid.UUID]*catalog.Event),
		positions: make(map[uuid.UUID]*catalog.Position),
		nominees:  make(map[uuid.UUID]*catalog.Nominee),
		users:     make(map[uuid.UUID]*catalog.User),
	}
}

func (m *MockCatalogRepository) AddEvent(e *catalog.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
}

func (m *MockCatalogRepository) AddPosition(p *catalog.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
}

func (m *MockCatalogRepository) AddNominee(n *catalog.Nominee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nominees[n.ID] = n
}

func (m *MockCatalogRepository) AddUser(u *catalog.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MockCatalogRepository) GetEvent(_ context.Context, id uuid.UUID) (*catalog.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[id]; ok {
		return e, nil
	}
	return nil, domainErrors.ErrEventNotFound
}

func (m *MockCatalogRepository) GetPosition(_ context.Context, id uuid.UUID) (*catalog.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[id]; ok {
		return p, nil
	}
	return nil, domainErrors.ErrPositionNotFound
}

func (m *MockCatalogRepository) GetNominee(_ context.Context, id uuid.UUID) (*catalog.Nominee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nominees[id]; ok {
		return n, nil
	}
	return nil, domainErrors.ErrNomineeNotFound
}

func (m *MockCatalogRepository) GetUser(_ context.Context, id uuid.UUID) (*catalog.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, domainErrors.ErrUserNotFound
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs fn directly and counts calls.
type MockTransactionManager struct {
	mu    sync.Mutex
	Calls int

	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is an in-memory outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	Entries []*outbox.Entry

	InsertFunc func(ctx context.Context, entry *outbox.Entry) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutboxRepository) ClaimPending(_ context.Context, limit int) ([]*outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPending {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			now := time.Now()
			e.Status = outbox.StatusPublished
			e.PublishedAt = &now
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.RetryCount++
			e.LastError = &reason
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

func (m *MockOutboxRepository) PurgePublished(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		kept   []*outbox.Entry
		purged int64
	)
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPublished && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.Entries = kept
	return purged, nil
}

// EventTypes lists the event types written to the outbox, in order.
func (m *MockOutboxRepository) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.EventType)
	}
	return out
}

// --- Locker ---

// MemoryLocker is an in-process service.Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool

	// Err, when set, is returned by every TryLock.
	Err error
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, false, l.Err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, true, nil
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key]
}
