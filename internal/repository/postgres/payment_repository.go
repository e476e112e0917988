package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/cassiomorais/awards/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, transaction_reference, provider_reference, voter_id, amount, currency,
		payment_method, status, nominee_id, event_id, position_id, payer_email, payer_phone,
		redirect_url, initiated_at, last_error, initiation_attempts, created_at, updated_at, settled_at`

// selectColumns reads amount back as text so it can be parsed exactly.
var selectColumns = strings.Replace(paymentColumns, "amount,", "amount::text,", 1)

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new pending payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		p.ID, p.Reference, p.ProviderReference, p.VoterID, minorToNumeric(p.Amount.ValueMinor), p.Amount.Currency,
		string(p.Method), string(p.Status), p.Metadata.NomineeID, p.Metadata.EventID, p.Metadata.PositionID,
		nullable(p.Payer.Email), nullable(p.Payer.Phone),
		p.RedirectURL, p.InitiatedAt, p.LastError, p.InitiationAttempts, p.CreatedAt, p.UpdatedAt, p.SettledAt,
	)
	if err != nil {
		if code, _ := pgErrorCode(err); code == codeUniqueViolation {
			return domainErrors.NewDomainError("duplicate_reference", "transaction reference already exists", domainErrors.ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+selectColumns+` FROM payments WHERE id = $1`, id))
}

// GetByReference retrieves a payment by our transaction reference.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+selectColumns+` FROM payments WHERE transaction_reference = $1`, reference))
}

// GetByProviderReference retrieves a payment by the provider-issued reference.
func (r *PaymentRepository) GetByProviderReference(ctx context.Context, providerRef string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+selectColumns+` FROM payments WHERE provider_reference = $1`, providerRef))
}

// Settle moves a pending payment to a terminal status. The status guard makes
// concurrent settlements of one reference serialize on the row; the loser
// reports false.
func (r *PaymentRepository) Settle(ctx context.Context, reference string, status payment.Status, reason *string) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments
		 SET status = $2, last_error = COALESCE($3, last_error), settled_at = NOW(), updated_at = NOW()
		 WHERE transaction_reference = $1 AND status = 'pending'`,
		reference, string(status), reason,
	)
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE transaction_reference = $1)`, reference,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check payment: %w", err)
	}
	if !exists {
		return false, domainErrors.ErrPaymentNotFound
	}
	return false, nil
}

// MarkInitiated records the provider's acceptance on a still-pending payment.
func (r *PaymentRepository) MarkInitiated(ctx context.Context, id uuid.UUID, providerRef, redirectURL *string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments
		 SET initiated_at = NOW(), provider_reference = COALESCE($2, provider_reference),
		     redirect_url = $3, last_error = NULL,
		     initiation_attempts = initiation_attempts + 1, updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		id, providerRef, redirectURL,
	)
	if err != nil {
		if code, _ := pgErrorCode(err); code == codeUniqueViolation {
			return fmt.Errorf("provider reference already recorded: %w", domainErrors.ErrInvalidTransition)
		}
		return fmt.Errorf("mark payment initiated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.notPending(ctx, id)
	}
	return nil
}

// RecordInitiationFailure notes a transient failure and leaves the payment INITIATED.
func (r *PaymentRepository) RecordInitiationFailure(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments
		 SET last_error = $2, initiation_attempts = initiation_attempts + 1, updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("record initiation failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.notPending(ctx, id)
	}
	return nil
}

func (r *PaymentRepository) notPending(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check payment: %w", err)
	}
	if !exists {
		return domainErrors.ErrPaymentNotFound
	}
	return domainErrors.ErrNotInitiable
}

// ListPending lists pending payments, oldest first.
func (r *PaymentRepository) ListPending(ctx context.Context, filter payment.PendingFilter) ([]*payment.Payment, error) {
	var (
		where = []string{"status = 'pending'"}
		args  []any
	)
	if filter.Method != nil {
		args = append(args, string(*filter.Method))
		where = append(where, fmt.Sprintf("payment_method = $%d", len(args)))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s ORDER BY created_at ASC LIMIT $%d`,
		selectColumns, strings.Join(where, " AND "), len(args))

	return r.queryPayments(ctx, query, args...)
}

// ListSettledWithoutVote finds successful payments whose vote was never written.
func (r *PaymentRepository) ListSettledWithoutVote(ctx context.Context, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryPayments(ctx,
		`SELECT `+prefixed("p", selectColumns)+`
		 FROM payments p
		 LEFT JOIN votes v ON v.payment_id = p.id
		 WHERE p.status = 'success' AND v.id IS NULL
		 ORDER BY p.settled_at ASC
		 LIMIT $1`, limit)
}

func (r *PaymentRepository) queryPayments(ctx context.Context, query string, args ...any) ([]*payment.Payment, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// AddEvent appends to the payment audit trail.
func (r *PaymentRepository) AddEvent(ctx context.Context, event *payment.Event) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payment_events (id, payment_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.PaymentID, event.EventType, data, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// GetEvents retrieves the audit trail of one payment, oldest first.
func (r *PaymentRepository) GetEvents(ctx context.Context, paymentID uuid.UUID) ([]*payment.Event, error) {
	return r.queryEvents(ctx,
		`SELECT id, payment_id, event_type, event_data, created_at
		 FROM payment_events WHERE payment_id = $1 ORDER BY created_at ASC`, paymentID)
}

// ListEvents lists audit events of one type across payments, newest first.
func (r *PaymentRepository) ListEvents(ctx context.Context, eventType string, limit, offset int) ([]*payment.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return r.queryEvents(ctx,
		`SELECT id, payment_id, event_type, event_data, created_at
		 FROM payment_events WHERE event_type = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, eventType, limit, offset)
}

func (r *PaymentRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*payment.Event, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payment events: %w", err)
	}
	defer rows.Close()

	var events []*payment.Event
	for rows.Next() {
		e := &payment.Event{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		if len(data) > 0 {
			e.EventData = make(map[string]any)
			if err := json.Unmarshal(data, &e.EventData); err != nil {
				return nil, fmt.Errorf("unmarshal event data: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PaymentRepository) scanPayment(row scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		amountStr, method, status string
		email, phone              *string
		initiatedAt, settledAt    *time.Time
	)
	err := row.Scan(
		&p.ID, &p.Reference, &p.ProviderReference, &p.VoterID, &amountStr, &p.Amount.Currency,
		&method, &status, &p.Metadata.NomineeID, &p.Metadata.EventID, &p.Metadata.PositionID,
		&email, &phone, &p.RedirectURL, &initiatedAt, &p.LastError, &p.InitiationAttempts,
		&p.CreatedAt, &p.UpdatedAt, &settledAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	minor, err := numericToMinor(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount.ValueMinor = minor
	p.Method = payment.Method(method)
	p.Status = payment.Status(status)
	p.InitiatedAt = initiatedAt
	p.SettledAt = settledAt
	if email != nil {
		p.Payer.Email = *email
	}
	if phone != nil {
		p.Payer.Phone = *phone
	}
	return p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// prefixed qualifies every column in a comma-separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
