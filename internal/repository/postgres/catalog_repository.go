package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/awards/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/awards/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository reads events, positions, nominees and users.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (*catalog.Event, error) {
	e := &catalog.Event{}
	var (
		price, status string
		endAt         *time.Time
	)
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, name, vote_price::text, currency, start_at, end_at, status
		 FROM events WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &price, &e.Currency, &e.StartAt, &endAt, &status)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	minor, err := numericToMinor(price)
	if err != nil {
		return nil, fmt.Errorf("parse vote price: %w", err)
	}
	e.VotePrice = minor
	e.Status = catalog.EventStatus(status)
	if endAt != nil {
		e.EndAt = *endAt
	}
	return e, nil
}

func (r *CatalogRepository) GetPosition(ctx context.Context, id uuid.UUID) (*catalog.Position, error) {
	p := &catalog.Position{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, event_id, name, display_order FROM positions WHERE id = $1`, id,
	).Scan(&p.ID, &p.EventID, &p.Name, &p.DisplayOrder)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrPositionNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (r *CatalogRepository) GetNominee(ctx context.Context, id uuid.UUID) (*catalog.Nominee, error) {
	n := &catalog.Nominee{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, event_id, position_id, name, created_at FROM nominees WHERE id = $1`, id,
	).Scan(&n.ID, &n.EventID, &n.PositionID, &n.Name, &n.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrNomineeNotFound
		}
		return nil, fmt.Errorf("get nominee: %w", err)
	}
	return n, nil
}

func (r *CatalogRepository) GetUser(ctx context.Context, id uuid.UUID) (*catalog.User, error) {
	u := &catalog.User{}
	var (
		phone *string
		roles []string
	)
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, email, full_name, phone, roles FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.FullName, &phone, &roles)
	if err != nil {
		if isNoRows(err) {
			return nil, domainErrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if phone != nil {
		u.Phone = *phone
	}
	for _, role := range roles {
		u.Roles = append(u.Roles, catalog.Role(role))
	}
	return u, nil
}
