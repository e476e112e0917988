//go:build integration

// Package pgtest starts a throwaway PostgreSQL for integration tests.
package pgtest

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cassiomorais/awards/internal/repository/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Catalog is the seeded event: one voter, one position, two nominees.
type Catalog struct {
	VoterID    uuid.UUID
	EventID    uuid.UUID
	PositionID uuid.UUID
	Nominees   []uuid.UUID
}

// VotePrice is the seeded event's price in pesewas.
const VotePrice = 100

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// Start runs postgres:16-alpine, applies the migrations and returns a pool.
// The container is removed when the test ends.
func Start(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("awards"),
		tcpostgres.WithUsername("awards"),
		tcpostgres.WithPassword("awards"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(dsn, migrationsDir(t), false))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// Seed inserts an active event open since yesterday with two nominees, the
// first created earlier than the second.
func Seed(t *testing.T, pool *pgxpool.Pool) Catalog {
	t.Helper()
	ctx := context.Background()

	c := Catalog{
		VoterID:    uuid.New(),
		EventID:    uuid.New(),
		PositionID: uuid.New(),
		Nominees:   []uuid.UUID{uuid.New(), uuid.New()},
	}
	_, err := pool.Exec(ctx,
		`INSERT INTO users (id, email, full_name, phone, roles) VALUES ($1, 'voter@example.com', 'Voter', '233240000000', ARRAY['voter','admin'])`,
		c.VoterID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO events (id, name, vote_price, currency, start_at, status) VALUES ($1, 'Awards', 1.00, 'GHS', NOW() - INTERVAL '1 day', 'active')`,
		c.EventID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO positions (id, event_id, name) VALUES ($1, $2, 'Best Artist')`,
		c.PositionID, c.EventID)
	require.NoError(t, err)

	created := time.Now().Add(-time.Hour)
	for i, id := range c.Nominees {
		_, err = pool.Exec(ctx,
			`INSERT INTO nominees (id, event_id, position_id, name, created_at) VALUES ($1, $2, $3, $4, $5)`,
			id, c.EventID, c.PositionID, fmt.Sprintf("Nominee %d", i+1), created.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	return c
}
