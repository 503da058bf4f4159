// Package testdb starts a disposable Postgres for integration tests and applies
// the service migrations to it.
package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// New starts a postgres container, migrates it and returns a pool.
// The container is terminated when the test finishes. Skipped in short mode.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode (requires Docker)")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("chunks"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start postgres container")
	t.Cleanup(func() {
		testcontainers.TerminateContainer(container)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	pool, err := database.Connect(ctx, connStr, database.PoolConfig{MaxConns: 5})
	require.NoError(t, err, "Failed to create connection pool")
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool), "Failed to run migrations")
	return pool
}

// Truncate empties every service table so a shared container can be reused between subtests
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE text_chunks, jobs, configuration`)
	require.NoError(t, err)
}
