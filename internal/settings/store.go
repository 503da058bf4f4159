package settings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kosarica/chunk-service/internal/database"
)

// PostgresStore keeps configuration in the configuration table
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over the given pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Load returns every stored key/value pair
func (s *PostgresStore) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM configuration`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

// Save upserts the given key/value pairs in one transaction
func (s *PostgresStore) Save(ctx context.Context, values map[string]string) error {
	return database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for key, value := range values {
			if _, err := tx.Exec(ctx, `
				INSERT INTO configuration (key, value)
				VALUES ($1, $2)
				ON CONFLICT (key) DO UPDATE
				SET value = EXCLUDED.value, updated_at = clock_timestamp()
			`, key, value); err != nil {
				return fmt.Errorf("upsert %s: %w", key, err)
			}
		}
		return nil
	})
}
