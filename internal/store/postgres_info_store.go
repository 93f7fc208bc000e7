package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresInfoStore implements InfoStore for PostgreSQL
type PostgresInfoStore struct {
	pool *pgxpool.Pool
}

// NewPostgresInfoStore creates a new PostgreSQL info store
func NewPostgresInfoStore(pool *pgxpool.Pool) *PostgresInfoStore {
	return &PostgresInfoStore{pool: pool}
}

// GetValue retrieves a value by key
func (s *PostgresInfoStore) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM info WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get info value: %w", err)
	}
	return value, nil
}

// SetValue inserts or replaces a value
func (s *PostgresInfoStore) SetValue(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO info (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set info value: %w", err)
	}
	return nil
}
