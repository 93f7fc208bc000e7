package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
)

// PostgresBatchStore implements BatchStore for PostgreSQL
type PostgresBatchStore struct {
	pool *pgxpool.Pool
}

// NewPostgresBatchStore creates a new PostgreSQL batch store
func NewPostgresBatchStore(pool *pgxpool.Pool) *PostgresBatchStore {
	return &PostgresBatchStore{pool: pool}
}

// UpsertBatch inserts or replaces a batch record
func (s *PostgresBatchStore) UpsertBatch(ctx context.Context, batch *model.BatchRecord) error {
	query := `
		INSERT INTO batches (batch_id, expires, country, hash_type, kid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (batch_id) DO UPDATE
		SET expires = EXCLUDED.expires,
		    country = EXCLUDED.country,
		    hash_type = EXCLUDED.hash_type,
		    kid = EXCLUDED.kid
	`

	_, err := s.pool.Exec(ctx, query,
		batch.BatchID,
		batch.Expires,
		batch.Country,
		batch.HashType,
		batch.KID,
		batch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert batch: %w", err)
	}

	return nil
}

// DeleteBatches removes batch records wholesale; their hash records
// become orphans and are purged after the next generation
func (s *PostgresBatchStore) DeleteBatches(ctx context.Context, batchIDs []string) (int64, error) {
	if len(batchIDs) == 0 {
		return 0, nil
	}

	result, err := s.pool.Exec(ctx, `DELETE FROM batches WHERE batch_id = ANY($1)`, batchIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete batches: %w", err)
	}

	return result.RowsAffected(), nil
}
