package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
)

// PostgresHashStore implements HashStore for PostgreSQL
type PostgresHashStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	// KID views switch to wider partition geometries once the hash
	// count crosses these thresholds.
	vectorThreshold     int
	coordinateThreshold int
}

// NewPostgresHashStore creates a new PostgreSQL hash store
func NewPostgresHashStore(pool *pgxpool.Pool, vectorThreshold, coordinateThreshold int, logger *zap.Logger) *PostgresHashStore {
	return &PostgresHashStore{
		pool:                pool,
		logger:              logger,
		vectorThreshold:     vectorThreshold,
		coordinateThreshold: coordinateThreshold,
	}
}

// UpsertHashes inserts or replaces hash records in one round trip
func (s *PostgresHashStore) UpsertHashes(ctx context.Context, records []*model.HashRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO hashes (hash, kid, x, y, z, batch_id, updated, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		ON CONFLICT (hash) DO UPDATE
		SET kid = EXCLUDED.kid,
		    x = EXCLUDED.x,
		    y = EXCLUDED.y,
		    z = EXCLUDED.z,
		    batch_id = EXCLUDED.batch_id,
		    updated = TRUE,
		    last_updated = NOW()
	`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query, r.Hash, r.KID, r.X, r.Y, r.Z, r.BatchID)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert hash: %w", err)
		}
	}

	return nil
}

// ResetUpdatedFlags clears the updated flag on all hash records
func (s *PostgresHashStore) ResetUpdatedFlags(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE hashes SET updated = FALSE WHERE updated`)
	if err != nil {
		return fmt.Errorf("failed to reset updated flags: %w", err)
	}
	return nil
}

// DeleteOrphans removes hash records whose batch no longer exists
func (s *PostgresHashStore) DeleteOrphans(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM hashes h
		WHERE NOT EXISTS (
			SELECT 1 FROM batches b WHERE b.batch_id = h.batch_id
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned hashes: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListKidViews aggregates hash metadata per KID
func (s *PostgresHashStore) ListKidViews(ctx context.Context) ([]*model.KidView, error) {
	query := `
		SELECT h.kid,
		       array_remove(array_agg(DISTINCT b.hash_type), NULL),
		       COUNT(*),
		       MAX(h.last_updated),
		       MAX(b.expires),
		       bool_or(h.updated)
		FROM hashes h
		LEFT JOIN batches b ON b.batch_id = h.batch_id
		GROUP BY h.kid
		ORDER BY h.kid
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list kid views: %w", err)
	}
	defer rows.Close()

	views := make([]*model.KidView, 0)
	for rows.Next() {
		var view model.KidView
		var count int64
		if err := rows.Scan(&view.KID, &view.HashTypes, &count, &view.LastUpdated, &view.Expired, &view.Updated); err != nil {
			return nil, fmt.Errorf("failed to scan kid view: %w", err)
		}
		view.StorageMode = s.modeForCount(count)
		views = append(views, &view)
	}

	return views, rows.Err()
}

// modeForCount picks the partition geometry for a KID by hash count
func (s *PostgresHashStore) modeForCount(count int64) model.StorageMode {
	switch {
	case count >= int64(s.coordinateThreshold):
		return model.StorageModeCoordinate
	case count >= int64(s.vectorThreshold):
		return model.StorageModeVector
	default:
		return model.StorageModePoint
	}
}

// ListPartitionIDs enumerates the distinct partition ids of a KID
func (s *PostgresHashStore) ListPartitionIDs(ctx context.Context, kid string, mode model.StorageMode) ([]string, error) {
	var query string
	switch mode {
	case model.StorageModeVector:
		query = `SELECT DISTINCT x FROM hashes WHERE kid = $1 ORDER BY x`
	case model.StorageModeCoordinate:
		query = `SELECT DISTINCT x || y FROM hashes WHERE kid = $1 ORDER BY x || y`
	default:
		return nil, fmt.Errorf("storage mode %s has no partition ids", mode)
	}

	rows, err := s.pool.Query(ctx, query, kid)
	if err != nil {
		return nil, fmt.Errorf("failed to list partition ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan partition id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListChunkSources returns the chunk rows of a KID grouped by the
// (partition, chunk) cell of its storage mode
func (s *PostgresHashStore) ListChunkSources(ctx context.Context, kid string, mode model.StorageMode, partitionID *string) ([]*model.ChunkSource, error) {
	var query string
	args := []interface{}{kid}

	switch mode {
	case model.StorageModePoint:
		query = `
			SELECT NULL::text, h.x, h.x, NULL::text, NULL::text,
			       array_agg(h.hash ORDER BY h.hash),
			       MAX(h.last_updated), MAX(b.expires)
			FROM hashes h
			LEFT JOIN batches b ON b.batch_id = h.batch_id
			WHERE h.kid = $1
			GROUP BY h.x
			ORDER BY h.x
		`
	case model.StorageModeVector:
		query = `
			SELECT h.x, h.y, h.x, h.y, NULL::text,
			       array_agg(h.hash ORDER BY h.hash),
			       MAX(h.last_updated), MAX(b.expires)
			FROM hashes h
			LEFT JOIN batches b ON b.batch_id = h.batch_id
			WHERE h.kid = $1
		`
		if partitionID != nil {
			query += ` AND h.x = $2`
			args = append(args, *partitionID)
		}
		query += ` GROUP BY h.x, h.y ORDER BY h.x, h.y`
	case model.StorageModeCoordinate:
		query = `
			SELECT h.x || h.y, h.z, h.x, h.y, h.z,
			       array_agg(h.hash ORDER BY h.hash),
			       MAX(h.last_updated), MAX(b.expires)
			FROM hashes h
			LEFT JOIN batches b ON b.batch_id = h.batch_id
			WHERE h.kid = $1
		`
		if partitionID != nil {
			query += ` AND h.x || h.y = $2`
			args = append(args, *partitionID)
		}
		query += ` GROUP BY h.x, h.y, h.z ORDER BY h.x, h.y, h.z`
	default:
		return nil, fmt.Errorf("unknown storage mode: %s", mode)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk sources: %w", err)
	}
	defer rows.Close()

	sources := make([]*model.ChunkSource, 0)
	for rows.Next() {
		src := model.ChunkSource{KID: kid}
		if err := rows.Scan(&src.PartitionID, &src.Chunk, &src.X, &src.Y, &src.Z, &src.Hashes, &src.LastUpdated, &src.Expired); err != nil {
			return nil, fmt.Errorf("failed to scan chunk source: %w", err)
		}
		sources = append(sources, &src)
	}

	return sources, rows.Err()
}

// AnyExist reports whether any of the given hex hashes is revoked
// under the KID
func (s *PostgresHashStore) AnyExist(ctx context.Context, kid string, hashes []string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM hashes WHERE kid = $1 AND hash = ANY($2)
		)
	`, kid, hashes).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check hash membership: %w", err)
	}
	return exists, nil
}

// Ping checks the database connection
func (s *PostgresHashStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
