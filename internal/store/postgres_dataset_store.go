package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
)

// PostgresDatasetStore implements DatasetStore for PostgreSQL
type PostgresDatasetStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresDatasetStore creates a new PostgreSQL dataset store
func NewPostgresDatasetStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresDatasetStore {
	return &PostgresDatasetStore{pool: pool, logger: logger}
}

// SaveSnapshot persists an immutable revocation list snapshot
func (s *PostgresDatasetStore) SaveSnapshot(ctx context.Context, snapshot *model.RevocationListSnapshot) error {
	items, err := json.Marshal(snapshot.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot items: %w", err)
	}

	query := `
		INSERT INTO snapshots (etag, created_at, items)
		VALUES ($1, $2, $3)
	`

	if _, err := s.pool.Exec(ctx, query, snapshot.ETag, snapshot.CreatedAt, items); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves a snapshot by etag
func (s *PostgresDatasetStore) GetSnapshot(ctx context.Context, etag string) (*model.RevocationListSnapshot, error) {
	query := `SELECT etag, created_at, items FROM snapshots WHERE etag = $1`

	var snapshot model.RevocationListSnapshot
	var items []byte
	err := s.pool.QueryRow(ctx, query, etag).Scan(&snapshot.ETag, &snapshot.CreatedAt, &items)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if err := json.Unmarshal(items, &snapshot.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot items: %w", err)
	}

	return &snapshot, nil
}

// DeleteSnapshotsExcept removes all snapshots superseded by the given
// etag
func (s *PostgresDatasetStore) DeleteSnapshotsExcept(ctx context.Context, etag string) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE etag != $1`, etag)
	if err != nil {
		return 0, fmt.Errorf("failed to delete superseded snapshots: %w", err)
	}
	return result.RowsAffected(), nil
}

// SavePartition persists one partition row
func (s *PostgresDatasetStore) SavePartition(ctx context.Context, partition *model.Partition) error {
	chunks, err := json.Marshal(partition.Chunks)
	if err != nil {
		return fmt.Errorf("failed to marshal partition chunks: %w", err)
	}

	query := `
		INSERT INTO partitions (etag, kid, partition_id, x, y, z, last_updated, expired, chunks, to_be_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
	`

	_, err = s.pool.Exec(ctx, query,
		partition.ETag,
		partition.KID,
		partition.ID,
		partition.X,
		partition.Y,
		partition.Z,
		partition.LastUpdated,
		partition.Expired,
		chunks,
	)
	if err != nil {
		return fmt.Errorf("failed to save partition: %w", err)
	}

	return nil
}

// SaveSlice persists one slice row
func (s *PostgresDatasetStore) SaveSlice(ctx context.Context, slice *model.Slice) error {
	query := `
		INSERT INTO slices (etag, kid, partition_id, chunk, slice_id, last_updated, expired, encoding_type, version, binary_data, to_be_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE)
	`

	_, err := s.pool.Exec(ctx, query,
		slice.ETag,
		slice.KID,
		slice.PartitionID,
		slice.Chunk,
		slice.SliceID,
		slice.LastUpdated,
		slice.Expired,
		slice.EncodingType,
		slice.Version,
		slice.BinaryData,
	)
	if err != nil {
		return fmt.Errorf("failed to save slice: %w", err)
	}

	return nil
}

// MarkKidForDeletion flags all partition and slice rows of a KID for
// the garbage collector
func (s *PostgresDatasetStore) MarkKidForDeletion(ctx context.Context, kid string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE partitions SET to_be_deleted = TRUE WHERE kid = $1`, kid); err != nil {
		return fmt.Errorf("failed to mark partitions: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE slices SET to_be_deleted = TRUE WHERE kid = $1`, kid); err != nil {
		return fmt.Errorf("failed to mark slices: %w", err)
	}

	return tx.Commit(ctx)
}

// PromoteSurvivors re-tags all unflagged rows to the given etag.
// Changed and deleted KIDs have their old rows flagged before
// regeneration, so only unchanged KIDs' rows are carried forward.
func (s *PostgresDatasetStore) PromoteSurvivors(ctx context.Context, etag string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var promoted int64

	result, err := tx.Exec(ctx, `UPDATE slices SET etag = $1 WHERE NOT to_be_deleted AND etag != $1`, etag)
	if err != nil {
		return 0, fmt.Errorf("failed to promote slices: %w", err)
	}
	promoted += result.RowsAffected()

	result, err = tx.Exec(ctx, `UPDATE partitions SET etag = $1 WHERE NOT to_be_deleted AND etag != $1`, etag)
	if err != nil {
		return 0, fmt.Errorf("failed to promote partitions: %w", err)
	}
	promoted += result.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return promoted, nil
}

// PurgeMarked deletes flagged rows no longer reachable under the
// current etag
func (s *PostgresDatasetStore) PurgeMarked(ctx context.Context, keepEtag string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var purged int64

	result, err := tx.Exec(ctx, `DELETE FROM slices WHERE to_be_deleted AND etag != $1`, keepEtag)
	if err != nil {
		return 0, fmt.Errorf("failed to purge slices: %w", err)
	}
	purged += result.RowsAffected()

	result, err = tx.Exec(ctx, `DELETE FROM partitions WHERE to_be_deleted AND etag != $1`, keepEtag)
	if err != nil {
		return 0, fmt.Errorf("failed to purge partitions: %w", err)
	}
	purged += result.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return purged, nil
}

// ListPartitions returns partition metadata for a KID under one etag,
// optionally filtered by modification time
func (s *PostgresDatasetStore) ListPartitions(ctx context.Context, etag, kid string, modifiedSince *time.Time) ([]*model.Partition, error) {
	query := `
		SELECT etag, kid, partition_id, x, y, z, last_updated, expired, chunks, to_be_deleted
		FROM partitions
		WHERE etag = $1 AND kid = $2
	`
	args := []interface{}{etag, kid}
	if modifiedSince != nil {
		query += ` AND last_updated > $3`
		args = append(args, *modifiedSince)
	}
	query += ` ORDER BY partition_id NULLS FIRST`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	defer rows.Close()

	partitions := make([]*model.Partition, 0)
	for rows.Next() {
		p, err := scanPartition(rows)
		if err != nil {
			return nil, err
		}
		partitions = append(partitions, p)
	}

	return partitions, rows.Err()
}

// GetPartition retrieves one partition by its address
func (s *PostgresDatasetStore) GetPartition(ctx context.Context, etag, kid string, partitionID *string) (*model.Partition, error) {
	query := `
		SELECT etag, kid, partition_id, x, y, z, last_updated, expired, chunks, to_be_deleted
		FROM partitions
		WHERE etag = $1 AND kid = $2 AND partition_id IS NOT DISTINCT FROM $3
	`

	rows, err := s.pool.Query(ctx, query, etag, kid, partitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get partition: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	return scanPartition(rows)
}

func scanPartition(rows pgx.Rows) (*model.Partition, error) {
	var p model.Partition
	var chunks []byte
	if err := rows.Scan(&p.ETag, &p.KID, &p.ID, &p.X, &p.Y, &p.Z, &p.LastUpdated, &p.Expired, &chunks, &p.ToBeDeleted); err != nil {
		return nil, fmt.Errorf("failed to scan partition: %w", err)
	}
	if err := json.Unmarshal(chunks, &p.Chunks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal partition chunks: %w", err)
	}
	return &p, nil
}

// ListSlices returns slice rows matching the given coordinates; empty
// chunk and slice filters match everything in the partition
func (s *PostgresDatasetStore) ListSlices(ctx context.Context, etag, kid string, partitionID *string, chunks []string, sliceID *string) ([]*model.Slice, error) {
	query := `
		SELECT etag, kid, partition_id, chunk, slice_id, last_updated, expired, encoding_type, version, binary_data, to_be_deleted
		FROM slices
		WHERE etag = $1 AND kid = $2 AND partition_id IS NOT DISTINCT FROM $3
	`
	args := []interface{}{etag, kid, partitionID}

	if len(chunks) > 0 {
		args = append(args, chunks)
		query += fmt.Sprintf(` AND chunk = ANY($%d)`, len(args))
	}
	if sliceID != nil {
		args = append(args, *sliceID)
		query += fmt.Sprintf(` AND slice_id = $%d`, len(args))
	}
	query += ` ORDER BY chunk, slice_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list slices: %w", err)
	}
	defer rows.Close()

	slices := make([]*model.Slice, 0)
	for rows.Next() {
		var sl model.Slice
		if err := rows.Scan(&sl.ETag, &sl.KID, &sl.PartitionID, &sl.Chunk, &sl.SliceID, &sl.LastUpdated, &sl.Expired, &sl.EncodingType, &sl.Version, &sl.BinaryData, &sl.ToBeDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan slice: %w", err)
		}
		slices = append(slices, &sl)
	}

	return slices, rows.Err()
}
