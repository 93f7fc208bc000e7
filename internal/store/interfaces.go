package store

import (
	"context"
	"errors"
	"time"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("not found")

// ErrLockNotAcquired is returned when the generation lease is held by
// another instance
var ErrLockNotAcquired = errors.New("lock not acquired")

// Info store keys
const (
	KeyCurrentETag   = "CURRENT_ETAG"
	KeyLastBatchDate = "LAST_BATCH_DATE"
)

// HashStore interface for revoked hash record operations
type HashStore interface {
	// UpsertHashes inserts or replaces hash records, setting the
	// updated flag on every written row.
	UpsertHashes(ctx context.Context, records []*model.HashRecord) error

	// ResetUpdatedFlags clears the updated flag on all hash records.
	ResetUpdatedFlags(ctx context.Context) error

	// DeleteOrphans removes hash records whose batch no longer exists.
	DeleteOrphans(ctx context.Context) (int64, error)

	// ListKidViews aggregates hash metadata per KID.
	ListKidViews(ctx context.Context) ([]*model.KidView, error)

	// ListPartitionIDs enumerates the distinct partition ids of a KID
	// under the given storage mode.
	ListPartitionIDs(ctx context.Context, kid string, mode model.StorageMode) ([]string, error)

	// ListChunkSources returns the chunk rows of a KID, optionally
	// scoped to one partition id.
	ListChunkSources(ctx context.Context, kid string, mode model.StorageMode, partitionID *string) ([]*model.ChunkSource, error)

	// AnyExist reports whether any of the given hex hashes is revoked
	// under the KID.
	AnyExist(ctx context.Context, kid string, hashes []string) (bool, error)

	// Health check
	Ping(ctx context.Context) error
}

// BatchStore interface for upstream batch bookkeeping
type BatchStore interface {
	UpsertBatch(ctx context.Context, batch *model.BatchRecord) error
	DeleteBatches(ctx context.Context, batchIDs []string) (int64, error)
}

// DatasetStore interface for generated partition, slice and snapshot
// rows. Rows are never mutated after creation except the toBeDeleted
// flag.
type DatasetStore interface {
	SaveSnapshot(ctx context.Context, snapshot *model.RevocationListSnapshot) error
	GetSnapshot(ctx context.Context, etag string) (*model.RevocationListSnapshot, error)
	DeleteSnapshotsExcept(ctx context.Context, etag string) (int64, error)

	SavePartition(ctx context.Context, partition *model.Partition) error
	SaveSlice(ctx context.Context, slice *model.Slice) error

	// MarkKidForDeletion flags all partition and slice rows of a KID
	// for the garbage collector.
	MarkKidForDeletion(ctx context.Context, kid string) error

	// PromoteSurvivors re-tags every unflagged row to etag, carrying
	// unchanged KIDs' partitions and slices into the new dataset
	// version.
	PromoteSurvivors(ctx context.Context, etag string) (int64, error)

	// PurgeMarked deletes flagged rows not tagged with keepEtag.
	PurgeMarked(ctx context.Context, keepEtag string) (int64, error)

	ListPartitions(ctx context.Context, etag, kid string, modifiedSince *time.Time) ([]*model.Partition, error)
	GetPartition(ctx context.Context, etag, kid string, partitionID *string) (*model.Partition, error)
	ListSlices(ctx context.Context, etag, kid string, partitionID *string, chunks []string, sliceID *string) ([]*model.Slice, error)
}

// InfoStore interface for the small durable key value map holding the
// current etag and the ingestion watermark
type InfoStore interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}

// LockStore interface for the cooperative cross-instance generation
// lease
type LockStore interface {
	// Acquire takes the lease for at most ttl and returns a release
	// token, or ErrLockNotAcquired.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Release frees the lease if the token still owns it.
	Release(ctx context.Context, key, token string) error

	// Health check
	Ping(ctx context.Context) error
	Close() error
}
