package model

import "time"

// ChunkSource is the read model feeding the partition generator: all
// hashes of one KID that share one (partition, chunk) cell under the
// KID's storage mode. PartitionID is nil for POINT mode.
type ChunkSource struct {
	KID         string
	PartitionID *string
	Chunk       string
	X           *string
	Y           *string
	Z           *string
	Hashes      []string // lowercase hex
	LastUpdated time.Time
	Expired     *time.Time
}

// PartitionAddress derives the (partition, chunk) cell for a hash
// prefix under the given storage mode. POINT keeps a single nil
// partition chunked by x; VECTOR partitions by x and chunks by y;
// COORDINATE partitions by x||y and chunks by z.
func PartitionAddress(mode StorageMode, x, y, z string) (partitionID *string, chunk string) {
	switch mode {
	case StorageModeVector:
		p := x
		return &p, y
	case StorageModeCoordinate:
		p := x + y
		return &p, z
	default:
		return nil, x
	}
}

// ChunkTimestamps folds a chunk row into running partition-level
// maxima for lastUpdated and expired.
func ChunkTimestamps(lastUpdated time.Time, expired *time.Time, rowUpdated time.Time, rowExpired *time.Time) (time.Time, *time.Time) {
	if rowUpdated.After(lastUpdated) {
		lastUpdated = rowUpdated
	}
	if rowExpired != nil && (expired == nil || rowExpired.After(*expired)) {
		e := *rowExpired
		expired = &e
	}
	return lastUpdated, expired
}
