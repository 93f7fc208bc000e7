package model

// StorageMode determines how a KID's hashes are partitioned.
type StorageMode string

const (
	// StorageModePoint keeps all hashes of a KID in a single partition.
	StorageModePoint StorageMode = "POINT"
	// StorageModeVector partitions by the first hash byte.
	StorageModeVector StorageMode = "VECTOR"
	// StorageModeCoordinate partitions by the first two hash bytes.
	StorageModeCoordinate StorageMode = "COORDINATE"
)

// Valid reports whether the storage mode is one of the known modes.
func (m StorageMode) Valid() bool {
	switch m {
	case StorageModePoint, StorageModeVector, StorageModeCoordinate:
		return true
	default:
		return false
	}
}

// PartitionOffset returns the number of leading hash bytes implied by
// the partition address under this mode. The variable hash list
// encoder elides these bytes from its stored suffixes.
func (m StorageMode) PartitionOffset() int {
	switch m {
	case StorageModeVector:
		return 1
	case StorageModeCoordinate:
		return 2
	default:
		return 0
	}
}
