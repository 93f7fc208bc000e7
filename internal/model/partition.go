package model

import "time"

// SliceRef is the partition-level metadata pointing at one slice.
type SliceRef struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Hash    string `json:"hash"`
}

// ChunkMap maps chunk name -> encoding type -> slice reference.
type ChunkMap map[string]map[string]SliceRef

// Partition is the fan-out unit for one KID under one dataset version.
// (ETag, KID, ID) is unique; ID is nil for POINT mode.
type Partition struct {
	ETag        string     `json:"-"`
	KID         string     `json:"kid"`
	ID          *string    `json:"id"`
	X           *string    `json:"x"`
	Y           *string    `json:"y"`
	Z           *string    `json:"z,omitempty"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Expired     *time.Time `json:"expired"`
	Chunks      ChunkMap   `json:"chunks"`
	ToBeDeleted bool       `json:"-"`
}

// Slice is one encoder's binary output for one chunk, content
// addressed by the SHA-256 of BinaryData.
type Slice struct {
	ETag         string
	KID          string
	PartitionID  *string
	Chunk        string
	SliceID      string
	LastUpdated  time.Time
	Expired      *time.Time
	EncodingType string
	Version      string
	BinaryData   []byte
	ToBeDeleted  bool
}

// GenerationCycle carries the version pair of one generation run
// through the whole call chain.
type GenerationCycle struct {
	OldETag   string
	NewETag   string
	StartedAt time.Time
}
