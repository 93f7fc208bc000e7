package model

import "time"

// BatchRecord tracks one upstream revocation batch. Deleting a batch
// orphans its hash records; the orphans are purged after the next
// generation cycle.
type BatchRecord struct {
	BatchID   string
	Expires   time.Time
	Country   string
	HashType  HashType
	KID       string
	CreatedAt time.Time
}

// BatchListItem is one entry of the upstream batch list since a
// watermark.
type BatchListItem struct {
	BatchID string
	Deleted bool
	Date    time.Time
}

// BatchContent is the full content of one upstream batch.
type BatchContent struct {
	KID      string
	Country  string
	Expires  time.Time
	HashType HashType
	Entries  []BatchEntry
}

// BatchEntry carries a single revoked hash, base64 encoded as
// delivered by the gateway.
type BatchEntry struct {
	Hash string
}
