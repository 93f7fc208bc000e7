package model

import "time"

// SnapshotItem is the public list entry for one KID under one dataset
// version.
type SnapshotItem struct {
	KID         string      `json:"kid"`
	Mode        StorageMode `json:"mode"`
	HashTypes   []string    `json:"hashTypes"`
	Expires     *time.Time  `json:"expires"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// Equal compares the public fields of two list items. Any difference,
// including a changed storage mode, forces full regeneration of the
// KID.
func (i SnapshotItem) Equal(o SnapshotItem) bool {
	if i.KID != o.KID || i.Mode != o.Mode || !i.LastUpdated.Equal(o.LastUpdated) {
		return false
	}
	if (i.Expires == nil) != (o.Expires == nil) {
		return false
	}
	if i.Expires != nil && !i.Expires.Equal(*o.Expires) {
		return false
	}
	if len(i.HashTypes) != len(o.HashTypes) {
		return false
	}
	seen := make(map[string]bool, len(i.HashTypes))
	for _, t := range i.HashTypes {
		seen[t] = true
	}
	for _, t := range o.HashTypes {
		if !seen[t] {
			return false
		}
	}
	return true
}

// RevocationListSnapshot is one immutable dataset generation's item
// list. Exactly one snapshot is current at any time.
type RevocationListSnapshot struct {
	ETag      string
	CreatedAt time.Time
	Items     []SnapshotItem
}

// Changes is the result of diffing the current KID views against the
// previously published snapshot. Updated carries the new list items so
// the generator knows each KID's storage mode; new and truly-changed
// KIDs are not distinguished.
type Changes struct {
	Updated []SnapshotItem
	Deleted []string
}
