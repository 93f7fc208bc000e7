package model

import "time"

// HashType classifies what part of a credential a revocation hash
// covers.
type HashType string

const (
	HashTypeSignature      HashType = "SIGNATURE"
	HashTypeUCI            HashType = "UCI"
	HashTypeCountryCodeUCI HashType = "COUNTRYCODEUCI"
)

// HashRecord is one revoked hash owned by a batch.
type HashRecord struct {
	Hash        string // lowercase hex, primary key
	KID         string
	X           string // first hash byte as hex pair
	Y           string // second hash byte as hex pair
	Z           string // third hash byte as hex pair
	BatchID     string
	Updated     bool
	LastUpdated time.Time
}

// KidView is the aggregated, read-only view of all hashes belonging to
// one signing key. Expired == nil together with empty HashTypes means
// the KID must be dropped from the published list.
type KidView struct {
	KID         string
	HashTypes   []string
	StorageMode StorageMode
	LastUpdated time.Time
	Expired     *time.Time
	Updated     bool
}

// Deleted reports whether the view describes a KID with no remaining
// content.
func (v *KidView) Deleted() bool {
	return len(v.HashTypes) == 0 && v.Expired == nil
}
