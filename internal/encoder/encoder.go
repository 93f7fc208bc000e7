// Package encoder provides the probabilistic slice encodings used to
// compress revoked hash chunks for distribution.
package encoder

import (
	"crypto/sha256"
	"encoding/hex"
)

// EncodedSlice is one encoder's output for one chunk of hashes.
type EncodedSlice struct {
	Type    string
	Version string
	Hash    string // SHA-256 of Binary, lowercase hex
	Binary  []byte
}

// Encoder turns a list of fixed-length hash values into a compact
// binary slice with a bounded false positive rate. Implementations
// return (nil, nil) for empty input; the caller skips the slice.
//
// partitionOffset is the number of leading hash bytes already implied
// by the partition address; encoders may elide them.
type Encoder interface {
	Type() string
	Encode(hashes [][]byte, partitionOffset int) (*EncodedSlice, error)
}

func contentHash(binary []byte) string {
	sum := sha256.Sum256(binary)
	return hex.EncodeToString(sum[:])
}
