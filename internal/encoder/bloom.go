package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// TypeBloomFilter identifies slices produced by the bloom filter
// encoder.
const TypeBloomFilter = "BLOOMFILTER"

const bloomVersion = "1.0"

var bloomSalt = []byte("salt")

// BloomFilterEncoder encodes a chunk as a fixed-size bloom filter.
// False positives occur at roughly the configured rate; false
// negatives never occur.
type BloomFilterEncoder struct {
	falsePositiveRate float64
}

// NewBloomFilterEncoder creates a bloom filter encoder with the given
// target false positive probability.
func NewBloomFilterEncoder(falsePositiveRate float64) *BloomFilterEncoder {
	return &BloomFilterEncoder{falsePositiveRate: falsePositiveRate}
}

// Type implements Encoder.
func (e *BloomFilterEncoder) Type() string { return TypeBloomFilter }

// Encode implements Encoder. The binary layout is little-endian:
// n (uint32), p (float64), m (uint64), k (uint32), packed bit array.
func (e *BloomFilterEncoder) Encode(hashes [][]byte, _ int) (*EncodedSlice, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	n := uint32(len(hashes))

	// m = -(n * ln(p)) / (ln(2)^2), k = (m/n) * ln(2)
	size := uint64(-float64(n) * math.Log(e.falsePositiveRate) / (math.Ln2 * math.Ln2))
	if size == 0 {
		size = 1
	}
	hashCount := uint32(float64(size) / float64(n) * math.Ln2)
	if hashCount == 0 {
		hashCount = 1
	}

	bits := make([]byte, (size+7)/8)
	for _, h := range hashes {
		h1, h2 := bloomHashes(h)
		for i := uint32(0); i < hashCount; i++ {
			pos := (h1 + uint64(i)*h2) % size
			bits[pos/8] |= 1 << (pos % 8)
		}
	}

	buf := new(bytes.Buffer)
	for _, v := range []interface{}{n, e.falsePositiveRate, size, hashCount} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("failed to write bloom header: %w", err)
		}
	}
	buf.Write(bits)

	out := buf.Bytes()
	return &EncodedSlice{
		Type:    TypeBloomFilter,
		Version: bloomVersion,
		Hash:    contentHash(out),
		Binary:  out,
	}, nil
}

// bloomHashes derives the two base hashes for double hashing:
// h(i) = h1(x) + i*h2(x).
func bloomHashes(key []byte) (uint64, uint64) {
	h := fnv.New64()
	h.Write(key)
	h1 := h.Sum64()

	h.Reset()
	h.Write(key)
	h.Write(bloomSalt)
	h2 := h.Sum64()

	return h1, h2
}

// BloomFilterContains tests membership against an encoded bloom slice.
// Used by clients and tests; a true result may be a false positive.
func BloomFilterContains(encoded []byte, hash []byte) (bool, error) {
	r := bytes.NewReader(encoded)

	var n uint32
	var p float64
	var size uint64
	var hashCount uint32
	for _, v := range []interface{}{&n, &p, &size, &hashCount} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return false, fmt.Errorf("failed to read bloom header: %w", err)
		}
	}

	bits := make([]byte, (size+7)/8)
	if _, err := r.Read(bits); err != nil {
		return false, fmt.Errorf("failed to read bloom bit array: %w", err)
	}

	h1, h2 := bloomHashes(hash)
	for i := uint32(0); i < hashCount; i++ {
		pos := (h1 + uint64(i)*h2) % size
		if bits[pos/8]&(1<<(pos%8)) == 0 {
			return false, nil
		}
	}
	return true, nil
}
