package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// TypeVarHashList identifies slices produced by the variable partial
// hash list encoder.
const TypeVarHashList = "VARHASHLIST"

const varHashListVersion = "1.0"

// VarHashListEncoder encodes a chunk as a sorted list of truncated
// hash suffixes. The suffix length is the smallest byte count keeping
// the collision probability for a non-member under the configured
// rate; bytes already implied by the partition address are elided.
type VarHashListEncoder struct {
	minByteCount      int
	falsePositiveRate float64
}

// NewVarHashListEncoder creates a partial hash list encoder.
func NewVarHashListEncoder(minByteCount int, falsePositiveRate float64) *VarHashListEncoder {
	return &VarHashListEncoder{
		minByteCount:      minByteCount,
		falsePositiveRate: falsePositiveRate,
	}
}

// Type implements Encoder.
func (e *VarHashListEncoder) Type() string { return TypeVarHashList }

// Encode implements Encoder. The binary layout is:
// suffix length (1 byte), entry count (uint32 LE), sorted suffixes.
func (e *VarHashListEncoder) Encode(hashes [][]byte, partitionOffset int) (*EncodedSlice, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	n := len(hashes)
	suffixLen := e.suffixLength(n, partitionOffset)

	suffixes := make([]string, 0, n)
	for _, h := range hashes {
		if len(h) < partitionOffset+suffixLen {
			return nil, fmt.Errorf("hash too short for suffix window: %d < %d", len(h), partitionOffset+suffixLen)
		}
		suffixes = append(suffixes, string(h[partitionOffset:partitionOffset+suffixLen]))
	}
	sort.Strings(suffixes)

	buf := new(bytes.Buffer)
	buf.WriteByte(byte(suffixLen))
	if err := binary.Write(buf, binary.LittleEndian, uint32(n)); err != nil {
		return nil, fmt.Errorf("failed to write hash list header: %w", err)
	}
	for _, s := range suffixes {
		buf.WriteString(s)
	}

	out := buf.Bytes()
	return &EncodedSlice{
		Type:    TypeVarHashList,
		Version: varHashListVersion,
		Hash:    contentHash(out),
		Binary:  out,
	}, nil
}

// suffixLength picks the stored byte count: a non-member hash matches
// one of n stored suffixes with probability about n / 2^(8*b), so b
// must cover log2(n/p) bits beyond the elided partition bytes.
func (e *VarHashListEncoder) suffixLength(n, partitionOffset int) int {
	needed := int(math.Ceil(math.Log2(float64(n)/e.falsePositiveRate) / 8))
	length := needed - partitionOffset
	if length < e.minByteCount {
		length = e.minByteCount
	}
	return length
}

// VarHashListContains tests membership against an encoded partial hash
// list slice. partitionOffset must match the value used at encode
// time.
func VarHashListContains(encoded []byte, hash []byte, partitionOffset int) (bool, error) {
	if len(encoded) < 5 {
		return false, fmt.Errorf("hash list slice too short: %d bytes", len(encoded))
	}
	suffixLen := int(encoded[0])
	count := int(binary.LittleEndian.Uint32(encoded[1:5]))
	body := encoded[5:]
	if len(body) != count*suffixLen {
		return false, fmt.Errorf("hash list body length mismatch: %d != %d", len(body), count*suffixLen)
	}
	if len(hash) < partitionOffset+suffixLen {
		return false, fmt.Errorf("hash too short for suffix window: %d < %d", len(hash), partitionOffset+suffixLen)
	}

	want := string(hash[partitionOffset : partitionOffset+suffixLen])
	idx := sort.Search(count, func(i int) bool {
		return string(body[i*suffixLen:(i+1)*suffixLen]) >= want
	})
	return idx < count && string(body[idx*suffixLen:(idx+1)*suffixLen]) == want, nil
}
