// Package keytype provides the KeyType codec contract (§6) plus one
// concrete implementation, Int64Key, used by the reference storage and
// by the page package's tests. The real codec is declared out of
// scope (§1); this stands in the way this codebase's lineage keeps a
// concrete CompositeKey/Record codec alongside the abstract contract
// its btree package consumes.
package keytype

import (
	"github.com/pkg/errors"

	"bplustree/internal/dbuf"
)

// Codec is the KeyType contract every node page operates against: a
// deterministic, lossless round-trip between a domain key and its
// on-disk form, plus a byte-size estimate used for memory accounting.
//
// The original collaborator contract (§6) stops at Memory/Write/Read;
// ordering is a map-level concern there. This core has no map layer to
// borrow a comparator from, so Compare is folded into the same codec
// here — an Open Question decision recorded in DESIGN.md.
type Codec[K any] interface {
	// Memory estimates the in-memory footprint of a single key.
	Memory(key K) int
	// Write appends the first n keys to buf in order.
	Write(buf *dbuf.Buffer, keys []K, n int) error
	// Read fills the first n entries of out by decoding from buf.
	Read(buf *dbuf.Buffer, out []K, n int) error
	// Compare returns a negative, zero, or positive value as a is
	// less than, equal to, or greater than b.
	Compare(a, b K) int
}

// Int64Key is a fixed-width 8-byte codec for int64 keys.
type Int64Key struct{}

var _ Codec[int64] = Int64Key{}

// Memory returns the fixed per-key footprint: the 8 payload bytes plus
// a flat slice-element overhead estimate.
func (Int64Key) Memory(int64) int { return 8 + 8 }

// Compare orders int64 keys numerically.
func (Int64Key) Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Write appends n keys as big-endian int64s.
func (Int64Key) Write(buf *dbuf.Buffer, keys []int64, n int) error {
	if n > len(keys) {
		return errors.Errorf("keytype: write count %d exceeds key slice length %d", n, len(keys))
	}
	for i := 0; i < n; i++ {
		buf.PutLong(keys[i])
	}
	return nil
}

// Read decodes n big-endian int64 keys into out.
func (Int64Key) Read(buf *dbuf.Buffer, out []int64, n int) error {
	if n > len(out) {
		return errors.Errorf("keytype: read count %d exceeds output slice length %d", n, len(out))
	}
	for i := 0; i < n; i++ {
		v, err := buf.GetLong()
		if err != nil {
			return errors.Wrapf(err, "keytype: read key %d", i)
		}
		out[i] = v
	}
	return nil
}
