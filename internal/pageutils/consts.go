// Package pageutils holds the small constants shared by the page format:
// page kind tags, the per-child memory estimate, and the compression
// flags embedded in the on-disk type byte.
package pageutils

// PageTypeLeaf and PageTypeNode tag the low bits of the on-disk "type"
// byte (§4.6 item 4). They identify the page kind, independent of the
// childKind bytes written per child reference.
const (
	PageTypeLeaf byte = 0
	PageTypeNode byte = 1
)

// Compression algorithm tags occupy the high bits of the type byte.
// CompressNone passes the body through verbatim; CompressXORMask is a
// placeholder codec (XOR against a fixed mask) included only so the
// compression branch in read/write has two real arms to exercise, per
// SPEC_FULL.md's Non-goals note — it is not a real compression codec.
const (
	CompressNone    byte = 0
	CompressXORMask byte = 1

	compressShift = 4
	compressMask  = 0x0F << compressShift
)

// PackType combines a page kind and a compression algorithm into a
// single on-disk type byte.
func PackType(kind, compression byte) byte {
	return kind | (compression << compressShift)
}

// UnpackType splits a type byte back into page kind and compression
// algorithm.
func UnpackType(t byte) (kind, compression byte) {
	kind = t &^ compressMask
	compression = (t & compressMask) >> compressShift
	return
}

// PageMemoryChild is the flat per-child-reference byte estimate added
// to a node's memory accounting for each entry in its children array
// (§3). It approximates the overhead of a PageReference slot itself,
// independent of the separator key's own memory cost.
const PageMemoryChild = 48

// ChildKindLeaf and ChildKindNode tag each per-child byte written in
// the on-disk format (§4.6 item 6).
const (
	ChildKindLeaf byte = 0
	ChildKindNode byte = 1
)
