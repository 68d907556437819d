// Package page implements the node page subsystem: the in-memory,
// copy-on-write B-tree internal node (NodePage), its child slots
// (Reference), the cached-serialization sidecar (Info), and the
// shared local-page bookkeeping (base) described in spec sections
// 3-4. The higher-level map, leaf-page logic, chunk allocator,
// compression codec, key-type codec and persistent store are external
// collaborators; this package only states the contracts it needs from
// them (this file) and ships one concrete child kind, NodePage.
package page

import (
	"fmt"

	"github.com/pkg/errors"

	"bplustree/internal/dbuf"
)

// Pos is the opaque 64-bit page position token (§3). Zero means
// "not yet persisted". This package never decodes the bit layout —
// chunk id, in-chunk offset, length class, page type are the storage
// collaborator's concern — it only compares against zero and threads
// the token through reads and writes.
type Pos int64

// Unpersisted is the sentinel meaning "no on-disk location assigned".
const Unpersisted Pos = 0

// Error kinds (§7). Each is a sentinel usable with errors.Is; a
// collaborator or this package wraps one via github.com/pkg/errors so
// the caller keeps both the kind and the call chain.
var (
	// ErrCorruptPage: page length mismatch, check-value mismatch,
	// unknown type byte, or varint overflow on read.
	ErrCorruptPage = errors.New("page: corrupt page")
	// ErrIOFault: the underlying storage failed to read or write.
	ErrIOFault = errors.New("page: io fault")
	// ErrUnsupportedFormat: compression algorithm or page variant not
	// recognized.
	ErrUnsupportedFormat = errors.New("page: unsupported format")
)

// InvariantError reports a programming error — a split with an out of
// range index, a node with mismatched key/child lengths — rather than
// a transient or data-dependent condition (§7's "assertion class").
// It is returned, not panicked, so callers and tests can assert on it
// with errors.As, but the distinct type signals a caller bug.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "page: invariant violation: " + e.Msg }

func invariant(format string, args ...any) error {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// Page is the minimal shape every child kind exposes. The original
// source's deep LocalPage/NodePage/LeafPage inheritance (§9) collapses
// here to a shared interface plus one concrete struct, NodePage; a
// concrete LeafPage lives outside this package's scope (§1) — tests in
// this package use a tiny stand-in implementing this interface.
type Page interface {
	IsLeaf() bool
	IsNode() bool
	Pos() Pos
	SetPos(Pos)
	Memory() int
	Touch(now int64)
	LastAccess() int64
}

// Storage is the BTreeStorage contract (§6): resolve a reference to a
// resident page, either from a cached buffer or from disk, and signal
// memory pressure so the caller can run GC.
type Storage interface {
	// ReadPage materializes the page a reference points at from
	// disk, by its Pos. Used when the reference carries neither a
	// resident page nor a cached buffer. It also returns the Info
	// (the page's own serialized bytes) so the caller can cache it on
	// the reference for future eviction-friendly rematerialization.
	ReadPage(ref *Reference) (Page, *Info, error)
	// ReadPageFromBuffer materializes the page from a cached
	// serialized buffer without touching disk.
	ReadPageFromBuffer(ref *Reference, pos Pos, buff []byte, length int) (Page, error)
	// GCIfNeeded is advisory: it tells the storage collaborator that
	// roughly memoryDelta additional bytes are now resident, so it
	// can decide whether to evict.
	GCIfNeeded(memoryDelta int)
	// MarkRemovable informs the collaborator that the on-disk image
	// at pos (if any) is superseded by a newer copy-on-write version
	// and may be reclaimed by chunk compaction.
	MarkRemovable(pos Pos)
}

// Persistable is implemented by any child kind capable of flushing
// itself into a chunk buffer during write-back (§4.7). NodePage
// implements it; a concrete leaf page kind supplied by the caller must
// too, since leaf-page logic itself is out of this package's scope
// (§1) but write-back still needs to recurse through whatever sits at
// the leaf level.
type Persistable interface {
	Page
	WriteUnsavedRecursive(chunk Chunk, buf *dbuf.Buffer) error
}

// Chunk is the target buffer region a write-back appends into
// (§4.6-4.7, §6).
type Chunk interface {
	// ID returns the chunk's identifier, mixed into every check value
	// computed for a page stored in this chunk.
	ID() int32
	// UpdateChunkAndPage registers a just-written page's extent
	// (start offset, total length including the length header) and
	// on-disk type byte, and returns the opaque Pos token the page
	// should remember (§9's open question: the exact bit layout of
	// Pos is the storage collaborator's concern, not this package's).
	UpdateChunkAndPage(start, pageLength int, pageType byte) Pos
}
