package storage

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"bplustree/internal/dbuf"
	"bplustree/page"
)

// LeafStub stands in for the out-of-scope leaf page (§1 "leaf-page
// logic" is an external collaborator). It carries just enough shape —
// an id, a Pos, a fixed memory estimate — to let MemStorage and the
// node page's write-back/read path exercise a real two-level tree
// end-to-end without inventing leaf-page semantics this module does
// not specify.
type LeafStub struct {
	id         int64
	pos        page.Pos
	mem        int
	accessTime atomic.Int64
}

var _ page.Page = (*LeafStub)(nil)
var _ page.Persistable = (*LeafStub)(nil)

const leafStubMarker byte = 0xFE
const leafStubTypeByte byte = 0x80 // distinct from any NodePage type byte

// NewLeafStub builds an unpersisted leaf stub identified by id.
func NewLeafStub(id int64) *LeafStub {
	return &LeafStub{id: id, mem: 32}
}

// ID returns the stub's identity, useful for asserting round-trips in
// tests.
func (l *LeafStub) ID() int64 { return l.id }

func (l *LeafStub) IsLeaf() bool       { return true }
func (l *LeafStub) IsNode() bool       { return false }
func (l *LeafStub) Pos() page.Pos      { return l.pos }
func (l *LeafStub) SetPos(p page.Pos)  { l.pos = p }
func (l *LeafStub) Memory() int        { return l.mem }
func (l *LeafStub) Touch(now int64)    { l.accessTime.Store(now) }
func (l *LeafStub) LastAccess() int64  { return l.accessTime.Load() }

// WriteUnsavedRecursive writes the stub's trivial format — a length
// prefix, a marker byte, and the id — and assigns its Pos via chunk.
// A leaf stub has no children, so there is nothing to recurse into.
func (l *LeafStub) WriteUnsavedRecursive(chunk page.Chunk, buf *dbuf.Buffer) error {
	if l.pos != page.Unpersisted {
		return nil
	}
	start := buf.Position()
	buf.PutInt(0)
	buf.PutByte(leafStubMarker)
	buf.PutLong(l.id)
	length := buf.Position() - start
	buf.PutIntAt(start, int32(length))
	l.pos = chunk.UpdateChunkAndPage(start, length, leafStubTypeByte)
	return nil
}

func decodeLeafStub(data []byte) (*LeafStub, error) {
	buf := dbuf.Wrap(data)
	length, err := buf.GetInt()
	if err != nil {
		return nil, errors.Wrap(page.ErrIOFault, err.Error())
	}
	if int(length) != len(data) {
		return nil, errors.Wrapf(page.ErrCorruptPage, "leaf stub length mismatch: got %d want %d", length, len(data))
	}
	marker, err := buf.GetByte()
	if err != nil {
		return nil, errors.Wrap(page.ErrIOFault, err.Error())
	}
	if marker != leafStubMarker {
		return nil, errors.Wrapf(page.ErrCorruptPage, "unknown leaf stub marker %d", marker)
	}
	id, err := buf.GetLong()
	if err != nil {
		return nil, errors.Wrap(page.ErrIOFault, err.Error())
	}
	return &LeafStub{id: id, mem: 32}, nil
}
