package page

import (
	"github.com/pkg/errors"

	"bplustree/internal/checkval"
	"bplustree/internal/dbuf"
	"bplustree/internal/keytype"
	"bplustree/internal/pageutils"
)

// Compression selects the body transform applied by write and
// reversed by read. CompressionNone is the only real option — per
// SPEC_FULL.md's Non-goals, a second "xorMask" arm exists solely so
// the compression branch in this file has two real paths to exercise,
// not as a usable codec.
type Compression byte

const (
	CompressionNone    Compression = Compression(pageutils.CompressNone)
	CompressionXORMask Compression = Compression(pageutils.CompressXORMask)
)

const xorMaskByte = 0x5A

// Write serializes the node into buf per §4.6 and registers the
// resulting extent with chunk, assigning this page's Pos. It returns
// the buffer offset where the K+1 child positions begin, so the
// caller (writeUnsavedRecursive) can return there and patch in
// positions that were still unknown (0) at the time of this call.
func (n *NodePage[K]) Write(chunk Chunk, buf *dbuf.Buffer, compression Compression) (patchPos int, err error) {
	start := buf.Position()
	keyLen := len(n.keys)

	buf.PutInt(0) // pageLength placeholder
	checkPos := buf.Position()
	buf.PutShort(0) // checkValue placeholder
	buf.PutVarInt(keyLen)

	typeByte := pageutils.PackType(pageutils.PageTypeNode, byte(compression))
	buf.PutByte(typeByte)

	patchPos = buf.Position()
	for i := 0; i <= keyLen; i++ {
		buf.PutLong(int64(n.children[i].Pos()))
	}
	for i := 0; i <= keyLen; i++ {
		if n.children[i].IsLeaf() {
			buf.PutByte(pageutils.ChildKindLeaf)
			buf.PutInt(0) // reserved replication-host slot (§9 open question)
		} else {
			buf.PutByte(pageutils.ChildKindNode)
		}
	}

	bodyStart := buf.Position()
	if err := n.codec.Write(buf, n.keys, keyLen); err != nil {
		return 0, errors.Wrap(err, "page: write key body")
	}
	if compression == CompressionXORMask {
		applyXORMask(buf, bodyStart, buf.Position())
	}

	pageLength := buf.Position() - start
	buf.PutIntAt(start, int32(pageLength))
	cv := checkval.Compute(chunk.ID(), start, pageLength)
	buf.PutShortAt(checkPos, int16(cv))

	pos := chunk.UpdateChunkAndPage(start, pageLength, typeByte)
	n.SetPos(pos)
	return patchPos, nil
}

func applyXORMask(buf *dbuf.Buffer, from, to int) {
	b := buf.Bytes()
	for i := from; i < to; i++ {
		b[i] ^= xorMaskByte
	}
}

// Read deserializes a node page from buf, reversing Write exactly
// (§4.6 "Read reverses this sequence"). expectedLength, when nonzero,
// is cross-checked against the decoded page length (as the original
// source's expectedPageLength / disableCheck parameters do); pass 0 to
// skip that check.
func Read[K any](codec keytype.Codec[K], buf *dbuf.Buffer, chunkID int32, pos Pos, expectedLength int) (*NodePage[K], error) {
	start := buf.Position()
	pageLength, err := buf.GetInt()
	if err != nil {
		return nil, errors.Wrap(ErrIOFault, err.Error())
	}
	if expectedLength != 0 && int(pageLength) != expectedLength {
		return nil, errors.Wrapf(ErrCorruptPage, "page length mismatch: got %d want %d", pageLength, expectedLength)
	}

	checkValue, err := buf.GetShort()
	if err != nil {
		return nil, errors.Wrap(ErrIOFault, err.Error())
	}
	if !checkval.Verify(chunkID, start, int(pageLength), uint16(checkValue)) {
		return nil, errors.Wrapf(ErrCorruptPage, "check value mismatch at chunk %d offset %d", chunkID, start)
	}

	keyLen, err := buf.GetVarInt()
	if err != nil {
		return nil, errors.Wrap(ErrCorruptPage, "read key length: "+err.Error())
	}
	if keyLen < 0 {
		return nil, errors.Wrapf(ErrCorruptPage, "negative key length %d", keyLen)
	}

	typeByte, err := buf.GetByte()
	if err != nil {
		return nil, errors.Wrap(ErrIOFault, err.Error())
	}
	kind, compression := pageutils.UnpackType(typeByte)
	if kind != pageutils.PageTypeNode {
		return nil, errors.Wrapf(ErrCorruptPage, "expected node page type, got %d", kind)
	}
	if compression != pageutils.CompressNone && compression != pageutils.CompressXORMask {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "unknown compression algorithm %d", compression)
	}

	positions := make([]Pos, keyLen+1)
	for i := range positions {
		p, err := buf.GetLong()
		if err != nil {
			return nil, errors.Wrap(ErrCorruptPage, "read child position: "+err.Error())
		}
		positions[i] = Pos(p)
	}

	children := make([]*Reference, keyLen+1)
	for i := range children {
		childKind, err := buf.GetByte()
		if err != nil {
			return nil, errors.Wrap(ErrCorruptPage, "read child kind: "+err.Error())
		}
		leaf := childKind == pageutils.ChildKindLeaf
		if leaf {
			if _, err := buf.GetInt(); err != nil { // reserved replication slot, discarded
				return nil, errors.Wrap(ErrCorruptPage, "read reserved child slot: "+err.Error())
			}
		}
		children[i] = NewPersistedReference(positions[i], leaf)
	}

	bodyStart := buf.Position()
	bodyEnd := start + int(pageLength)
	if compression == pageutils.CompressXORMask {
		applyXORMask(buf, bodyStart, bodyEnd)
	}

	keys := make([]K, keyLen)
	if err := codec.Read(buf, keys, keyLen); err != nil {
		return nil, errors.Wrap(err, "page: read key body")
	}

	n := Create(codec, keys, children, 0)
	n.SetPos(pos)
	for _, c := range children {
		c.SetParentRef(n.getRef())
	}
	return n, nil
}

// WriteUnsavedRecursive flushes the unsaved subtree rooted at n into
// chunk/buf (§4.7). Idempotent: a second call on an already-persisted
// page returns immediately, since pos != 0 after the first call.
//
// Ordering guarantee: every descendant receives a position before its
// parent's header references it (§5), because each resident child is
// written, depth-first, before this node's header is patched with the
// real positions.
func (n *NodePage[K]) WriteUnsavedRecursive(chunk Chunk, buf *dbuf.Buffer) error {
	if n.Pos() != Unpersisted {
		return nil
	}

	patchPos, err := n.Write(chunk, buf, CompressionNone)
	if err != nil {
		return err
	}

	for _, c := range n.children {
		if p := c.residentPage(); p != nil {
			persistable, ok := p.(Persistable)
			if !ok {
				return invariant("resident child is not Persistable: %T", p)
			}
			if err := persistable.WriteUnsavedRecursive(chunk, buf); err != nil {
				return err
			}
			c.SetPos(persistable.Pos())
		}
		c.ClearCache()
	}

	end := buf.Position()
	buf.SetPosition(patchPos)
	for _, c := range n.children {
		buf.PutLong(int64(c.Pos()))
	}
	buf.SetPosition(end)
	return nil
}
