// Package dbuf implements the DataBuffer contract (§6): a growable,
// big-endian byte buffer with positioned put/get for 1/2/4/8-byte
// integers and variable-length integers, plus backward patching at a
// recorded offset that preserves the buffer's end position.
//
// No growable-buffer-with-patch library appears anywhere in this
// codebase's lineage; every serializer in the retrieved corpus
// hand-rolls its wire format directly on bytes.Buffer and
// encoding/binary, so this package does the same (see DESIGN.md).
package dbuf

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrVarIntOverflow is returned by GetVarInt when the
// encoded value does not fit in the target width within the maximum
// number of continuation bytes.
var ErrVarIntOverflow = errors.New("dbuf: varint overflow")

// Buffer is a positioned, growable byte buffer. The zero value is
// ready to use.
type Buffer struct {
	buf []byte
	pos int
}

// New returns a Buffer with cap bytes of pre-allocated backing storage.
func New(cap int) *Buffer {
	return &Buffer{buf: make([]byte, 0, cap)}
}

// Wrap returns a Buffer for reading an existing slice. The cursor
// starts at 0, so writes overwrite b from the cursor onward and grow
// it past its end as needed.
func Wrap(b []byte) *Buffer {
	return &Buffer{buf: b}
}

// Position returns the current read/write cursor.
func (b *Buffer) Position() int { return b.pos }

// SetPosition moves the cursor without truncating or growing the
// buffer; it is the caller's responsibility to keep it within bounds
// for subsequent reads.
func (b *Buffer) SetPosition(p int) { b.pos = p }

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int { return len(b.buf) }

// Bytes returns the buffer's backing slice. The caller must not retain
// it across further writes that may reallocate.
func (b *Buffer) Bytes() []byte { return b.buf }

func (b *Buffer) ensure(n int) {
	need := b.pos + n
	if need <= len(b.buf) {
		return
	}
	if need > cap(b.buf) {
		grown := make([]byte, len(b.buf), need*2+16)
		copy(grown, b.buf)
		b.buf = grown
	}
	b.buf = b.buf[:need]
}

// PutByte writes a single byte at the current position and advances it.
func (b *Buffer) PutByte(v byte) *Buffer {
	b.ensure(1)
	b.buf[b.pos] = v
	b.pos++
	return b
}

// PutShort writes a big-endian int16 at the current position.
func (b *Buffer) PutShort(v int16) *Buffer {
	b.ensure(2)
	binary.BigEndian.PutUint16(b.buf[b.pos:], uint16(v))
	b.pos += 2
	return b
}

// PutInt writes a big-endian int32 at the current position.
func (b *Buffer) PutInt(v int32) *Buffer {
	b.ensure(4)
	binary.BigEndian.PutUint32(b.buf[b.pos:], uint32(v))
	b.pos += 4
	return b
}

// PutLong writes a big-endian int64 at the current position.
func (b *Buffer) PutLong(v int64) *Buffer {
	b.ensure(8)
	binary.BigEndian.PutUint64(b.buf[b.pos:], uint64(v))
	b.pos += 8
	return b
}

// PutVarInt writes v using a LEB128-style variable-length encoding.
func (b *Buffer) PutVarInt(v int) *Buffer {
	u := uint64(uint32(v))
	for u >= 0x80 {
		b.PutByte(byte(u) | 0x80)
		u >>= 7
	}
	b.PutByte(byte(u))
	return b
}

// PutBytes appends raw bytes.
func (b *Buffer) PutBytes(p []byte) *Buffer {
	b.ensure(len(p))
	copy(b.buf[b.pos:], p)
	b.pos += len(p)
	return b
}

// PutIntAt patches a previously-written int32 at a fixed offset
// without disturbing the buffer's end position: the cursor is
// restored to where it was before the call returns.
func (b *Buffer) PutIntAt(offset int, v int32) {
	old := b.pos
	b.pos = offset
	b.PutInt(v)
	b.pos = old
}

// PutShortAt patches a previously-written int16 at a fixed offset,
// restoring the cursor afterward.
func (b *Buffer) PutShortAt(offset int, v int16) {
	old := b.pos
	b.pos = offset
	b.PutShort(v)
	b.pos = old
}

// PutLongAt patches a previously-written int64 at a fixed offset,
// restoring the cursor afterward.
func (b *Buffer) PutLongAt(offset int, v int64) {
	old := b.pos
	b.pos = offset
	b.PutLong(v)
	b.pos = old
}

// WithPatch moves the cursor to offset, invokes fn (which is expected
// to perform one or more positioned writes), then restores the cursor
// to wherever it was before the call — the pattern §4.7 step 4 uses to
// rewrite the child-position header after the subtree has been
// written.
func (b *Buffer) WithPatch(offset int, fn func(*Buffer)) {
	old := b.pos
	b.pos = offset
	fn(b)
	b.pos = old
}

func (b *Buffer) need(n int) error {
	if b.pos+n > len(b.buf) {
		return errors.Errorf("dbuf: read past end (pos=%d need=%d len=%d)", b.pos, n, len(b.buf))
	}
	return nil
}

// GetByte reads a single byte and advances the cursor.
func (b *Buffer) GetByte() (byte, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

// GetShort reads a big-endian int16 and advances the cursor.
func (b *Buffer) GetShort() (int16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.buf[b.pos:])
	b.pos += 2
	return int16(v), nil
}

// GetInt reads a big-endian int32 and advances the cursor.
func (b *Buffer) GetInt() (int32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.buf[b.pos:])
	b.pos += 4
	return int32(v), nil
}

// GetLong reads a big-endian int64 and advances the cursor.
func (b *Buffer) GetLong() (int64, error) {
	if err := b.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(b.buf[b.pos:])
	b.pos += 8
	return int64(v), nil
}

// GetVarInt reads a LEB128-style variable-length integer, rejecting
// encodings longer than 5 bytes (more than fits in an int32) as
// overflow.
func (b *Buffer) GetVarInt() (int, error) {
	var result uint32
	var shift uint
	for i := 0; i < 5; i++ {
		bb, err := b.GetByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(bb&0x7f) << shift
		if bb&0x80 == 0 {
			return int(int32(result)), nil
		}
		shift += 7
	}
	return 0, ErrVarIntOverflow
}

// GetBytes reads n raw bytes and advances the cursor. The returned
// slice is a copy; it does not alias the buffer's backing array.
func (b *Buffer) GetBytes(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.buf[b.pos:b.pos+n])
	b.pos += n
	return out, nil
}
