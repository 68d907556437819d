package storage

import "bplustree/page"

type extent struct {
	start      int
	pageLength int
	pageType   byte
}

// Chunk is the reference Chunk collaborator (§6): an append-only
// region identified by a 32-bit id, tracking the (offset, length,
// type) of every page appended to it. It is bound to a MemStorage
// instance, which assigns the id and owns the committed byte arena
// once the writer finishes (see MemStorage.Commit).
type Chunk struct {
	id      int32
	extents []extent
}

var _ page.Chunk = (*Chunk)(nil)

// ID returns the chunk's identifier.
func (c *Chunk) ID() int32 { return c.id }

// UpdateChunkAndPage records the extent of a just-written page and
// returns the Pos token the page should remember — here, the chunk id
// packed into the high 32 bits and the start offset into the low 32
// (§9's open question: the bit layout is this collaborator's call).
func (c *Chunk) UpdateChunkAndPage(start, pageLength int, pageType byte) page.Pos {
	c.extents = append(c.extents, extent{start, pageLength, pageType})
	return encodePos(c.id, start)
}

func encodePos(chunkID int32, offset int) page.Pos {
	return page.Pos(int64(uint32(chunkID))<<32 | int64(uint32(offset)))
}

func decodePos(pos page.Pos) (chunkID int32, offset int) {
	v := uint64(pos)
	chunkID = int32(v >> 32)
	offset = int(uint32(v))
	return chunkID, offset
}
