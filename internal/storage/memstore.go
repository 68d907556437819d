// Package storage is the reference BTreeStorage/Chunk implementation
// (§6) used by this module's own tests and as a demonstration
// collaborator. It is deliberately an in-process stand-in — an
// append-only []byte arena per chunk plus an LRU resident-page cache —
// not a production persistent store: the real physical store, the
// chunk allocator, and the compression codec remain out of scope
// (§1). See DESIGN.md for the grounding of each piece.
package storage

import (
	"container/list"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"bplustree/internal/dbuf"
	"bplustree/internal/keytype"
	"bplustree/page"
)

type lruEntry struct {
	ref *page.Reference
	mem int
}

// Option configures a MemStorage at construction time. No
// configuration-file or flag-parsing library appears anywhere in this
// codebase's lineage (SPEC_FULL.md), so options are plain functional
// parameters, the way this lineage's own page manager already offers
// a "with cache size" constructor variant alongside the default one.
type Option func(*memConfig)

type memConfig struct {
	budget int
}

// WithMemoryBudget caps the total resident-page memory MemStorage will
// keep before GCIfNeeded starts evicting the least-recently-used
// pages. A budget of 0 (the default) disables eviction.
func WithMemoryBudget(budget int) Option {
	return func(c *memConfig) { c.budget = budget }
}

// MemStorage implements page.Storage. It is generic over the B-tree's
// key type so it can decode node pages with the caller's KeyType
// codec (§6).
type MemStorage[K any] struct {
	mu     sync.Mutex
	codec  keytype.Codec[K]
	logger *slog.Logger

	chunks      map[int32][]byte
	nextChunkID int32

	cacheList     *list.List
	cacheIndex    map[*page.Reference]*list.Element
	totalResident int
	budget        int

	removable map[page.Pos]bool
}

var _ page.Storage = (*MemStorage[int64])(nil)

// NewMemStorage builds a reference storage collaborator. A nil logger
// installs slog.Default(), matching this module's ambient-logging
// convention (SPEC_FULL.md).
func NewMemStorage[K any](codec keytype.Codec[K], logger *slog.Logger, opts ...Option) *MemStorage[K] {
	cfg := memConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemStorage[K]{
		codec:       codec,
		logger:      logger,
		chunks:      make(map[int32][]byte),
		nextChunkID: 1,
		cacheList:   list.New(),
		cacheIndex:  make(map[*page.Reference]*list.Element),
		budget:      cfg.budget,
		removable:   make(map[page.Pos]bool),
	}
}

// NewChunk starts a fresh write-back target: a Chunk with its own id
// and a growable DataBuffer for the writer thread to append into
// (§5's "the chunk buffer during write-back is owned exclusively by
// the writer thread" — MemStorage hands out a fresh buffer per call,
// never shares one across callers).
func (s *MemStorage[K]) NewChunk() (*Chunk, *dbuf.Buffer) {
	s.mu.Lock()
	id := s.nextChunkID
	s.nextChunkID++
	s.mu.Unlock()
	return &Chunk{id: id}, dbuf.New(4096)
}

// Commit persists a finished chunk's buffer into the arena and logs
// the checkpoint (§4.7's write-back completes when the caller commits
// the buffer it owned exclusively).
func (s *MemStorage[K]) Commit(c *Chunk, buf *dbuf.Buffer) {
	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())

	s.mu.Lock()
	s.chunks[c.id] = data
	s.mu.Unlock()

	s.logger.Info("chunk committed", "chunk", c.id, "bytes", len(data), "pages", len(c.extents))
}

// ReadPage materializes the page a reference points at from the
// committed chunk arena (§6).
func (s *MemStorage[K]) ReadPage(ref *page.Reference) (page.Page, *page.Info, error) {
	pos := ref.Pos()
	if pos == page.Unpersisted {
		return nil, nil, errors.Wrap(page.ErrIOFault, "read unpersisted reference")
	}
	chunkID, offset := decodePos(pos)

	s.mu.Lock()
	arena, ok := s.chunks[chunkID]
	s.mu.Unlock()
	if !ok {
		return nil, nil, errors.Wrapf(page.ErrIOFault, "chunk %d not found", chunkID)
	}
	if offset < 0 || offset+4 > len(arena) {
		return nil, nil, errors.Wrap(page.ErrIOFault, "short read: page length prefix")
	}
	length := int(binary.BigEndian.Uint32(arena[offset : offset+4]))
	if length < 4 || offset+length > len(arena) {
		return nil, nil, errors.Wrap(page.ErrCorruptPage, "page extends past chunk arena")
	}
	data := arena[offset : offset+length]

	p, err := s.decode(ref, data, pos, chunkID)
	if err != nil {
		return nil, nil, err
	}
	s.track(ref, p.Memory())

	buffCopy := make([]byte, length)
	copy(buffCopy, data)
	info := &page.Info{Buff: buffCopy, PageLength: length}
	s.logger.Debug("read page from disk", "pos", int64(pos), "bytes", length)
	return p, info, nil
}

// ReadPageFromBuffer materializes the page from a cached serialized
// buffer without touching the chunk arena (§6).
func (s *MemStorage[K]) ReadPageFromBuffer(ref *page.Reference, pos page.Pos, buff []byte, length int) (page.Page, error) {
	if length < 0 || length > len(buff) {
		return nil, errors.Wrap(page.ErrCorruptPage, "cached buffer shorter than recorded length")
	}
	chunkID, _ := decodePos(pos)
	p, err := s.decode(ref, buff[:length], pos, chunkID)
	if err != nil {
		return nil, err
	}
	s.track(ref, p.Memory())
	s.logger.Debug("read page from cached buffer", "pos", int64(pos), "bytes", length)
	return p, nil
}

func (s *MemStorage[K]) decode(ref *page.Reference, data []byte, pos page.Pos, chunkID int32) (page.Page, error) {
	if ref.IsLeaf() {
		return decodeLeafStub(data)
	}
	// Read verifies the check value against the buffer position it
	// starts at, which must be the page's offset within its chunk; data
	// holds only the page's own bytes, so it is placed at that offset.
	_, offset := decodePos(pos)
	chunkBuf := make([]byte, offset+len(data))
	copy(chunkBuf[offset:], data)
	buf := dbuf.Wrap(chunkBuf)
	buf.SetPosition(offset)
	n, err := page.Read[K](s.codec, buf, chunkID, pos, len(data))
	if err != nil {
		return nil, err
	}
	return n, nil
}

// GCIfNeeded folds memoryDelta into the resident-memory total and, if
// a budget was configured and exceeded, evicts least-recently-used
// tracked references until back under budget — the GC hook §4.1/§5
// describe, built on the same container/list LRU structure this
// lineage's own page cache already uses.
func (s *MemStorage[K]) GCIfNeeded(memoryDelta int) {
	s.mu.Lock()
	s.totalResident += memoryDelta
	var evicted []*page.Reference
	if s.budget > 0 {
		for s.totalResident > s.budget {
			back := s.cacheList.Back()
			if back == nil {
				break
			}
			entry := back.Value.(*lruEntry)
			s.cacheList.Remove(back)
			delete(s.cacheIndex, entry.ref)
			s.totalResident -= entry.mem
			evicted = append(evicted, entry.ref)
		}
	}
	s.mu.Unlock()

	for _, ref := range evicted {
		ref.ClearCache()
		s.logger.Debug("evicted resident page under memory pressure")
	}
}

// MarkRemovable records that the on-disk image at pos is superseded
// by a copy-on-write replacement and may be reclaimed by a later
// chunk-compaction pass — not implemented here, per §1's Non-goals.
func (s *MemStorage[K]) MarkRemovable(pos page.Pos) {
	if pos == page.Unpersisted {
		return
	}
	s.mu.Lock()
	s.removable[pos] = true
	s.mu.Unlock()
	s.logger.Debug("marked page removable", "pos", int64(pos))
}

// IsRemovable reports whether pos has been marked removable, exposed
// for tests asserting the copy-on-write bookkeeping.
func (s *MemStorage[K]) IsRemovable(pos page.Pos) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removable[pos]
}

func (s *MemStorage[K]) track(ref *page.Reference, mem int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.cacheIndex[ref]; ok {
		s.cacheList.MoveToFront(el)
		el.Value.(*lruEntry).mem = mem
		return
	}
	el := s.cacheList.PushFront(&lruEntry{ref: ref, mem: mem})
	s.cacheIndex[ref] = el
}
