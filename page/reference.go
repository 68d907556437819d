package page

import "sync/atomic"

// pageBox exists only so an interface value (Page) can be stored
// behind an atomic.Pointer, which requires a concrete element type.
type pageBox struct{ p Page }

// Reference is a slot in a node pointing at a child (§3, §4.1): it
// carries the child's on-disk position, optionally a resident
// in-memory page, optionally a cached serialized buffer (Info), and a
// back-pointer to the owning node's own reference so structural edits
// can rewire grandchildren after a split.
//
// A Reference does not own its page: the resident page cache (the
// storage collaborator) owns it, and the reference may observe that
// page has gone nil at any time due to GC eviction. page and pInfo are
// therefore interior-mutable atomic slots (§9) rather than plain
// fields, so a racing getPage/GC pair resolves without a lock: the
// last writer wins and both candidate pages are semantically
// equivalent (§5).
type Reference struct {
	page  atomic.Pointer[pageBox]
	pInfo atomic.Pointer[Info]
	pos   atomic.Int64

	parentRef atomic.Pointer[Reference]

	// leaf records the child kind when it cannot be derived from a
	// resident page (i.e. once pos != 0 and page has been evicted).
	// It is fixed at construction and never changes for a given
	// Reference, since copy-on-write always builds a fresh Reference
	// rather than mutating a published one's kind.
	leaf bool
}

// NewReference builds a reference to an unpersisted, resident page.
func NewReference(p Page) *Reference {
	r := &Reference{leaf: p.IsLeaf()}
	r.page.Store(&pageBox{p})
	return r
}

// NewPersistedReference builds a reference to a page already known to
// be on disk at pos, not yet resident (evicted state, §4.6 "Read
// reverses this sequence... each child reference is created in the
// evicted state").
func NewPersistedReference(pos Pos, leaf bool) *Reference {
	r := &Reference{leaf: leaf}
	r.pos.Store(int64(pos))
	return r
}

// Pos returns the reference's on-disk position, or Unpersisted if the
// child has never been written.
func (r *Reference) Pos() Pos { return Pos(r.pos.Load()) }

// SetPos records the position assigned to the child at write-back
// time (§4.7).
func (r *Reference) SetPos(p Pos) { r.pos.Store(int64(p)) }

// IsLeaf reports whether the referent is a leaf page, derived from the
// page itself while resident and from the fixed construction-time flag
// once persisted and evicted (§4.1).
func (r *Reference) IsLeaf() bool {
	if box := r.page.Load(); box != nil {
		return box.p.IsLeaf()
	}
	return r.leaf
}

// residentPage returns the currently resident page, or nil.
func (r *Reference) residentPage() Page {
	box := r.page.Load()
	if box == nil {
		return nil
	}
	return box.p
}

// Info returns the cached serialized buffer for this reference, or nil
// if none is cached.
func (r *Reference) Info() *Info { return r.pInfo.Load() }

// SetInfo installs a cached serialized buffer, produced either by a
// prior write or by a disk read (§4.1, §4.2 step 4).
func (r *Reference) SetInfo(info *Info) { r.pInfo.Store(info) }

// ClearCache releases both the resident page and the cached buffer, as
// write-back does immediately after a child has been persisted so a
// large checkpoint does not retain unbounded memory (§4.7 step 3).
func (r *Reference) ClearCache() {
	r.page.Store(nil)
	r.pInfo.Store(nil)
}

// ParentRef returns the back-pointer to the parent's own reference, or
// nil for the root.
func (r *Reference) ParentRef() *Reference { return r.parentRef.Load() }

// SetParentRef records the owning parent reference so structural edits
// can wire grandchildren correctly after a split (§4.1).
func (r *Reference) SetParentRef(parent *Reference) { r.parentRef.Store(parent) }

// ReplacePage atomically swaps the cached page. It tolerates the race
// where two concurrent GetPage calls each observed a nil page and each
// produced a fresh decoded copy: whichever call stores last wins, and
// since both candidates are decodes of the same bytes they are
// semantically interchangeable (§4.1, §5).
func (r *Reference) ReplacePage(p Page) {
	r.page.Store(&pageBox{p})
}

// GetPage resolves the reference to a resident page, materializing it
// through storage if necessary (§4.1):
//
//  1. if a page is already resident, return it;
//  2. else if a cached serialized buffer is present, decode from it
//     (no disk read);
//  3. else ask the storage collaborator to read it from disk.
//
// After materializing, the result is installed via ReplacePage, the
// Info produced during the read is cached, and the storage collaborator
// is told about the newly resident bytes for GC accounting.
func (r *Reference) GetPage(storage Storage) (Page, error) {
	if p := r.residentPage(); p != nil {
		return p, nil
	}

	var p Page
	if info := r.Info(); info != nil && info.Buff != nil {
		decoded, err := storage.ReadPageFromBuffer(r, r.Pos(), info.Buff, info.PageLength)
		if err != nil {
			return nil, err
		}
		p = decoded
	} else {
		decoded, pInfo, err := storage.ReadPage(r)
		if err != nil {
			return nil, err
		}
		p = decoded
		r.SetInfo(pInfo)
	}
	r.ReplacePage(p)
	storage.GCIfNeeded(p.Memory())
	return p, nil
}
