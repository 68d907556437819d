package page

// Info caches the raw serialized bytes of a persisted page plus its
// length (§3, "PageInfo"). It lets a Reference rebuild the in-memory
// form without a disk read when the resident page object was merely
// evicted by the GC, not reclaimed from disk.
type Info struct {
	Buff       []byte
	PageLength int
}
