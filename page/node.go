package page

import (
	"time"

	"github.com/pkg/errors"

	"bplustree/internal/keytype"
	"bplustree/internal/pageutils"
)

// NodePage is a B-tree internal node packaged as a persistable page
// (§3, §4). It holds K sorted separator keys and K+1 child
// references; the invariant len(children) == len(keys)+1 holds for
// every node at every point where it is observable from outside a
// single in-progress structural edit.
type NodePage[K any] struct {
	base[K]
	children []*Reference
}

var _ Page = (*NodePage[int64])(nil)

// IsLeaf is always false for a NodePage.
func (*NodePage[K]) IsLeaf() bool { return false }

// IsNode is always true for a NodePage.
func (*NodePage[K]) IsNode() bool { return true }

// IsEmpty reports a node with no children, only reachable transiently
// during a remove cascade at the root.
func (n *NodePage[K]) IsEmpty() bool { return len(n.children) == 0 }

// Keys returns the node's separator keys. The caller must not mutate
// the returned slice once the page is published.
func (n *NodePage[K]) Keys() []K { return n.keys }

// Children returns the node's child references, length len(Keys())+1.
func (n *NodePage[K]) Children() []*Reference { return n.children }

// Ref returns this page's own reference slot in its parent (or the
// map's root sentinel, for the root page).
func (n *NodePage[K]) Ref() *Reference { return n.getRef() }

// SetRef installs this page's own reference slot.
func (n *NodePage[K]) SetRef(ref *Reference) { n.setRef(ref) }

// Create builds a fresh NodePage, either a brand-new node or a
// copy-on-write clone, computing memory from scratch when memory == 0
// (fresh construction) or taking the supplied value as the page's
// memory otherwise (the caller already knows the new total, e.g. from
// a copy or insert)
// (§4.1 "create(map, keys, children, memory)").
func Create[K any](codec keytype.Codec[K], keys []K, children []*Reference, memory int) *NodePage[K] {
	n := &NodePage[K]{}
	n.codec = codec
	n.keys = keys
	n.children = children
	if memory == 0 {
		n.recalculateMemory()
	} else {
		n.addMemory(memory)
	}
	return n
}

// recalculateMemory recomputes the running byte estimate from scratch:
// the sum of each key's codec estimate plus PageMemoryChild per child
// slot (§3, §4.3's "memory is recalculated on the shrunken node").
func (n *NodePage[K]) recalculateMemory() {
	mem := n.recalculateKeysMemory() + len(n.children)*pageutils.PageMemoryChild
	n.addMemory(mem - n.memory)
}

// TotalCount recursively counts resident descendant entries (§9
// "supplemented": a diagnostic absent from the distilled spec but
// present in the original source). It never forces a disk read: a
// child whose page has been evicted contributes zero rather than
// materializing it.
func (n *NodePage[K]) TotalCount() int64 {
	var total int64
	for _, c := range n.children {
		if p := c.residentPage(); p != nil {
			switch child := p.(type) {
			case *NodePage[K]:
				total += child.TotalCount()
			default:
				total++
			}
		}
	}
	return total
}

// childIndexForKey returns the index i such that every key in the
// subtree rooted at children[i] is strictly less than key and every
// key in children[i+1] is greater than or equal to key (§3's
// invariant, read as a search): the first index whose separator is
// greater than key, or len(keys) if none is. cachedCompare records the
// last hit so a monotonic access pattern (ascending inserts, a
// forward scan) can skip the full binary search.
func (n *NodePage[K]) childIndexForKey(key K) int {
	if hint := int(n.cachedCompare.Load()); hint >= 0 && hint < len(n.keys) {
		if n.codec.Compare(key, n.keys[hint]) < 0 && (hint == 0 || n.codec.Compare(key, n.keys[hint-1]) >= 0) {
			return hint
		}
	}

	lo, hi := 0, len(n.keys)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if n.codec.Compare(n.keys[mid], key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	n.cachedCompare.Store(int64(lo))
	return lo
}

// GetChildPage resolves children[i] to a resident page (§4.2),
// touching its access-time stamp (LastAccess) on the way out.
func (n *NodePage[K]) GetChildPage(i int, storage Storage) (Page, error) {
	if i < 0 || i >= len(n.children) {
		return nil, invariant("child index %d out of range [0,%d)", i, len(n.children))
	}
	r := n.children[i]
	if p := r.residentPage(); p != nil {
		p.Touch(now())
		return p, nil
	}
	p, err := r.GetPage(storage)
	if err != nil {
		return nil, errors.Wrapf(err, "page: get child %d", i)
	}
	p.Touch(now())
	return p, nil
}

func now() int64 { return time.Now().UnixNano() }

// Split is invoked when the node's byte count exceeds the configured
// page size (§4.3). It mutates the receiver in place — valid because
// split only ever runs on an unpublished working copy — to retain
// keys[0:at] and children[0:at+1], and returns a freshly created right
// sibling holding keys[at+1:] and children[at+1:]. The key at index at
// is the separator: it is returned alongside the sibling and belongs
// to neither child.
func (n *NodePage[K]) Split(at int) (separator K, right *NodePage[K], err error) {
	k := len(n.keys)
	if at < 0 || at >= k {
		return separator, nil, invariant("split index %d out of range [0,%d)", at, k)
	}

	separator = n.keys[at]
	a, b := at, k-at

	aKeys := make([]K, a)
	copy(aKeys, n.keys[:a])
	bKeys := make([]K, b-1)
	copy(bKeys, n.keys[at+1:])

	aChildren := make([]*Reference, a+1)
	copy(aChildren, n.children[:a+1])
	bChildren := make([]*Reference, b)
	copy(bChildren, n.children[at+1:])

	n.keys = aKeys
	n.children = aChildren
	n.recalculateMemory()

	right = Create(n.codec, bKeys, bChildren, 0)
	return separator, right, nil
}

// TmpNodePage is the triple a completed child-level split hands back
// up to the parent level (§4.4, GLOSSARY): the promoted separator key
// and the left/right references produced by the split.
type TmpNodePage[K any] struct {
	Key   K
	Left  *Reference
	Right *Reference
}

// CopyAndInsertChild builds a new NodePage with tmp's separator and
// child pair spliced in at the correct position (§4.4). The receiver
// is left untouched and, if it is persisted and storage is non-nil,
// its on-disk image is marked removable — copy-on-write semantics: no
// published page is ever mutated.
func (n *NodePage[K]) CopyAndInsertChild(tmp TmpNodePage[K], storage Storage) *NodePage[K] {
	i := n.childIndexForKey(tmp.Key)

	newKeys := make([]K, len(n.keys)+1)
	copy(newKeys, n.keys[:i])
	newKeys[i] = tmp.Key
	copy(newKeys[i+1:], n.keys[i:])

	newChildren := make([]*Reference, len(n.children)+1)
	copy(newChildren, n.children[:i])
	newChildren[i] = tmp.Left
	newChildren[i+1] = tmp.Right
	copy(newChildren[i+2:], n.children[i+1:])

	memDelta := n.codec.Memory(tmp.Key) + pageutils.PageMemoryChild
	newNode := n.copyWith(newKeys, newChildren, n.memory+memDelta, storage)

	tmp.Left.SetParentRef(newNode.getRef())
	tmp.Right.SetParentRef(newNode.getRef())
	return newNode
}

// Remove shrinks the node by one child slot and, unless it was the
// last remaining child, the key at the same index (§4.5). While keys
// remain, index must also be a valid key index: removing the last
// child slot of a node that still has keys returns an InvariantError.
// It is used only on an
// unpublished working copy: like Split, it mutates the receiver rather
// than copying.
func (n *NodePage[K]) Remove(index int) error {
	if index < 0 || index >= len(n.children) {
		return invariant("remove index %d out of range [0,%d)", index, len(n.children))
	}
	if len(n.keys) > 0 {
		if index >= len(n.keys) {
			return invariant("remove index %d out of range [0,%d) for keys", index, len(n.keys))
		}
		removed := n.keys[index]
		newKeys := make([]K, len(n.keys)-1)
		copy(newKeys, n.keys[:index])
		copy(newKeys[index:], n.keys[index+1:])
		n.keys = newKeys
		n.addMemory(-n.codec.Memory(removed))
	}

	n.addMemory(-pageutils.PageMemoryChild)
	newChildren := make([]*Reference, len(n.children)-1)
	copy(newChildren, n.children[:index])
	copy(newChildren[index:], n.children[index+1:])
	n.children = newChildren
	return nil
}

// Copy returns a copy-on-write clone of the receiver: same keys,
// children, memory and cachedCompare hint, taking over the receiver's
// own reference slot. If the receiver was already persisted, its
// on-disk image is reported to storage as superseded (§4.1 Lifecycle,
// §9 "cachedCompare hint propagation on copy").
func (n *NodePage[K]) Copy(storage Storage) *NodePage[K] {
	return n.copyWith(n.keys, n.children, n.memory, storage)
}

func (n *NodePage[K]) copyWith(keys []K, children []*Reference, memory int, storage Storage) *NodePage[K] {
	newNode := Create(n.codec, keys, children, memory)
	newNode.cachedCompare.Store(n.cachedCompare.Load())
	newNode.setRef(n.getRef())
	if storage != nil && n.Pos() != Unpersisted {
		storage.MarkRemovable(n.Pos())
	}
	return newNode
}
