package page_test

import (
	"log/slog"
	"testing"

	"github.com/pkg/errors"

	"bplustree/internal/dbuf"
	"bplustree/internal/keytype"
	"bplustree/internal/storage"
	. "bplustree/page"
)

func leafRef(id int64) *Reference {
	return NewReference(storage.NewLeafStub(id))
}

func twoLeafNode() *NodePage[int64] {
	n := Create[int64](keytype.Int64Key{}, []int64{10}, []*Reference{leafRef(1), leafRef(2)}, 0)
	n.SetRef(NewReference(n))
	return n
}

func TestSplitAtLowMiddleHigh(t *testing.T) {
	for _, at := range []int{0, 1, 2} {
		n := Create[int64](keytype.Int64Key{},
			[]int64{10, 20, 30},
			[]*Reference{leafRef(1), leafRef(2), leafRef(3), leafRef(4)}, 0)

		sep, right, err := n.Split(at)
		if err != nil {
			t.Fatalf("split(%d): %v", at, err)
		}
		wantLeftKeys := at
		if len(n.Keys()) != wantLeftKeys {
			t.Fatalf("split(%d): left keys = %d, want %d", at, len(n.Keys()), wantLeftKeys)
		}
		if len(n.Children()) != wantLeftKeys+1 {
			t.Fatalf("split(%d): left children = %d, want %d", at, len(n.Children()), wantLeftKeys+1)
		}
		wantRightKeys := 3 - at - 1
		if len(right.Keys()) != wantRightKeys {
			t.Fatalf("split(%d): right keys = %d, want %d", at, len(right.Keys()), wantRightKeys)
		}
		if len(right.Children()) != wantRightKeys+1 {
			t.Fatalf("split(%d): right children = %d, want %d", at, len(right.Children()), wantRightKeys+1)
		}
		if sep != int64((at+1)*10) {
			t.Fatalf("split(%d): separator = %d, want %d", at, sep, (at+1)*10)
		}
	}
}

func TestSplitOutOfRange(t *testing.T) {
	n := Create[int64](keytype.Int64Key{}, []int64{10}, []*Reference{leafRef(1), leafRef(2)}, 0)
	if _, _, err := n.Split(5); err == nil {
		t.Fatal("expected invariant error for out of range split index")
	}
}

func TestCopyAndInsertChild(t *testing.T) {
	n := twoLeafNode()
	newLeft := leafRef(3)
	newRight := leafRef(4)

	newNode := n.CopyAndInsertChild(TmpNodePage[int64]{Key: 5, Left: newLeft, Right: newRight}, nil)

	if len(newNode.Keys()) != 2 || newNode.Keys()[0] != 5 || newNode.Keys()[1] != 10 {
		t.Fatalf("unexpected keys after insert: %v", newNode.Keys())
	}
	if len(newNode.Children()) != 3 {
		t.Fatalf("expected 3 children, got %d", len(newNode.Children()))
	}
	if newLeft.ParentRef() != newNode.Ref() || newRight.ParentRef() != newNode.Ref() {
		t.Fatal("inserted children were not reparented to the new node")
	}
	// original node untouched (copy-on-write)
	if len(n.Keys()) != 1 {
		t.Fatalf("receiver was mutated: keys = %v", n.Keys())
	}
}

func TestRemoveShrinksInPlace(t *testing.T) {
	n := Create[int64](keytype.Int64Key{},
		[]int64{10, 20},
		[]*Reference{leafRef(1), leafRef(2), leafRef(3)}, 0)

	if err := n.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(n.Keys()) != 1 || len(n.Children()) != 2 {
		t.Fatalf("remove did not shrink node: keys=%v children=%d", n.Keys(), len(n.Children()))
	}
}

func TestRemoveOutOfRangeKeyIndexIsInvariantError(t *testing.T) {
	n := Create[int64](keytype.Int64Key{},
		[]int64{10},
		[]*Reference{leafRef(1), leafRef(2)}, 0)

	err := n.Remove(1)
	if err == nil {
		t.Fatal("expected an invariant error, got nil")
	}
	var invErr *InvariantError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected *InvariantError, got %T: %v", err, err)
	}
}

func TestIsEmptyAndTotalCount(t *testing.T) {
	n := twoLeafNode()
	if n.IsEmpty() {
		t.Fatal("node with two children reported empty")
	}
	if n.TotalCount() != 2 {
		t.Fatalf("total count = %d, want 2", n.TotalCount())
	}

	empty := Create[int64](keytype.Int64Key{}, nil, nil, 0)
	if !empty.IsEmpty() {
		t.Fatal("node with no children reported non-empty")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	n := twoLeafNode()
	// a chunk issued by MemStorage has a non-zero id, so a page at offset
	// 0 still gets a Pos distinct from Unpersisted
	s := storage.NewMemStorage[int64](keytype.Int64Key{}, slog.New(slog.NewTextHandler(discard{}, nil)))
	c, buf := s.NewChunk()

	if _, err := n.Write(c, buf, CompressionNone); err != nil {
		t.Fatalf("write: %v", err)
	}
	if n.Pos() == Unpersisted {
		t.Fatal("write did not assign a position")
	}

	data := buf.Bytes()
	readBuf := dbuf.Wrap(data)
	got, err := Read[int64](keytype.Int64Key{}, readBuf, c.ID(), n.Pos(), len(data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Keys()) != 1 || got.Keys()[0] != 10 {
		t.Fatalf("round-tripped keys = %v", got.Keys())
	}
	if len(got.Children()) != 2 {
		t.Fatalf("round-tripped children = %d, want 2", len(got.Children()))
	}
	for _, c := range got.Children() {
		if !c.IsLeaf() {
			t.Fatal("round-tripped child lost leaf flag")
		}
	}
}

func TestWriteReadZeroKeyNode(t *testing.T) {
	root := storage.NewLeafStub(1)
	n := Create[int64](keytype.Int64Key{}, nil, []*Reference{NewReference(root)}, 0)
	c := &storage.Chunk{}
	buf := dbuf.New(64)

	if _, err := n.Write(c, buf, CompressionNone); err != nil {
		t.Fatalf("write: %v", err)
	}
	data := buf.Bytes()
	got, err := Read[int64](keytype.Int64Key{}, dbuf.Wrap(data), c.ID(), n.Pos(), len(data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Keys()) != 0 || len(got.Children()) != 1 {
		t.Fatalf("round-tripped zero-key node wrong shape: keys=%v children=%d", got.Keys(), len(got.Children()))
	}
}

func TestWriteUnsavedRecursiveTwoLevel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	s := storage.NewMemStorage[int64](keytype.Int64Key{}, logger)
	c, buf := s.NewChunk()

	child := twoLeafNode()
	root := Create[int64](keytype.Int64Key{}, nil, []*Reference{child.Ref()}, 0)

	if err := root.WriteUnsavedRecursive(c, buf); err != nil {
		t.Fatalf("write unsaved recursive: %v", err)
	}
	s.Commit(c, buf)

	if root.Pos() == Unpersisted {
		t.Fatal("root was not assigned a position")
	}
	if child.Pos() == Unpersisted {
		t.Fatal("child was not assigned a position")
	}
	if root.Children()[0].Pos() != child.Pos() {
		t.Fatalf("root's stored child position %d does not match child's actual position %d",
			root.Children()[0].Pos(), child.Pos())
	}

	// the child was cleared from residency after being flushed
	rootRef := NewPersistedReference(root.Pos(), false)
	got, err := rootRef.GetPage(s)
	if err != nil {
		t.Fatalf("read back root: %v", err)
	}
	readBackRoot, ok := got.(*NodePage[int64])
	if !ok {
		t.Fatalf("unexpected root type %T", got)
	}
	if len(readBackRoot.Children()) != 1 {
		t.Fatalf("read-back root has %d children, want 1", len(readBackRoot.Children()))
	}
	grandchild, err := readBackRoot.GetChildPage(0, s)
	if err != nil {
		t.Fatalf("read back child: %v", err)
	}
	childNode, ok := grandchild.(*NodePage[int64])
	if !ok {
		t.Fatalf("unexpected child type %T", grandchild)
	}
	if len(childNode.Keys()) != 1 || childNode.Keys()[0] != 10 {
		t.Fatalf("read-back child keys = %v", childNode.Keys())
	}
}

func TestEvictionThenRematerialize(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	s := storage.NewMemStorage[int64](keytype.Int64Key{}, logger)
	c, buf := s.NewChunk()

	child := twoLeafNode()
	root := Create[int64](keytype.Int64Key{}, nil, []*Reference{child.Ref()}, 0)
	if err := root.WriteUnsavedRecursive(c, buf); err != nil {
		t.Fatalf("write unsaved recursive: %v", err)
	}
	s.Commit(c, buf)

	ref := root.Children()[0]
	ref.ClearCache() // simulate GC eviction

	p, err := root.GetChildPage(0, s)
	if err != nil {
		t.Fatalf("rematerialize after eviction: %v", err)
	}
	if _, ok := p.(*NodePage[int64]); !ok {
		t.Fatalf("rematerialized page has unexpected type %T", p)
	}
}

func TestCorruptionDetected(t *testing.T) {
	n := twoLeafNode()
	c := &storage.Chunk{}
	buf := dbuf.New(256)
	if _, err := n.Write(c, buf, CompressionNone); err != nil {
		t.Fatalf("write: %v", err)
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	data[4] ^= 0xFF // flip a byte inside the check-value field

	_, err := Read[int64](keytype.Int64Key{}, dbuf.Wrap(data), c.ID(), n.Pos(), len(data))
	if err == nil {
		t.Fatal("expected corruption to be detected")
	}
	if !errors.Is(err, ErrCorruptPage) {
		t.Fatalf("expected ErrCorruptPage, got %v", err)
	}
}

// discard implements io.Writer without pulling in io/ioutil.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
