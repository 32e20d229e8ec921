package kdtree

import (
	"bytes"
	"testing"
)

func buildTestAllocator(t *testing.T, dim int, vectors [][]float32) (*Allocator, []EntryRef) {
	t.Helper()
	a := NewAllocator(dim, int64(entrySize(dim)*64))
	refs := make([]EntryRef, len(vectors))
	for i, v := range vectors {
		ref, e, err := a.AllocateEntry()
		if err != nil {
			t.Fatalf("AllocateEntry: %v", err)
		}
		e.init(uint32(i), v)
		refs[i] = ref
	}
	return a, refs
}

func TestMakeTreeMedianExclusion(t *testing.T) {
	vectors := [][]float32{{1}, {2}, {3}, {4}, {5}}
	a, refs := buildTestAllocator(t, 1, vectors)
	defer a.Clear()

	root, err := makeTree(a, refs, nil)
	if err != nil {
		t.Fatalf("makeTree: %v", err)
	}

	// Every entry must appear exactly once across the tree; the median of
	// the full set (value 3) must be the root's own entry.
	rootEntry := a.GetEntry(a.getNode(root).EntryRef())
	if rootEntry.Value(0) != 3 {
		t.Errorf("root value = %v, want 3 (median of 1..5)", rootEntry.Value(0))
	}

	seen := map[uint32]int{}
	var walk func(ref NodeRef)
	walk = func(ref NodeRef) {
		if ref == NilRef {
			return
		}
		n := a.getNode(ref)
		e := a.GetEntry(n.EntryRef())
		seen[e.RowID()]++
		walk(n.Right())
		walk(n.Left())
	}
	walk(root)
	if len(seen) != len(vectors) {
		t.Fatalf("tree holds %d distinct rows, want %d", len(seen), len(vectors))
	}
	for rowid, count := range seen {
		if count != 1 {
			t.Errorf("rowid %d appears %d times, want 1", rowid, count)
		}
	}
}

func TestMakeTreeSingleEntry(t *testing.T) {
	a, refs := buildTestAllocator(t, 2, [][]float32{{1, 1}})
	defer a.Clear()

	root, err := makeTree(a, refs, nil)
	if err != nil {
		t.Fatalf("makeTree: %v", err)
	}
	n := a.getNode(root)
	if !n.IsLeaf() {
		t.Error("single-entry tree root should be a leaf")
	}
}

func TestMakeTreeEmpty(t *testing.T) {
	a := NewAllocator(2, int64(entrySize(2)))
	defer a.Clear()
	root, err := makeTree(a, nil, nil)
	if err != nil {
		t.Fatalf("makeTree: %v", err)
	}
	if root != NilRef {
		t.Errorf("makeTree(nil) root = %d, want NilRef", root)
	}
}

func TestMakeTreeAborted(t *testing.T) {
	a, refs := buildTestAllocator(t, 1, [][]float32{{1}, {2}, {3}})
	defer a.Clear()

	signal := NewAbortSignal()
	signal.Abort()
	if _, err := makeTree(a, refs, signal); err != ErrAborted {
		t.Errorf("makeTree with tripped signal = %v, want ErrAborted", err)
	}
}

func TestInsertNodeGrowsTree(t *testing.T) {
	a, refs := buildTestAllocator(t, 2, [][]float32{{0, 0}})
	defer a.Clear()

	root := a.AllocateNode()
	a.getNode(root).setEntryRef(refs[0])

	more := [][]float32{{5, 0}, {-5, 0}, {0, 5}}
	for i, v := range more {
		ref, e, err := a.AllocateEntry()
		if err != nil {
			t.Fatal(err)
		}
		e.init(uint32(10+i), v)
		insertNode(a, root, ref)
	}

	count := 0
	var walk func(ref NodeRef)
	walk = func(ref NodeRef) {
		if ref == NilRef {
			return
		}
		count++
		n := a.getNode(ref)
		walk(n.Right())
		walk(n.Left())
	}
	walk(root)
	if count != 1+len(more) {
		t.Errorf("tree has %d nodes after inserts, want %d", count, 1+len(more))
	}
}

func TestDumpLoadNodeRoundTrip(t *testing.T) {
	vectors := [][]float32{{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 10}}
	a, refs := buildTestAllocator(t, 2, vectors)
	defer a.Clear()

	root, err := makeTree(a, refs, nil)
	if err != nil {
		t.Fatalf("makeTree: %v", err)
	}

	var buf bytes.Buffer
	w := NewArchiverWriter(&buf)
	if err := dumpNode(a, root, w); err != nil {
		t.Fatalf("dumpNode: %v", err)
	}

	b2 := NewAllocator(2, int64(entrySize(2)*64))
	defer b2.Clear()
	r := NewArchiverReader(&buf)
	loadedRoot, err := loadNode(b2, r)
	if err != nil {
		t.Fatalf("loadNode: %v", err)
	}

	var collect func(alloc *Allocator, ref NodeRef, out map[uint32][2]float32)
	collect = func(alloc *Allocator, ref NodeRef, out map[uint32][2]float32) {
		if ref == NilRef {
			return
		}
		n := alloc.getNode(ref)
		e := alloc.GetEntry(n.EntryRef())
		out[e.RowID()] = [2]float32{e.Value(0), e.Value(1)}
		collect(alloc, n.Right(), out)
		collect(alloc, n.Left(), out)
	}

	original := map[uint32][2]float32{}
	collect(a, root, original)
	loaded := map[uint32][2]float32{}
	collect(b2, loadedRoot, loaded)

	if len(original) != len(loaded) {
		t.Fatalf("loaded %d rows, want %d", len(loaded), len(original))
	}
	for rowid, vals := range original {
		got, ok := loaded[rowid]
		if !ok {
			t.Errorf("rowid %d missing after round trip", rowid)
			continue
		}
		if got != vals {
			t.Errorf("rowid %d values = %v, want %v", rowid, got, vals)
		}
	}
}

func TestDumpEmptyTreeSentinel(t *testing.T) {
	a := NewAllocator(1, int64(entrySize(1)))
	defer a.Clear()

	var buf bytes.Buffer
	w := NewArchiverWriter(&buf)
	if err := dumpNode(a, NilRef, w); err != nil {
		t.Fatalf("dumpNode(NilRef): %v", err)
	}

	r := NewArchiverReader(&buf)
	root, err := loadNode(a, r)
	if err != nil {
		t.Fatalf("loadNode: %v", err)
	}
	if root != NilRef {
		t.Errorf("loadNode of empty-tree sentinel = %d, want NilRef", root)
	}
}

func TestNNSearchFindsNearest(t *testing.T) {
	vectors := [][]float32{{0, 0}, {10, 10}, {20, 20}, {-5, -5}, {100, 100}}
	a, refs := buildTestAllocator(t, 2, vectors)
	defer a.Clear()
	root, err := makeTree(a, refs, nil)
	if err != nil {
		t.Fatalf("makeTree: %v", err)
	}

	for _, trace := range []TraceType{TraceNormal, TraceSerial, TraceRicohVisualSearch} {
		status := NewStatus(trace, -1, 1, nil)
		query := NewEntry(0, []float32{1, 1})
		best, dsq := NNSearch(a, root, query, status)
		if !best.valid() {
			t.Fatalf("trace %d: NNSearch returned no entry", trace)
		}
		if best.RowID() != 0 {
			t.Errorf("trace %d: nearest rowid = %d, want 0 (vector {0,0})", trace, best.RowID())
		}
		if dsq != 2 {
			t.Errorf("trace %d: nearest dsq = %v, want 2", trace, dsq)
		}
	}
}

func TestNNSearchSkipsExpunged(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 1}}
	a, refs := buildTestAllocator(t, 2, vectors)
	defer a.Clear()
	root, err := makeTree(a, refs, nil)
	if err != nil {
		t.Fatalf("makeTree: %v", err)
	}
	a.GetEntry(refs[0]).Expunge()

	status := NewStatus(TraceSerial, -1, 1, nil)
	query := NewEntry(0, []float32{0, 0})
	best, _ := NNSearch(a, root, query, status)
	if best.RowID() != 1 {
		t.Errorf("nearest rowid with row 0 expunged = %d, want 1", best.RowID())
	}
}

func TestNNSearchEmptyTree(t *testing.T) {
	status := NewStatus(TraceNormal, -1, 1, nil)
	query := NewEntry(0, []float32{0, 0})
	best, dsq := NNSearch(nil, NilRef, query, status)
	if best.valid() {
		t.Error("NNSearch on an empty tree should return an invalid entry")
	}
	if dsq != maxDsq {
		t.Errorf("NNSearch on an empty tree dsq = %v, want maxDsq", dsq)
	}
}
