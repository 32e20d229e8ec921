package kdtree

import "testing"

func TestVersionChainTraverseIndexSeesGenerationAsOfSnapshot(t *testing.T) {
	vc := NewVersionChain()
	idxA := &KdTreeIndex{}
	idxB := &KdTreeIndex{}
	idxC := &KdTreeIndex{}

	vc.allocateIndex(1, idxA)
	vc.allocateIndex(2, idxB)
	vc.allocateIndex(3, idxC)

	tests := []struct {
		snapshot TimeStamp
		want     *KdTreeIndex
	}{
		{1, idxA},
		{2, idxB},
		{3, idxC},
		{10, idxC}, // a snapshot newer than every generation sees the newest
	}
	for _, tt := range tests {
		got, err := vc.traverseIndex(tt.snapshot)
		if err != nil {
			t.Fatalf("traverseIndex(%d): %v", tt.snapshot, err)
		}
		if got != tt.want {
			t.Errorf("traverseIndex(%d) = %p, want %p", tt.snapshot, got, tt.want)
		}
	}
}

func TestVersionChainTraverseIndexTooOld(t *testing.T) {
	vc := NewVersionChain()
	vc.allocateIndex(5, &KdTreeIndex{})
	if _, err := vc.traverseIndex(1); err != ErrNoVisibleVersion {
		t.Errorf("traverseIndex before first generation = %v, want ErrNoVisibleVersion", err)
	}
}

func TestVersionChainDiscardKeepsReaderVisibleGenerations(t *testing.T) {
	vc := NewVersionChain()
	idxA := &KdTreeIndex{}
	idxB := &KdTreeIndex{}
	idxC := &KdTreeIndex{}
	vc.allocateIndex(1, idxA)
	vc.allocateIndex(2, idxB)
	vc.allocateIndex(3, idxC)

	token := vc.BeginRead(1)
	dropped := vc.Discard(3)

	for _, d := range dropped {
		if d == idxA {
			t.Error("Discard dropped a generation still visible to an active reader at snapshot 1")
		}
	}
	if _, err := vc.traverseIndex(1); err != nil {
		t.Errorf("generation for active reader's snapshot should survive Discard: %v", err)
	}
	vc.EndRead(token)
}

func TestVersionChainDiscardDropsUnreachableGenerations(t *testing.T) {
	vc := NewVersionChain()
	idxA := &KdTreeIndex{}
	idxB := &KdTreeIndex{}
	vc.allocateIndex(1, idxA)
	vc.allocateIndex(2, idxB)

	// No registered readers: Discard may drop everything older than the
	// current clock except the newest generation.
	dropped := vc.Discard(5)
	found := false
	for _, d := range dropped {
		if d == idxA {
			found = true
		}
	}
	if !found {
		t.Error("Discard with no active readers should drop the superseded generation")
	}
	if vc.Current() != idxB {
		t.Error("Discard must never drop the newest generation")
	}
}

func TestReaderHeapMinTracksOldest(t *testing.T) {
	var rh readerHeap
	rh.push(5)
	t2 := rh.push(1)
	rh.push(3)

	if got := rh.min(); got != 1 {
		t.Errorf("min() = %d, want 1", got)
	}
	rh.remove(t2)
	if got := rh.min(); got != 3 {
		t.Errorf("min() after removing the oldest = %d, want 3", got)
	}
}

func TestKdTreeIndexSetFlipExecutorSwapsRoles(t *testing.T) {
	s := NewKdTreeIndexSet()
	if !s.ExecutorIsSmall1() {
		t.Fatal("a fresh KdTreeIndexSet should start with small1 as executor")
	}

	mergeIsSmall1 := s.FlipExecutor()
	if !mergeIsSmall1 {
		t.Error("FlipExecutor() should report small1 as the merge side right after flipping away from it")
	}
	if s.ExecutorIsSmall1() {
		t.Error("ExecutorIsSmall1() should be false after FlipExecutor")
	}

	mergeIsSmall1 = s.FlipExecutor()
	if mergeIsSmall1 {
		t.Error("flipping back should report small2 as the merge side")
	}
	if !s.ExecutorIsSmall1() {
		t.Error("ExecutorIsSmall1() should be true after flipping back")
	}
}

func TestKdTreeIndexSetAttachAllocateLog(t *testing.T) {
	s := NewKdTreeIndexSet()
	if s.AttachLog1() != nil || s.AttachLog2() != nil {
		t.Fatal("a fresh KdTreeIndexSet should have no published small generations")
	}

	idx1 := &KdTreeIndex{}
	idx2 := &KdTreeIndex{}
	s.AllocateLog1(1, idx1)
	s.AllocateLog2(1, idx2)

	if s.AttachLog1() != idx1 {
		t.Error("AttachLog1() should return the generation AllocateLog1 published")
	}
	if s.AttachLog2() != idx2 {
		t.Error("AttachLog2() should return the generation AllocateLog2 published")
	}
}

func TestClockMonotonic(t *testing.T) {
	var c Clock
	prev := c.Current()
	for i := 0; i < 100; i++ {
		next := c.Next()
		if next <= prev {
			t.Fatalf("Next() = %d, not greater than previous %d", next, prev)
		}
		prev = next
	}
}
