package kdtree

import "sync"

// generation is one KdTreeIndex in a version chain, tagged with the
// TimeStamp it became visible at. A merge publishes a new generation for
// the main index and for the drained small role; Insert and Expunge on a
// small role write into its current generation in place.
type generation struct {
	createdAt TimeStamp
	index     *KdTreeIndex
	next      *generation // older generation, or nil
}

// VersionChain is an MVCC-style version chain over KdTreeIndex
// generations, adapted from the min-reader-tracking idea behind FiloDB's
// page-level FreeList: a generation is only discarded once no active
// reader's snapshot could still need it.
type VersionChain struct {
	mu      sync.RWMutex
	newest  *generation
	readers readerHeap // active reader snapshots, min-heap on TimeStamp
}

// NewVersionChain returns an empty chain; the first allocateIndex call
// establishes its initial generation.
func NewVersionChain() *VersionChain {
	return &VersionChain{}
}

// allocateIndex publishes index as the newest generation, stamped at ts.
// The caller must already hold whatever write-serialization it needs;
// VersionChain only protects its own linked list.
func (vc *VersionChain) allocateIndex(ts TimeStamp, index *KdTreeIndex) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.newest = &generation{createdAt: ts, index: index, next: vc.newest}
}

// traverseIndex walks the chain from newest to oldest and returns the
// first generation whose createdAt is at or before snapshot: the
// generation that was current as of that snapshot. ErrNoVisibleVersion
// is returned if snapshot predates every generation (the chain is empty,
// or every generation was created after snapshot - the reader is older
// than the index itself).
func (vc *VersionChain) traverseIndex(snapshot TimeStamp) (*KdTreeIndex, error) {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	for g := vc.newest; g != nil; g = g.next {
		if g.createdAt <= snapshot {
			return g.index, nil
		}
	}
	return nil, ErrNoVisibleVersion
}

// Current returns the newest generation, or nil if none has been
// allocated yet.
func (vc *VersionChain) Current() *KdTreeIndex {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	if vc.newest == nil {
		return nil
	}
	return vc.newest.index
}

// BeginRead registers snapshot as an active reader, returning a token to
// pass to EndRead. Discard will not prune any generation still needed by
// a registered reader.
func (vc *VersionChain) BeginRead(snapshot TimeStamp) int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.readers.push(snapshot)
}

// EndRead unregisters a reader previously registered with BeginRead.
func (vc *VersionChain) EndRead(token int) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.readers.remove(token)
}

// minReader returns the oldest active reader's snapshot, or the current
// clock value if there are no active readers (nothing blocks discard).
func (vc *VersionChain) minReader(fallback TimeStamp) TimeStamp {
	if vc.readers.Len() == 0 {
		return fallback
	}
	return vc.readers.min()
}

// Discard drops every generation older than the oldest snapshot any
// registered reader might still need, keeping at least the newest
// generation alive regardless. It returns the discarded KdTreeIndex
// values so the caller can release their arenas.
func (vc *VersionChain) Discard(currentClock TimeStamp) []*KdTreeIndex {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if vc.newest == nil {
		return nil
	}
	floor := vc.minReader(currentClock)

	var dropped []*KdTreeIndex
	g := vc.newest
	for g.next != nil {
		if g.createdAt <= floor {
			// Every live reader's snapshot is at or after floor, and
			// traverseIndex stops at the first generation with createdAt
			// <= snapshot, so no reader gets past g: everything older
			// than g is unreachable.
			for d := g.next; d != nil; d = d.next {
				dropped = append(dropped, d.index)
			}
			g.next = nil
			break
		}
		g = g.next
	}
	return dropped
}

// KdTreeIndexSet is the three version chains a KdTreeFile composes: the
// main index, and the two small-index roles ("small1"/"small2") that
// trade the executor role (new Insert calls land here) and the
// merge-side role (Merge drains this one) on every OpenForMerge. Keeping
// both small roles as their own VersionChain, rather than one
// write-absorbing tree, is what lets a merge drain one of them while
// Insert keeps landing in the other without ever blocking.
type KdTreeIndexSet struct {
	mu               sync.Mutex
	main             *VersionChain
	small1           *VersionChain
	small2           *VersionChain
	executorIsSmall1 bool
}

// NewKdTreeIndexSet returns a set with all three chains empty; small1
// starts as the executor.
func NewKdTreeIndexSet() *KdTreeIndexSet {
	return &KdTreeIndexSet{
		main:             NewVersionChain(),
		small1:           NewVersionChain(),
		small2:           NewVersionChain(),
		executorIsSmall1: true,
	}
}

// Main returns the main index's version chain.
func (s *KdTreeIndexSet) Main() *VersionChain { return s.main }

// Small1 returns the small1 role's version chain.
func (s *KdTreeIndexSet) Small1() *VersionChain { return s.small1 }

// Small2 returns the small2 role's version chain.
func (s *KdTreeIndexSet) Small2() *VersionChain { return s.small2 }

// AttachLog1 returns small1's current generation, or nil before the
// first allocateIndex.
func (s *KdTreeIndexSet) AttachLog1() *KdTreeIndex { return s.small1.Current() }

// AttachLog2 returns small2's current generation, or nil before the
// first allocateIndex.
func (s *KdTreeIndexSet) AttachLog2() *KdTreeIndex { return s.small2.Current() }

// AllocateLog1 publishes index as small1's newest generation.
func (s *KdTreeIndexSet) AllocateLog1(ts TimeStamp, index *KdTreeIndex) {
	s.small1.allocateIndex(ts, index)
}

// AllocateLog2 publishes index as small2's newest generation.
func (s *KdTreeIndexSet) AllocateLog2(ts TimeStamp, index *KdTreeIndex) {
	s.small2.allocateIndex(ts, index)
}

// ExecutorIsSmall1 reports whether small1 is currently the role that
// accepts Insert calls.
func (s *KdTreeIndexSet) ExecutorIsSmall1() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executorIsSmall1
}

// FlipExecutor swaps which small role is the executor, so the next
// Insert immediately lands in the other one, and reports which role is
// now the merge side (the one writes just left) so the caller can drain
// it. The flip itself is the entire cost of entering merge mode: no
// write is ever paused for it.
func (s *KdTreeIndexSet) FlipExecutor() (mergeIsSmall1 bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executorIsSmall1 = !s.executorIsSmall1
	return !s.executorIsSmall1
}
