package kdtree

import "sync"

// KdTreeIndex is one KD-tree generation: an Entry/Node arena plus the
// root NodeRef and a rowid -> EntryRef lookup used by Expunge (the tree
// itself offers no efficient rowid search). A small index grows in place
// through Insert calls; a main index is built in one go by buildIndex
// during a merge. Either is read concurrently under mu, and replacement
// by a fresh generation goes through a VersionChain.
type KdTreeIndex struct {
	mu        sync.RWMutex
	alloc     *Allocator
	root      NodeRef
	count     int
	dimension int
	byRowID   map[uint32]EntryRef
}

// NewKdTreeIndex returns an empty index ready to receive Insert calls.
func NewKdTreeIndex(dimension int, cfg Config) *KdTreeIndex {
	return &KdTreeIndex{
		alloc:     NewAllocator(dimension, cfg.AllocateUnitSize),
		root:      NilRef,
		dimension: dimension,
		byRowID:   make(map[uint32]EntryRef),
	}
}

// Insert adds one vector under rowid, growing the tree by descent from
// the root (or planting it as the root, if this is the first entry).
func (idx *KdTreeIndex) Insert(rowid uint32, values []float32) error {
	if len(values) != idx.dimension {
		return ErrBadDimension
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ref, e, err := idx.alloc.AllocateEntry()
	if err != nil {
		return err
	}
	e.init(rowid, values)

	nodeRef := idx.alloc.AllocateNode()
	idx.alloc.getNode(nodeRef).setEntryRef(ref)

	if idx.root == NilRef {
		idx.root = nodeRef
	} else {
		insertNode(idx.alloc, idx.root, ref)
	}
	idx.byRowID[rowid] = ref
	idx.count++
	return nil
}

// Expunge marks rowid's entry deleted in place. It remains reachable
// from the tree (per the redesign note: no physical rewrite on delete)
// but is skipped by every subsequent search via Entry.IsExpunged.
func (idx *KdTreeIndex) Expunge(rowid uint32) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ref, ok := idx.byRowID[rowid]
	if !ok {
		return false
	}
	idx.alloc.GetEntry(ref).Expunge()
	return true
}

// Count returns the number of rows ever inserted, including expunged
// ones still physically present.
func (idx *KdTreeIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count
}

// Dimension returns the vector width this index was built for.
func (idx *KdTreeIndex) Dimension() int { return idx.dimension }

// Search runs one nearest-neighbor query against this generation.
func (idx *KdTreeIndex) Search(query []float32, status *Status) ([]Result, error) {
	if len(query) != idx.dimension {
		return nil, ErrBadDimension
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	qe := NewEntry(0, query)
	NNSearch(idx.alloc, idx.root, qe, status)
	return status.Results(), nil
}

// buildIndex constructs a fresh KdTreeIndex over the given rowids in one
// shot, via the LoadEntry kernel followed by the hybrid parallel
// builder, used by a merge to rebuild the main index rather than growing
// it entry by entry. Rowids no longer present in vf (already physically
// reclaimed elsewhere) are silently dropped.
func buildIndex(dimension int, cfg Config, rowids []uint32, vf *VectorDataFile, pool *WorkerPool, signal *AbortSignal) (*KdTreeIndex, error) {
	idx := &KdTreeIndex{
		alloc:     NewAllocator(dimension, cfg.AllocateUnitSize),
		dimension: dimension,
		byRowID:   make(map[uint32]EntryRef, len(rowids)),
	}

	loaded, err := loadEntriesKernel(idx.alloc, vf, rowids, pool)
	if err != nil {
		return nil, err
	}

	refs := make([]EntryRef, 0, len(loaded))
	for _, le := range loaded {
		if !le.present {
			continue
		}
		refs = append(refs, le.ref)
		idx.byRowID[le.rowid] = le.ref
	}

	parallelBudget := cfg.KernelPoolSize
	root, err := makeTreeParallel(idx.alloc, refs, parallelBudget, pool, signal)
	if err != nil {
		return nil, err
	}
	idx.root = root
	idx.count = len(refs)
	return idx, nil
}

// Dump serializes this generation's tree to w (spec §6 Node dump format).
func (idx *KdTreeIndex) Dump(w *Archiver) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return dumpNode(idx.alloc, idx.root, w)
}

// LoadIndex is the inverse of Dump: it allocates a fresh arena and
// replays the pre-order stream back into a tree, also rebuilding the
// rowid -> EntryRef lookup that is never itself persisted.
func LoadIndex(dimension int, cfg Config, r *Archiver) (*KdTreeIndex, error) {
	idx := &KdTreeIndex{
		alloc:     NewAllocator(dimension, cfg.AllocateUnitSize),
		dimension: dimension,
		byRowID:   make(map[uint32]EntryRef),
	}
	root, err := loadNode(idx.alloc, r)
	if err != nil {
		return nil, err
	}
	idx.root = root
	idx.rebuildRowIDIndex(root)
	return idx, nil
}

func (idx *KdTreeIndex) rebuildRowIDIndex(ref NodeRef) {
	if ref == NilRef {
		return
	}
	n := idx.alloc.getNode(ref)
	e := idx.alloc.GetEntry(n.EntryRef())
	idx.byRowID[e.RowID()] = n.EntryRef()
	idx.count++
	if n.Right() != NilRef {
		idx.rebuildRowIDIndex(n.Right())
	}
	if n.Left() != NilRef {
		idx.rebuildRowIDIndex(n.Left())
	}
}

// Close releases this generation's arena. Callers must only call this
// once no reader can still reach the generation (see VersionChain.Discard).
func (idx *KdTreeIndex) Close() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.alloc.Clear()
}
