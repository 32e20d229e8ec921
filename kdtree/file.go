package kdtree

import (
	"path/filepath"
	"sync"
)

// KdTreeFile is the top-level handle a caller attaches to: an
// MVCC-versioned main index that only a Merge rebuilds wholesale, and
// two write-absorbing small-index roles that trade the executor role
// (new Insert calls land here) and the merge-side role (Merge drains
// this one) every time OpenForMerge is called. A shared vector store
// backs all three, and the plumbing (expunge set, merge reserve,
// batch-mode gate) ties them together.
type KdTreeFile struct {
	mu              sync.RWMutex
	id              string
	dir             string
	dimension       int
	cfg             Config
	attached        bool
	batchMode       bool // SetBatchMode: bulk-load gate, rejects all Insert
	mergeInProgress bool // OpenForMerge/CloseForMerge bracket; never blocks Insert

	clock      Clock
	set        *KdTreeIndexSet
	small1Aux  *BtreeDataFile
	small2Aux  *BtreeDataFile
	vectorFile *VectorDataFile
	expunged   *ExpungeSet

	small1IndexFile *IndexFile
	small2IndexFile *IndexFile
	mainIndexFile   *IndexFile

	reserve  *MergeReserve
	disabler AutoDisabler
	pool     *WorkerPool
}

// OpenKdTreeFile opens or creates the on-disk state for id under dir. The
// pool and reserve are shared across every KdTreeFile the caller manages,
// the way one worker pool and one merge daemon serve an entire database
// rather than one per file.
func OpenKdTreeFile(dir, id string, dimension int, cfg Config, reserve *MergeReserve, pool *WorkerPool) (*KdTreeFile, error) {
	cfg = NewConfig(cfg)
	base := filepath.Join(dir, id)

	vectorFile, err := OpenVectorDataFile(base+".vec", dimension)
	if err != nil {
		return nil, err
	}
	small1IndexFile, err := OpenIndexFile(base + ".small1")
	if err != nil {
		return nil, err
	}
	small2IndexFile, err := OpenIndexFile(base + ".small2")
	if err != nil {
		return nil, err
	}
	mainIndexFile, err := OpenIndexFile(base + ".main")
	if err != nil {
		return nil, err
	}

	small1, err := small1IndexFile.Load(dimension, cfg)
	if err != nil {
		return nil, err
	}
	small2, err := small2IndexFile.Load(dimension, cfg)
	if err != nil {
		return nil, err
	}
	mainIdx, err := mainIndexFile.Load(dimension, cfg)
	if err != nil {
		return nil, err
	}

	f := &KdTreeFile{
		id:              id,
		dir:             dir,
		dimension:       dimension,
		cfg:             cfg,
		set:             NewKdTreeIndexSet(),
		small1Aux:       NewBtreeDataFile(),
		small2Aux:       NewBtreeDataFile(),
		vectorFile:      vectorFile,
		expunged:        NewExpungeSet(),
		small1IndexFile: small1IndexFile,
		small2IndexFile: small2IndexFile,
		mainIndexFile:   mainIndexFile,
		reserve:         reserve,
		pool:            pool,
	}
	// Rebuild each small role's ordered store from its loaded dump.
	for _, p := range []struct {
		idx *KdTreeIndex
		aux *BtreeDataFile
	}{{small1, f.small1Aux}, {small2, f.small2Aux}} {
		for rowid, ref := range p.idx.byRowID {
			p.aux.Insert(rowid, nil)
			if p.idx.alloc.GetEntry(ref).IsExpunged() {
				p.aux.Expunge(rowid)
			}
		}
	}
	f.set.AllocateLog1(f.clock.Next(), small1)
	f.set.AllocateLog2(f.clock.Next(), small2)
	f.set.Main().allocateIndex(f.clock.Next(), mainIdx)
	return f, nil
}

// Attach marks the file usable by Insert/Expunge/NNSearch.
func (f *KdTreeFile) Attach() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = true
	return nil
}

// Detach marks the file unusable until Attach is called again.
func (f *KdTreeFile) Detach() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = false
	return nil
}

func (f *KdTreeFile) checkAttached() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.attached {
		return ErrFileNotAttached
	}
	return nil
}

// SetBatchMode toggles the bulk-load gate: while active, Insert is
// rejected with ErrBatchModeActive so a caller driving a bulk attach-time
// load has exclusive rights to the small indices' shape for as long as
// it needs. This is independent of OpenForMerge/Merge/CloseForMerge,
// which never pause Insert.
func (f *KdTreeFile) SetBatchMode(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchMode = active
	return nil
}

// executorSlot returns the chain and ordered auxiliary store Insert
// should target right now, read under f.mu so it never observes a torn
// view of which role is executor.
func (f *KdTreeFile) executorSlot() (*VersionChain, *BtreeDataFile) {
	f.mu.RLock()
	isSmall1 := f.set.ExecutorIsSmall1()
	f.mu.RUnlock()
	if isSmall1 {
		return f.set.Small1(), f.small1Aux
	}
	return f.set.Small2(), f.small2Aux
}

// Insert stores values under a freshly allocated rowid and returns it.
// Disabled only while SetBatchMode(true) is active; an in-flight merge
// never blocks it.
func (f *KdTreeFile) Insert(values []float32) (uint32, error) {
	if err := f.checkAttached(); err != nil {
		return 0, err
	}
	if len(values) != f.dimension {
		return 0, ErrBadDimension
	}

	f.mu.RLock()
	batch := f.batchMode
	f.mu.RUnlock()
	if batch {
		return 0, ErrBatchModeActive
	}

	rowid, err := f.vectorFile.Append(values)
	if err != nil {
		return 0, err
	}

	chain, aux := f.executorSlot()
	idx := chain.Current()
	if err := idx.Insert(rowid, values); err != nil {
		return 0, err
	}
	aux.Insert(rowid, nil)

	if live := aux.Count(); !f.disabler.IsDisabled() && live >= f.cfg.MergeCountThreshold {
		f.reserve.Push(&MergeJob{FileID: f.id, Priority: live})
	}
	return rowid, nil
}

// Expunge tombstones rowid so no subsequent search returns it, in
// whichever of the three indices (main, small1, small2) currently holds
// it.
func (f *KdTreeFile) Expunge(rowid uint32) error {
	if err := f.checkAttached(); err != nil {
		return err
	}
	f.expunged.Add(rowid)
	if idx := f.set.Main().Current(); idx != nil {
		idx.Expunge(rowid)
	}
	if idx := f.set.Small1().Current(); idx != nil {
		idx.Expunge(rowid)
	}
	if idx := f.set.Small2().Current(); idx != nil {
		idx.Expunge(rowid)
	}
	f.small1Aux.Expunge(rowid)
	f.small2Aux.Expunge(rowid)
	return nil
}

// NNSearch runs a nearest-neighbor query against all three indices as of
// the caller's current snapshot, merging their hits. Both small roots
// are searched: a merge in flight drains one of them but it stays live
// (and visible to a reader who began before the drain) until the merge
// publishes its reset.
func (f *KdTreeFile) NNSearch(query []float32, trace TraceType, budget, limit int) ([]Result, error) {
	if err := f.checkAttached(); err != nil {
		return nil, err
	}
	if len(query) != f.dimension {
		return nil, ErrBadDimension
	}

	snapshot := f.clock.Current()

	mainTok := f.set.Main().BeginRead(snapshot)
	defer f.set.Main().EndRead(mainTok)
	small1Tok := f.set.Small1().BeginRead(snapshot)
	defer f.set.Small1().EndRead(small1Tok)
	small2Tok := f.set.Small2().BeginRead(snapshot)
	defer f.set.Small2().EndRead(small2Tok)

	mainIdx, err := f.set.Main().traverseIndex(snapshot)
	if err != nil {
		return nil, err
	}
	small1Idx, err := f.set.Small1().traverseIndex(snapshot)
	if err != nil {
		return nil, err
	}
	small2Idx, err := f.set.Small2().traverseIndex(snapshot)
	if err != nil {
		return nil, err
	}

	status := NewStatus(trace, budget, limit, f.expunged)
	qe := NewEntry(0, query)

	// Each index lives in its own independent arena, so they cannot
	// share one NNSearch call; doSearchKernel runs all three (via the
	// shared pool) and merges their hits into the same Status, giving
	// each small-index root half the caller's distance budget.
	roots := []searchRoot{
		{alloc: mainIdx.alloc, root: mainIdx.root},
		{alloc: small1Idx.alloc, root: small1Idx.root, isSmall: true},
		{alloc: small2Idx.alloc, root: small2Idx.root, isSmall: true},
	}
	doSearchKernel(roots, qe, status, f.pool)
	return status.Results(), nil
}

// OpenForMerge flips which small-index role is the executor, so any
// Insert arriving after this call lands in the other role while Merge
// drains the one writes just left. The flip is the entire cost of
// entering merge mode: Insert is never paused.
func (f *KdTreeFile) OpenForMerge() error {
	f.mu.Lock()
	if f.mergeInProgress {
		f.mu.Unlock()
		return nil
	}
	f.mergeInProgress = true
	f.mu.Unlock()

	f.disabler.Disable()
	mergeIsSmall1 := f.set.FlipExecutor()
	if mergeIsSmall1 {
		f.small1IndexFile.info.SetMergeInProgress(true)
	} else {
		f.small2IndexFile.info.SetMergeInProgress(true)
	}
	return nil
}

// CloseForMerge exits the OpenForMerge bracket.
func (f *KdTreeFile) CloseForMerge() error {
	f.mu.Lock()
	if !f.mergeInProgress {
		f.mu.Unlock()
		return ErrMergeNotOpen
	}
	f.mergeInProgress = false
	f.mu.Unlock()

	f.disabler.Enable()
	if f.set.ExecutorIsSmall1() {
		f.small2IndexFile.info.SetMergeInProgress(false)
	} else {
		f.small1IndexFile.info.SetMergeInProgress(false)
	}
	return nil
}

// mergeSideSlot returns the chain, ordered auxiliary store, and dump
// file for whichever small role OpenForMerge made the merge side (the
// complement of the current executor).
func (f *KdTreeFile) mergeSideSlot() (*VersionChain, *BtreeDataFile, *IndexFile) {
	if f.set.ExecutorIsSmall1() {
		return f.set.Small2(), f.small2Aux, f.small2IndexFile
	}
	return f.set.Small1(), f.small1Aux, f.small1IndexFile
}

// Merge folds every row currently in the merge-side small index into a
// freshly built main index generation, publishes it, and resets the
// merge-side role to empty. It must run within an OpenForMerge/
// CloseForMerge bracket; it never touches the executor role, so writes
// keep flowing throughout.
func (f *KdTreeFile) Merge(signal *AbortSignal) error {
	f.mu.RLock()
	inProgress := f.mergeInProgress
	f.mu.RUnlock()
	if !inProgress {
		return ErrMergeNotOpen
	}

	mergeChain, mergeAux, mergeIndexFile := f.mergeSideSlot()

	snapshot := f.clock.Current()
	mainIdx, err := f.set.Main().traverseIndex(snapshot)
	if err != nil {
		return err
	}

	dropped := f.expunged.Rowids()
	rowids := mergeRowIDs(mainIdx, mergeAux, f.expunged)
	newMain, err := buildIndex(f.dimension, f.cfg, rowids, f.vectorFile, f.pool, signal)
	if err != nil {
		return err
	}

	if err := f.mainIndexFile.Dump(newMain); err != nil {
		return err
	}

	ts := f.clock.Next()
	f.set.Main().allocateIndex(ts, newMain)
	for _, old := range f.set.Main().Discard(f.clock.Current()) {
		old.Close()
	}

	emptyIdx := NewKdTreeIndex(f.dimension, f.cfg)
	mergeChain.allocateIndex(f.clock.Next(), emptyIdx)
	for _, old := range mergeChain.Discard(f.clock.Current()) {
		old.Close()
	}
	mergeAux.Reset()

	if err := mergeIndexFile.Dump(emptyIdx); err != nil {
		return err
	}

	for _, rowid := range dropped {
		f.expunged.Remove(rowid)
	}
	return nil
}

// mergeRowIDs gathers every live rowid visible across mainIdx and the
// merge-side small index's ordered auxiliary store, draining the latter
// in rowid order the way the merge kernel is specified to.
func mergeRowIDs(mainIdx *KdTreeIndex, smallAux *BtreeDataFile, expunged *ExpungeSet) []uint32 {
	seen := make(map[uint32]bool)
	var out []uint32
	smallAux.InOrder(func(rowid uint32, _ []byte) {
		if expunged.Test(rowid) {
			return
		}
		seen[rowid] = true
		out = append(out, rowid)
	})
	for rowid := range mainIdx.byRowID {
		if seen[rowid] || expunged.Test(rowid) {
			continue
		}
		out = append(out, rowid)
	}
	return out
}

// Stats reports point-in-time counters for introspection.
type Stats struct {
	Small1IndexCount int
	Small2IndexCount int
	MainIndexCount   int
	ExpungedCount    int
	PendingMerges    int
	ArenaBytesMapped uint64
}

// Stats returns a snapshot of this file's current counters.
func (f *KdTreeFile) Stats() Stats {
	mainIdx := f.set.Main().Current()
	small1Idx := f.set.Small1().Current()
	small2Idx := f.set.Small2().Current()

	var mainCount, small1Count, small2Count int
	var arenaBytes uint64
	if mainIdx != nil {
		mainCount = mainIdx.Count()
		arenaBytes += mainIdx.alloc.GetSize()
	}
	if small1Idx != nil {
		small1Count = small1Idx.Count()
		arenaBytes += small1Idx.alloc.GetSize()
	}
	if small2Idx != nil {
		small2Count = small2Idx.Count()
		arenaBytes += small2Idx.alloc.GetSize()
	}

	return Stats{
		Small1IndexCount: small1Count,
		Small2IndexCount: small2Count,
		MainIndexCount:   mainCount,
		ExpungedCount:    f.expunged.Len(),
		PendingMerges:    f.reserve.Len(),
		ArenaBytesMapped: arenaBytes,
	}
}

// Close flushes all three indices to disk and releases their file
// handles.
func (f *KdTreeFile) Close() error {
	if idx := f.set.Small1().Current(); idx != nil {
		if err := f.small1IndexFile.Dump(idx); err != nil {
			return err
		}
	}
	if idx := f.set.Small2().Current(); idx != nil {
		if err := f.small2IndexFile.Dump(idx); err != nil {
			return err
		}
	}
	if idx := f.set.Main().Current(); idx != nil {
		if err := f.mainIndexFile.Dump(idx); err != nil {
			return err
		}
	}
	if err := f.small1IndexFile.Close(); err != nil {
		return err
	}
	if err := f.small2IndexFile.Close(); err != nil {
		return err
	}
	if err := f.mainIndexFile.Close(); err != nil {
		return err
	}
	return f.vectorFile.Close()
}
