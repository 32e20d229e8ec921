package kdtree

import (
	"fmt"
	"os"
	"sync"

	"kdtreedb/mmapio"
)

// NilRef is the sentinel NodeRef/EntryRef meaning "no node"/"no entry".
const NilRef = ^uint32(0)

// EntryRef is a bump-allocator-relative index into an Allocator's entry
// arena, standing in for the raw Entry* of the original design (see
// DESIGN.md, "arena-relative indices" redesign note).
type EntryRef = uint32

// NodeRef is the Node-arena equivalent of EntryRef.
type NodeRef = uint32

const nodeRecordSize = 16 // int32 splitDim, uint32 entryRef, rightRef, leftRef

// Allocator is the per-index arena: two independent bump-allocated slab
// pools, one sized for this index's Entry records and one for fixed-size
// Node records. Slabs are mmap'd, anonymous-backed temp files; nothing is
// ever freed individually, only wholesale via Clear.
type Allocator struct {
	mu        sync.Mutex
	dimension int
	entrySize int
	unitSize  int64

	entrySlabs     [][]byte
	entryFiles     []*os.File
	entriesPerSlab int
	entryNext      uint32 // next free entry ref, globally across slabs

	nodeSlabs     [][]byte
	nodeFiles     []*os.File
	nodesPerSlab  int
	nodeNext      uint32
}

// NewAllocator returns an Allocator for vectors of the given dimension,
// using unitSize-byte mmap slabs (KdTree_AllocateUnitSize in the spec).
func NewAllocator(dimension int, unitSize int64) *Allocator {
	esize := entrySize(dimension)
	a := &Allocator{
		dimension:      dimension,
		entrySize:      esize,
		unitSize:       unitSize,
		entriesPerSlab: int(unitSize) / esize,
		nodesPerSlab:   int(unitSize) / nodeRecordSize,
	}
	if a.entriesPerSlab == 0 {
		a.entriesPerSlab = 1
	}
	if a.nodesPerSlab == 0 {
		a.nodesPerSlab = 1
	}
	return a
}

// Dimension returns the vector dimension this allocator's entries carry.
func (a *Allocator) Dimension() int { return a.dimension }

func mmapSlab(sizeBytes int64) ([]byte, *os.File, error) {
	f, err := os.CreateTemp("", "kdtree-arena-*")
	if err != nil {
		return nil, nil, fmt.Errorf("arena temp file: %w", err)
	}
	if err := f.Truncate(sizeBytes); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("arena truncate: %w", err)
	}
	data, err := mmapio.Mmap(f.Fd(), 0, int(sizeBytes), mmapio.ProtRead|mmapio.ProtWrite, mmapio.MapShared)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("arena mmap: %w", err)
	}
	// Unlinking now means the slab's storage is reclaimed by the OS the
	// moment every mapping of it is gone - no on-disk footprint survives
	// a crash, matching the "never individually freed, wholesale at
	// destruction" arena contract.
	name := f.Name()
	_ = os.Remove(name)
	return data, f, nil
}

// AllocateEntry returns a zeroed, dimension-stamped Entry and its ref.
func (a *Allocator) AllocateEntry() (EntryRef, Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slabIdx := int(a.entryNext) / a.entriesPerSlab
	offsetInSlab := (int(a.entryNext) % a.entriesPerSlab) * a.entrySize

	if slabIdx >= len(a.entrySlabs) {
		data, f, err := mmapSlab(a.unitSize)
		if err != nil {
			return 0, Entry{}, err
		}
		a.entrySlabs = append(a.entrySlabs, data)
		a.entryFiles = append(a.entryFiles, f)
	}

	ref := a.entryNext
	a.entryNext++
	raw := a.entrySlabs[slabIdx][offsetInSlab : offsetInSlab+a.entrySize]
	for i := range raw {
		raw[i] = 0
	}
	e := newEntryView(raw)
	e.setDimension(a.dimension)
	return ref, e, nil
}

// GetEntry dereferences an EntryRef previously returned by AllocateEntry.
func (a *Allocator) GetEntry(ref EntryRef) Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	slabIdx := int(ref) / a.entriesPerSlab
	offset := (int(ref) % a.entriesPerSlab) * a.entrySize
	return newEntryView(a.entrySlabs[slabIdx][offset : offset+a.entrySize])
}

// AllocateNode returns a zero-initialized node record and its ref.
func (a *Allocator) AllocateNode() NodeRef {
	a.mu.Lock()
	defer a.mu.Unlock()

	slabIdx := int(a.nodeNext) / a.nodesPerSlab
	offsetInSlab := (int(a.nodeNext) % a.nodesPerSlab) * nodeRecordSize

	if slabIdx >= len(a.nodeSlabs) {
		data, f, err := mmapSlab(a.unitSize)
		if err != nil {
			// Node allocation has no error return in the spec's API;
			// arena exhaustion here is a fatal condition for the
			// process, same as the original mmap-failure propagation.
			panic(fmt.Errorf("kdtree: node arena mmap: %w", err))
		}
		a.nodeSlabs = append(a.nodeSlabs, data)
		a.nodeFiles = append(a.nodeFiles, f)
	}

	ref := a.nodeNext
	a.nodeNext++
	raw := a.nodeSlabs[slabIdx][offsetInSlab : offsetInSlab+nodeRecordSize]
	for i := range raw {
		raw[i] = 0
	}
	n := node{data: raw}
	n.setSplitDim(-1)
	n.setEntryRef(NilRef)
	n.setRight(NilRef)
	n.setLeft(NilRef)
	return ref
}

// getNode dereferences a NodeRef previously returned by AllocateNode.
func (a *Allocator) getNode(ref NodeRef) node {
	a.mu.Lock()
	defer a.mu.Unlock()
	slabIdx := int(ref) / a.nodesPerSlab
	offset := (int(ref) % a.nodesPerSlab) * nodeRecordSize
	return node{data: a.nodeSlabs[slabIdx][offset : offset+nodeRecordSize]}
}

// ClearEntry unmaps every entry slab. No individual Entry survives.
func (a *Allocator) ClearEntry() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, data := range a.entrySlabs {
		_ = mmapio.Munmap(data)
	}
	for _, f := range a.entryFiles {
		_ = f.Close()
	}
	a.entrySlabs = nil
	a.entryFiles = nil
	a.entryNext = 0
}

// ClearNode unmaps every node slab. No individual Node survives.
func (a *Allocator) ClearNode() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, data := range a.nodeSlabs {
		_ = mmapio.Munmap(data)
	}
	for _, f := range a.nodeFiles {
		_ = f.Close()
	}
	a.nodeSlabs = nil
	a.nodeFiles = nil
	a.nodeNext = 0
}

// Clear releases both arenas wholesale.
func (a *Allocator) Clear() {
	a.ClearEntry()
	a.ClearNode()
}

// GetSize returns the total bytes currently mapped across both arenas.
func (a *Allocator) GetSize() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(len(a.entrySlabs)+len(a.nodeSlabs)) * uint64(a.unitSize)
}
