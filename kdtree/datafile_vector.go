package kdtree

import (
	"fmt"
	"os"
	"sync"

	"kdtreedb/mmapio"
)

// VectorDataFile is the on-disk home for every row once it has been
// merged out of the small index: a dense, mmap'd array of dimension
// float32 values per ROWID, plus an in-memory present map recording
// which rowids are live. Slots are never reused and the file never
// shrinks. ROWIDs are allocated densely starting at 0, so
// "dense array keyed by ROWID" means exactly that: no hashing, just
// rowid*recordSize.
type VectorDataFile struct {
	mu        sync.RWMutex
	path      string
	file      *os.File
	data      []byte
	dimension int
	recordSize int
	capacity  uint32 // rows currently backed by the mmap
	next      uint32 // next unused rowid
	present   map[uint32]bool
}

const vectorDataGrowRows = 1 << 16

// OpenVectorDataFile creates or reopens the dense vector store at path.
func OpenVectorDataFile(path string, dimension int) (*VectorDataFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("kdtree: open vector data file: %w", err)
	}
	vf := &VectorDataFile{
		path:       path,
		file:       f,
		dimension:  dimension,
		recordSize: 4 * dimension,
		present:    make(map[uint32]bool),
	}
	if err := vf.growTo(vectorDataGrowRows); err != nil {
		f.Close()
		return nil, err
	}
	return vf, nil
}

func (vf *VectorDataFile) growTo(rows uint32) error {
	if rows <= vf.capacity {
		return nil
	}
	size := int64(rows) * int64(vf.recordSize)
	if vf.data != nil {
		if err := mmapio.Munmap(vf.data); err != nil {
			return err
		}
	}
	if err := vf.file.Truncate(size); err != nil {
		return fmt.Errorf("kdtree: grow vector data file: %w", err)
	}
	data, err := mmapio.Mmap(vf.file.Fd(), 0, int(size), mmapio.ProtRead|mmapio.ProtWrite, mmapio.MapShared)
	if err != nil {
		return fmt.Errorf("kdtree: mmap vector data file: %w", err)
	}
	vf.data = data
	vf.capacity = rows
	return nil
}

// Append stores values under a freshly allocated rowid and returns it.
func (vf *VectorDataFile) Append(values []float32) (uint32, error) {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	if vf.next >= vf.capacity {
		if err := vf.growTo(vf.capacity + vectorDataGrowRows); err != nil {
			return 0, err
		}
	}
	rowid := vf.next
	vf.next++
	vf.writeLocked(rowid, values)
	vf.present[rowid] = true
	return rowid, nil
}

func (vf *VectorDataFile) writeLocked(rowid uint32, values []float32) {
	off := int(rowid) * vf.recordSize
	for i, v := range values {
		putFloat32(vf.data[off+4*i:off+4*i+4], v)
	}
}

// Get returns the stored vector for rowid, or ok=false if it was never
// written or has been expunged.
func (vf *VectorDataFile) Get(rowid uint32) ([]float32, bool) {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	if !vf.present[rowid] {
		return nil, false
	}
	off := int(rowid) * vf.recordSize
	values := make([]float32, vf.dimension)
	for i := range values {
		values[i] = getFloat32(vf.data[off+4*i : off+4*i+4])
	}
	return values, true
}

// Expunge marks rowid's slot free; its bytes are left in place (they are
// never read again because present[rowid] is now false).
//
// This implementation never reuses rowids (Append always allocates the
// next one), so Expunge only affects Get/visibility bookkeeping; a future
// compaction pass could reclaim the gap but nothing in this spec's scope
// requires it.
func (vf *VectorDataFile) Expunge(rowid uint32) {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	delete(vf.present, rowid)
}

// RowCount returns how many rowids have ever been allocated (including
// subsequently expunged ones).
func (vf *VectorDataFile) RowCount() uint32 {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	return vf.next
}

// Rowids returns every currently present rowid.
func (vf *VectorDataFile) Rowids() []uint32 {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	out := make([]uint32, 0, len(vf.present))
	for r, ok := range vf.present {
		if ok {
			out = append(out, r)
		}
	}
	return out
}

// Close unmaps and closes the backing file.
func (vf *VectorDataFile) Close() error {
	vf.mu.Lock()
	defer vf.mu.Unlock()
	if vf.data != nil {
		_ = mmapio.Munmap(vf.data)
		vf.data = nil
	}
	return vf.file.Close()
}
