package kdtree

import "sync"

// btreeOrder bounds the fanout of the in-memory ordered index below.
const btreeOrder = 32

// btreeNode is one page of BtreeDataFile's in-memory B-tree: sorted keys,
// parallel values, and (for an internal page) one more child than key.
type btreeNode struct {
	leaf     bool
	keys     []uint32
	values   [][]byte
	children []*btreeNode
}

// BtreeDataFile is the small index's ordered auxiliary store: rowid ->
// Entry bytes, kept sorted so the merge daemon can drain it in rowid
// order and the expunge path can look a row up without walking the KD
// tree. Unlike VectorDataFile this is not itself mmap'd: the small
// index's authoritative persistence is the KD-tree dump (see
// IndexFile), and BtreeDataFile is rebuilt from that dump's entries on
// attach, the way a database rebuilds a secondary index from its primary
// storage rather than WAL-logging the index itself.
type BtreeDataFile struct {
	mu       sync.RWMutex
	root     *btreeNode
	count    int
	expunged *ExpungeSet
}

// NewBtreeDataFile returns an empty ordered index.
func NewBtreeDataFile() *BtreeDataFile {
	return &BtreeDataFile{
		root:     &btreeNode{leaf: true},
		expunged: NewExpungeSet(),
	}
}

// Insert adds or overwrites the record for rowid.
func (bt *BtreeDataFile) Insert(rowid uint32, value []byte) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	if len(bt.root.keys) == 2*btreeOrder-1 {
		newRoot := &btreeNode{children: []*btreeNode{bt.root}}
		bt.splitChild(newRoot, 0)
		bt.root = newRoot
	}
	if bt.insertNonFull(bt.root, rowid, value) {
		bt.count++
	}
}

func (bt *BtreeDataFile) insertNonFull(n *btreeNode, rowid uint32, value []byte) bool {
	i := searchKey(n.keys, rowid)
	if i < len(n.keys) && n.keys[i] == rowid {
		n.values[i] = value
		return false
	}

	if n.leaf {
		n.keys = append(n.keys, 0)
		n.values = append(n.values, nil)
		copy(n.keys[i+1:], n.keys[i:])
		copy(n.values[i+1:], n.values[i:])
		n.keys[i] = rowid
		n.values[i] = value
		return true
	}

	if len(n.children[i].keys) == 2*btreeOrder-1 {
		bt.splitChild(n, i)
		if rowid > n.keys[i] {
			i++
		} else if rowid == n.keys[i] {
			n.values[i] = value
			return false
		}
	}
	return bt.insertNonFull(n.children[i], rowid, value)
}

func (bt *BtreeDataFile) splitChild(parent *btreeNode, i int) {
	child := parent.children[i]
	mid := btreeOrder - 1

	sibling := &btreeNode{leaf: child.leaf}
	sibling.keys = append(sibling.keys, child.keys[mid+1:]...)
	sibling.values = append(sibling.values, child.values[mid+1:]...)
	if !child.leaf {
		sibling.children = append(sibling.children, child.children[mid+1:]...)
		child.children = child.children[:mid+1]
	}
	upKey, upValue := child.keys[mid], child.values[mid]
	child.keys = child.keys[:mid]
	child.values = child.values[:mid]

	parent.keys = append(parent.keys, 0)
	parent.values = append(parent.values, nil)
	copy(parent.keys[i+1:], parent.keys[i:])
	copy(parent.values[i+1:], parent.values[i:])
	parent.keys[i] = upKey
	parent.values[i] = upValue

	parent.children = append(parent.children, nil)
	copy(parent.children[i+2:], parent.children[i+1:])
	parent.children[i+1] = sibling
}

// Get returns the stored value for rowid.
func (bt *BtreeDataFile) Get(rowid uint32) ([]byte, bool) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return search(bt.root, rowid)
}

func search(n *btreeNode, rowid uint32) ([]byte, bool) {
	i := searchKey(n.keys, rowid)
	if i < len(n.keys) && n.keys[i] == rowid {
		return n.values[i], true
	}
	if n.leaf {
		return nil, false
	}
	return search(n.children[i], rowid)
}

func searchKey(keys []uint32, rowid uint32) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid] < rowid {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Expunge tombstones rowid without removing it from the ordered
// structure: InOrder callers see it but should skip rows the expunge set
// reports as deleted, mirroring how the KD-tree itself never physically
// removes a node on delete (spec: "no physical main-index rewrite at
// query-time delete"). A rowid that is not in the store is ignored.
func (bt *BtreeDataFile) Expunge(rowid uint32) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	if _, ok := search(bt.root, rowid); ok {
		bt.expunged.Add(rowid)
	}
}

// IsExpunged reports whether rowid has been tombstoned.
func (bt *BtreeDataFile) IsExpunged(rowid uint32) bool {
	return bt.expunged.Test(rowid)
}

// Reset clears every record in place, used when a merge finishes
// draining this slot's role and publishes a fresh empty generation
// alongside it. The field itself is never reassigned, so concurrent
// readers holding the pointer never observe a half-built structure.
func (bt *BtreeDataFile) Reset() {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.root = &btreeNode{leaf: true}
	bt.count = 0
	bt.expunged = NewExpungeSet()
}

// Count returns the number of live (non-tombstoned) records.
func (bt *BtreeDataFile) Count() int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.count - bt.expunged.Len()
}

// InOrder visits every non-tombstoned (rowid, value) pair in ascending
// rowid order, used by the merge kernel to drain the small index.
func (bt *BtreeDataFile) InOrder(visit func(rowid uint32, value []byte)) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	inOrder(bt.root, bt.expunged, visit)
}

func inOrder(n *btreeNode, expunged *ExpungeSet, visit func(uint32, []byte)) {
	for i, key := range n.keys {
		if !n.leaf {
			inOrder(n.children[i], expunged, visit)
		}
		if !expunged.Test(key) {
			visit(key, n.values[i])
		}
	}
	if !n.leaf {
		inOrder(n.children[len(n.keys)], expunged, visit)
	}
}
