package kdtree

import (
	"encoding/binary"
	"math"
	"sort"
)

// node is a fixed 16-byte accessor view into a Node-arena slot:
// int32 splitDim, uint32 entryRef, uint32 rightRef, uint32 leftRef.
// A leaf has splitDim == -1 until grown by an insertion.
type node struct {
	data []byte
}

func (n node) SplitDim() int32 {
	return int32(binary.LittleEndian.Uint32(n.data[0:4]))
}

func (n node) setSplitDim(v int32) {
	binary.LittleEndian.PutUint32(n.data[0:4], uint32(v))
}

func (n node) EntryRef() EntryRef {
	return binary.LittleEndian.Uint32(n.data[4:8])
}

func (n node) setEntryRef(v EntryRef) {
	binary.LittleEndian.PutUint32(n.data[4:8], v)
}

func (n node) Right() NodeRef {
	return binary.LittleEndian.Uint32(n.data[8:12])
}

func (n node) setRight(v NodeRef) {
	binary.LittleEndian.PutUint32(n.data[8:12], v)
}

func (n node) Left() NodeRef {
	return binary.LittleEndian.Uint32(n.data[12:16])
}

func (n node) setLeft(v NodeRef) {
	binary.LittleEndian.PutUint32(n.data[12:16], v)
}

func (n node) IsLeaf() bool {
	return n.Right() == NilRef && n.Left() == NilRef
}

// getMaxVarianceDimension picks argmax_d variance(values[d]) over refs,
// computed as E[x^2] - E[x]^2 per dimension. Ties keep the first (lowest
// index) dimension, since a strict ">" comparison never replaces it.
func getMaxVarianceDimension(alloc *Allocator, refs []EntryRef) int {
	dim := alloc.Dimension()
	sum := make([]float64, dim)
	sumSq := make([]float64, dim)
	for _, ref := range refs {
		e := alloc.GetEntry(ref)
		for d := 0; d < dim; d++ {
			v := float64(e.Value(d))
			sum[d] += v
			sumSq[d] += v * v
		}
	}
	n := float64(len(refs))
	maxDim := 0
	maxVar := 0.0
	for d := 0; d < dim; d++ {
		mean := sum[d] / n
		meanSq := sumSq[d] / n
		variance := meanSq - mean*mean
		if variance > maxVar {
			maxVar = variance
			maxDim = d
		}
	}
	return maxDim
}

func sortRefsByDim(alloc *Allocator, refs []EntryRef, dim int) {
	sort.Slice(refs, func(i, j int) bool {
		return alloc.GetEntry(refs[i]).Value(dim) < alloc.GetEntry(refs[j]).Value(dim)
	})
}

// makeTree builds a subtree over refs sequentially: the median entry
// (after sorting by the argmax-variance dimension) becomes this node's
// value; entries strictly less go right, the rest go left.
func makeTree(alloc *Allocator, refs []EntryRef, signal *AbortSignal) (NodeRef, error) {
	if len(refs) == 0 {
		return NilRef, nil
	}
	if signal != nil && signal.IsAborted() {
		return NilRef, ErrAborted
	}

	ref := alloc.AllocateNode()
	n := alloc.getNode(ref)

	if len(refs) == 1 {
		n.setEntryRef(refs[0])
		return ref, nil
	}

	dim := getMaxVarianceDimension(alloc, refs)
	sortRefsByDim(alloc, refs, dim)

	mid := len(refs) / 2
	n.setSplitDim(int32(dim))
	n.setEntryRef(refs[mid])

	rightRef, err := makeTree(alloc, refs[:mid], signal)
	if err != nil {
		return NilRef, err
	}
	leftRef, err := makeTree(alloc, refs[mid+1:], signal)
	if err != nil {
		return NilRef, err
	}
	n.setRight(rightRef)
	n.setLeft(leftRef)
	return ref, nil
}

// insertNode descends from ref, placing entryRef as a new leaf. A lone
// leaf that has never branched (splitDim == -1) picks its split dimension
// on this first visit, from the max-difference rule rather than variance.
func insertNode(alloc *Allocator, ref NodeRef, entryRef EntryRef) {
	n := alloc.getNode(ref)
	value := alloc.GetEntry(n.EntryRef())
	incoming := alloc.GetEntry(entryRef)

	if n.IsLeaf() {
		n.setSplitDim(int32(value.MaxDifferenceDimension(incoming)))
	}

	dim := int(n.SplitDim())
	if incoming.Value(dim) < value.Value(dim) {
		if n.Right() != NilRef {
			insertNode(alloc, n.Right(), entryRef)
		} else {
			child := alloc.AllocateNode()
			alloc.getNode(child).setEntryRef(entryRef)
			n.setRight(child)
		}
	} else {
		if n.Left() != NilRef {
			insertNode(alloc, n.Left(), entryRef)
		} else {
			child := alloc.AllocateNode()
			alloc.getNode(child).setEntryRef(entryRef)
			n.setLeft(child)
		}
	}
}

// dumpNode serializes the subtree rooted at ref, pre-order, as described
// in spec §6: split_dim, then the raw Entry bytes, then a presence flag
// and recursive dump for each of right and left. ref == NilRef writes the
// empty-tree sentinel (-1). A leaf's split_dim of -1 is written as 0 so it
// cannot be read back as that sentinel; loadNode restores -1 on every
// node that comes back without children.
func dumpNode(alloc *Allocator, ref NodeRef, w *Archiver) error {
	if ref == NilRef {
		return w.WriteInt32(-1)
	}
	n := alloc.getNode(ref)
	splitDim := n.SplitDim()
	if n.IsLeaf() {
		splitDim = 0
	}
	if err := w.WriteInt32(splitDim); err != nil {
		return err
	}
	value := alloc.GetEntry(n.EntryRef())
	if err := w.WriteBytes(value.Bytes()); err != nil {
		return err
	}
	if n.Right() != NilRef {
		if err := w.WriteInt32(1); err != nil {
			return err
		}
		if err := dumpNode(alloc, n.Right(), w); err != nil {
			return err
		}
	} else {
		if err := w.WriteInt32(0); err != nil {
			return err
		}
	}
	if n.Left() != NilRef {
		if err := w.WriteInt32(1); err != nil {
			return err
		}
		if err := dumpNode(alloc, n.Left(), w); err != nil {
			return err
		}
	} else {
		if err := w.WriteInt32(0); err != nil {
			return err
		}
	}
	return nil
}

// loadNode is the inverse of dumpNode; it allocates fresh Entry/Node
// memory from alloc as it reads.
func loadNode(alloc *Allocator, r *Archiver) (NodeRef, error) {
	splitDim, err := r.ReadInt32()
	if err != nil {
		return NilRef, err
	}
	if splitDim == -1 {
		return NilRef, nil
	}

	ref := alloc.AllocateNode()
	n := alloc.getNode(ref)
	n.setSplitDim(splitDim)

	entryRef, entry, err := alloc.AllocateEntry()
	if err != nil {
		return NilRef, err
	}
	if err := r.ReadBytes(entry.Bytes()); err != nil {
		return NilRef, ErrIndexFileCorrupted
	}
	n.setEntryRef(entryRef)

	hasRight, err := r.ReadInt32()
	if err != nil {
		return NilRef, err
	}
	if hasRight == 1 {
		rightRef, err := loadNode(alloc, r)
		if err != nil {
			return NilRef, err
		}
		n.setRight(rightRef)
	}

	hasLeft, err := r.ReadInt32()
	if err != nil {
		return NilRef, err
	}
	if hasLeft == 1 {
		leftRef, err := loadNode(alloc, r)
		if err != nil {
			return NilRef, err
		}
		n.setLeft(leftRef)
	}
	if n.IsLeaf() {
		n.setSplitDim(-1)
	}

	return ref, nil
}

const maxDsq = math.MaxFloat64

// normalSearch is the classic backtracking KD-tree descent, bounded by
// the Status's distance-computation budget; once exhausted it returns the
// best found so far rather than an exact answer.
func normalSearch(alloc *Allocator, ref NodeRef, query Entry, status *Status) (Entry, float64) {
	n := alloc.getNode(ref)

	if n.IsLeaf() {
		value := alloc.GetEntry(n.EntryRef())
		if !status.IsExpunge(value) && status.AddCalcDistanceCount() {
			d := query.CalcDistance(value)
			status.PushBack(value, d)
			return value, d
		}
		return value, maxDsq
	}

	value := alloc.GetEntry(n.EntryRef())
	dim := int(n.SplitDim())
	cv := float64(query.Value(dim))
	nv := float64(value.Value(dim))

	var leaf Entry
	var dsq float64
	if (cv < nv && n.Right() != NilRef) || n.Left() == NilRef {
		leaf, dsq = normalSearch(alloc, n.Right(), query, status)
	} else {
		leaf, dsq = normalSearch(alloc, n.Left(), query, status)
	}

	if status.IsContinue() && n.Right() != NilRef && n.Left() != NilRef &&
		dsq > (cv-nv)*(cv-nv) {
		var leaf1 Entry
		var dsq1 float64
		if cv < nv {
			leaf1, dsq1 = normalSearch(alloc, n.Left(), query, status)
		} else {
			leaf1, dsq1 = normalSearch(alloc, n.Right(), query, status)
		}
		if dsq1 < dsq {
			dsq = dsq1
			leaf = leaf1
		}
	}

	if !status.IsExpunge(value) {
		status.AddCalcDistanceCount()
		d2 := query.CalcDistance(value)
		status.PushBack(value, d2)
		if d2 < dsq {
			dsq = d2
			leaf = value
		}
	}

	return leaf, dsq
}

// serialSearch exhaustively visits every entry; used for ground truth and
// for trees too small to bother with descent.
func serialSearch(alloc *Allocator, ref NodeRef, query Entry, status *Status) (Entry, float64) {
	n := alloc.getNode(ref)

	if n.IsLeaf() {
		value := alloc.GetEntry(n.EntryRef())
		if !status.IsExpunge(value) {
			d := query.CalcDistance(value)
			status.PushBack(value, d)
			return value, d
		}
		return value, maxDsq
	}

	value := alloc.GetEntry(n.EntryRef())
	var leaf Entry
	dsq := maxDsq
	haveRight := false

	if n.Right() != NilRef {
		leaf, dsq = serialSearch(alloc, n.Right(), query, status)
		haveRight = true
	}
	if n.Left() != NilRef {
		leaf1, dsq1 := serialSearch(alloc, n.Left(), query, status)
		if !haveRight || dsq1 < dsq {
			dsq = dsq1
			leaf = leaf1
		}
	}

	if !status.IsExpunge(value) {
		d2 := query.CalcDistance(value)
		status.PushBack(value, d2)
		if d2 < dsq {
			dsq = d2
			leaf = value
		}
	}

	return leaf, dsq
}

// dfsearch is the depth-first half of the RicohVisualSearch best-first
// strategy: it descends straight to a leaf, queuing the sibling subtree
// whenever it might still be within the current best radius.
func dfsearch(alloc *Allocator, ref NodeRef, query Entry, dsq *float64, status *Status, queue *[]NodeRef) Entry {
	n := alloc.getNode(ref)

	if n.IsLeaf() {
		value := alloc.GetEntry(n.EntryRef())
		d := maxDsq
		if !status.IsExpunge(value) && status.AddCalcDistanceCount() {
			d = query.CalcDistance(value)
			status.PushBack(value, d)
		}
		if d < *dsq {
			*dsq = d
			return value
		}
		return Entry{}
	}

	value := alloc.GetEntry(n.EntryRef())
	dim := int(n.SplitDim())
	cv := float64(query.Value(dim))
	nv := float64(value.Value(dim))

	var leaf Entry
	if (cv < nv && n.Right() != NilRef) || n.Left() == NilRef {
		if n.Left() != NilRef && (cv-nv)*(cv-nv) < *dsq {
			*queue = append(*queue, n.Left())
		}
		leaf = dfsearch(alloc, n.Right(), query, dsq, status, queue)
	} else {
		if n.Right() != NilRef && (cv-nv)*(cv-nv) < *dsq {
			*queue = append(*queue, n.Right())
		}
		leaf = dfsearch(alloc, n.Left(), query, dsq, status, queue)
	}

	if !status.IsExpunge(value) {
		status.AddCalcDistanceCount()
		d2 := query.CalcDistance(value)
		status.PushBack(value, d2)
		if d2 < *dsq {
			*dsq = d2
			leaf = value
		}
	}

	return leaf
}

// ricohVisualSearch is the best-first strategy: a FIFO of candidate
// subtrees seeded with root, each drained by a bounded depth-first probe.
func ricohVisualSearch(alloc *Allocator, root NodeRef, query Entry, status *Status) (Entry, float64) {
	dsq := maxDsq
	var best Entry

	queue := []NodeRef{root}
	for i := 0; status.IsContinue() && i < len(queue); i++ {
		e := dfsearch(alloc, queue[i], query, &dsq, status, &queue)
		if e.valid() {
			best = e
		}
	}
	return best, dsq
}

// NNSearch dispatches to the strategy named by status.Trace().
func NNSearch(alloc *Allocator, root NodeRef, query Entry, status *Status) (Entry, float64) {
	if root == NilRef {
		return Entry{}, maxDsq
	}
	switch status.Trace() {
	case TraceNormal:
		return normalSearch(alloc, root, query, status)
	case TraceRicohVisualSearch:
		return ricohVisualSearch(alloc, root, query, status)
	case TraceSerial:
		return serialSearch(alloc, root, query, status)
	default:
		return Entry{}, maxDsq
	}
}
