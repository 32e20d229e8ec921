package kdtree

import "container/heap"

// readerHeap tracks the snapshot TimeStamps of currently active readers
// as a min-heap, so the lowest one - the floor below which no live
// reader can see a generation - is always a Len()==0 check and an O(1)
// peek away. Adapted from the same container/heap-backed reader
// tracking FiloDB's ReaderList uses to decide which pages a FreeList may
// safely reclaim.
type readerHeap struct {
	items  []readerHeapItem
	nextID int
}

type readerHeapItem struct {
	id int
	ts TimeStamp
}

type readerHeapImpl []readerHeapItem

func (h readerHeapImpl) Len() int            { return len(h) }
func (h readerHeapImpl) Less(i, j int) bool  { return h[i].ts < h[j].ts }
func (h readerHeapImpl) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *readerHeapImpl) Push(x interface{}) { *h = append(*h, x.(readerHeapItem)) }
func (h *readerHeapImpl) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// push registers ts as an active reader and returns a token identifying
// it, for later removal.
func (rh *readerHeap) push(ts TimeStamp) int {
	rh.nextID++
	id := rh.nextID
	impl := (*readerHeapImpl)(&rh.items)
	heap.Push(impl, readerHeapItem{id: id, ts: ts})
	return id
}

// remove drops the reader registered under token, if still present.
func (rh *readerHeap) remove(token int) {
	impl := (*readerHeapImpl)(&rh.items)
	for i, it := range rh.items {
		if it.id == token {
			heap.Remove(impl, i)
			return
		}
	}
}

// Len reports how many readers are currently active.
func (rh *readerHeap) Len() int { return len(rh.items) }

// min returns the oldest active reader's snapshot. Caller must ensure
// Len() > 0.
func (rh *readerHeap) min() TimeStamp {
	return rh.items[0].ts
}
