package kdtree

// parallelChunkThreshold is the smallest ref count worth fanning across
// the worker pool; below it the sequential path wins on overhead alone.
const parallelChunkThreshold = 4096

// calcVarianceDimension is the CalcVariance kernel: argmax_d variance(d)
// over refs, computed as chunked partial sums reduced on the caller's
// goroutine. Falls back to the sequential form below the chunk threshold
// or when pool is nil.
func calcVarianceDimension(alloc *Allocator, refs []EntryRef, pool *WorkerPool) int {
	if pool == nil || len(refs) < parallelChunkThreshold {
		return getMaxVarianceDimension(alloc, refs)
	}

	workers := pool.Workers()
	if workers > len(refs) {
		workers = len(refs)
	}
	dim := alloc.Dimension()
	partialSum := make([][]float64, workers)
	partialSumSq := make([][]float64, workers)
	chunk := (len(refs) + workers - 1) / workers

	pool.FanOut(workers, func(w int) {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(refs) {
			hi = len(refs)
		}
		sum := make([]float64, dim)
		sumSq := make([]float64, dim)
		for _, ref := range refs[lo:hi] {
			e := alloc.GetEntry(ref)
			for d := 0; d < dim; d++ {
				v := float64(e.Value(d))
				sum[d] += v
				sumSq[d] += v * v
			}
		}
		partialSum[w] = sum
		partialSumSq[w] = sumSq
	})

	sum := make([]float64, dim)
	sumSq := make([]float64, dim)
	for w := 0; w < workers; w++ {
		for d := 0; d < dim; d++ {
			sum[d] += partialSum[w][d]
			sumSq[d] += partialSumSq[w][d]
		}
	}

	n := float64(len(refs))
	maxDim := 0
	maxVar := 0.0
	for d := 0; d < dim; d++ {
		mean := sum[d] / n
		meanSq := sumSq[d] / n
		v := meanSq - mean*mean
		if v > maxVar {
			maxVar = v
			maxDim = d
		}
	}
	return maxDim
}

// sortEntriesByDimParallel is the SortEntry kernel: sorts per-worker
// chunks concurrently, then merges them sequentially. The merge step
// dominates asymptotically only for worker counts that don't shrink
// chunks below parallelChunkThreshold, which is the regime this is
// reached in.
func sortEntriesByDimParallel(alloc *Allocator, refs []EntryRef, dim int, pool *WorkerPool) {
	if pool == nil || len(refs) < parallelChunkThreshold {
		sortRefsByDim(alloc, refs, dim)
		return
	}

	workers := pool.Workers()
	if workers > len(refs) {
		workers = len(refs)
	}
	chunk := (len(refs) + workers - 1) / workers
	bounds := make([][2]int, workers)

	pool.FanOut(workers, func(w int) {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(refs) {
			hi = len(refs)
		}
		bounds[w] = [2]int{lo, hi}
		sortRefsByDim(alloc, refs[lo:hi], dim)
	})

	merged := make([]EntryRef, 0, len(refs))
	heads := make([]int, workers)
	for {
		best := -1
		var bestVal float32
		for w := 0; w < workers; w++ {
			lo, hi := bounds[w][0], bounds[w][1]
			pos := lo + heads[w]
			if pos >= hi {
				continue
			}
			v := alloc.GetEntry(refs[pos]).Value(dim)
			if best == -1 || v < bestVal {
				best = w
				bestVal = v
			}
		}
		if best == -1 {
			break
		}
		lo := bounds[best][0]
		merged = append(merged, refs[lo+heads[best]])
		heads[best]++
	}
	copy(refs, merged)
}

// makeTreeParallel is the hybrid parallel builder: while parallelBudget
// remains above 1 it places the median as this node's entry and submits
// the two child subtree builds onto pool, each with half the budget, so
// sibling subtrees run concurrently. Once the budget reaches 1, the range
// is shorter than parallelChunkThreshold, or pool is nil, the rest of the
// subtree is built by the sequential makeTree.
func makeTreeParallel(alloc *Allocator, refs []EntryRef, parallelBudget int, pool *WorkerPool, signal *AbortSignal) (NodeRef, error) {
	if len(refs) == 0 {
		return NilRef, nil
	}
	if signal != nil && signal.IsAborted() {
		return NilRef, ErrAborted
	}
	if pool == nil || parallelBudget <= 1 || len(refs) < parallelChunkThreshold {
		return makeTree(alloc, refs, signal)
	}

	ref := alloc.AllocateNode()
	n := alloc.getNode(ref)

	if len(refs) == 1 {
		n.setEntryRef(refs[0])
		return ref, nil
	}

	dim := calcVarianceDimension(alloc, refs, pool)
	sortEntriesByDimParallel(alloc, refs, dim, pool)

	mid := len(refs) / 2
	n.setSplitDim(int32(dim))
	n.setEntryRef(refs[mid])

	rightRefs := refs[:mid]
	leftRefs := refs[mid+1:]

	var rightNode, leftNode NodeRef
	var rightErr, leftErr error
	done := make(chan struct{}, 2)

	pool.Submit(func() {
		rightNode, rightErr = makeTreeParallel(alloc, rightRefs, parallelBudget/2, pool, signal)
		done <- struct{}{}
	})
	pool.Submit(func() {
		leftNode, leftErr = makeTreeParallel(alloc, leftRefs, parallelBudget/2, pool, signal)
		done <- struct{}{}
	})
	<-done
	<-done

	if rightErr != nil {
		return NilRef, rightErr
	}
	if leftErr != nil {
		return NilRef, leftErr
	}
	n.setRight(rightNode)
	n.setLeft(leftNode)
	return ref, nil
}

// loadedEntry is one slot of loadEntriesKernel's output: present reports
// whether rowid was still live in the VectorDataFile at read time.
type loadedEntry struct {
	rowid   uint32
	ref     EntryRef
	present bool
}

// loadEntriesKernel is the LoadEntry kernel: it reads every row out of a
// VectorDataFile concurrently across pool, chunked by rowid range,
// allocating each into alloc. Rows missing from vf (already physically
// reclaimed) are reported with present=false rather than occupying a
// zero-valued EntryRef slot, so the caller can compact them out before
// handing refs to the tree builder.
func loadEntriesKernel(alloc *Allocator, vf *VectorDataFile, rowids []uint32, pool *WorkerPool) ([]loadedEntry, error) {
	out := make([]loadedEntry, len(rowids))
	load := func(i int) error {
		rowid := rowids[i]
		values, ok := vf.Get(rowid)
		if !ok {
			out[i] = loadedEntry{rowid: rowid}
			return nil
		}
		ref, e, err := alloc.AllocateEntry()
		if err != nil {
			return err
		}
		e.init(rowid, values)
		out[i] = loadedEntry{rowid: rowid, ref: ref, present: true}
		return nil
	}

	if pool == nil || len(rowids) < parallelChunkThreshold {
		for i := range rowids {
			if err := load(i); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	workers := pool.Workers()
	chunk := (len(rowids) + workers - 1) / workers
	errs := make([]error, workers)
	pool.FanOut(workers, func(w int) {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(rowids) {
			hi = len(rowids)
		}
		for i := lo; i < hi; i++ {
			if err := load(i); err != nil {
				errs[w] = err
				return
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// searchRoot pairs an Allocator with one of its NodeRefs, so
// doSearchKernel can fan a query out across roots living in entirely
// independent arenas (each small-index role and the main index own
// one). isSmall marks a small-index root so doSearchKernel can give it
// the reduced budget the spec calls for: most hits come from main, so a
// small index gets to spend less of the caller's distance-computation
// budget finding its share.
type searchRoot struct {
	alloc   *Allocator
	root    NodeRef
	isSmall bool
}

// rootBudget halves status's budget for a small-index root, leaving an
// unlimited (negative) budget and the main index's share untouched.
func rootBudget(r searchRoot, status *Status) int {
	if r.isSmall && status.budget > 0 {
		return status.budget / 2
	}
	return status.budget
}

// doSearchKernel is the DoSearch kernel: it runs the same query
// concurrently against every root (each small-index role plus the main
// index, or a set of shard roots), merging all hits into a single
// Status. Each root always gets its own Status, budgeted per rootBudget,
// whether or not pool parallelizes the fan-out.
func doSearchKernel(roots []searchRoot, query Entry, status *Status, pool *WorkerPool) {
	search := func(i int) *Status {
		local := NewStatus(status.trace, rootBudget(roots[i], status), status.limit, status.deletion)
		NNSearch(roots[i].alloc, roots[i].root, query, local)
		return local
	}

	merge := func(local *Status) {
		for _, c := range local.results {
			status.PushBack(c.entry, c.dsq)
		}
	}

	if pool == nil || len(roots) < 2 {
		for i := range roots {
			merge(search(i))
		}
		return
	}

	partial := make([]*Status, len(roots))
	pool.FanOut(len(roots), func(i int) {
		partial[i] = search(i)
	})
	for _, p := range partial {
		merge(p)
	}
}
