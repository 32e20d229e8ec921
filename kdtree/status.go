package kdtree

import "sort"

// TraceType selects the nearest-neighbor search strategy.
type TraceType int

const (
	// TraceNormal is the classic budgeted backtracking descent.
	TraceNormal TraceType = iota
	// TraceRicohVisualSearch is a best-first search over a FIFO of
	// candidate subtrees, each drained by a bounded depth-first probe.
	TraceRicohVisualSearch
	// TraceSerial visits every entry; used for ground truth and for
	// trees too small to be worth descending.
	TraceSerial
)

// candidate is one top-k slot: a squared distance and the entry that
// produced it.
type candidate struct {
	dsq   float64
	entry Entry
}

// Status carries per-search mutable state: which strategy to run, how
// many more leaf-level distance computations are allowed, the result
// heap, and which rowids are invisible to this search (already expunged,
// or still only visible in a concurrently-written generation).
type Status struct {
	trace     TraceType
	budget    int
	unlimited bool
	limit     int
	results   []candidate
	deletion  *ExpungeSet
}

// NewStatus returns a Status for a search returning up to limit results,
// gated by the given distance-computation budget. A negative budget
// means unlimited (used by TraceSerial).
func NewStatus(trace TraceType, budget, limit int, deletion *ExpungeSet) *Status {
	return &Status{
		trace:     trace,
		budget:    budget,
		unlimited: budget < 0,
		limit:     limit,
		deletion:  deletion,
	}
}

// Trace reports which search strategy this Status drives.
func (s *Status) Trace() TraceType { return s.trace }

// AddCalcDistanceCount consumes one unit of the distance-computation
// budget and reports whether the caller may proceed. Internal-node
// distance checks call this too but never gate on its result: the bound
// they tighten is free to compute regardless of budget.
func (s *Status) AddCalcDistanceCount() bool {
	if s.unlimited {
		return true
	}
	if s.budget <= 0 {
		return false
	}
	s.budget--
	return true
}

// IsContinue reports whether any search budget remains; RicohVisualSearch
// uses this to decide whether to keep draining its subtree queue.
func (s *Status) IsContinue() bool {
	return s.unlimited || s.budget > 0
}

// IsExpunge reports whether entry should be treated as invisible to this
// search: either its own tombstone bit is set, or KdTreeFile.Expunge has
// recorded its rowid in the file-wide ExpungeSet.
func (s *Status) IsExpunge(entry Entry) bool {
	if entry.IsExpunged() {
		return true
	}
	return s.deletion != nil && s.deletion.Test(entry.RowID())
}

// PushBack inserts entry at its sorted position among results, trimming
// to limit. A limit of 0 disables collection entirely.
func (s *Status) PushBack(entry Entry, dsq float64) {
	if s.limit == 0 {
		return
	}
	i := sort.Search(len(s.results), func(i int) bool { return s.results[i].dsq >= dsq })
	if i == len(s.results) {
		if len(s.results) >= s.limit {
			return
		}
		s.results = append(s.results, candidate{dsq: dsq, entry: entry})
		return
	}
	s.results = append(s.results, candidate{})
	copy(s.results[i+1:], s.results[i:])
	s.results[i] = candidate{dsq: dsq, entry: entry}
	if len(s.results) > s.limit {
		s.results = s.results[:s.limit]
	}
}

// Result is one ranked nearest-neighbor hit.
type Result struct {
	RowID    uint32
	Distance float64
}

// Results returns the collected hits, closest first.
func (s *Status) Results() []Result {
	out := make([]Result, len(s.results))
	for i, c := range s.results {
		out[i] = Result{RowID: c.entry.RowID(), Distance: c.dsq}
	}
	return out
}

// AbortSignal lets a caller cancel a long-running build or search from
// another goroutine.
type AbortSignal struct {
	aborted chan struct{}
}

// NewAbortSignal returns a ready, un-aborted AbortSignal.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{aborted: make(chan struct{})}
}

// Abort marks the signal tripped. Safe to call more than once.
func (s *AbortSignal) Abort() {
	select {
	case <-s.aborted:
	default:
		close(s.aborted)
	}
}

// IsAborted reports whether Abort has been called.
func (s *AbortSignal) IsAborted() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.aborted:
		return true
	default:
		return false
	}
}
