package kdtree

import "errors"

var (
	// ErrIndexFileCorrupted is returned when a dump cannot be parsed back
	// into a tree: a truncated page, a bad sentinel, or a short read.
	ErrIndexFileCorrupted = errors.New("kdtree: index file corrupted")
	// ErrNoVisibleVersion is returned by traverseIndex when a versioning
	// reader's snapshot predates every version still in the chain.
	ErrNoVisibleVersion = errors.New("kdtree: no visible version for snapshot")
	// ErrFileNotAttached is returned when an operation is attempted before
	// AttachFile / after DetachFile.
	ErrFileNotAttached = errors.New("kdtree: file not attached")
	// ErrMergeLockTimeout signals the merge daemon should requeue this job
	// rather than fail it permanently.
	ErrMergeLockTimeout = errors.New("kdtree: lock timeout during merge")
	// ErrBadDimension is returned when a query or insert vector's
	// dimension does not match the attached file's dimension.
	ErrBadDimension = errors.New("kdtree: vector dimension mismatch")
	// ErrAborted is returned by a build or search that was cancelled via
	// an AbortSignal.
	ErrAborted = errors.New("kdtree: operation aborted")
	// ErrBatchModeActive is returned by Insert while SetBatchMode(true) is
	// in effect: a caller doing a bulk attach-time load has claimed
	// exclusive rights to the small indices' shape for the duration.
	ErrBatchModeActive = errors.New("kdtree: small index writes disabled during batch mode")
	// ErrMergeNotOpen is returned by Merge or CloseForMerge when no
	// matching OpenForMerge is in effect.
	ErrMergeNotOpen = errors.New("kdtree: merge not open")
)
