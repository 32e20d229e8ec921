package kdtree

import "time"

// Config holds the tunables spec'd out in the host DB's parameter table.
// Zero-value fields are filled in from DefaultConfig by NewConfig.
type Config struct {
	// AllocateUnitSize is the mmap slab size for the Entry/Node arenas.
	AllocateUnitSize int64
	// MergeCountThreshold is the small-file live-entry count that
	// triggers a Merge job.
	MergeCountThreshold int
	// UnitMergeExpungeCount is defaulted by NewConfig but not read
	// elsewhere: Merge leaves out every expunged row in a single pass,
	// without batching.
	UnitMergeExpungeCount int
	// UnitMergeInsertPageCount is defaulted by NewConfig but not read
	// elsewhere: Merge drains the whole merge side in a single pass,
	// without batching.
	UnitMergeInsertPageCount int
	// MergeDaemonPollInterval is how long the merge daemon waits before
	// requeuing a job whose merge failed. An empty reserve queue does not
	// use it: the daemon blocks until a job is pushed.
	MergeDaemonPollInterval time.Duration
	// KernelPoolSize bounds the worker pool shared by the parallel build
	// and search kernels.
	KernelPoolSize int
}

// DefaultConfig mirrors the spec's "Configuration parameters" table.
var DefaultConfig = Config{
	AllocateUnitSize:         8 << 20, // 8 MiB
	MergeCountThreshold:      100000,
	UnitMergeExpungeCount:    1000,
	UnitMergeInsertPageCount: 5,
	MergeDaemonPollInterval:  500 * time.Millisecond,
	KernelPoolSize:           4,
}

// NewConfig returns cfg with every zero-valued field replaced by its
// DefaultConfig counterpart.
func NewConfig(cfg Config) Config {
	d := DefaultConfig
	if cfg.AllocateUnitSize <= 0 {
		cfg.AllocateUnitSize = d.AllocateUnitSize
	}
	if cfg.MergeCountThreshold <= 0 {
		cfg.MergeCountThreshold = d.MergeCountThreshold
	}
	if cfg.UnitMergeExpungeCount <= 0 {
		cfg.UnitMergeExpungeCount = d.UnitMergeExpungeCount
	}
	if cfg.UnitMergeInsertPageCount <= 0 {
		cfg.UnitMergeInsertPageCount = d.UnitMergeInsertPageCount
	}
	if cfg.MergeDaemonPollInterval <= 0 {
		cfg.MergeDaemonPollInterval = d.MergeDaemonPollInterval
	}
	if cfg.KernelPoolSize <= 0 {
		cfg.KernelPoolSize = d.KernelPoolSize
	}
	return cfg
}
