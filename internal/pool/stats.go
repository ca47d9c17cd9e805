package pool

// Stats is a point-in-time snapshot of a FixedPool's counters. It
// supplements spec.md §6's individual AcquiredCount()/LastActiveTime()
// accessors with the fuller picture the teacher's bridge.PoolStats
// exposed, for the diagnostics and metrics surfaces (SPEC_FULL.md §5).
type Stats struct {
	Capacity   int
	MaxPending int

	AcquiredCount int
	PendingCount  int
	IdleCount     int

	Creations          int64
	Closures           int64
	Acquisitions       int64
	Releases           int64
	Timeouts           int64
	ValidationFailures int64
	ConnectFailures    int64
}
