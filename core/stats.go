package core

import "time"

// WorkerStats represents runtime observability state for one worker thread.
type WorkerStats struct {
	Index            int
	State            WorkerState
	Pending          int    // messages queued in the hub
	Delivered        uint64 // messages ever accepted by the hub
	Timers           int
	LiveCoroutines   int
	ReadyCoroutines  int
	InFlightBlocking int // blocker jobs whose resume is still owed
	Pumps            uint64
	MessagesRun      uint64
	TimersFired      uint64
	SampledAt        time.Time
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	Threads        int
	ShuttingDown   bool
	InterruptArmed bool
	Workers        []WorkerStats
	Blocker        BlockerStats
}
