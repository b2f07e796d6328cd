package domain

import "time"

// CycleStats holds statistics about one change-detection cycle.
type CycleStats struct {
	CycleID   string
	Fetched   int
	New       int
	Notified  int
	Published int
	Deferred  int // not sent this cycle, left unseen for the next one
	Errors    int
	FirstRun  bool
	Duration  time.Duration
}

// CycleState is the persisted summary of the last successful cycle.
type CycleState struct {
	ID            int64     `db:"id"`
	SourceID      string    `db:"source_id"`
	LastCycleAt   time.Time `db:"last_cycle_at"`
	LastCycleID   string    `db:"last_cycle_id"`
	TotalNotified int64     `db:"total_notified"`
}
