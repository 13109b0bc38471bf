package lrcp

import "time"

// SetTimingForTest overrides the retransmit, idle, and sweep intervals
// so tests don't have to wait for the real (multi-second) values.
func SetTimingForTest(retransmit, idle, sweep time.Duration) {
	retransmitInterval = retransmit
	idleTimeout = idle
	sweepInterval = sweep
}

// ResetTimingForTest restores the spec-mandated durations.
func ResetTimingForTest() {
	retransmitInterval = 3 * time.Second
	idleTimeout = 60 * time.Second
	sweepInterval = 5 * time.Second
}
