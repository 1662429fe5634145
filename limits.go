package main

import "time"

// Operational limits that are not read from the configuration file.
const (
	// pollInterval is the dispatcher's demux timeout. Short enough
	// that descriptors re-armed after a full work queue and pending
	// accepts blocked by admission control are retried promptly.
	pollInterval = 150 * time.Microsecond

	// acceptBacklog is the listen(2) backlog. Admission control caps
	// live connections separately, so the backlog only absorbs bursts.
	acceptBacklog = 128
)
