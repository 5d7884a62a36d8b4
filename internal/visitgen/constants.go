package visitgen

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	ProgressInterval     = time.Second
	PercentageMultiplier = 100
)
