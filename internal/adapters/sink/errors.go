package sink

import "errors"

// Sentinel kinds for sink errors.
var (
	ErrWrite  = errors.New("record write failed")
	ErrClosed = errors.New("writer closed")
)
