package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrQueueFull   = errors.New("transition queue full")
	ErrQueueClosed = errors.New("transition queue closed")
)
