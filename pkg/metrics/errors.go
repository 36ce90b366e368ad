package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrObserveFailed      = errors.New("metrics observe failed")
	ErrProcessUnavailable = errors.New("process stats unavailable")
)
