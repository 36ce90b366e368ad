package landmarks

import "errors"

// Sentinel errors for the landmark oracles.
var (
	ErrOracleFailed    = errors.New("landmark oracle failed")
	ErrOracleClosed    = errors.New("landmark oracle closed")
	ErrMessageTooLarge = errors.New("oracle message exceeds size limit")
	ErrNoCommand       = errors.New("oracle command is empty")
	ErrBadResponse     = errors.New("malformed oracle response")
	ErrHelperExited    = errors.New("landmark helper exited")
)
