package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrAlreadyStarted = errors.New("monitoring session already started")
	ErrStopped        = errors.New("monitoring service stopped")
	ErrNoUser         = errors.New("user name is required")
	ErrDuplicateUser  = errors.New("user already has recorded history")
)
