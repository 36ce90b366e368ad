package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrClosed        = errors.New("store closed")
	ErrInvalidRecord = errors.New("invalid transition record")
	ErrMigrate       = errors.New("store migration failed")
)

func wrapInvalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, reason)
}
