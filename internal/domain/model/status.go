package model

import (
	"fmt"
	"strings"
)

// PostureStatus is the tracked posture state.
type PostureStatus int

const (
	StatusUninitialized PostureStatus = iota
	StatusGood
	StatusSlouch
)

// Display labels, also used as stored status values.
const (
	LabelGood          = "Good Posture"
	LabelSlouch        = "Slouch Detected"
	LabelUninitialized = "Unknown"
)

// Display colors.
const (
	ColorGreen = "green"
	ColorRed   = "red"
	ColorGray  = "gray"
)

func (s PostureStatus) String() string {
	switch s {
	case StatusGood:
		return LabelGood
	case StatusSlouch:
		return LabelSlouch
	default:
		return LabelUninitialized
	}
}

// Key is the short lowercase identifier used in metrics and JSON.
func (s PostureStatus) Key() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusSlouch:
		return "slouch"
	default:
		return "uninitialized"
	}
}

// Color is the display color for the status.
func (s PostureStatus) Color() string {
	switch s {
	case StatusGood:
		return ColorGreen
	case StatusSlouch:
		return ColorRed
	default:
		return ColorGray
	}
}

// MarshalText encodes the status as its key.
func (s PostureStatus) MarshalText() ([]byte, error) {
	return []byte(s.Key()), nil
}

// ParseStatus accepts either the stored label or the key, case-insensitively.
func ParseStatus(v string) (PostureStatus, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "good", strings.ToLower(LabelGood):
		return StatusGood, nil
	case "slouch", strings.ToLower(LabelSlouch):
		return StatusSlouch, nil
	default:
		return StatusUninitialized, fmt.Errorf("unknown posture status %q", v)
	}
}
