// Package camera acquires frames from a capture device and publishes them to
// a shared frame buffer.
package camera

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/posture/internal/domain/model"
)

// Device is a frame source. Open and Read may block on the hardware; Close
// must be safe to call on a device that failed to open.
type Device interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (model.Frame, error)
	Close() error
}

// DeviceConfig describes the device to build.
type DeviceConfig struct {
	Backend string
	Device  string
	Width   int
	Height  int
	FPS     int
}

// Factory builds a Device for a backend.
type Factory func(cfg DeviceConfig) (Device, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Factory{}
)

// Register makes a backend available to NewDevice. Backends that need cgo
// register themselves from files guarded by build tags.
func Register(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// Backends lists the registered backend names.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDevice builds the device for cfg.Backend.
func NewDevice(cfg DeviceConfig) (Device, error) {
	backendsMu.RLock()
	f, ok := backends[cfg.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnsupportedBackend, cfg.Backend, Backends())
	}
	return f(cfg)
}
