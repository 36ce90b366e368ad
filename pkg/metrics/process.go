package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessSampler refreshes runtime and process gauges.
type ProcessSampler struct {
	once sync.Once
	proc *process.Process
	err  error
}

// NewProcessSampler returns a sampler for the current process. The process
// handle is resolved lazily on the first Sample call.
func NewProcessSampler() *ProcessSampler {
	return &ProcessSampler{}
}

// Sample updates memory, goroutine, CPU and RSS gauges. Runtime gauges are
// always refreshed; an error is returned only when process stats could not
// be read.
func (s *ProcessSampler) Sample(ctx context.Context) error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.Alloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())

	s.once.Do(func() {
		s.proc, s.err = process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pid fits int32
	})
	if s.err != nil {
		return fmt.Errorf("%w: %w", ErrProcessUnavailable, s.err)
	}

	cpu, err := s.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return fmt.Errorf("%w: cpu: %w", ErrObserveFailed, err)
	}
	globalManager.processCPUPercent.Set(cpu)

	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: memory: %w", ErrObserveFailed, err)
	}
	globalManager.processRSSBytes.Set(float64(mem.RSS))
	return nil
}
