package worker

import (
	"time"

	"github.com/okian/posture/pkg/logger"
)

// Option applies a configuration option to a Writer.
type Option func(*Writer)

// WithName sets the writer name for identification and logging.
func WithName(name string) Option {
	return func(w *Writer) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the writer.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWriteTimeout bounds a single insert.
func WithWriteTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithOnError installs a callback for failed inserts.
func WithOnError(h ErrorHandler) Option {
	return func(w *Writer) { w.onError = h }
}

// WithOnWritten installs a callback for stored records.
func WithOnWritten(h WrittenHandler) Option {
	return func(w *Writer) { w.onWritten = h }
}
