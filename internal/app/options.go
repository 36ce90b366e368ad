package service

import (
	"time"

	"github.com/okian/posture/internal/adapters/camera"
	"github.com/okian/posture/internal/adapters/repository"
	"github.com/okian/posture/internal/adapters/sink"
	"github.com/okian/posture/internal/config"
	"github.com/okian/posture/internal/domain/posture"
	"github.com/okian/posture/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration; components not injected through other
// options are built from it.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects the transition store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDevice injects the capture device instead of building camera.backend.
func WithDevice(d camera.Device) Option {
	return func(s *Service) {
		if d != nil {
			s.device = d
		}
	}
}

// WithDetector injects the landmark oracle instead of building oracle.kind.
func WithDetector(d posture.Detector) Option {
	return func(s *Service) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithSink adds an event sink next to the ones built from configuration.
func WithSink(k sink.Sink) Option {
	return func(s *Service) {
		if k != nil {
			s.extraSinks = append(s.extraSinks, k)
		}
	}
}

// WithClock overrides the time source for ticks and records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithUser sets the monitored user, overriding the configured one.
func WithUser(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.user = name
		}
	}
}
