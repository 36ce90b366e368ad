package service

import (
	"context"
	"fmt"
	"os"

	"github.com/okian/posture/internal/adapters/camera"
	"github.com/okian/posture/internal/adapters/landmarks"
	"github.com/okian/posture/internal/adapters/repository"
	"github.com/okian/posture/internal/adapters/sink"
	"github.com/okian/posture/internal/config"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
	"github.com/okian/posture/pkg/logger"
)

// openStoreLocked opens the configured store once. Callers hold s.mu.
func (s *Service) openStoreLocked(ctx context.Context) (repository.Store, error) {
	if s.storeClosed {
		return nil, ErrStopped
	}
	if s.store != nil {
		return s.store, nil
	}
	switch s.cfg.Storage.Driver {
	case config.DriverMemory:
		s.store = repository.NewMemoryStore()
	default:
		st, err := repository.Open(ctx, s.cfg.Storage.Path, repository.WithLogger(s.logger.Named("store")))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.store = st
	}
	return s.store, nil
}

func (s *Service) buildClassifier() (*posture.Classifier, error) {
	side, err := posture.ParseBodySide(s.cfg.Classifier.BodySide)
	if err != nil {
		return nil, err
	}
	return posture.NewClassifier(
		posture.WithBodySide(side),
		posture.WithVirtualOffset(s.cfg.Classifier.VirtualOffset),
		posture.WithThresholds(posture.Thresholds{
			KHSMin: s.cfg.Classifier.KHSMin,
			KHSMax: s.cfg.Classifier.KHSMax,
			HSEMin: s.cfg.Classifier.HSEMin,
			SEVMin: s.cfg.Classifier.SEVMin,
		}),
	), nil
}

func (s *Service) buildDetector() (posture.Detector, error) {
	o := s.cfg.Oracle
	switch o.Kind {
	case config.OracleSubprocess:
		sp, err := landmarks.NewSubprocess(o.Command,
			landmarks.WithArgs(o.Args...),
			landmarks.WithCallTimeout(o.Timeout),
			landmarks.WithSubprocessLogger(s.logger.Named("oracle")),
		)
		if err != nil {
			return nil, fmt.Errorf("landmark oracle: %w", err)
		}
		s.closers = append(s.closers, sp)
		return sp, nil
	default:
		return landmarks.NewSimulated(
			landmarks.WithSeed(o.Seed),
			landmarks.WithSlouchProbability(o.SlouchProbability),
		), nil
	}
}

func (s *Service) buildDevice() (camera.Device, error) {
	c := s.cfg.Camera
	return camera.NewDevice(camera.DeviceConfig{
		Backend: c.Backend,
		Device:  c.Device,
		Width:   c.Width,
		Height:  c.Height,
		FPS:     c.FPS,
	})
}

func (s *Service) noDetectionStatus() (model.PostureStatus, error) {
	st, err := model.ParseStatus(s.cfg.NoDetectionStatus)
	if err != nil {
		return model.StatusUninitialized, fmt.Errorf("no_detection_status: %w", err)
	}
	return st, nil
}

// buildSinks assembles the fan-out. An unreachable MQTT broker is logged and
// skipped so monitoring still runs.
func (s *Service) buildSinks(ctx context.Context) sink.Fanout {
	sinks := []sink.Sink{sink.NewLogSink(s.logger.Named("events"))}
	if s.cfg.Terminal.Enabled {
		sinks = append(sinks, sink.NewTerminalSink(os.Stderr))
	}
	if s.cfg.MQTT.Enabled {
		m, err := sink.DialMQTT(ctx, sink.MQTTOptions{
			Broker:   s.cfg.MQTT.Broker,
			ClientID: s.cfg.MQTT.ClientID,
			Topic:    s.cfg.MQTT.Topic,
			QoS:      byte(s.cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		}, s.logger.Named("mqtt"))
		if err != nil {
			s.logger.Warn(ctx, "mqtt sink disabled", logger.Error(err))
		} else {
			sinks = append(sinks, m)
			s.closers = append(s.closers, m)
		}
	}
	if s.previews != nil {
		sinks = append(sinks, s.previews)
	}
	sinks = append(sinks, s.extraSinks...)
	return sink.NewFanout(sinks...)
}
