package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "POSTURE_"
	// EnvConfigFile names a YAML file to layer over the defaults.
	EnvConfigFile = "POSTURE_CONFIG"
)

type loadOptions struct {
	path string
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithFile loads the given YAML file instead of the one named by POSTURE_CONFIG.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) {
		if path != "" {
			o.path = path
		}
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. YAML file from WithFile or POSTURE_CONFIG
//  3. env (prefix POSTURE_, "__" separates nested keys: POSTURE_CAMERA__BACKEND)
func Load(ctx context.Context, opts ...LoadOption) (*Config, error) {
	o := loadOptions{path: os.Getenv(EnvConfigFile)}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")

	if o.path != "" {
		if err := k.Load(file.Provider(o.path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, o.path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New(ctx)
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Cadence <= 0 {
		return invalid("cadence must be positive")
	}
	if c.Camera.Backoff <= 0 || c.Camera.Backoff > c.Cadence {
		return invalid("camera.backoff must be in (0, cadence]")
	}
	if c.Camera.StopGrace <= 0 {
		return invalid("camera.stop_grace must be positive")
	}
	switch c.Camera.Backend {
	case BackendSynthetic, BackendGoCV, BackendGStreamer:
	default:
		return invalid("unknown camera.backend %q", c.Camera.Backend)
	}
	switch strings.ToLower(c.NoDetectionStatus) {
	case "good", "slouch":
	default:
		return invalid("no_detection_status must be good or slouch, got %q", c.NoDetectionStatus)
	}
	switch strings.ToLower(c.Classifier.BodySide) {
	case "left", "right":
	default:
		return invalid("unknown classifier.body_side %q", c.Classifier.BodySide)
	}
	if c.Classifier.KHSMin > c.Classifier.KHSMax {
		return invalid("classifier.khs_min must not exceed khs_max")
	}
	switch c.Oracle.Kind {
	case OracleSimulated:
		if c.Oracle.SlouchProbability < 0 || c.Oracle.SlouchProbability > 1 {
			return invalid("oracle.slouch_probability must be within [0,1]")
		}
	case OracleSubprocess:
		if c.Oracle.Command == "" {
			return invalid("oracle.command is required for the subprocess oracle")
		}
	default:
		return invalid("unknown oracle.kind %q", c.Oracle.Kind)
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return invalid("storage.path is required for sqlite")
		}
	case DriverMemory:
	default:
		return invalid("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Queue.Size <= 0 {
		return invalid("queue.size must be positive")
	}
	if c.Worker.Count <= 0 {
		return invalid("worker.count must be positive")
	}
	switch c.Ranking.RatioMode {
	case "duration", "count":
	default:
		return invalid("unknown ranking.ratio_mode %q", c.Ranking.RatioMode)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return invalid("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return invalid("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}
