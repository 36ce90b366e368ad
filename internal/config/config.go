// Package config defines the monitor configuration and its loading hooks.
//
// Conventions:
//   - New(ctx) returns a Config populated with defaults.
//   - Load(ctx, ...) layers a YAML file and POSTURE_ environment variables on top.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"time"
)

// Camera backends.
const (
	BackendSynthetic = "synthetic"
	BackendGoCV      = "gocv"
	BackendGStreamer = "gst"
)

// Landmark oracle kinds.
const (
	OracleSimulated  = "simulated"
	OracleSubprocess = "subprocess"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080". Empty disables the API.
	Addr string `koanf:"addr"`

	// User is the subject of the monitoring session.
	User string `koanf:"user"`

	// Cadence is the status evaluation interval, independent of frame rate.
	Cadence time.Duration `koanf:"cadence"`

	// NoDetectionStatus is the status assigned when no landmarks were found:
	// "good" or "slouch".
	NoDetectionStatus string `koanf:"no_detection_status"`

	// UniqueUsernames rejects a session whose user already has history.
	UniqueUsernames bool `koanf:"unique_usernames"`

	// MetricsInterval controls how often process metrics are sampled.
	MetricsInterval time.Duration `koanf:"metrics_interval"`

	// ShutdownTimeout bounds HTTP server and writer draining on exit.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	Camera     CameraConfig     `koanf:"camera"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Oracle     OracleConfig     `koanf:"oracle"`
	Preview    PreviewConfig    `koanf:"preview"`
	Storage    StorageConfig    `koanf:"storage"`
	Queue      QueueConfig      `koanf:"queue"`
	Worker     WorkerConfig     `koanf:"worker"`
	MQTT       MQTTConfig       `koanf:"mqtt"`
	Terminal   TerminalConfig   `koanf:"terminal"`
	Ranking    RankingConfig    `koanf:"ranking"`
}

// CameraConfig configures the frame source.
type CameraConfig struct {
	Backend     string        `koanf:"backend"`
	Device      string        `koanf:"device"`
	Width       int           `koanf:"width"`
	Height      int           `koanf:"height"`
	FPS         int           `koanf:"fps"`
	Backoff     time.Duration `koanf:"backoff"`
	StopGrace   time.Duration `koanf:"stop_grace"`
	ReopenAfter int           `koanf:"reopen_after"`
}

// ClassifierConfig holds the geometric thresholds.
type ClassifierConfig struct {
	BodySide      string  `koanf:"body_side"`
	VirtualOffset float64 `koanf:"virtual_offset"`
	KHSMin        float64 `koanf:"khs_min"`
	KHSMax        float64 `koanf:"khs_max"`
	HSEMin        float64 `koanf:"hse_min"`
	SEVMin        float64 `koanf:"sev_min"`
}

// OracleConfig selects and configures the landmark detector.
type OracleConfig struct {
	Kind              string        `koanf:"kind"`
	Command           string        `koanf:"command"`
	Args              []string      `koanf:"args"`
	Timeout           time.Duration `koanf:"timeout"`
	Seed              int64         `koanf:"seed"`
	SlouchProbability float64       `koanf:"slouch_probability"`
}

// PreviewConfig configures the annotated preview stage.
type PreviewConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
	Width    int           `koanf:"width"`
}

// StorageConfig selects the transition store.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

// QueueConfig bounds the transition write queue.
type QueueConfig struct {
	Size int `koanf:"size"`
}

// WorkerConfig sizes the transition writer pool.
type WorkerConfig struct {
	Count int `koanf:"count"`
}

// MQTTConfig configures the optional MQTT event sink.
type MQTTConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Broker   string `koanf:"broker"`
	ClientID string `koanf:"client_id"`
	Topic    string `koanf:"topic"`
	QoS      int    `koanf:"qos"`
}

// TerminalConfig toggles colored status output on stderr.
type TerminalConfig struct {
	Enabled bool `koanf:"enabled"`
}

// RankingConfig configures report computation.
type RankingConfig struct {
	// RatioMode is "duration" (time weighted) or "count" (per transition record).
	RatioMode string `koanf:"ratio_mode"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config populated with defaults. Context is accepted first to
// follow the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		User:              "",
		Cadence:           2000 * time.Millisecond,
		NoDetectionStatus: "good",
		UniqueUsernames:   false,
		MetricsInterval:   5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		Camera: CameraConfig{
			Backend:     BackendSynthetic,
			Device:      "0",
			Width:       640,
			Height:      480,
			FPS:         15,
			Backoff:     100 * time.Millisecond,
			StopGrace:   2 * time.Second,
			ReopenAfter: 20,
		},
		Classifier: ClassifierConfig{
			BodySide:      "left",
			VirtualOffset: 0.1,
			KHSMin:        75,
			KHSMax:        105,
			HSEMin:        165,
			SEVMin:        165,
		},
		Oracle: OracleConfig{
			Kind:              OracleSimulated,
			Timeout:           time.Second,
			Seed:              0,
			SlouchProbability: 0.5,
		},
		Preview: PreviewConfig{
			Enabled:  false,
			Interval: 500 * time.Millisecond,
			Width:    320,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "posture_data.db",
		},
		Queue:  QueueConfig{Size: 256},
		Worker: WorkerConfig{Count: 1},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			ClientID: "posture-monitor",
			Topic:    "posture",
			QoS:      0,
		},
		Terminal: TerminalConfig{Enabled: true},
		Ranking: RankingConfig{
			RatioMode:           "duration",
			MaxLeaderboardLimit: 100,
		},
	}
}
