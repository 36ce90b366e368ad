package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/posture/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigDefaults(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it mirrors the monitor's documented behavior", func() {
			convey.So(cfg.Cadence, convey.ShouldEqual, 2000*time.Millisecond)
			convey.So(cfg.Classifier.KHSMin, convey.ShouldEqual, 75)
			convey.So(cfg.Classifier.KHSMax, convey.ShouldEqual, 105)
			convey.So(cfg.Classifier.HSEMin, convey.ShouldEqual, 165)
			convey.So(cfg.Classifier.SEVMin, convey.ShouldEqual, 165)
			convey.So(cfg.Classifier.BodySide, convey.ShouldEqual, "left")
			convey.So(cfg.NoDetectionStatus, convey.ShouldEqual, "good")
			convey.So(cfg.Storage.Driver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.Storage.Path, convey.ShouldEqual, "posture_data.db")
			convey.So(cfg.Ranking.RatioMode, convey.ShouldEqual, "duration")
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New(context.Background())

		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"zero cadence", func(c *config.Config) { c.Cadence = 0 }},
			{"backoff above cadence", func(c *config.Config) { c.Camera.Backoff = 3 * time.Second }},
			{"zero stop grace", func(c *config.Config) { c.Camera.StopGrace = 0 }},
			{"unknown policy", func(c *config.Config) { c.NoDetectionStatus = "maybe" }},
			{"unknown body side", func(c *config.Config) { c.Classifier.BodySide = "center" }},
			{"inverted khs range", func(c *config.Config) { c.Classifier.KHSMin = 110 }},
			{"probability out of range", func(c *config.Config) { c.Oracle.SlouchProbability = 1.5 }},
			{"subprocess without command", func(c *config.Config) { c.Oracle.Kind = config.OracleSubprocess }},
			{"unknown oracle", func(c *config.Config) { c.Oracle.Kind = "psychic" }},
			{"sqlite without path", func(c *config.Config) { c.Storage.Path = "" }},
			{"unknown driver", func(c *config.Config) { c.Storage.Driver = "csv" }},
			{"zero queue", func(c *config.Config) { c.Queue.Size = 0 }},
			{"zero workers", func(c *config.Config) { c.Worker.Count = 0 }},
			{"unknown ratio mode", func(c *config.Config) { c.Ranking.RatioMode = "median" }},
			{"mqtt without broker", func(c *config.Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker = ""
			}},
			{"bad qos", func(c *config.Config) { c.MQTT.QoS = 3 }},
		}

		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				tc.mutate(cfg)

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When the memory driver has no path", func() {
			cfg.Storage.Driver = config.DriverMemory
			cfg.Storage.Path = ""

			convey.Convey("Then it is still valid", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
