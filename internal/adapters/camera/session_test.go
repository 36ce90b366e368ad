package camera_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/posture/internal/adapters/camera"
	"github.com/okian/posture/internal/adapters/framebuf"
	"github.com/okian/posture/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var errFlaky = errors.New("flaky read")

// scriptedDevice fails the first openFailures opens. With failAll every read
// fails; with blockRead reads hang until the channel is closed, and with
// blockOpen opens do.
type scriptedDevice struct {
	mu           sync.Mutex
	openFailures int
	failAll      bool
	opens        int
	closes       int
	reads        int
	blockRead    chan struct{}
	blockOpen    chan struct{}
}

func (d *scriptedDevice) Open(context.Context) error {
	if d.blockOpen != nil {
		// Ignores ctx like the gocv and gst backends do.
		<-d.blockOpen
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openFailures > 0 {
		d.openFailures--
		return camera.ErrCameraUnavailable
	}
	d.opens++
	return nil
}

func (d *scriptedDevice) Read(ctx context.Context) (model.Frame, error) {
	d.mu.Lock()
	d.reads++
	n := d.reads
	block := d.blockRead
	failAll := d.failAll
	d.mu.Unlock()

	if block != nil {
		// Ignores ctx on purpose to emulate a driver call that hangs.
		<-block
		return model.Frame{}, errFlaky
	}
	if failAll {
		return model.Frame{}, errFlaky
	}
	time.Sleep(time.Millisecond)
	return model.Frame{Seq: uint64(n), Width: 1, Height: 1, Encoding: model.EncodingGray, Data: []byte{byte(n)}}, nil
}

func (d *scriptedDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *scriptedDevice) counts() (opens, closes, reads int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens, d.closes, d.reads
}

func TestNewSession(t *testing.T) {
	Convey("Given missing dependencies", t, func() {
		_, err := camera.NewSession(nil, framebuf.New())
		So(err, ShouldEqual, camera.ErrNilDevice)

		_, err = camera.NewSession(&scriptedDevice{}, nil)
		So(err, ShouldEqual, camera.ErrNilPublisher)
	})
}

func TestSessionCapture(t *testing.T) {
	Convey("Given a session over a working device", t, func() {
		dev := &scriptedDevice{}
		buf := framebuf.New(framebuf.WithoutMetrics())
		var hooked atomic.Int64
		s, err := camera.NewSession(dev, buf,
			camera.WithBackoff(time.Millisecond),
			camera.WithFrameHook(func(context.Context, model.Frame) { hooked.Add(1) }),
		)
		So(err, ShouldBeNil)

		Convey("When it runs briefly", func() {
			So(s.Start(context.Background()), ShouldBeNil)
			So(s.Start(context.Background()), ShouldEqual, camera.ErrAlreadyStarted)
			time.Sleep(30 * time.Millisecond)
			s.Stop()

			Convey("Then frames reach the buffer and the hook", func() {
				_, ok := buf.Latest()
				So(ok, ShouldBeTrue)
				So(s.Stats().Captured, ShouldBeGreaterThan, 0)
				So(hooked.Load(), ShouldEqual, int64(s.Stats().Captured))
			})

			Convey("Then the device is closed exactly once", func() {
				opens, closes, _ := dev.counts()
				So(opens, ShouldEqual, 1)
				So(closes, ShouldEqual, 1)
				So(s.Running(), ShouldBeFalse)
			})

			Convey("And a second Stop is a no-op", func() {
				s.Stop()
				_, closes, _ := dev.counts()
				So(closes, ShouldEqual, 1)
			})
		})
	})
}

func TestSessionRetries(t *testing.T) {
	Convey("Given a device that fails to open a few times", t, func() {
		dev := &scriptedDevice{openFailures: 3}
		buf := framebuf.New(framebuf.WithoutMetrics())
		s, _ := camera.NewSession(dev, buf, camera.WithBackoff(time.Millisecond))

		So(s.Start(context.Background()), ShouldBeNil)
		time.Sleep(40 * time.Millisecond)
		s.Stop()

		Convey("Then it keeps retrying and eventually captures", func() {
			So(s.Stats().Failures, ShouldBeGreaterThanOrEqualTo, 3)
			So(s.Stats().Captured, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a device whose reads always fail", t, func() {
		dev := &scriptedDevice{failAll: true}
		buf := framebuf.New(framebuf.WithoutMetrics())
		s, _ := camera.NewSession(dev, buf,
			camera.WithBackoff(time.Millisecond),
			camera.WithReopenAfter(2),
		)

		So(s.Start(context.Background()), ShouldBeNil)
		time.Sleep(40 * time.Millisecond)
		s.Stop()

		Convey("Then the device is reopened after consecutive failures", func() {
			opens, closes, _ := dev.counts()
			So(s.Stats().Reopens, ShouldBeGreaterThan, 0)
			So(opens, ShouldBeGreaterThan, 1)
			So(closes, ShouldEqual, opens)
			_, ok := buf.Latest()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestSessionStopGrace(t *testing.T) {
	Convey("Given a device whose read hangs", t, func() {
		release := make(chan struct{})
		dev := &scriptedDevice{blockRead: release}
		s, _ := camera.NewSession(dev, framebuf.New(framebuf.WithoutMetrics()),
			camera.WithStopGrace(20*time.Millisecond),
		)
		So(s.Start(context.Background()), ShouldBeNil)
		time.Sleep(5 * time.Millisecond)

		Convey("When Stop is called", func() {
			start := time.Now()
			s.Stop()
			elapsed := time.Since(start)

			Convey("Then it returns after the grace period and releases the device", func() {
				So(elapsed, ShouldBeGreaterThanOrEqualTo, 20*time.Millisecond)
				So(elapsed, ShouldBeLessThan, time.Second)
				_, closes, _ := dev.counts()
				So(closes, ShouldEqual, 1)
				So(s.Running(), ShouldBeFalse)
			})

			Reset(func() { close(release) })
		})
	})
}

func TestSessionStopDuringOpen(t *testing.T) {
	Convey("Given a device whose open hangs", t, func() {
		unblock := make(chan struct{})
		dev := &scriptedDevice{blockOpen: unblock}
		s, _ := camera.NewSession(dev, framebuf.New(framebuf.WithoutMetrics()),
			camera.WithStopGrace(20*time.Millisecond),
		)
		So(s.Start(context.Background()), ShouldBeNil)
		time.Sleep(5 * time.Millisecond)

		Convey("When Stop is called", func() {
			start := time.Now()
			s.Stop()
			elapsed := time.Since(start)

			Convey("Then it returns within about the grace period", func() {
				So(elapsed, ShouldBeGreaterThanOrEqualTo, 20*time.Millisecond)
				So(elapsed, ShouldBeLessThan, 500*time.Millisecond)
				So(s.Running(), ShouldBeFalse)
				_, closes, reads := dev.counts()
				So(closes, ShouldEqual, 0)
				So(reads, ShouldEqual, 0)
			})

			Convey("And a late successful open is closed, never read", func() {
				close(unblock)
				deadline := time.Now().Add(time.Second)
				for time.Now().Before(deadline) {
					if _, closes, _ := dev.counts(); closes == 1 {
						break
					}
					time.Sleep(time.Millisecond)
				}
				opens, closes, reads := dev.counts()
				So(opens, ShouldEqual, 1)
				So(closes, ShouldEqual, 1)
				So(reads, ShouldEqual, 0)
			})

			Reset(func() {
				select {
				case <-unblock:
				default:
					close(unblock)
				}
			})
		})
	})
}

func TestSyntheticDevice(t *testing.T) {
	Convey("Given a synthetic device", t, func() {
		dev, err := camera.NewDevice(camera.DeviceConfig{Backend: camera.BackendSynthetic, Width: 4, Height: 2, FPS: 200})
		So(err, ShouldBeNil)

		Convey("Then reading before open fails", func() {
			_, err := dev.Read(context.Background())
			So(err, ShouldEqual, camera.ErrNotOpen)
		})

		Convey("When opened and read", func() {
			So(dev.Open(context.Background()), ShouldBeNil)
			f1, err1 := dev.Read(context.Background())
			f2, err2 := dev.Read(context.Background())
			So(dev.Close(), ShouldBeNil)

			Convey("Then frames are valid RGBA with increasing sequence numbers", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(f1.Valid(), ShouldBeTrue)
				So(len(f1.Data), ShouldEqual, 4*2*4)
				So(f2.Seq, ShouldEqual, f1.Seq+1)
				So(f1.ID, ShouldNotEqual, f2.ID)
			})
		})

		Convey("When the context is cancelled during pacing", func() {
			slow := camera.NewSynthetic(2, 2, 1)
			So(slow.Open(context.Background()), ShouldBeNil)
			_, _ = slow.Read(context.Background())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := slow.Read(ctx)

			Convey("Then Read returns the context error", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unknown backend", t, func() {
		_, err := camera.NewDevice(camera.DeviceConfig{Backend: "firewire"})
		So(errors.Is(err, camera.ErrUnsupportedBackend), ShouldBeTrue)
	})
}
