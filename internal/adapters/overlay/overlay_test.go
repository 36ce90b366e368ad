package overlay_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/posture/internal/adapters/landmarks"
	"github.com/okian/posture/internal/adapters/overlay"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
	. "github.com/smartystreets/goconvey/convey"
)

func blackFrame(w, h int) model.Frame {
	data := make([]byte, w*h*4)
	for i := 3; i < len(data); i += 4 {
		data[i] = 0xff
	}
	return model.Frame{ID: "f1", Seq: 9, Width: w, Height: h, Encoding: model.EncodingRGBA, Data: data, CapturedAt: time.Unix(100, 0)}
}

type collector struct {
	mu     sync.Mutex
	frames []model.Frame
	got    chan struct{}
}

func newCollector() *collector { return &collector{got: make(chan struct{}, 16)} }

func (c *collector) PreviewFrame(f model.Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestAnnotate(t *testing.T) {
	Convey("Given a stage over a static detector", t, func() {
		det := landmarks.NewStatic(landmarks.UprightPose(), nil)
		stage, err := overlay.NewStage(det, posture.NewClassifier(), newCollector())
		So(err, ShouldBeNil)

		Convey("When a good posture frame is annotated", func() {
			out, err := stage.Annotate(context.Background(), blackFrame(64, 48))

			Convey("Then the result keeps identity and geometry", func() {
				So(err, ShouldBeNil)
				So(out.Valid(), ShouldBeTrue)
				So(out.Width, ShouldEqual, 64)
				So(out.Height, ShouldEqual, 48)
				So(out.Seq, ShouldEqual, 9)
				So(out.CapturedAt, ShouldEqual, time.Unix(100, 0))
			})

			Convey("Then the status bar is green", func() {
				r, g := out.Data[0], out.Data[1]
				So(g, ShouldBeGreaterThan, r)
			})
		})

		Convey("When the detector reports a slouch", func() {
			det.Set(landmarks.SlouchedPose(), nil)
			out, err := stage.Annotate(context.Background(), blackFrame(64, 48))

			Convey("Then the status bar is red", func() {
				So(err, ShouldBeNil)
				r, g := out.Data[0], out.Data[1]
				So(r, ShouldBeGreaterThan, g)
			})
		})

		Convey("When the frame is wider than the preview", func() {
			out, err := stage.Annotate(context.Background(), blackFrame(640, 480))

			Convey("Then it is scaled to the preview width", func() {
				So(err, ShouldBeNil)
				So(out.Width, ShouldEqual, overlay.DefaultWidth)
				So(out.Height, ShouldEqual, 240)
			})
		})

		Convey("When the frame is malformed", func() {
			_, err := stage.Annotate(context.Background(), model.Frame{Width: 2, Height: 2, Encoding: model.EncodingRGBA})
			So(errors.Is(err, overlay.ErrBadFrame), ShouldBeTrue)
		})
	})

	Convey("Given no detector", t, func() {
		_, err := overlay.NewStage(nil, nil, newCollector())
		So(err, ShouldEqual, posture.ErrNilDetector)
	})
}

func TestHookThrottling(t *testing.T) {
	Convey("Given a stage with a fake clock", t, func() {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		out := newCollector()
		stage, _ := overlay.NewStage(landmarks.NewStatic(landmarks.UprightPose(), nil), nil, out,
			overlay.WithInterval(time.Second),
			overlay.WithClock(clock.Now),
		)
		frame := blackFrame(8, 8)

		Convey("When frames arrive faster than the interval", func() {
			stage.Hook(context.Background(), frame)
			<-out.got
			stage.Hook(context.Background(), frame)
			clock.Advance(500 * time.Millisecond)
			stage.Hook(context.Background(), frame)

			Convey("Then only the first is annotated", func() {
				time.Sleep(20 * time.Millisecond)
				So(out.count(), ShouldEqual, 1)
			})

			Convey("And after the interval another one is", func() {
				clock.Advance(600 * time.Millisecond)
				stage.Hook(context.Background(), frame)
				<-out.got
				So(out.count(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a slow detector", t, func() {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		release := make(chan struct{})
		slow := posture.DetectorFunc(func(context.Context, model.Frame) (*model.LandmarkSet, error) {
			<-release
			return nil, nil
		})
		out := newCollector()
		stage, _ := overlay.NewStage(slow, nil, out,
			overlay.WithInterval(time.Millisecond),
			overlay.WithClock(clock.Now),
		)
		frame := blackFrame(8, 8)

		Convey("When a frame arrives while one is being annotated", func() {
			stage.Hook(context.Background(), frame)
			clock.Advance(time.Second)
			stage.Hook(context.Background(), frame)
			close(release)
			<-out.got

			Convey("Then it is skipped", func() {
				time.Sleep(20 * time.Millisecond)
				So(out.count(), ShouldEqual, 1)
			})
		})
	})
}

func TestEncodeJPEG(t *testing.T) {
	Convey("Given an RGBA frame", t, func() {
		var buf bytes.Buffer
		err := overlay.EncodeJPEG(&buf, blackFrame(16, 16), 80)

		Convey("Then a JPEG stream is written", func() {
			So(err, ShouldBeNil)
			So(buf.Len(), ShouldBeGreaterThan, 2)
			So(buf.Bytes()[:2], ShouldResemble, []byte{0xff, 0xd8})
		})
	})

	Convey("Given a BGR frame", t, func() {
		f := model.Frame{Width: 1, Height: 1, Encoding: model.EncodingBGR, Data: []byte{1, 2, 3}}
		img, err := overlay.ToImage(f)
		So(err, ShouldBeNil)
		r, g, b, _ := img.At(0, 0).RGBA()
		So(r>>8, ShouldEqual, 3)
		So(g>>8, ShouldEqual, 2)
		So(b>>8, ShouldEqual, 1)
	})
}
