package posture_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
	. "github.com/smartystreets/goconvey/convey"
)

func pt(x, y float64) model.Point { return model.Point{X: x, Y: y} }

// leftSide builds a left-side landmark set from knee, hip, shoulder and ear.
func leftSide(knee, hip, shoulder, ear model.Point) *model.LandmarkSet {
	var s model.LandmarkSet
	s.Set(model.LeftKnee, model.Landmark{X: knee.X, Y: knee.Y, Visibility: 1})
	s.Set(model.LeftHip, model.Landmark{X: hip.X, Y: hip.Y, Visibility: 1})
	s.Set(model.LeftShoulder, model.Landmark{X: shoulder.X, Y: shoulder.Y, Visibility: 1})
	s.Set(model.LeftEar, model.Landmark{X: ear.X, Y: ear.Y, Visibility: 1})
	return &s
}

func upright() *model.LandmarkSet {
	return leftSide(pt(0.7, 0.6), pt(0.5, 0.6), pt(0.5, 0.3), pt(0.5, 0.15))
}

func TestFindAngle(t *testing.T) {
	Convey("Given three points", t, func() {
		Convey("When they form a right angle", func() {
			a := posture.FindAngle(pt(1, 0), pt(0, 0), pt(0, 1))

			Convey("Then the angle is 90 degrees", func() {
				So(a, ShouldAlmostEqual, 90, 1e-9)
			})
		})

		Convey("When they are collinear with the vertex in the middle", func() {
			a := posture.FindAngle(pt(0, 0), pt(0.5, 0.5), pt(1, 1))

			Convey("Then the angle is 180 degrees", func() {
				So(a, ShouldAlmostEqual, 180, 1e-4)
				So(math.IsNaN(a), ShouldBeFalse)
			})
		})

		Convey("When the outer points are swapped", func() {
			a, b, c := pt(0.13, 0.71), pt(0.4, 0.42), pt(0.92, 0.05)

			Convey("Then the angle is unchanged", func() {
				So(posture.FindAngle(a, b, c), ShouldAlmostEqual, posture.FindAngle(c, b, a), 1e-12)
			})
		})

		Convey("When either span has zero length", func() {
			Convey("Then the angle is 0", func() {
				So(posture.FindAngle(pt(0.3, 0.3), pt(0.3, 0.3), pt(0.9, 0.1)), ShouldEqual, 0)
				So(posture.FindAngle(pt(0.9, 0.1), pt(0.3, 0.3), pt(0.3, 0.3)), ShouldEqual, 0)
			})
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Given a default classifier", t, func() {
		c := posture.NewClassifier()

		Convey("When the subject sits upright", func() {
			status, angles, err := c.Classify(upright())

			Convey("Then it is good posture", func() {
				So(err, ShouldBeNil)
				So(status, ShouldEqual, model.StatusGood)
				So(angles.KneeHipShoulder, ShouldAlmostEqual, 90, 1e-9)
				So(angles.HipShoulderEar, ShouldAlmostEqual, 180, 1e-4)
				So(angles.ShoulderEarVirtual, ShouldAlmostEqual, 180, 1e-4)
			})
		})

		Convey("When the head juts forward", func() {
			status, _, err := c.Classify(leftSide(pt(0.7, 0.6), pt(0.5, 0.6), pt(0.5, 0.3), pt(0.62, 0.2)))

			Convey("Then it is a slouch", func() {
				So(err, ShouldBeNil)
				So(status, ShouldEqual, model.StatusSlouch)
			})
		})

		Convey("When only the knee-hip-shoulder angle is out of range", func() {
			status, angles, _ := c.Classify(leftSide(pt(0.7, 0.75), pt(0.5, 0.6), pt(0.5, 0.3), pt(0.5, 0.15)))

			Convey("Then it is a slouch", func() {
				So(angles.KneeHipShoulder, ShouldBeGreaterThan, 105)
				So(angles.HipShoulderEar, ShouldBeGreaterThanOrEqualTo, 165)
				So(status, ShouldEqual, model.StatusSlouch)
			})
		})

		Convey("When only the hip-shoulder-ear angle is out of range", func() {
			status, angles, _ := c.Classify(leftSide(pt(0.7, 0.65), pt(0.4, 0.6), pt(0.5, 0.3), pt(0.5, 0.15)))

			Convey("Then it is a slouch", func() {
				So(angles.KneeHipShoulder, ShouldBeBetweenOrEqual, 75, 105)
				So(angles.HipShoulderEar, ShouldBeLessThan, 165)
				So(angles.ShoulderEarVirtual, ShouldBeGreaterThanOrEqualTo, 165)
				So(status, ShouldEqual, model.StatusSlouch)
			})
		})

		Convey("When only the shoulder-ear-virtual angle is out of range", func() {
			status, angles, _ := c.Classify(leftSide(pt(0.7, 0.65), pt(0.4, 0.6), pt(0.5, 0.3), pt(0.55, 0.15)))

			Convey("Then it is a slouch", func() {
				So(angles.KneeHipShoulder, ShouldBeBetweenOrEqual, 75, 105)
				So(angles.HipShoulderEar, ShouldBeGreaterThanOrEqualTo, 165)
				So(angles.ShoulderEarVirtual, ShouldBeLessThan, 165)
				So(status, ShouldEqual, model.StatusSlouch)
			})
		})

		Convey("When a keypoint is missing", func() {
			var s model.LandmarkSet
			s.Set(model.LeftKnee, model.Landmark{X: 0.7, Y: 0.6})
			status, _, err := c.Classify(&s)

			Convey("Then ErrMissingLandmark is returned", func() {
				So(errors.Is(err, posture.ErrMissingLandmark), ShouldBeTrue)
				So(status, ShouldEqual, model.StatusUninitialized)
			})
		})

		Convey("When the set only has right-side points", func() {
			var s model.LandmarkSet
			s.Set(model.RightKnee, model.Landmark{X: 0.3, Y: 0.6})
			s.Set(model.RightHip, model.Landmark{X: 0.5, Y: 0.6})
			s.Set(model.RightShoulder, model.Landmark{X: 0.5, Y: 0.3})
			s.Set(model.RightEar, model.Landmark{X: 0.5, Y: 0.15})

			Convey("Then the left classifier misses and a right classifier succeeds", func() {
				_, _, err := c.Classify(&s)
				So(err, ShouldNotBeNil)
				right := posture.NewClassifier(posture.WithBodySide(posture.SideRight))
				status, _, err := right.Classify(&s)
				So(err, ShouldBeNil)
				So(status, ShouldEqual, model.StatusGood)
			})
		})
	})
}

func TestStatusForBoundaries(t *testing.T) {
	Convey("Given the default thresholds", t, func() {
		c := posture.NewClassifier()
		ok := model.Angles{KneeHipShoulder: 90, HipShoulderEar: 170, ShoulderEarVirtual: 170}

		Convey("Then the range bounds are inclusive", func() {
			for _, khs := range []float64{75, 105} {
				a := ok
				a.KneeHipShoulder = khs
				So(c.StatusFor(a), ShouldEqual, model.StatusGood)
			}
			a := ok
			a.HipShoulderEar, a.ShoulderEarVirtual = 165, 165
			So(c.StatusFor(a), ShouldEqual, model.StatusGood)
		})

		Convey("Then values just outside flip to slouch", func() {
			for _, mutate := range []func(*model.Angles){
				func(a *model.Angles) { a.KneeHipShoulder = 74.99 },
				func(a *model.Angles) { a.KneeHipShoulder = 105.01 },
				func(a *model.Angles) { a.HipShoulderEar = 164.99 },
				func(a *model.Angles) { a.ShoulderEarVirtual = 164.99 },
				func(a *model.Angles) { a.ShoulderEarVirtual = 0 },
			} {
				a := ok
				mutate(&a)
				So(c.StatusFor(a), ShouldEqual, model.StatusSlouch)
			}
		})

		Convey("When custom thresholds are supplied", func() {
			strict := posture.NewClassifier(posture.WithThresholds(posture.Thresholds{KHSMin: 85, KHSMax: 95, HSEMin: 175, SEVMin: 175}))

			Convey("Then they are applied", func() {
				So(strict.StatusFor(ok), ShouldEqual, model.StatusSlouch)
			})
		})

		Convey("When inverted thresholds are supplied", func() {
			c := posture.NewClassifier(posture.WithThresholds(posture.Thresholds{KHSMin: 110, KHSMax: 100}))

			Convey("Then the defaults are kept", func() {
				So(c.StatusFor(ok), ShouldEqual, model.StatusGood)
			})
		})
	})
}

func TestParseBodySide(t *testing.T) {
	Convey("Given body side names", t, func() {
		s, err := posture.ParseBodySide("Right")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, posture.SideRight)
		s, err = posture.ParseBodySide("")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, posture.SideLeft)
		_, err = posture.ParseBodySide("up")
		So(err, ShouldNotBeNil)
	})
}

func TestEvaluator(t *testing.T) {
	Convey("Given an evaluator", t, func() {
		fixed := time.Unix(1_700_000_000, 0)
		frame := model.Frame{Seq: 3, CapturedAt: fixed.Add(-time.Second)}

		newEval := func(d posture.Detector, opts ...posture.EvaluatorOption) *posture.Evaluator {
			opts = append(opts, posture.WithClock(func() time.Time { return fixed }))
			e, err := posture.NewEvaluator(d, posture.NewClassifier(), opts...)
			So(err, ShouldBeNil)
			return e
		}

		Convey("When there is no frame", func() {
			e := newEval(posture.DetectorFunc(func(context.Context, model.Frame) (*model.LandmarkSet, error) {
				panic("detector must not run without a frame")
			}))
			s := e.Evaluate(context.Background(), model.Frame{}, false)

			Convey("Then the sample is a no detection with the fallback status", func() {
				So(s.Outcome, ShouldEqual, model.OutcomeNoDetection)
				So(s.Status, ShouldEqual, model.StatusGood)
				So(s.CapturedAt, ShouldEqual, fixed)
			})
		})

		Convey("When the detector finds nobody and the fallback is slouch", func() {
			e := newEval(posture.DetectorFunc(func(context.Context, model.Frame) (*model.LandmarkSet, error) {
				return nil, nil
			}), posture.WithNoDetectionStatus(model.StatusSlouch))
			s := e.Evaluate(context.Background(), frame, true)

			Convey("Then the fallback status is used", func() {
				So(s.Outcome, ShouldEqual, model.OutcomeNoDetection)
				So(s.Status, ShouldEqual, model.StatusSlouch)
				So(s.CapturedAt, ShouldEqual, frame.CapturedAt)
				So(e.NoDetectionStatus(), ShouldEqual, model.StatusSlouch)
			})
		})

		Convey("When the detector fails", func() {
			boom := errors.New("pipe closed")
			e := newEval(posture.DetectorFunc(func(context.Context, model.Frame) (*model.LandmarkSet, error) {
				return nil, boom
			}))
			s := e.Evaluate(context.Background(), frame, true)

			Convey("Then the failure is distinct from no detection", func() {
				So(s.Outcome, ShouldEqual, model.OutcomeExtractionFailed)
				So(errors.Is(s.Err, boom), ShouldBeTrue)
				So(s.Status, ShouldEqual, model.StatusGood)
			})
		})

		Convey("When landmarks are incomplete", func() {
			e := newEval(posture.DetectorFunc(func(context.Context, model.Frame) (*model.LandmarkSet, error) {
				var s model.LandmarkSet
				s.Set(model.LeftEar, model.Landmark{X: 0.5, Y: 0.1})
				return &s, nil
			}))
			s := e.Evaluate(context.Background(), frame, true)

			Convey("Then it counts as no detection", func() {
				So(s.Outcome, ShouldEqual, model.OutcomeNoDetection)
			})
		})

		Convey("When a slouch is detected", func() {
			e := newEval(posture.DetectorFunc(func(context.Context, model.Frame) (*model.LandmarkSet, error) {
				return leftSide(pt(0.7, 0.6), pt(0.5, 0.6), pt(0.5, 0.3), pt(0.62, 0.2)), nil
			}))
			s := e.Evaluate(context.Background(), frame, true)

			Convey("Then the classified status is returned", func() {
				So(s.Outcome, ShouldEqual, model.OutcomeDetected)
				So(s.IsSlouch(), ShouldBeTrue)
				So(s.Angles.HipShoulderEar, ShouldBeLessThan, 165)
			})
		})

		Convey("When the detect timeout elapses", func() {
			e := newEval(posture.DetectorFunc(func(ctx context.Context, _ model.Frame) (*model.LandmarkSet, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}), posture.WithDetectTimeout(10*time.Millisecond))
			s := e.Evaluate(context.Background(), frame, true)

			Convey("Then extraction fails with the deadline", func() {
				So(s.Outcome, ShouldEqual, model.OutcomeExtractionFailed)
				So(errors.Is(s.Err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When the detector is nil", func() {
			_, err := posture.NewEvaluator(nil, nil)

			Convey("Then construction fails", func() {
				So(errors.Is(err, posture.ErrNilDetector), ShouldBeTrue)
			})
		})
	})
}
