package framebuf_test

import (
	"sync"
	"testing"

	"github.com/okian/posture/internal/adapters/framebuf"
	"github.com/okian/posture/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func frame(seq uint64, px byte) model.Frame {
	return model.Frame{Seq: seq, Width: 1, Height: 1, Encoding: model.EncodingGray, Data: []byte{px}}
}

func TestBuffer(t *testing.T) {
	Convey("Given an empty buffer", t, func() {
		b := framebuf.New()

		Convey("Then Latest returns nothing", func() {
			_, ok := b.Latest()
			So(ok, ShouldBeFalse)
		})

		Convey("When one frame is published", func() {
			f := frame(1, 10)
			b.Publish(f)
			got, ok := b.Latest()

			Convey("Then Latest returns an equal copy", func() {
				So(ok, ShouldBeTrue)
				So(got, ShouldResemble, f)
			})

			Convey("And mutating the copy does not affect the buffer", func() {
				got.Data[0] = 99
				again, _ := b.Latest()
				So(again.Data[0], ShouldEqual, 10)
			})
		})

		Convey("When a second frame replaces the first", func() {
			b.Publish(frame(1, 10))
			b.Publish(frame(2, 20))
			got, ok := b.Latest()

			Convey("Then only the second is observable", func() {
				So(ok, ShouldBeTrue)
				So(got.Seq, ShouldEqual, 2)
				So(got.Data[0], ShouldEqual, 20)
				st := b.Stats()
				So(st.Published, ShouldEqual, 2)
				So(st.Overwritten, ShouldEqual, 1)
				So(st.LastSeq, ShouldEqual, 2)
			})
		})

		Convey("When reset", func() {
			b.Publish(frame(1, 1))
			b.Reset()

			Convey("Then it is empty again", func() {
				_, ok := b.Latest()
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestBufferConcurrency(t *testing.T) {
	Convey("Given concurrent publishers and readers", t, func() {
		b := framebuf.New(framebuf.WithoutMetrics())
		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < 500; i++ {
					b.Publish(frame(uint64(p*1000+i), byte(i)))
				}
			}(p)
		}
		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 500; i++ {
					if f, ok := b.Latest(); ok {
						f.Data[0]++
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then every publish is counted", func() {
			So(b.Stats().Published, ShouldEqual, 2000)
		})
	})
}
