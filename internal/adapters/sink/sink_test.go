package sink_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/okian/posture/internal/adapters/framebuf"
	"github.com/okian/posture/internal/adapters/sink"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var at = time.Date(2025, 3, 1, 14, 5, 9, 0, time.UTC)

func slouchEvent() model.StatusEvent {
	return model.StatusEvent{
		User:    "alice",
		Status:  model.StatusSlouch,
		Color:   model.StatusSlouch.Color(),
		Message: "Status changed to: " + model.StatusSlouch.String(),
		At:      at,
	}
}

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newToken(c.err)
}

func (c *fakeClient) all() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

type recordingSink struct {
	sink.Nop
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) StatusChanged(ev model.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "status:"+ev.Status.Key())
}

func (r *recordingSink) Message(ev model.LogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "msg:"+ev.Message)
}

func TestFanout(t *testing.T) {
	Convey("Given a fanout over two sinks and a nil", t, func() {
		a, b := &recordingSink{}, &recordingSink{}
		f := sink.NewFanout(a, nil, b)
		So(f, ShouldHaveLength, 2)

		f.StatusChanged(slouchEvent())
		f.Message(model.LogEvent{Message: "Record inserted into database."})
		f.PreviewFrame(model.Frame{})

		Convey("Then every sink sees every event in order", func() {
			want := []string{"status:slouch", "msg:Record inserted into database."}
			So(a.events, ShouldResemble, want)
			So(b.events, ShouldResemble, want)
		})
	})
}

func TestLogSink(t *testing.T) {
	Convey("Given a log sink", t, func() {
		var buf bytes.Buffer
		s := sink.NewLogSink(logger.New(&buf, -4))

		s.StatusChanged(slouchEvent())
		s.Message(model.LogEvent{Level: "error", Message: "DB insert error: disk full"})

		Convey("Then status changes and messages are logged", func() {
			out := buf.String()
			So(out, ShouldContainSubstring, "Status changed to: Slouch Detected")
			So(out, ShouldContainSubstring, "status=slouch")
			So(out, ShouldContainSubstring, "level=ERROR")
			So(out, ShouldContainSubstring, "DB insert error: disk full")
		})
	})
}

func TestTerminalSink(t *testing.T) {
	Convey("Given a terminal sink", t, func() {
		var buf bytes.Buffer
		s := sink.NewTerminalSink(&buf)

		s.StatusChanged(slouchEvent())
		s.Message(model.LogEvent{Message: "Record inserted into database.", At: at})

		Convey("Then it prints one timestamped line per event", func() {
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			So(lines, ShouldHaveLength, 2)
			So(lines[0], ShouldContainSubstring, "14:05:09")
			So(lines[0], ShouldContainSubstring, "Status: Slouch Detected")
			So(lines[1], ShouldContainSubstring, "Record inserted into database.")
		})
	})
}

func TestMQTTSink(t *testing.T) {
	Convey("Given an MQTT sink over a fake client", t, func() {
		client := &fakeClient{}
		s := sink.NewMQTTSink(client, "office/posture", 1, nil)

		Convey("When a status change is published", func() {
			s.StatusChanged(slouchEvent())
			msgs := client.all()

			Convey("Then a retained JSON message goes to the status topic", func() {
				So(msgs, ShouldHaveLength, 1)
				So(msgs[0].topic, ShouldEqual, "office/posture/status")
				So(msgs[0].qos, ShouldEqual, 1)
				So(msgs[0].retained, ShouldBeTrue)

				var body map[string]any
				So(json.Unmarshal(msgs[0].payload, &body), ShouldBeNil)
				So(body["user"], ShouldEqual, "alice")
				So(body["status"], ShouldEqual, "Slouch Detected")
				So(body["color"], ShouldEqual, "red")
				So(s.Published(), ShouldEqual, 1)
			})
		})

		Convey("When a log line is published", func() {
			s.Message(model.LogEvent{Level: "info", Message: "hello", At: at})
			msgs := client.all()

			Convey("Then it goes to the log topic unretained", func() {
				So(msgs, ShouldHaveLength, 1)
				So(msgs[0].topic, ShouldEqual, "office/posture/log")
				So(msgs[0].retained, ShouldBeFalse)
			})
		})

		Convey("When the broker rejects a publish", func() {
			client.err = errors.New("not connected")
			s.Message(model.LogEvent{Message: "x"})

			Convey("Then the drop is counted asynchronously", func() {
				deadline := time.Now().Add(time.Second)
				for s.Dropped() == 0 && time.Now().Before(deadline) {
					time.Sleep(time.Millisecond)
				}
				So(s.Dropped(), ShouldEqual, 1)
			})
		})

		Convey("Then Close on a non-dialed sink is a no-op", func() {
			So(s.Close(), ShouldBeNil)
		})
	})
}

func TestChannelSink(t *testing.T) {
	Convey("Given a channel sink of size one", t, func() {
		c := sink.NewChannelSink(1)

		c.StatusChanged(slouchEvent())
		c.StatusChanged(model.StatusEvent{Status: model.StatusGood})
		c.Message(model.LogEvent{Message: "one"})
		c.PreviewFrame(model.Frame{Seq: 1})
		c.PreviewFrame(model.Frame{Seq: 2})

		Convey("Then the first event is kept and overflow is dropped", func() {
			ev := <-c.Status()
			So(ev.Status, ShouldEqual, model.StatusSlouch)
			So(len(c.Status()), ShouldEqual, 0)
			So((<-c.Messages()).Message, ShouldEqual, "one")
			So((<-c.Previews()).Seq, ShouldEqual, 1)
		})
	})
}

func TestPreviewSink(t *testing.T) {
	Convey("Given a preview sink", t, func() {
		p := sink.NewPreviewSink(framebuf.New(framebuf.WithoutMetrics()))

		_, ok := p.Latest()
		So(ok, ShouldBeFalse)

		p.PreviewFrame(model.Frame{Seq: 4, Width: 1, Height: 1, Encoding: model.EncodingGray, Data: []byte{1}})
		p.StatusChanged(slouchEvent())

		Convey("Then the latest preview is readable", func() {
			f, ok := p.Latest()
			So(ok, ShouldBeTrue)
			So(f.Seq, ShouldEqual, 4)
		})
	})
}
