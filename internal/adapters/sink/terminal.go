package sink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/metrics"
)

var (
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	goodStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#52C41A"))
	slouchStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF4D4F"))
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
)

// StatusStyle returns the lipgloss style for a status color.
func StatusStyle(color string) lipgloss.Style {
	switch color {
	case model.ColorGreen:
		return goodStyle
	case model.ColorRed:
		return slouchStyle
	default:
		return idleStyle
	}
}

// TerminalSink prints a colored status line and a timestamped log panel, one
// line per event.
type TerminalSink struct {
	Nop
	mu sync.Mutex
	w  io.Writer
}

// NewTerminalSink writes to w.
func NewTerminalSink(w io.Writer) *TerminalSink {
	return &TerminalSink{w: w}
}

// StatusChanged implements Sink.
func (t *TerminalSink) StatusChanged(ev model.StatusEvent) {
	metrics.RecordSinkEvent("terminal", "status")
	t.println(ev.At, StatusStyle(ev.Color).Render("Status: "+ev.Status.String()))
}

// Message implements Sink.
func (t *TerminalSink) Message(ev model.LogEvent) {
	metrics.RecordSinkEvent("terminal", "message")
	msg := ev.Message
	if ev.Level == "error" || ev.Level == "warn" {
		msg = warnStyle.Render(msg)
	}
	t.println(ev.At, msg)
}

func (t *TerminalSink) println(at time.Time, msg string) {
	if at.IsZero() {
		at = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.w, "%s - %s\n", timeStyle.Render(at.Format("15:04:05")), msg); err != nil {
		metrics.RecordSinkDrop("terminal")
	}
}
