// Package landmarks provides pose landmark oracles: an external helper
// process speaking length-prefixed msgpack, a seeded simulator, and a
// fixed-response detector.
package landmarks

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
	"github.com/okian/posture/pkg/logger"
)

const (
	defaultCallTimeout = time.Second
	killGrace          = 2 * time.Second
)

var _ posture.Detector = (*Subprocess)(nil)

// SubprocessOption configures a Subprocess.
type SubprocessOption func(*Subprocess)

// WithArgs sets the command arguments.
func WithArgs(args ...string) SubprocessOption {
	return func(s *Subprocess) { s.args = append([]string(nil), args...) }
}

// WithEnv appends environment entries ("KEY=value") for the child.
func WithEnv(env ...string) SubprocessOption {
	return func(s *Subprocess) { s.env = append(s.env, env...) }
}

// WithCallTimeout bounds one request/response exchange.
func WithCallTimeout(d time.Duration) SubprocessOption {
	return func(s *Subprocess) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSubprocessLogger sets the logger used for lifecycle and stderr lines.
func WithSubprocessLogger(l logger.Logger) SubprocessOption {
	return func(s *Subprocess) {
		if l != nil {
			s.log = l
		}
	}
}

// Subprocess runs an external landmark helper and exchanges one framed
// request and response per Detect call. The process is started lazily and
// restarted after any I/O failure or timeout.
type Subprocess struct {
	command string
	args    []string
	env     []string
	timeout time.Duration
	log     logger.Logger

	mu     sync.Mutex
	proc   *helperProcess
	closed bool
	starts int
}

type helperProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	exited chan struct{}

	// cmd.Wait closes the pipes, so it only runs once stderr hit EOF and
	// the exchange in flight, if any, has finished reading stdout.
	mu       sync.Mutex
	exchange chan struct{}
	draining bool
}

// beginExchange registers a stdout reader. It fails once the process is
// being reaped.
func (p *helperProcess) beginExchange() (chan struct{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.draining {
		return nil, false
	}
	p.exchange = make(chan struct{})
	return p.exchange, true
}

// drain blocks new exchanges and waits for the current one.
func (p *helperProcess) drain() {
	p.mu.Lock()
	p.draining = true
	ch := p.exchange
	p.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

// NewSubprocess creates a detector for command. Nothing is started until the
// first Detect call.
func NewSubprocess(command string, opts ...SubprocessOption) (*Subprocess, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrNoCommand
	}
	s := &Subprocess{
		command: command,
		timeout: defaultCallTimeout,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Detect sends the frame and waits for the landmarks. A response without
// landmarks returns nil, nil.
func (s *Subprocess) Detect(ctx context.Context, frame model.Frame) (*model.LandmarkSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrOracleClosed
	}
	if s.proc == nil {
		p, err := s.spawn()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOracleFailed, err)
		}
		s.proc = p
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p := s.proc
	finished, ok := p.beginExchange()
	if !ok {
		s.discard(p, "exited")
		return nil, fmt.Errorf("%w: %w", ErrOracleFailed, ErrHelperExited)
	}
	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer close(finished)
		req := Request{Seq: frame.Seq, Width: frame.Width, Height: frame.Height, Encoding: frame.Encoding, Pixels: frame.Data}
		if err := WriteMessage(p.stdin, req); err != nil {
			done <- result{err: err}
			return
		}
		var resp Response
		err := ReadMessage(p.stdout, &resp)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		// The exchange cannot be abandoned midway; the stream is now out of
		// sync, so the process has to go.
		s.discard(p, "timeout")
		return nil, fmt.Errorf("%w: %w", ErrOracleFailed, ctx.Err())
	case r := <-done:
		if r.err != nil {
			s.discard(p, "io")
			return nil, fmt.Errorf("%w: %w", ErrOracleFailed, r.err)
		}
		if r.resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrOracleFailed, r.resp.Error)
		}
		set, err := r.resp.LandmarkSet()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOracleFailed, err)
		}
		return set, nil
	}
}

// Starts returns how many times the helper process was spawned.
func (s *Subprocess) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Close closes the helper's stdin and kills it if it has not exited within
// two seconds. Further Detect calls fail with ErrOracleClosed.
func (s *Subprocess) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.proc == nil {
		return nil
	}
	p := s.proc
	s.proc = nil
	_ = p.stdin.Close()
	select {
	case <-p.exited:
		return nil
	case <-time.After(killGrace):
		s.log.Warn(context.Background(), "landmark helper did not exit; killing",
			logger.Int("pid", p.cmd.Process.Pid))
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill landmark helper: %w", err)
		}
		<-p.exited
		return nil
	}
}

func (s *Subprocess) spawn() (*helperProcess, error) {
	cmd := exec.Command(s.command, s.args...) //nolint:gosec // command comes from operator config
	if len(s.env) > 0 {
		cmd.Env = append(cmd.Environ(), s.env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.command, err)
	}
	s.starts++

	p := &helperProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		exited: make(chan struct{}),
	}
	log := s.log.Named("landmark-helper")
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Debug(context.Background(), scanner.Text(), logger.Int("pid", cmd.Process.Pid))
		}
	}()
	go func() {
		<-stderrDone
		p.drain()
		err := cmd.Wait()
		if err != nil {
			log.Debug(context.Background(), "landmark helper exited", logger.Error(err))
		}
		close(p.exited)
	}()

	s.log.Info(context.Background(), "landmark helper started",
		logger.String("command", s.command), logger.Int("pid", cmd.Process.Pid))
	return p, nil
}

// discard kills p without waiting; the next Detect spawns a fresh helper.
func (s *Subprocess) discard(p *helperProcess, reason string) {
	s.log.Warn(context.Background(), "restarting landmark helper", logger.String("reason", reason))
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
	if s.proc == p {
		s.proc = nil
	}
}
