package fabric

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	rc "robot_control"
	"robot_control/internal/logger"
)

// ProcessFunc is the entry point of a worker. It returns when it receives
// Shutdown or ctx is cancelled.
type ProcessFunc func(ctx context.Context, ep *Endpoint) error

// Registry maps a process role to its entry point.
type Registry map[string]ProcessFunc

// Preparer turns raw operator input into a message.
type Preparer interface {
	Prepare(input any) rc.Message
}

const (
	defaultShutdownGrace = time.Second
	consolePrompt        = "Robot> "
)

// Robot starts the configured workers, relays what they send to the robot
// and dispatches operator commands.
type Robot struct {
	fabric   *Fabric
	registry Registry
	prepare  Preparer
	log      *logger.Logger
	grace    time.Duration
	self     *Endpoint

	cancel   context.CancelFunc
	workers  sync.WaitGroup
	monitors sync.WaitGroup
	mu       sync.Mutex
	running  map[string]bool
}

func NewRobot(f *Fabric, reg Registry, prepare Preparer, log *logger.Logger, grace time.Duration) *Robot {
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	return &Robot{
		fabric:   f,
		registry: reg,
		prepare:  prepare,
		log:      log,
		grace:    grace,
		self:     f.Endpoint(0),
		running:  make(map[string]bool),
	}
}

// Start launches every enabled worker, the inbox forwarders and one monitor
// per distinct queue of the Receive channels targeting the robot. Unknown roles are a ConfigError
// and nothing is started.
func (r *Robot) Start(ctx context.Context) error {
	procs := r.fabric.Processes()
	for _, p := range procs {
		if _, ok := r.registry[p.Role]; !ok {
			return &ConfigError{Subject: fmt.Sprintf("process %d (%s)", p.ID, p.Name), Reason: fmt.Sprintf("unknown role %q", p.Role)}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.fabric.Forward(ctx, &r.monitors)

	for _, p := range procs {
		run := r.registry[p.Role]
		ep := r.fabric.Endpoint(p.ID)
		name := p.Name
		r.setRunning(name, true)
		r.workers.Add(1)
		go func() {
			defer r.workers.Done()
			defer r.setRunning(name, false)
			if err := run(ctx, ep); err != nil && !errors.Is(err, context.Canceled) {
				r.logErrorw("process_failed", "process", name, "err", err)
				return
			}
			r.logInfow("process_stopped", "process", name)
		}()
		r.logInfow("process_started", "process", name, "role", p.Role)
	}

	seen := make(map[*Queue]bool)
	for _, rt := range r.fabric.receiveChannels() {
		if seen[rt.queue] {
			continue
		}
		seen[rt.queue] = true
		r.monitors.Add(1)
		go r.monitor(ctx, rt)
	}
	return nil
}

// monitor relays messages workers send to the robot back through ExecSend.
func (r *Robot) monitor(ctx context.Context, rt route) {
	defer r.monitors.Done()
	for {
		msg, err := rt.queue.Get(ctx)
		if err != nil {
			return
		}
		prepared := r.prepare.Prepare(msg)
		if prepared == nil {
			continue
		}
		if _, isShutdown := prepared.(rc.Shutdown); isShutdown {
			r.logInfow("shutdown_requested", "channel", rt.ch.Description)
		}
		r.ExecSend(prepared)
	}
}

// ExecSend routes msg to every robot Send channel whose type carries it.
// Shutdown goes to every Send channel in the topology.
func (r *Robot) ExecSend(msg rc.Message) int {
	if msg == nil {
		return 0
	}
	if _, ok := msg.(rc.Shutdown); ok {
		n := r.fabric.broadcast(msg)
		r.logInfow("shutdown_broadcast", "channels", n)
		return n
	}
	n := r.self.Send(msg)
	if n == 0 {
		r.logDebugw("message_unrouted", "kind", msg.Kind())
	}
	return n
}

// Submit prepares operator input and dispatches it.
func (r *Robot) Submit(input any) (rc.Message, int) {
	msg := r.prepare.Prepare(input)
	return msg, r.ExecSend(msg)
}

// Stop broadcasts Shutdown and waits up to the grace period for workers to
// finish. Workers still running after that are cancelled.
func (r *Robot) Stop() {
	r.ExecSend(rc.Shutdown{})

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.grace):
		r.logErrorw("shutdown_grace_expired", "still_running", r.stillRunning())
	}
	if r.cancel != nil {
		r.cancel()
	}
	select {
	case <-done:
	case <-time.After(r.grace):
		r.logErrorw("process_abandoned", "still_running", r.stillRunning())
	}
	r.monitors.Wait()
}

// Console reads operator commands line by line until Shutdown, EOF or ctx
// cancellation. Blank lines are skipped.
func (r *Robot) Console(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		_, _ = fmt.Fprint(out, consolePrompt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			msg, n := r.Submit(line)
			if _, ok := msg.(rc.Shutdown); ok {
				return nil
			}
			if _, ok := msg.(rc.Feedback); ok {
				_, _ = fmt.Fprintf(out, "Unknown command: %s\n", line)
				continue
			}
			r.logDebugw("console_command", "kind", msg.Kind(), "channels", n)
		}
	}
}

func (r *Robot) setRunning(name string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on {
		r.running[name] = true
		return
	}
	delete(r.running, name)
}

func (r *Robot) stillRunning() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.running))
	for name := range r.running {
		out = append(out, name)
	}
	return out
}

func (r *Robot) logInfow(msg string, kv ...any) {
	if r.log != nil {
		r.log.Infow(msg, kv...)
	}
}

func (r *Robot) logDebugw(msg string, kv ...any) {
	if r.log != nil {
		r.log.Debugw(msg, kv...)
	}
}

func (r *Robot) logErrorw(msg string, kv ...any) {
	if r.log != nil {
		r.log.Errorw(msg, kv...)
	}
}
