// Package dispatch routes session lifecycle events to the retry controller
// and the status reporter. It enforces the one serialization rule in the
// system: idle handling for a given session never overlaps itself, while
// distinct sessions proceed concurrently.
package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"autoship/internal/retry"
	"autoship/internal/statefile"
	"autoship/internal/status"
)

// Event kinds consumed from the session host.
const (
	EventMessageReceived = "message.received"
	EventSessionIdle     = "session.idle"
	EventSessionDeleted  = "session.deleted"
)

// SessionRef identifies the session an event belongs to.
type SessionRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Event is one lifecycle event, received as a single JSON line.
type Event struct {
	Type    string     `json:"type"`
	Session SessionRef `json:"session"`
}

// ParseEvent decodes and validates one event line.
func ParseEvent(line []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("event has no type")
	}
	if ev.Session.ID == "" {
		return nil, fmt.Errorf("event %q has no session id", ev.Type)
	}
	return &ev, nil
}

// Controller is the slice of the retry controller the dispatcher drives.
type Controller interface {
	HandleIdle(ctx context.Context, sess retry.Session) (*retry.IdleResult, error)
	Forget(id string)
}

// Reporter emits coarse health status.
type Reporter interface {
	Emit(ctx context.Context, v status.Value)
}

// Dispatcher is the top-level event router. It holds no business state beyond
// routing: per-session locks, the display snapshot, and the first fatal error.
type Dispatcher struct {
	controller Controller
	reporter   Reporter
	out        io.Writer
	state      *statefile.Writer
	tracer     oteltrace.Tracer

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	sessions map[string]statefile.SessionState

	wg sync.WaitGroup

	fatalMu  sync.Mutex
	fatalErr error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithOutput overrides the event log writer (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(d *Dispatcher) { d.out = w }
}

// WithStateWriter enables session snapshot upkeep for shipboard polling.
func WithStateWriter(w *statefile.Writer) Option {
	return func(d *Dispatcher) { d.state = w }
}

// WithTracer enables spans around idle handling.
func WithTracer(t oteltrace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New creates a Dispatcher over the controller and reporter.
func New(c Controller, r Reporter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		controller: c,
		reporter:   r,
		out:        os.Stdout,
		locks:      make(map[string]*sync.Mutex),
		sessions:   make(map[string]statefile.SessionState),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run consumes NDJSON events from r until EOF, context cancellation, or a
// fatal error from a session handler. Malformed lines and unknown event types
// are logged and skipped. Run waits for in-flight sessions before returning.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader) error {
	if d.state != nil {
		defer d.state.Clear()
	}
	defer d.wg.Wait()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.fatal(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := ParseEvent(line)
		if err != nil {
			log.Printf("dispatch: skipping event: %v", err)
			continue
		}
		d.Handle(ctx, ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading events: %w", err)
	}
	d.wg.Wait()
	return d.fatal()
}

// Handle routes one event. "message received" returns immediately without
// waiting on the network; "session idle" is handled on its own goroutine,
// serialized per session by a per-key lock.
func (d *Dispatcher) Handle(ctx context.Context, ev *Event) {
	switch ev.Type {
	case EventMessageReceived:
		d.handleMessage(ctx, ev.Session)
	case EventSessionIdle:
		d.handleIdle(ctx, ev.Session)
	case EventSessionDeleted:
		d.handleDeleted(ev.Session)
	default:
		log.Printf("dispatch: unknown event type %q for session %s", ev.Type, ev.Session.ID)
	}
}

// Wait blocks until all in-flight session work has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) handleMessage(ctx context.Context, ref SessionRef) {
	d.updateSession(ref, func(s *statefile.SessionState) {
		s.State = "pending"
	})
	// Fire-and-forget: the Pending transition must not block event intake.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.reporter.Emit(ctx, status.Pending)
	}()
}

func (d *Dispatcher) handleIdle(ctx context.Context, ref SessionRef) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		// One build/retry/release cycle per session at a time.
		lock := d.sessionLock(ref.ID)
		lock.Lock()
		defer lock.Unlock()

		ctx := ctx
		var span oteltrace.Span
		if d.tracer != nil {
			ctx, span = d.tracer.Start(ctx, "session.idle",
				oteltrace.WithAttributes(attribute.String("session.id", ref.ID)))
			defer span.End()
		}

		d.updateSession(ref, func(s *statefile.SessionState) {
			s.State = "building"
		})

		start := time.Now()
		result, err := d.controller.HandleIdle(ctx, retry.Session{ID: ref.ID, Title: ref.Title})
		if err != nil {
			// Launch failure: the build command could not start. Every
			// other layer assumes builds always produce an attempt, so
			// this stops the controller.
			d.setFatal(err)
			fmt.Fprintf(d.out, "[%s] build could not start: %v\n", ref.ID, err)
			return
		}
		if span != nil {
			span.SetAttributes(
				attribute.String("outcome", result.Outcome.String()),
				attribute.Int("build.exit_code", result.Attempt.ExitCode),
			)
		}

		d.recordResult(ref, result)
		fmt.Fprintf(d.out, "%s\n", formatIdleLog(ref.ID, result, time.Since(start)))
	}()
}

func (d *Dispatcher) handleDeleted(ref SessionRef) {
	d.controller.Forget(ref.ID)
	d.mu.Lock()
	// The serialization lock stays: a late idle event for a disposed id must
	// still not overlap an in-flight cycle.
	delete(d.sessions, ref.ID)
	d.mu.Unlock()
	d.writeState()
}

// recordResult folds an idle outcome into the display snapshot.
func (d *Dispatcher) recordResult(ref SessionRef, result *retry.IdleResult) {
	d.updateSession(ref, func(s *statefile.SessionState) {
		s.Retries = result.Retries
		s.LastError = ""
		switch result.Outcome {
		case retry.OutcomeReleased:
			s.State = "active"
			s.Retries = 0
			if result.Release.Err != nil {
				s.LastError = result.Release.Err.Error()
			} else {
				s.LastVersion = result.Release.Version.String()
			}
		case retry.OutcomeRetrying:
			s.State = "retrying"
			s.LastError = firstLine(result.Attempt.Stderr)
		case retry.OutcomeErrored:
			s.State = "errored"
			s.LastError = firstLine(result.Attempt.Stderr)
		}
	})
}

// sessionLock returns the serialization lock for a session, creating it on
// first use.
func (d *Dispatcher) sessionLock(id string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[id] = lock
	}
	return lock
}

// updateSession applies fn to the session's snapshot entry and rewrites the
// state file.
func (d *Dispatcher) updateSession(ref SessionRef, fn func(*statefile.SessionState)) {
	d.mu.Lock()
	s := d.sessions[ref.ID]
	s.ID = ref.ID
	if ref.Title != "" {
		s.Title = ref.Title
	}
	fn(&s)
	s.UpdatedAt = time.Now()
	d.sessions[ref.ID] = s
	d.mu.Unlock()
	d.writeState()
}

// writeState rewrites the snapshot file. Best effort; the loop never fails on
// snapshot errors.
func (d *Dispatcher) writeState() {
	if d.state == nil {
		return
	}
	d.mu.Lock()
	snap := statefile.Snapshot{UpdatedAt: time.Now()}
	for _, s := range d.sessions {
		snap.Sessions = append(snap.Sessions, s)
	}
	d.mu.Unlock()
	sort.Slice(snap.Sessions, func(i, j int) bool {
		return snap.Sessions[i].ID < snap.Sessions[j].ID
	})
	if err := d.state.Write(snap); err != nil {
		log.Printf("dispatch: snapshot write: %v", err)
	}
}

func (d *Dispatcher) setFatal(err error) {
	d.fatalMu.Lock()
	defer d.fatalMu.Unlock()
	if d.fatalErr == nil {
		d.fatalErr = err
	}
}

func (d *Dispatcher) fatal() error {
	d.fatalMu.Lock()
	defer d.fatalMu.Unlock()
	return d.fatalErr
}

// formatIdleLog formats the per-cycle log line.
func formatIdleLog(id string, result *retry.IdleResult, elapsed time.Duration) string {
	switch result.Outcome {
	case retry.OutcomeReleased:
		if result.Release.Err != nil {
			return fmt.Sprintf("[%s] build succeeded → release failed, status active (%s)",
				id, formatDuration(elapsed))
		}
		return fmt.Sprintf("[%s] build succeeded → released %s (%s)",
			id, result.Release.Version.Tag(), formatDuration(elapsed))
	case retry.OutcomeRetrying:
		return fmt.Sprintf("[%s] build failed (exit %d) → follow-up sent, retries used %d (%s)",
			id, result.Attempt.ExitCode, result.Retries, formatDuration(elapsed))
	case retry.OutcomeErrored:
		return fmt.Sprintf("[%s] build failed (exit %d) → retry budget exhausted, errored (%s)",
			id, result.Attempt.ExitCode, formatDuration(elapsed))
	default:
		return fmt.Sprintf("[%s] %s (%s)", id, result.Outcome, formatDuration(elapsed))
	}
}

// formatDuration formats a duration in a human-readable way (e.g. "2m34s").
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// firstLine returns the first non-empty line of s, truncated for display.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 120 {
			return line[:117] + "..."
		}
		return line
	}
	return ""
}
