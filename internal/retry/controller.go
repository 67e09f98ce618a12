// Package retry bounds the number of build attempts per session and drives
// the failure feedback loop. The controller owns the only cross-event state in
// the system: a table of retry counters keyed by session id.
package retry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"autoship/internal/build"
	"autoship/internal/release"
	"autoship/internal/status"
)

// DefaultBudget is the number of additional build attempts permitted after
// the first failure before the session is declared Errored. A session
// therefore tolerates budget+1 failed builds in total.
const DefaultBudget = 3

// Builder runs one build attempt.
type Builder interface {
	Run(ctx context.Context) (*build.Attempt, error)
}

// Publisher performs the best-effort release on the success path.
type Publisher interface {
	Publish(ctx context.Context, title string) release.Result
}

// Reporter emits coarse health status. It never fails visibly, so it can be
// swapped for a no-op or a test double without affecting control flow.
type Reporter interface {
	Emit(ctx context.Context, v status.Value)
}

// Prompter re-injects corrective feedback into a session.
type Prompter interface {
	Send(ctx context.Context, sessionID, text string) error
}

// Session identifies one editing/build cycle. The host owns the session; the
// controller only sees its id and optional title.
type Session struct {
	ID    string
	Title string
}

// Outcome is the terminal classification of one idle-triggered build cycle.
type Outcome int

const (
	OutcomeReleased Outcome = iota // Build succeeded; release attempted, Active emitted.
	OutcomeRetrying                // Build failed within budget; follow-up sent.
	OutcomeErrored                 // Retry budget exceeded; Errored emitted.
)

// String returns a human-readable label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeReleased:
		return "released"
	case OutcomeRetrying:
		return "retrying"
	case OutcomeErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// IdleResult describes what one HandleIdle call did.
type IdleResult struct {
	Outcome Outcome
	Attempt *build.Attempt
	Release release.Result // meaningful only when Outcome == OutcomeReleased
	Retries int            // post-update retry counter when Outcome == OutcomeRetrying
}

// Controller orchestrates build attempts per session.
// Safe for concurrent use across sessions.
type Controller struct {
	builder   Builder
	publisher Publisher
	reporter  Reporter
	prompter  Prompter
	budget    int

	mu sync.Mutex
	// failures maps session id to retries consumed so far. Presence of
	// an entry — not its value — means a failure has been observed: an
	// entry of 0 is one failure with no retries consumed yet. Entries are
	// removed when the session reaches a terminal outcome.
	failures map[string]int
}

// Option configures a Controller.
type Option func(*Controller)

// WithBudget overrides the default retry budget.
func WithBudget(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.budget = n
		}
	}
}

// New creates a Controller over the four collaborators.
func New(b Builder, p Publisher, r Reporter, pr Prompter, opts ...Option) *Controller {
	c := &Controller{
		builder:   b,
		publisher: p,
		reporter:  r,
		prompter:  pr,
		budget:    DefaultBudget,
		failures:  make(map[string]int),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// HandleIdle runs one build cycle for the session. On success it clears the
// session's retry counter, publishes a release (best-effort), and emits
// Active — even when the release fails, so status never sticks at Pending.
// On failure it either feeds the diagnostics back into the session or, past
// the retry budget, emits Errored and stops.
//
// The returned error is reserved for launch failures: the build command could
// not be started at all, which callers treat as fatal.
func (c *Controller) HandleIdle(ctx context.Context, sess Session) (*IdleResult, error) {
	attempt, err := c.builder.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}

	if attempt.ExitCode == 0 {
		c.Forget(sess.ID)
		res := c.publisher.Publish(ctx, sess.Title)
		if res.Err != nil {
			// Accepted degradation: built but not tagged. Active is
			// still emitted below.
			log.Printf("retry: session %s: release failed: %v", sess.ID, res.Err)
		}
		c.reporter.Emit(ctx, status.Active)
		return &IdleResult{Outcome: OutcomeReleased, Attempt: attempt, Release: res}, nil
	}

	count := c.recordFailure(sess.ID)
	if count > c.budget {
		c.Forget(sess.ID)
		c.reporter.Emit(ctx, status.Errored)
		return &IdleResult{Outcome: OutcomeErrored, Attempt: attempt, Retries: count}, nil
	}

	if err := c.prompter.Send(ctx, sess.ID, followUp(attempt)); err != nil {
		// The retry still counts; the next idle event resumes the loop.
		log.Printf("retry: session %s: follow-up not delivered: %v", sess.ID, err)
	}
	return &IdleResult{Outcome: OutcomeRetrying, Attempt: attempt, Retries: count}, nil
}

// recordFailure updates the session's counter and returns the post-update
// value. An absent entry initializes to 0 (first failure), never increments —
// conflating "zero" with "unset" here would retry forever.
func (c *Controller) recordFailure(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, seen := c.failures[id]
	if seen {
		n++
	} else {
		n = 0
	}
	c.failures[id] = n
	return n
}

// Retries returns the session's current retry counter and whether any failure
// has been observed for it.
func (c *Controller) Retries(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.failures[id]
	return n, ok
}

// Forget clears the session's retry counter. Called on terminal outcomes and
// when the host disposes the session.
func (c *Controller) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, id)
}

// followUp renders the corrective instruction sent back into the session.
func followUp(attempt *build.Attempt) string {
	diag := strings.TrimSpace(attempt.Stderr)
	if diag == "" {
		diag = "(the build produced no diagnostic output)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The build failed with exit code %d.", attempt.ExitCode)
	if attempt.TimedOut {
		b.WriteString(" The build was killed after exceeding its time limit.")
	}
	b.WriteString(" Fix the errors below, then go idle to trigger another build.\n\n")
	b.WriteString(diag)
	return b.String()
}
