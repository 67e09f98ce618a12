// Package build invokes the external build command and captures its outcome.
// A failing build is a normal result, not an error: only failure to launch the
// process at all is reported as an error.
package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// DefaultTimeout is the default per-attempt build timeout.
const DefaultTimeout = 10 * time.Minute

// Attempt holds the observed outcome of a single build invocation.
type Attempt struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
	TimedOut bool // true if the build was killed due to timeout
}

// CommandFactory builds an *exec.Cmd for the given context, working directory,
// and argv. The default factory uses exec.CommandContext. Tests can inject a
// factory that invokes a helper process instead.
type CommandFactory func(ctx context.Context, workDir string, name string, args ...string) *exec.Cmd

func defaultCommandFactory(ctx context.Context, workDir string, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	return cmd
}

// Runner executes the configured build command in the project root.
type Runner struct {
	workDir string
	argv    []string

	timeout        time.Duration
	commandFactory CommandFactory
	stdoutWriter   io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout overrides the default build timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCommandFactory injects a custom command factory (used in tests).
func WithCommandFactory(f CommandFactory) Option {
	return func(r *Runner) { r.commandFactory = f }
}

// WithStdoutWriter overrides the live build stdout writer (default os.Stdout).
func WithStdoutWriter(w io.Writer) Option {
	return func(r *Runner) { r.stdoutWriter = w }
}

// NewRunner creates a Runner for the given working directory and command argv.
func NewRunner(workDir string, argv []string, opts ...Option) (*Runner, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("build command is empty")
	}
	r := &Runner{
		workDir:        workDir,
		argv:           argv,
		timeout:        DefaultTimeout,
		commandFactory: defaultCommandFactory,
		stdoutWriter:   os.Stdout,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Run executes one build attempt. Non-zero exits come back in the Attempt;
// an error return means the command could not be started at all, which callers
// treat as fatal.
func (r *Runner) Run(ctx context.Context) (*Attempt, error) {
	// Derive a timeout context so the process is killed on expiry.
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := r.commandFactory(ctx, r.workDir, r.argv[0], r.argv[1:]...)

	// Build stdout streams live for observability; stderr is the diagnostic
	// channel and is captured for the retry feedback loop.
	cmd.Stdout = r.stdoutWriter
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	timedOut := ctx.Err() == context.DeadlineExceeded

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to launch build command %q: %w", r.argv[0], err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Attempt{
		ExitCode: exitCode,
		Stderr:   stderrBuf.String(),
		Duration: duration,
		TimedOut: timedOut,
	}, nil
}
