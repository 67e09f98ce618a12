// Package release publishes a versioned release after a successful build:
// bump the manifest version, commit, tag, and push. The whole operation is
// best-effort — failures are reported in the Result and the caller is expected
// to log and move on, never to block the Active status transition on them.
package release

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"autoship/internal/manifest"
)

// DefaultTimeout bounds each individual git command.
const DefaultTimeout = 2 * time.Minute

// Identity is the committer identity configured for the automated actor.
type Identity struct {
	Name  string
	Email string
}

// DefaultIdentity is used when no identity is configured.
var DefaultIdentity = Identity{Name: "autoship", Email: "autoship@localhost"}

// GitRunner executes one git command in dir and returns its combined output.
// Nil means use the real git binary. Tests inject a recorder.
type GitRunner func(ctx context.Context, dir string, args ...string) ([]byte, error)

func defaultGitRunner(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Publisher stages, commits, tags, and pushes a release.
type Publisher struct {
	WorkDir  string
	Manifest *manifest.File
	Remote   string        // default "origin"
	Identity Identity      // default DefaultIdentity
	Timeout  time.Duration // per git command, default DefaultTimeout

	// Git is a test hook — nil means run the real git binary.
	Git GitRunner
}

// Result is the explicit outcome of a publish. Err is set on the first
// failure; Version and Message describe the release that was (or would have
// been) produced. Callers on the success path ignore Err by contract.
type Result struct {
	Version manifest.Version
	Message string
	Err     error
}

// Publish performs the release for one session. The commit message is the
// session title when present and non-empty, otherwise a synthesized
// "feat: release version v<next>" message. The bumped version is persisted to
// the manifest only after the VCS work succeeds.
func (p *Publisher) Publish(ctx context.Context, title string) Result {
	current, err := p.Manifest.ReadVersion()
	if err != nil {
		return Result{Err: fmt.Errorf("reading version: %w", err)}
	}
	next := current.Next()

	message := strings.TrimSpace(title)
	if message == "" {
		message = fmt.Sprintf("feat: release version %s", next.Tag())
	}
	res := Result{Version: next, Message: message}

	identity := p.Identity
	if identity == (Identity{}) {
		identity = DefaultIdentity
	}
	remote := p.Remote
	if remote == "" {
		remote = "origin"
	}

	steps := [][]string{
		{"config", "user.name", identity.Name},
		{"config", "user.email", identity.Email},
		{"add", "-A"},
		{"commit", "-m", message},
		{"tag", "-a", next.Tag(), "-m", message},
		{"push", remote, "HEAD"},
		{"push", remote, next.Tag()},
	}
	for _, args := range steps {
		if err := p.git(ctx, args...); err != nil {
			res.Err = err
			return res
		}
	}

	if err := p.Manifest.WriteVersion(next); err != nil {
		res.Err = fmt.Errorf("persisting version %s: %w", next, err)
		return res
	}
	return res
}

// git runs one git command under the per-command timeout.
func (p *Publisher) git(ctx context.Context, args ...string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := p.Git
	if run == nil {
		run = defaultGitRunner
	}
	out, err := run(ctx, p.WorkDir, args...)
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("git %s: %w: %s", args[0], err, detail)
		}
		return fmt.Errorf("git %s: %w", args[0], err)
	}
	return nil
}
