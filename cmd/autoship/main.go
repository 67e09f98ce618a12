package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"autoship/internal/build"
	"autoship/internal/config"
	"autoship/internal/dispatch"
	"autoship/internal/manifest"
	"autoship/internal/prompt"
	"autoship/internal/release"
	"autoship/internal/retry"
	"autoship/internal/statefile"
	"autoship/internal/status"
	"autoship/internal/telemetry"
)

// cliConfig holds the parsed CLI configuration for a controller run.
type cliConfig struct {
	workdir      string
	buildCmd     string
	manifestPath string
	remote       string
	retryBudget  int
	buildTimeout time.Duration
	gitTimeout   time.Duration
	verbose      bool
}

func parseFlags() cliConfig {
	var cfg cliConfig

	flag.StringVar(&cfg.workdir, "workdir", "", "project root to build and release in (required)")
	flag.StringVar(&cfg.buildCmd, "build-cmd", "./build.sh", "build command line, split on whitespace")
	flag.StringVar(&cfg.manifestPath, "manifest", "package.json", "version manifest path, relative to workdir")
	flag.StringVar(&cfg.remote, "remote", "origin", "git remote to push releases to")
	flag.IntVar(&cfg.retryBudget, "retry-budget", retry.DefaultBudget, "retries allowed after the first build failure")
	flag.DurationVar(&cfg.buildTimeout, "build-timeout", build.DefaultTimeout, "per-attempt build timeout")
	flag.DurationVar(&cfg.gitTimeout, "git-timeout", release.DefaultTimeout, "per-command git timeout")
	flag.BoolVar(&cfg.verbose, "verbose", false, "stream build stdout to the terminal")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: autoship [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Autoship reads session lifecycle events as JSON lines on stdin,\n")
		fmt.Fprintf(os.Stderr, "rebuilds the project when a session goes idle, feeds failures back\n")
		fmt.Fprintf(os.Stderr, "into the session, and tags a release on success.\n\n")
		fmt.Fprintf(os.Stderr, "Endpoints come from the environment: AUTOSHIP_STATUS_URL for health\n")
		fmt.Fprintf(os.Stderr, "reporting, AUTOSHIP_PROMPT_URL for the session host.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if cfg.workdir == "" {
		fmt.Fprintln(os.Stderr, "error: --workdir is required")
		flag.Usage()
		os.Exit(1)
	}

	return cfg
}

func run(cfg cliConfig) error {
	// Verify workdir exists.
	info, err := os.Stat(cfg.workdir)
	if err != nil {
		return fmt.Errorf("workdir %q: %w", cfg.workdir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workdir %q is not a directory", cfg.workdir)
	}

	envCfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cfg.verbose {
		log.Printf("config: workdir=%s build-cmd=%q manifest=%s retry-budget=%d status=%v prompt=%v",
			cfg.workdir, cfg.buildCmd, cfg.manifestPath, cfg.retryBudget,
			envCfg.StatusURL != "", envCfg.PromptURL != "")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	if tel != nil {
		defer tel.Shutdown(context.Background())
	}

	buildOut := io.Discard
	if cfg.verbose {
		buildOut = os.Stdout
	}
	runner, err := build.NewRunner(cfg.workdir, strings.Fields(cfg.buildCmd),
		build.WithTimeout(cfg.buildTimeout),
		build.WithStdoutWriter(buildOut),
	)
	if err != nil {
		return err
	}

	publisher := &release.Publisher{
		WorkDir:  cfg.workdir,
		Manifest: manifest.NewFile(filepath.Join(cfg.workdir, cfg.manifestPath)),
		Remote:   cfg.remote,
		Timeout:  cfg.gitTimeout,
	}
	reporter := status.NewReporter(envCfg.StatusURL)
	if !reporter.Enabled() {
		log.Printf("status: AUTOSHIP_STATUS_URL not set, reporting disabled")
	}
	prompter := prompt.NewClient(envCfg.PromptURL)
	if !prompter.Enabled() {
		log.Printf("prompt: AUTOSHIP_PROMPT_URL not set, follow-ups disabled")
	}

	controller := retry.New(runner, publisher, reporter, prompter,
		retry.WithBudget(cfg.retryBudget))

	dispatcher := dispatch.New(controller, reporter,
		dispatch.WithStateWriter(statefile.NewWriter(cfg.workdir)),
		dispatch.WithTracer(tel.Tracer()),
	)
	return dispatcher.Run(ctx, os.Stdin)
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "autoship: %v\n", err)
		os.Exit(1)
	}
}
