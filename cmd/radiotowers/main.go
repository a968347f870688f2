// Command radiotowers reads a tower instance, raises transmitter power until
// every receiver has signal, and prints the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/profile"
	"github.com/signalsfoundry/radio-towers/core"
	"github.com/signalsfoundry/radio-towers/internal/config"
	"github.com/signalsfoundry/radio-towers/internal/coverage"
	"github.com/signalsfoundry/radio-towers/internal/logging"
	"github.com/signalsfoundry/radio-towers/internal/observability"
)

const defaultInput = "input.txt"

type options struct {
	input      string
	configPath string
	format     string
	tieBreak   string
	timeout    time.Duration
	profile    string
	profileDir string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process exit, returning the exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Program failed: %s\n", err)
		return 2
	}
	if err := solveFile(ctx, opts, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Program failed: %s\n", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("radiotowers", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.input, "input", "", "instance file; defaults to the first argument or "+defaultInput)
	fs.StringVar(&opts.configPath, "config", "", "optional YAML config file")
	fs.StringVar(&opts.format, "format", "text", "output format: text or json")
	fs.StringVar(&opts.tieBreak, "tie-break", "", "tie-break policy: lowest-id or first-seen (overrides config)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "solve timeout (overrides config; 0 keeps the configured value)")
	fs.StringVar(&opts.profile, "profile", "", "write a cpu or mem profile of the run")
	fs.StringVar(&opts.profileDir, "profile-dir", ".", "directory for profile output")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.input == "" {
		opts.input = defaultInput
		if fs.NArg() > 0 {
			opts.input = fs.Arg(0)
		}
	}
	switch opts.format {
	case "text", "json":
	default:
		return opts, fmt.Errorf("unsupported output format %q", opts.format)
	}
	switch opts.profile {
	case "", "cpu", "mem":
	default:
		return opts, fmt.Errorf("unsupported profile mode %q", opts.profile)
	}
	return opts, nil
}

func solveFile(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.tieBreak != "" {
		cfg.Solver.TieBreak = opts.tieBreak
	}
	if opts.timeout > 0 {
		cfg.Solver.Timeout = opts.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = stderr
	log := logging.New(logCfg)

	traceCfg := cfg.TracingSettings()
	traceCfg.Writer = stderr
	shutdown, err := observability.InitTracing(ctx, traceCfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	if p := startProfile(opts); p != nil {
		defer p.Stop()
	}

	inst, err := core.LoadInstanceFile(opts.input)
	if err != nil {
		return err
	}

	solver := core.NewSolver(
		core.WithLogger(log),
		core.WithTieBreak(cfg.TieBreak()),
	)
	svc := coverage.NewService(solver, log, coverage.WithTimeout(cfg.Solver.Timeout))

	ctx, reqLog := logging.WithRequestLogger(ctx, log.With(logging.String("input", opts.input)))
	ctx = logging.ContextWithLogger(ctx, reqLog)

	sol, err := svc.Solve(ctx, inst)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return sol.WriteJSON(stdout)
	}
	return sol.WriteText(stdout)
}

// startProfile returns nil when profiling is off.
func startProfile(opts options) interface{ Stop() } {
	var mode func(*profile.Profile)
	switch opts.profile {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	default:
		return nil
	}
	return profile.Start(mode, profile.ProfilePath(opts.profileDir), profile.Quiet, profile.NoShutdownHook)
}
