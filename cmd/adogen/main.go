package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tdevere/DevOpsApiClients/internal/config"
	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `Usage: adogen <command> [flags]

Commands:
  generate   render clients, tests and fixtures from operation definitions
  infer      infer operation definitions from cached API specifications
  watch      regenerate clients when definition files change
  version    print version information

Run "adogen <command> -h" for command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return apierrors.ExitFailure
	}
	switch args[0] {
	case "generate":
		return runGenerate(ctx, args[1:], stdout, stderr)
	case "infer":
		return runInfer(args[1:], stdout, stderr)
	case "watch":
		return runWatch(ctx, args[1:], stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "adogen %s (built %s)\n", version, buildTime)
		return apierrors.ExitOK
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return apierrors.ExitOK
	default:
		fmt.Fprintf(stderr, "ERROR: unknown command %q\n\n%s", args[0], usage)
		return apierrors.ExitFailure
	}
}

// parseFlags parses args and maps -h to a clean exit.
func parseFlags(fs *flag.FlagSet, args []string) (exit int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return apierrors.ExitOK, false
		}
		return apierrors.ExitFailure, false
	}
	return 0, true
}

// env is the configuration and logger shared by every command.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	closer io.Closer
}

func (e *env) close() {
	e.logger.Sync()
	if e.closer != nil {
		e.closer.Close()
	}
}

func setup(configPath string, stderr io.Writer) (*env, int) {
	cfg, err := config.NewLoader().Resolve(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: failed to load configuration: %v\n", err)
		return nil, apierrors.ExitCode(err)
	}

	logger, closer, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: failed to initialize logger: %v\n", err)
		return nil, apierrors.ExitFailure
	}
	logging.SetGlobal(logger)
	return &env{cfg: cfg, logger: logger, closer: closer}, 0
}
