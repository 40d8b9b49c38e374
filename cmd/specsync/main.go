package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tdevere/DevOpsApiClients/internal/config"
	"github.com/tdevere/DevOpsApiClients/internal/drift"
	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/infer"
	"github.com/tdevere/DevOpsApiClients/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run checks upstream specs and returns 0 when everything is in sync, 2 when
// changes were detected and 1 on a hard failure.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("specsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	domain := fs.String("domain", "all", "Domain to check, or all")
	updateHashes := fs.Bool("update-hashes", false, "Record new hashes for changed domains")
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return apierrors.ExitOK
		}
		return apierrors.ExitFailure
	}

	cfg, err := config.NewLoader().Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: failed to load configuration: %v\n", err)
		return apierrors.ExitFailure
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
		return apierrors.ExitFailure
	}
	defer logger.Sync()
	if closer != nil {
		defer closer.Close()
	}
	logging.SetGlobal(logger)

	bucket, err := drift.OpenBucket(ctx, cfg.Sync.BucketURL, cfg.Paths.SpecDir)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}
	defer bucket.Close()

	reg, err := drift.LoadRegistry(ctx, bucket, cfg.Sync.URLsKey)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}
	hashes, err := drift.LoadHashStore(ctx, bucket, cfg.Sync.HashesKey)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}

	domains := reg.Domains()
	if *domain != "all" {
		domains = []string{*domain}
	}
	targets, missing := drift.Targets(domains, reg, hashes)
	for _, d := range missing {
		fmt.Fprintf(stderr, "WARN: no upstream URL configured for domain '%s'\n", d)
	}

	policy := infer.PolicyFromConfig(cfg.Inference)
	fetcher := drift.NewFetcher(cfg.Sync.Timeout, cfg.Sync.RetryCount(), cfg.Sync.UserAgent, logger)
	detector := drift.NewDetector(fetcher, drift.NewSnapshotStore(bucket), logger,
		drift.WithLocalDir(policy.DomainDir),
		drift.WithConcurrency(cfg.Sync.Concurrency),
	)

	outcomes := detector.CheckAll(ctx, targets)
	for _, o := range outcomes {
		fmt.Fprintln(stderr, drift.StatusLine(o))
	}
	report := drift.NewRunReport(domains, outcomes)

	if *updateHashes && report.Status == drift.RunChangesDetected {
		committed, err := drift.Commit(ctx, hashes, outcomes, time.Now())
		if err != nil {
			logger.Error("hash store not updated", zap.Error(err))
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return apierrors.ExitFailure
		}
		if len(committed) > 0 {
			fmt.Fprintf(stderr, "Updated hashes for: %s\n", strings.Join(committed, ", "))
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}

	if report.Status == drift.RunChangesDetected {
		return apierrors.ExitChanged
	}
	return apierrors.ExitOK
}
