package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/infer"
	"github.com/tdevere/DevOpsApiClients/internal/specdoc"
)

func runInfer(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("infer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	domain := fs.String("domain", "", "Only infer this domain key")
	specDir := fs.String("spec-dir", "", "Directory holding .cache_<domain>.json specs (default from config)")
	defsDir := fs.String("defs-dir", "", "Directory for definition documents (default from config)")
	dryRun := fs.Bool("dry-run", false, "List definitions without writing them")
	overwrite := fs.Bool("overwrite", false, "Replace existing definition files")
	configPath := fs.String("config", "", "Path to configuration file")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	e, code := setup(*configPath, stderr)
	if e == nil {
		return code
	}
	defer e.close()

	if *specDir == "" {
		*specDir = e.cfg.Paths.SpecDir
	}
	if *defsDir == "" {
		*defsDir = e.cfg.Paths.DefinitionsDir
	}

	policy := infer.PolicyFromConfig(e.cfg.Inference)
	specs, err := infer.DiscoverSpecs(*specDir, policy)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}
	if len(specs.Files) == 0 {
		fmt.Fprintf(stderr, "ERROR: no cached spec files found in %s\n", *specDir)
		return apierrors.ExitFailure
	}
	for _, f := range specs.Unmatched {
		fmt.Fprintf(stderr, "  SKIP: could not map %s to a domain\n", filepath.Base(f))
	}

	domains := specs.Domains()
	if *domain != "" {
		key, ok := specs.Lookup(*domain)
		if !ok {
			fmt.Fprintf(stderr, "ERROR: domain %q not found. Available: %v\n", *domain, domains)
			return apierrors.ExitFailure
		}
		domains = []string{key}
	}

	engine := infer.NewEngine(policy, e.logger)
	var generated, existing int
	for _, d := range domains {
		var docs []*specdoc.Document
		for _, f := range specs.Files[d] {
			doc, err := specdoc.LoadFile(f)
			if err != nil {
				e.logger.Error("skipping specification", zap.String("domain", d), zap.String("file", f), zap.Error(err))
				continue
			}
			docs = append(docs, doc)
		}
		if len(docs) == 0 {
			continue
		}

		res := engine.InferDomain(d, docs...)
		summary, err := infer.WriteDefinitions(*defsDir, res.Candidates, infer.WriteOptions{DryRun: *dryRun, Overwrite: *overwrite})
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return apierrors.ExitFailure
		}
		if *dryRun {
			for _, name := range summary.Generated {
				fmt.Fprintf(stdout, "  [DRY-RUN] %s\n", name)
			}
		}
		fmt.Fprintf(stdout, "  %s: %d definitions (%d skipped endpoints, %d duplicates)\n",
			policy.DomainDir(d), len(res.Candidates), len(res.Skipped), len(res.Collisions))
		generated += len(summary.Generated)
		existing += len(summary.Existing)
	}

	fmt.Fprintf(stdout, "\nSummary:\n  Generated: %d\n  Skipped (already exist): %d\n", generated, existing)
	return apierrors.ExitOK
}
