package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/render"
)

func runGenerate(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	defPath := fs.String("definition", "", "Path to an operation definition (.yaml or .json)")
	glob := fs.String("glob", "", "Generate every definition matching a doublestar pattern")
	outDir := fs.String("output-dir", "", "Root directory for generated files (default from config)")
	lang := fs.String("lang", "", "Comma-separated languages: python, powershell, bash or all")
	dryRun := fs.Bool("dry-run", false, "Report the files that would be written")
	overwrite := fs.Bool("overwrite", false, "Replace clients generated from a different definition")
	configPath := fs.String("config", "", "Path to configuration file")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if (*defPath == "") == (*glob == "") {
		fmt.Fprintln(stderr, "ERROR: exactly one of -definition or -glob is required")
		fs.Usage()
		return apierrors.ExitFailure
	}

	e, code := setup(*configPath, stderr)
	if e == nil {
		return code
	}
	defer e.close()

	if *outDir == "" {
		*outDir = e.cfg.Paths.OutputDir
	}
	if *lang == "" {
		*lang = strings.Join(e.cfg.Generator.Languages, ",")
	}
	langs, err := render.ParseLanguages(*lang)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}

	paths := []string{*defPath}
	if *glob != "" {
		paths, err = doublestar.FilepathGlob(*glob)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: bad pattern %q: %v\n", *glob, err)
			return apierrors.ExitFailure
		}
		if len(paths) == 0 {
			fmt.Fprintf(stderr, "ERROR: no definitions match %s\n", *glob)
			return apierrors.ExitFailure
		}
		sort.Strings(paths)
	}

	gen, err := render.NewGenerator(e.logger)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}

	prefix := ""
	if *dryRun {
		prefix = "[DRY] "
	}
	failed := 0
	for _, p := range paths {
		res, err := gen.Generate(ctx, p, *outDir, render.Options{Languages: langs, DryRun: *dryRun, Overwrite: *overwrite})
		if err != nil {
			e.logger.Error("definition skipped", zap.String("definition", p), zap.Error(err))
			fmt.Fprintf(stderr, "ERROR: %s: %v\n", p, err)
			if *glob == "" {
				return apierrors.ExitCode(err)
			}
			failed++
			continue
		}
		for _, f := range res.Files {
			fmt.Fprintf(stdout, "%s%-9s  %s\n", prefix, f.Status, f.Path)
		}
	}

	if *glob != "" {
		fmt.Fprintf(stdout, "\n%d definitions processed, %d failed\n", len(paths), failed)
	}
	if failed > 0 {
		return apierrors.ExitFailure
	}
	return apierrors.ExitOK
}
