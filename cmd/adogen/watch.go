package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tdevere/DevOpsApiClients/internal/config"
	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/render"
)

func runWatch(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outDir := fs.String("output-dir", "", "Root directory for generated files (default from config)")
	lang := fs.String("lang", "", "Comma-separated languages (default from config)")
	configPath := fs.String("config", "", "Path to configuration file, reloaded on change")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	e, code := setup(*configPath, stderr)
	if e == nil {
		return code
	}
	defer e.close()

	if *outDir == "" {
		*outDir = e.cfg.Paths.OutputDir
	}
	langFor := func(cfg *config.Config) ([]render.Language, error) {
		if *lang != "" {
			return render.ParseLanguages(*lang)
		}
		return render.ParseLanguages(strings.Join(cfg.Generator.Languages, ","))
	}
	langs, err := langFor(e.cfg)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}

	gen, err := render.NewGenerator(e.logger)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}

	w, err := config.NewWatcher(*configPath, e.cfg)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return apierrors.ExitFailure
	}

	var mu sync.Mutex
	w.OnChange(func(cfg *config.Config) {
		next, err := langFor(cfg)
		if err != nil {
			e.logger.Warn("ignoring reloaded languages", zap.Error(err))
			return
		}
		mu.Lock()
		langs = next
		mu.Unlock()
	})
	w.OnDefinition(func(path string) {
		mu.Lock()
		opts := render.Options{Languages: langs}
		mu.Unlock()
		if _, err := gen.Generate(ctx, path, *outDir, opts); err != nil {
			e.logger.Error("regeneration failed", zap.String("definition", path), zap.Error(err))
		}
	})

	if err := w.Start(); err != nil {
		fmt.Fprintf(stderr, "ERROR: watch %s: %v\n", e.cfg.Paths.DefinitionsDir, err)
		return apierrors.ExitFailure
	}
	e.logger.Info("watching definitions",
		zap.String("dir", e.cfg.Paths.DefinitionsDir),
		zap.String("output_dir", *outDir),
	)

	<-ctx.Done()
	if err := w.Stop(); err != nil {
		e.logger.Warn("stopping watcher", zap.Error(err))
	}
	return apierrors.ExitOK
}
