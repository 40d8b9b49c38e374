package render

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
	"github.com/tdevere/DevOpsApiClients/internal/opdef"
)

// Generator renders definition files into an output tree. It remembers
// which definition produced each operation so two definitions resolving to
// the same Domain/Resource/operation are not written over each other.
type Generator struct {
	templates *Templates
	logger    *zap.Logger

	mu     sync.Mutex
	claims map[string]string
}

// NewGenerator creates a generator with the embedded templates.
func NewGenerator(logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	return &Generator{templates: t, logger: logger, claims: make(map[string]string)}, nil
}

// Options selects what a Generate call produces.
type Options struct {
	Languages []Language
	DryRun    bool
	// Overwrite lets a definition replace an operation generated from
	// another definition.
	Overwrite bool
}

// Generate loads the definition at defPath, validates it, and writes its
// clients, tests and fixtures below outDir.
func (g *Generator) Generate(ctx context.Context, defPath, outDir string, opts Options) (Result, error) {
	def, err := opdef.Load(defPath)
	if err != nil {
		return Result{}, err
	}
	return g.GenerateDefinition(ctx, def, outDir, opts)
}

// GenerateDefinition writes the files for an already loaded definition.
func (g *Generator) GenerateDefinition(ctx context.Context, def *opdef.Definition, outDir string, opts Options) (Result, error) {
	if err := def.Validate(); err != nil {
		return Result{}, err
	}
	langs := opts.Languages
	if len(langs) == 0 {
		langs = AllLanguages
	}

	key := def.OutputDir() + "/" + def.Operation
	g.mu.Lock()
	owner, claimed := g.claims[key]
	g.mu.Unlock()
	if claimed && owner != def.Source && !opts.Overwrite {
		return Result{}, apierrors.Newf(apierrors.KindNameCollision,
			"operation %s already generated from %s", key, owner)
	}

	set, err := g.templates.Plan(def, langs, os.DirFS(outDir))
	if err != nil {
		return Result{}, fmt.Errorf("plan %s: %w", def.Operation, err)
	}
	res, err := Write(ctx, outDir, set, WriteOptions{DryRun: opts.DryRun, Overwrite: opts.Overwrite})
	if err != nil {
		g.logger.Error("generation failed",
			zap.String("operation", def.Operation),
			zap.Error(err),
		)
		return Result{}, err
	}

	g.mu.Lock()
	g.claims[key] = def.Source
	g.mu.Unlock()

	g.logger.Info("generated operation",
		zap.String("domain", def.Domain),
		zap.String("operation", def.Operation),
		zap.Int("created", res.Count(StatusCreated)),
		zap.Int("updated", res.Count(StatusUpdated)),
		zap.Int("unchanged", res.Count(StatusUnchanged)),
		zap.Bool("dry_run", opts.DryRun),
	)
	return res, nil
}
