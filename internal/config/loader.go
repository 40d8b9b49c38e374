package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
)

var validLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLanguages = map[string]bool{
	"python": true, "powershell": true, "bash": true,
}

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierrors.Wrap(err, apierrors.KindConfigNotFound, "configuration file not found").WithDetails(path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Resolve loads the named file, or the default file when path is empty.
// An explicitly named file must exist; an absent default file yields the
// built-in defaults.
func (l *Loader) Resolve(path string) (*Config, error) {
	if path != "" {
		return l.Load(path)
	}
	if _, err := os.Stat(DefaultFile); err != nil {
		return DefaultConfig(), nil
	}
	return l.Load(DefaultFile)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	var overlay Config
	if err := yaml.Unmarshal([]byte(expanded), &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := MergeNonZero(*DefaultConfig(), overlay)

	if err := l.validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *Config) error {
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging: invalid level: %s", cfg.Logging.Level)
	}

	if cfg.Paths.DefinitionsDir == "" {
		return fmt.Errorf("paths: definitions_dir is required")
	}
	if cfg.Paths.SpecDir == "" {
		return fmt.Errorf("paths: spec_dir is required")
	}

	if cfg.Sync.Timeout <= 0 {
		return fmt.Errorf("sync: timeout must be > 0")
	}
	if cfg.Sync.RetryCount() < 0 {
		return fmt.Errorf("sync: retries must be >= 0")
	}
	if cfg.Sync.Concurrency < 1 {
		return fmt.Errorf("sync: concurrency must be >= 1")
	}
	if cfg.Sync.URLsKey == "" || cfg.Sync.HashesKey == "" {
		return fmt.Errorf("sync: urls_key and hashes_key are required")
	}

	inf := cfg.Inference
	bounds := []struct {
		name  string
		value int
	}{
		{"max_fixture_depth", inf.MaxFixtureDepth},
		{"max_fixture_properties", inf.MaxFixtureProperties},
		{"max_body_fields", inf.MaxBodyFields},
		{"max_guard_keys", inf.MaxGuardKeys},
		{"max_table_columns", inf.MaxTableColumns},
	}
	for _, b := range bounds {
		if b.value < 1 {
			return fmt.Errorf("inference: %s must be >= 1", b.name)
		}
	}
	names := make([]string, 0, len(inf.ParamEnvOverrides))
	for name := range inf.ParamEnvOverrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if inf.ParamEnvOverrides[name] == "" {
			return fmt.Errorf("inference: param_env_overrides[%s] is empty", name)
		}
	}

	if len(cfg.Generator.Languages) == 0 {
		return fmt.Errorf("generator: at least one language is required")
	}
	for _, lang := range cfg.Generator.Languages {
		if lang != "all" && !validLanguages[lang] {
			return fmt.Errorf("generator: unknown language: %s", lang)
		}
	}

	return nil
}
