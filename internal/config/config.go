package config

import "time"

// DefaultFile is the configuration file looked up in the working directory
// when no -config flag is given.
const DefaultFile = "devopsapi.yaml"

// Config represents the complete toolchain configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Paths     PathsConfig     `yaml:"paths"`
	Sync      SyncConfig      `yaml:"sync"`
	Inference InferenceConfig `yaml:"inference"`
	Generator GeneratorConfig `yaml:"generator"`
}

// LoggingConfig controls the tool logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Output     string `yaml:"output"` // stderr, stdout or a file path
	MaxSize    int    `yaml:"max_size"`    // megabytes before rotation
	MaxBackups int    `yaml:"max_backups"` // rotated files kept
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// PathsConfig locates the repository layout the tools work against.
type PathsConfig struct {
	DefinitionsDir string `yaml:"definitions_dir"`
	SpecDir        string `yaml:"spec_dir"`
	OutputDir      string `yaml:"output_dir"`
}

// SyncConfig controls the drift detector.
type SyncConfig struct {
	// BucketURL is a gocloud.dev blob URL holding the URL registry, the
	// hash store and the cached specs. Empty means a file bucket rooted at
	// paths.spec_dir.
	BucketURL   string        `yaml:"bucket_url"`
	URLsKey     string        `yaml:"urls_key"`
	HashesKey   string        `yaml:"hashes_key"`
	Timeout     time.Duration `yaml:"timeout"`
	// Retries is a pointer so an explicit 0 disables retrying.
	Retries     *int          `yaml:"retries"`
	Concurrency int           `yaml:"concurrency"`
	UserAgent   string        `yaml:"user_agent"`
}

// InferenceConfig tunes the definition inference heuristics. Map entries are
// merged on top of the built-in tables.
type InferenceConfig struct {
	MaxFixtureDepth      int               `yaml:"max_fixture_depth"`
	MaxFixtureProperties int               `yaml:"max_fixture_properties"`
	MaxBodyFields        int               `yaml:"max_body_fields"`
	MaxGuardKeys         int               `yaml:"max_guard_keys"`
	MaxTableColumns      int               `yaml:"max_table_columns"`
	DefaultHost          string            `yaml:"default_host"`
	DocsBaseURL          string            `yaml:"docs_base_url"`
	DocsView             string            `yaml:"docs_view"`
	ParamEnvOverrides    map[string]string `yaml:"param_env_overrides"`
	DomainDirs           map[string]string `yaml:"domain_dirs"`
}

// RetryCount returns the configured fetch retries, 3 when unset.
func (s SyncConfig) RetryCount() int {
	if s.Retries == nil {
		return 3
	}
	return *s.Retries
}

func intPtr(v int) *int { return &v }

// GeneratorConfig controls rendering.
type GeneratorConfig struct {
	Languages     []string      `yaml:"languages"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// DefaultConfig returns the built-in configuration. It reproduces the
// repository layout used when no devopsapi.yaml is present.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Paths: PathsConfig{
			DefinitionsDir: "_generator/definitions",
			SpecDir:        "_shared/specs",
			OutputDir:      ".",
		},
		Sync: SyncConfig{
			URLsKey:     "upstream_urls.json",
			HashesKey:   "last_sync_hashes.json",
			Timeout:     30 * time.Second,
			Retries:     intPtr(3),
			Concurrency: 4,
			UserAgent:   "DevOpsApiClients-SyncCheck/1.0",
		},
		Inference: InferenceConfig{
			MaxFixtureDepth:      3,
			MaxFixtureProperties: 8,
			MaxBodyFields:        6,
			MaxGuardKeys:         2,
			MaxTableColumns:      4,
			DefaultHost:          "dev.azure.com",
			DocsBaseURL:          "https://learn.microsoft.com/en-us/rest/api/azure/devops",
			DocsView:             "azure-devops-rest-7.2",
		},
		Generator: GeneratorConfig{
			Languages:     []string{"python", "powershell", "bash"},
			WatchDebounce: 500 * time.Millisecond,
		},
	}
}
