package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/tdevere/DevOpsApiClients/internal/logging"
)

// Watcher watches the configuration file and the definitions directory.
// Config changes are reloaded and handed to OnChange callbacks; changed
// definition documents are handed to OnDefinition callbacks by path.
type Watcher struct {
	watcher    *fsnotify.Watcher
	loader     *Loader
	configPath string
	defsDir    string
	debounce   time.Duration

	mu           sync.RWMutex
	callbacks    []func(*Config)
	defCallbacks []func(string)
	lastConfig   *Config
	timers       map[string]*time.Timer
}

// NewWatcher creates a watcher. configPath may be empty, in which case only
// the definitions directory is watched and cfg is used as the fixed config.
func NewWatcher(configPath string, cfg *Config) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:    fsWatcher,
		loader:     NewLoader(),
		configPath: configPath,
		defsDir:    cfg.Paths.DefinitionsDir,
		debounce:   cfg.Generator.WatchDebounce,
		lastConfig: cfg,
		timers:     make(map[string]*time.Timer),
	}
	if w.debounce <= 0 {
		w.debounce = 500 * time.Millisecond
	}

	return w, nil
}

// OnChange registers a callback for config changes
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// OnDefinition registers a callback for changed definition documents.
func (w *Watcher) OnDefinition(callback func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.defCallbacks = append(w.defCallbacks, callback)
}

// Start begins watching for changes
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.defsDir); err != nil {
		return err
	}
	if w.configPath != "" {
		dir := filepath.Dir(w.configPath)
		if filepath.Clean(dir) != filepath.Clean(w.defsDir) {
			if err := w.watcher.Add(dir); err != nil {
				return err
			}
		}
	}

	go w.watch()
	return nil
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only react to write/create events
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			switch {
			case w.configPath != "" && filepath.Base(event.Name) == filepath.Base(w.configPath):
				w.schedule(event.Name, w.reload)
			case IsDefinitionFile(event.Name) && filepath.Clean(filepath.Dir(event.Name)) == filepath.Clean(w.defsDir):
				name := event.Name
				w.schedule(name, func() { w.notifyDefinition(name) })
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", zap.Error(err))
		}
	}
}

// schedule debounces rapid events per path.
func (w *Watcher) schedule(key string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	w.timers[key] = time.AfterFunc(w.debounce, fn)
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load(w.configPath)
	if err != nil {
		logging.Error("failed to reload config", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.lastConfig = cfg
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	logging.Info("configuration reloaded", zap.String("path", w.configPath))

	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (w *Watcher) notifyDefinition(path string) {
	w.mu.RLock()
	callbacks := make([]func(string), len(w.defCallbacks))
	copy(callbacks, w.defCallbacks)
	w.mu.RUnlock()

	logging.Debug("definition changed", zap.String("path", path))
	for _, cb := range callbacks {
		cb(path)
	}
}

// GetConfig returns the current configuration
func (w *Watcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastConfig
}

// Stop stops watching for changes
func (w *Watcher) Stop() error {
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// SetDebounce sets the debounce duration for file changes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// IsDefinitionFile reports whether name looks like a definition document.
func IsDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
