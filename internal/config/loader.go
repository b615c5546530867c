package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigName is the per-project config file, looked up in the
	// project directory.
	ProjectConfigName = "imgcreator.yaml"

	globalConfigDir  = ".imgcreator"
	globalConfigName = "config.yaml"
)

// Loader builds a resolved Config from the layered sources:
// global (~/.imgcreator/config.yaml) < project (imgcreator.yaml)
// < optional per-call overrides. Every Load produces a fresh Config;
// input layers are never mutated.
type Loader struct {
	projectDir string
	globalPath string
	logger     *slog.Logger

	mu       sync.RWMutex
	current  *Config
	onReload []func()
}

func NewLoader(projectDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	globalPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		globalPath = filepath.Join(home, globalConfigDir, globalConfigName)
	}
	return &Loader{
		projectDir: projectDir,
		globalPath: globalPath,
		logger:     logger,
	}
}

// ProjectPath returns the path of the project config file.
func (l *Loader) ProjectPath() string {
	return filepath.Join(l.projectDir, ProjectConfigName)
}

// LoadProject reads just the project layer. A missing file is a
// NotFoundError, distinct from an unparseable or invalid one.
func (l *Loader) LoadProject() (map[string]any, error) {
	path := l.ProjectPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{Path: path}
	}
	return loadYAMLMap(path)
}

// Load merges global < project, substitutes environment variables over
// the final merged tree and validates the result. A missing project
// config falls back to the global layer plus built-in defaults.
func (l *Loader) Load() (*Config, error) {
	global := map[string]any{}
	if l.globalPath != "" {
		if _, err := os.Stat(l.globalPath); err == nil {
			l.logger.Debug("loading global config", "path", l.globalPath)
			loaded, err := loadYAMLMap(l.globalPath)
			if err != nil {
				return nil, err
			}
			global = loaded
		} else {
			l.logger.Debug("no global config found", "path", l.globalPath)
		}
	}

	project, err := l.LoadProject()
	if err != nil {
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		l.logger.Debug("no project config, using defaults", "path", l.ProjectPath())
		project = map[string]any{}
	} else {
		l.logger.Debug("loaded project config", "path", l.ProjectPath())
	}

	cfg, err := resolve(DeepMerge(global, project))
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// LoadWithOverrides applies a per-call override layer (highest
// precedence) on top of a fresh Load.
func (l *Loader) LoadWithOverrides(overrides map[string]any) (*Config, error) {
	base, err := l.Load()
	if err != nil {
		return nil, err
	}
	if len(overrides) == 0 {
		return base, nil
	}
	return MergeOverrides(base, overrides)
}

// MergeOverrides layers overrides onto an already-resolved config,
// producing a new Config. The base is left untouched.
func MergeOverrides(base *Config, overrides map[string]any) (*Config, error) {
	return resolve(DeepMerge(base.raw, overrides))
}

// Config returns the most recently loaded configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnReload registers a callback that fires after a watched reload.
// Safe to call while a watcher is running.
func (l *Loader) OnReload(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = append(l.onReload, fn)
}

// reloadCallbacks snapshots the registered callbacks for the watcher
// goroutine to run outside the lock.
func (l *Loader) reloadCallbacks() []func() {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]func(){}, l.onReload...)
}

// Watch reloads the configuration whenever the project config file
// changes. Used by serve mode; one-shot CLI invocations never watch.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.projectDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch project dir %s: %w", l.projectDir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != ProjectConfigName {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					l.logger.Info("config file changed, reloading", "file", event.Name)
					if _, err := l.Load(); err != nil {
						l.logger.Error("failed to reload config", "error", err)
						continue
					}
					for _, fn := range l.reloadCallbacks() {
						fn()
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}

// resolve runs the post-merge stages shared by every load path:
// environment substitution over the final tree, whole-tree validation,
// then decoding into a Config.
func resolve(merged map[string]any) (*Config, error) {
	substituted, err := Substitute(merged)
	if err != nil {
		return nil, err
	}
	tree := substituted.(map[string]any)

	if problems := validate(tree); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return fromMap(tree)
}

func loadYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return out, nil
}

// validate checks the merged tree and reports every violation it finds.
func validate(tree map[string]any) []string {
	var problems []string

	if api, ok := tree["api"].(map[string]any); ok {
		if provider, ok := api["provider"].(string); ok && provider != "" {
			if !contains(ValidProviders, provider) {
				problems = append(problems, fmt.Sprintf(
					"invalid API provider: %q. Only %s is supported.",
					provider, strings.Join(ValidProviders, ", ")))
			}
		}
		if model, ok := api["model"].(string); ok && model != "" {
			if !contains(ValidModels, model) {
				problems = append(problems, fmt.Sprintf(
					"invalid model: %q. Valid models: %s",
					model, strings.Join(ValidModels, ", ")))
			}
		}
	}

	if defaults, ok := tree["defaults"].(map[string]any); ok {
		for _, field := range []string{"width", "height"} {
			v, present := defaults[field]
			if !present {
				continue
			}
			if n, ok := asInt(v); !ok || n <= 0 {
				problems = append(problems, fmt.Sprintf(
					"invalid %s: %v. Must be a positive integer.", field, v))
			}
		}
		if ref, present := defaults["reference_image"]; present && ref != nil {
			switch r := ref.(type) {
			case string, []string, StringList:
			case []any:
				for _, elem := range r {
					if _, ok := elem.(string); !ok {
						problems = append(problems,
							"invalid reference_image: list must contain only string paths.")
						break
					}
				}
			default:
				problems = append(problems,
					"invalid reference_image: must be a string path or list of string paths.")
			}
		}
	}

	return problems
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
