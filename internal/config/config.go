// Package config loads docsync configuration from JSONC files layered over
// defaults and command-line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrFieldEmpty         = errors.New("cannot be empty")
	ErrInvalidValue       = errors.New("invalid value")
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	ContentRoot string   `json:"content_root"`
	DocsDir     string   `json:"docs_dir"`
	ContentExt  string   `json:"content_ext"`
	DBPath      string   `json:"db_path"`
	SpecPath    string   `json:"spec_path"`
	Generator   []string `json:"generator,omitempty"`
	HTTPTimeout string   `json:"http_timeout"`
	LogLevel    string   `json:"log_level"`
	LogFormat   string   `json:"log_format"`

	// Resolved values (computed, not serialized)
	WorkDir        string        `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DocsRootAbs    string        `json:"-"` // <content_root>/<docs_dir>, absolute
	DBPathAbs      string        `json:"-"`
	SpecPathAbs    string        `json:"-"`
	LockPath       string        `json:"-"` // DBPathAbs + ".lock"
	HTTPTimeoutDur time.Duration `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		ContentRoot: "content",
		DocsDir:     "docs",
		ContentExt:  ".mdx",
		DBPath:      filepath.Join(".docsync", "records.sqlite"),
		SpecPath:    "openapi.json",
		HTTPTimeout: "30s",
		LogLevel:    "info",
		LogFormat:   "auto",
	}
}

// FileName is the project config file name.
const FileName = ".docsync.json"

// requiredFields may be omitted from a file but never set to "".
var requiredFields = []string{"content_root", "docs_dir", "content_ext", "db_path", "spec_path"}

// globalPath returns $XDG_CONFIG_HOME/docsync/config.json if set, otherwise
// ~/.config/docsync/config.json. Empty when neither variable is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "docsync", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "docsync", "config.json")
	}

	return ""
}

// Overrides holds command-line values. Empty strings mean "not set".
type Overrides struct {
	ContentRoot string
	DBPath      string
	LogLevel    string
	LogFormat   string
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Overrides         // remaining flag values
	Env             map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file (.docsync.json) or the explicit file from -c
// 4. CLI overrides.
//
// All paths in the returned Config are resolved to absolute paths.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		layer, loaded, loadErr := loadFile(path, false)
		if loadErr != nil {
			return Config{}, loadErr
		}

		if loaded {
			cfg = merge(cfg, layer)
			cfg.Sources.Global = path
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	layer, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, layer)
		cfg.Sources.Project = projectPath
	}

	cfg = applyOverrides(cfg, input.Overrides)

	err = validate(&cfg)
	if err != nil {
		return Config{}, err
	}

	resolve(&cfg, workDir)

	return cfg, nil
}

// fileLayer is one parsed config file plus the keys it set.
type fileLayer struct {
	cfg     Config
	present map[string]bool
}

func loadFile(path string, mustExist bool) (fileLayer, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return fileLayer{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return fileLayer{}, false, nil
		}

		return fileLayer{}, false, fmt.Errorf("%w %s: %w", ErrConfigFileRead, path, err)
	}

	layer, err := parse(data)
	if err != nil {
		return fileLayer{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return layer, true, nil
}

func parse(data []byte) (fileLayer, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileLayer{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return fileLayer{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]json.RawMessage

	_ = json.Unmarshal(standardized, &raw)

	present := make(map[string]bool, len(raw))
	for key := range raw {
		present[key] = true
	}

	for _, key := range requiredFields {
		if !present[key] {
			continue
		}

		var s string
		if json.Unmarshal(raw[key], &s) == nil && s == "" {
			return fileLayer{}, fmt.Errorf("%s %w", key, ErrFieldEmpty)
		}
	}

	return fileLayer{cfg: cfg, present: present}, nil
}

func merge(base Config, layer fileLayer) Config {
	overlay := layer.cfg

	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}

	set(&base.ContentRoot, overlay.ContentRoot)
	set(&base.DocsDir, overlay.DocsDir)
	set(&base.ContentExt, overlay.ContentExt)
	set(&base.DBPath, overlay.DBPath)
	set(&base.SpecPath, overlay.SpecPath)
	set(&base.HTTPTimeout, overlay.HTTPTimeout)
	set(&base.LogLevel, overlay.LogLevel)
	set(&base.LogFormat, overlay.LogFormat)

	// An explicit [] disables a generator set by a lower layer.
	if layer.present["generator"] {
		base.Generator = overlay.Generator
	}

	return base
}

func applyOverrides(cfg Config, o Overrides) Config {
	if o.ContentRoot != "" {
		cfg.ContentRoot = o.ContentRoot
	}

	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}

	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}

	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}

	return cfg
}

func validate(cfg *Config) error {
	if !strings.HasPrefix(cfg.ContentExt, ".") || len(cfg.ContentExt) < 2 || strings.Contains(cfg.ContentExt, "/") {
		return fmt.Errorf("content_ext: %w %q (want e.g. \".mdx\")", ErrInvalidValue, cfg.ContentExt)
	}

	if cfg.ContentExt == ".json" {
		return fmt.Errorf("content_ext: %w %q (collides with meta.json)", ErrInvalidValue, cfg.ContentExt)
	}

	docsDir := filepath.Clean(cfg.DocsDir)
	if filepath.IsAbs(docsDir) || docsDir == ".." || strings.HasPrefix(docsDir, ".."+string(filepath.Separator)) {
		return fmt.Errorf("docs_dir: %w %q (must be relative to content_root)", ErrInvalidValue, cfg.DocsDir)
	}

	timeout, err := time.ParseDuration(cfg.HTTPTimeout)
	if err != nil || timeout <= 0 {
		return fmt.Errorf("http_timeout: %w %q", ErrInvalidValue, cfg.HTTPTimeout)
	}

	cfg.HTTPTimeoutDur = timeout

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("log_level: %w %q", ErrInvalidValue, cfg.LogLevel)
	}

	if !slices.Contains([]string{"auto", "console", "json"}, cfg.LogFormat) {
		return fmt.Errorf("log_format: %w %q", ErrInvalidValue, cfg.LogFormat)
	}

	return nil
}

func resolve(cfg *Config, workDir string) {
	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}

		return filepath.Join(workDir, p)
	}

	cfg.WorkDir = workDir
	cfg.DocsRootAbs = filepath.Join(abs(cfg.ContentRoot), cfg.DocsDir)
	cfg.DBPathAbs = abs(cfg.DBPath)
	cfg.SpecPathAbs = abs(cfg.SpecPath)
	cfg.LockPath = cfg.DBPathAbs + ".lock"
}
