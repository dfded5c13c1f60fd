// Package config resolves forkpatch settings from defaults, a config file,
// the environment and command line flags, in that order of precedence.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Failure policies for patches that cannot be applied.
const (
	OnFailurePristine = "pristine"
	OnFailureSkip     = "skip"
)

// DefaultFileNames are probed in order when no config path is given.
var DefaultFileNames = []string{"forkpatch.yaml", "forkpatch.yml", "forkpatch.json"}

// Layout names the working tree subtrees.
type Layout struct {
	Sources   string `json:"sources"`
	Resources string `json:"resources"`
}

// Config is the resolved configuration of one run.
type Config struct {
	Archive   string `json:"archive"`
	Patches   string `json:"patches"`
	Workspace string `json:"workspace"`
	Layout    Layout `json:"layout"`

	Suffix           string   `json:"suffix"`
	SourceExtensions []string `json:"sourceExtensions"`
	ResourceGlobs    []string `json:"resourceGlobs"`
	Ignore           []string `json:"ignore"`

	// MaxOffset is the fuzzy window in lines; 0 only accepts exact positions.
	MaxOffset    int  `json:"maxOffset"`
	ContextLines int  `json:"contextLines"`
	Workers      int  `json:"workers"`
	Clean        bool `json:"clean"`
	// OnFailure is OnFailurePristine or OnFailureSkip.
	OnFailure string `json:"onFailure"`
	Update    bool   `json:"update"`
	Prune     bool   `json:"prune"`

	LogLevel string `json:"logLevel"`
	Format   string `json:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{}
	cfg.setDefaults()
	cfg.MaxOffset = 50
	cfg.ContextLines = 3
	return cfg
}

// setDefaults fills empty fields. Zero integers are meaningful for MaxOffset
// and ContextLines so those are only set by Default.
func (c *Config) setDefaults() {
	if c.Patches == "" {
		c.Patches = "patches"
	}
	if c.Workspace == "" {
		c.Workspace = "workspace"
	}
	if c.Layout.Sources == "" {
		c.Layout.Sources = "sources"
	}
	if c.Layout.Resources == "" {
		c.Layout.Resources = "resources"
	}
	if c.Suffix == "" {
		c.Suffix = ".patch"
	}
	if len(c.SourceExtensions) == 0 {
		c.SourceExtensions = []string{".java"}
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.OnFailure == "" {
		c.OnFailure = OnFailurePristine
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// Validate performs lightweight validation of the resolved values.
func (c *Config) Validate() error {
	c.setDefaults()
	if c.MaxOffset < 0 {
		return errors.New("maxOffset must not be negative")
	}
	if c.ContextLines < 0 {
		return errors.New("contextLines must not be negative")
	}
	if c.OnFailure != OnFailurePristine && c.OnFailure != OnFailureSkip {
		return fmt.Errorf("onFailure must be %q or %q, got %q", OnFailurePristine, OnFailureSkip, c.OnFailure)
	}
	if filepath.Clean(c.Layout.Sources) == filepath.Clean(c.Layout.Resources) {
		return fmt.Errorf("layout.sources and layout.resources must differ, both are %q", c.Layout.Sources)
	}
	return nil
}

// LoadOptions locate the inputs of Load.
type LoadOptions struct {
	// Path is an explicit config file; when empty DefaultFileNames are probed
	// in Dir (or the working directory).
	Path string
	Dir  string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load layers defaults, the config file and the environment. It returns the
// path of the file that was read, if any.
func Load(opts LoadOptions) (Config, string, error) {
	cfg := Default()
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	path, err := locate(opts)
	if err != nil {
		return Config{}, "", err
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, "", err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, "", err
	}
	return cfg, path, nil
}

func locate(opts LoadOptions) (string, error) {
	if opts.Path != "" {
		if _, err := os.Stat(opts.Path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return opts.Path, nil
	}
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(opts.Dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config file: %w", err)
		}
	}
	return "", nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	document := raw
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		document, err = yaml.YAMLToJSON(raw)
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := validateDocument(path, document); err != nil {
		return err
	}
	if err := json.Unmarshal(document, c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return c.resolvePaths(path, document)
}

// resolvePaths anchors relative input and output paths declared in the file
// at the file's directory.
func (c *Config) resolvePaths(path string, document []byte) error {
	var declared struct {
		Archive   string `json:"archive"`
		Patches   string `json:"patches"`
		Workspace string `json:"workspace"`
	}
	if err := json.Unmarshal(document, &declared); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	base := filepath.Dir(path)
	resolve := func(value string, dst *string) {
		if value != "" && !filepath.IsAbs(value) {
			*dst = filepath.Join(base, value)
		}
	}
	resolve(declared.Archive, &c.Archive)
	resolve(declared.Patches, &c.Patches)
	resolve(declared.Workspace, &c.Workspace)
	return nil
}

// Environment variables read by applyEnv.
const (
	EnvArchive   = "FORKPATCH_ARCHIVE"
	EnvPatches   = "FORKPATCH_PATCHES"
	EnvWorkspace = "FORKPATCH_WORKSPACE"
	EnvMaxOffset = "FORKPATCH_MAX_OFFSET"
	EnvWorkers   = "FORKPATCH_WORKERS"
	EnvLogLevel  = "FORKPATCH_LOG_LEVEL"
)

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvArchive)); v != "" {
		c.Archive = v
	}
	if v := strings.TrimSpace(getenv(EnvPatches)); v != "" {
		c.Patches = v
	}
	if v := strings.TrimSpace(getenv(EnvWorkspace)); v != "" {
		c.Workspace = v
	}
	if v := strings.TrimSpace(getenv(EnvMaxOffset)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxOffset, err)
		}
		c.MaxOffset = n
	}
	if v := strings.TrimSpace(getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Workers = n
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	return nil
}
