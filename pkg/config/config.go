// Package config reads and writes the repository configuration stored in
// .cadvc/config.toml or .cadvc/config.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/odvcencio/cadvc/pkg/object"
	"github.com/odvcencio/cadvc/pkg/resolve"
)

const (
	TOMLFile = "config.toml"
	YAMLFile = "config.yaml"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the repository configuration.
type Config struct {
	Storage  Storage  `toml:"storage" yaml:"storage"`
	Cache    Cache    `toml:"cache" yaml:"cache"`
	Commit   Commit   `toml:"commit" yaml:"commit"`
	Merge    Merge    `toml:"merge" yaml:"merge"`
	Branches Branches `toml:"branches" yaml:"branches"`
	Logging  Logging  `toml:"logging" yaml:"logging"`
}

type Storage struct {
	Backend string `toml:"backend" yaml:"backend"`
	// CompressMin is the smallest payload stored zstd-compressed; 0 disables
	// compression.
	CompressMin   int    `toml:"compress_min" yaml:"compress_min"`
	CompressLevel string `toml:"compress_level" yaml:"compress_level"`
}

type Cache struct {
	MaxCost     int64 `toml:"max_cost" yaml:"max_cost"`
	NumCounters int64 `toml:"num_counters" yaml:"num_counters"`
	// CommitCacheSize bounds the commits kept for history and merge-base
	// traversal.
	CommitCacheSize int `toml:"commit_cache_size" yaml:"commit_cache_size"`
}

type Commit struct {
	// Workers bounds concurrent blob writes during tree builds; 0 means
	// GOMAXPROCS.
	Workers       int    `toml:"workers" yaml:"workers"`
	DefaultAuthor string `toml:"default_author" yaml:"default_author"`
}

type Merge struct {
	Strategy     string         `toml:"strategy" yaml:"strategy"`
	Tolerance    float64        `toml:"tolerance" yaml:"tolerance"`
	TrivialRules []resolve.Rule `toml:"trivial_rules" yaml:"trivial_rules"`
}

type Branches struct {
	Default   string   `toml:"default" yaml:"default"`
	Protected []string `toml:"protected" yaml:"protected"`
}

type Logging struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Backend:       BackendFile,
			CompressMin:   512,
			CompressLevel: "default",
		},
		Cache: Cache{
			MaxCost:         64 << 20,
			NumCounters:     1e5,
			CommitCacheSize: 4096,
		},
		Commit: Commit{},
		Merge: Merge{
			Strategy:     string(resolve.StrategyAuto),
			Tolerance:    object.DefaultTolerance,
			TrivialRules: resolve.DefaultRules(),
		},
		Branches: Branches{
			Default:   "main",
			Protected: []string{"main", "release/*"},
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.CompressMin < 0 {
		return fmt.Errorf("storage.compress_min: must not be negative")
	}
	if _, err := object.ParseCompressionLevel(c.Storage.CompressLevel); err != nil {
		return fmt.Errorf("storage.compress_level: %w", err)
	}
	if c.Commit.Workers < 0 {
		return fmt.Errorf("commit.workers: must not be negative")
	}
	if _, err := resolve.ParseStrategy(c.Merge.Strategy); err != nil {
		return fmt.Errorf("merge.strategy: %w", err)
	}
	if c.Merge.Tolerance < 0 {
		return fmt.Errorf("merge.tolerance: must not be negative")
	}
	for _, r := range c.Merge.TrivialRules {
		if _, err := glob.Compile(strings.ToLower(r.Pattern)); err != nil {
			return fmt.Errorf("merge.trivial_rules %q: %w", r.Name, err)
		}
	}
	for _, p := range c.Branches.Protected {
		if _, err := glob.Compile(p, '/'); err != nil {
			return fmt.Errorf("branches.protected %q: %w", p, err)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	return nil
}

// Path returns the config file in dir: the YAML file when one exists,
// otherwise the TOML file.
func Path(dir string) string {
	for _, name := range []string{YAMLFile, "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, TOMLFile)
}

// Load reads the config in dir over the defaults. A missing file yields
// Default().
func Load(dir string) (*Config, error) {
	return LoadFile(Path(dir))
}

// LoadFile reads one config file, choosing the format by extension.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("load config: %w", err)
	}

	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	} else {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Save atomically writes cfg to Path(dir).
func Save(dir string, cfg *Config) error {
	return SaveFile(Path(dir), cfg)
}

// SaveFile atomically writes cfg to path in the format its extension names.
func SaveFile(path string, cfg *Config) error {
	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	var data []byte
	if isYAML(path) {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("write config: marshal: %w", err)
		}
		data = out
	} else {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("write config: marshal: %w", err)
		}
		data = buf.Bytes()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write config: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// IsProtected reports whether branch matches a protected pattern.
func (c *Config) IsProtected(branch string) bool {
	for _, p := range c.Branches.Protected {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		if g.Match(branch) {
			return true
		}
	}
	return false
}

// ResolverOptions returns the resolve.Options the merge section describes.
func (c *Config) ResolverOptions() []resolve.Option {
	return []resolve.Option{
		resolve.WithRules(c.Merge.TrivialRules),
		resolve.WithTolerance(c.Merge.Tolerance),
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
