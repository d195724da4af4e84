package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen          string        `json:"listen" yaml:"listen"`
	BasePath        string        `json:"base_path" yaml:"base_path"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	Log             LogConfig     `json:"log" yaml:"log"`

	// Paths are scanned in order for dictionary files.
	Paths    []SourcePath  `json:"paths" yaml:"paths"`
	IndexDir string        `json:"index_dir" yaml:"index_dir"`
	Groups   []GroupConfig `json:"groups" yaml:"groups"`

	MaxResults        int         `json:"max_results" yaml:"max_results"`
	Workers           int         `json:"workers" yaml:"workers"`
	CollationLanguage string      `json:"collation_language" yaml:"collation_language"`
	Cache             CacheConfig `json:"cache" yaml:"cache"`
	Watch             WatchConfig `json:"watch" yaml:"watch"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// SourcePath is a directory to scan. Depth 0 lists the directory only;
// Depth n also descends n levels of subdirectories.
type SourcePath struct {
	Path  string `json:"path" yaml:"path"`
	Depth int    `json:"depth" yaml:"depth"`
}

// GroupConfig names an ordered list of dictionaries. Entries are dictionary
// identifiers or display names.
type GroupConfig struct {
	Name         string   `json:"name" yaml:"name"`
	Dictionaries []string `json:"dictionaries" yaml:"dictionaries"`
}

type CacheConfig struct {
	Capacity int           `json:"capacity" yaml:"capacity"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

type WatchConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

func Default() Config {
	return Config{
		Listen:          ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level: "info",
		},
		IndexDir:          DefaultIndexDir(),
		MaxResults:        100,
		Workers:           runtime.NumCPU(),
		CollationLanguage: "en",
		Cache: CacheConfig{
			Capacity: 512,
			TTL:      10 * time.Minute,
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
	}
}

// DefaultIndexDir returns the per-user index directory.
func DefaultIndexDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".gdengine", "index")
	}
	return filepath.Join(base, "gdengine", "index")
}

// Load reads a JSON or YAML (.yaml, .yml) file and fills unset fields with
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) fill() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.IndexDir == "" {
		c.IndexDir = def.IndexDir
	}
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.CollationLanguage == "" {
		c.CollationLanguage = def.CollationLanguage
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = def.Cache.Capacity
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = def.Watch.Debounce
	}
}

// Validate checks the scan paths and group definitions.
func (c Config) Validate() error {
	for i, p := range c.Paths {
		if strings.TrimSpace(p.Path) == "" {
			return fmt.Errorf("paths[%d]: path is required", i)
		}
		if p.Depth < 0 {
			return fmt.Errorf("paths[%d]: negative depth %d", i, p.Depth)
		}
	}
	seen := make(map[string]bool, len(c.Groups))
	for i, g := range c.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return fmt.Errorf("groups[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("groups[%d]: duplicate group %q", i, name)
		}
		seen[name] = true
	}
	return nil
}
