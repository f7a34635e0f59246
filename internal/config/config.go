// Package config loads and validates the indexer's configuration,
// using a layered load (defaults -> project file -> environment
// overrides) and YAML shape trimmed to the fields an indexing run
// actually needs: the MCP/daemon/search-server sections (Search,
// Server, Sessions, Compaction, Submodules) are dropped as explicit
// non-goals.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete indexer configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Project    ProjectConfig    `yaml:"project" json:"project"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Batch      BatchConfig      `yaml:"batch" json:"batch"`
	Workers    WorkersConfig    `yaml:"workers" json:"workers"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Orphans    OrphansConfig    `yaml:"orphans" json:"orphans"`
}

// ProjectConfig identifies the project root and which files are in scope.
type ProjectConfig struct {
	Root        string   `yaml:"root" json:"root"`
	Include     []string `yaml:"include" json:"include"`
	Exclude     []string `yaml:"exclude" json:"exclude"`
	MaxFileSize int64    `yaml:"max_file_size" json:"max_file_size"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`

	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	APIKey     string `yaml:"api_key" json:"api_key"`
}

// CacheConfig bounds the C3 embedding cache's two tiers.
type CacheConfig struct {
	MemoryEntries int    `yaml:"memory_entries" json:"memory_entries"`
	DiskPath      string `yaml:"disk_path" json:"disk_path"`
	DiskMaxBytes  int64  `yaml:"disk_max_bytes" json:"disk_max_bytes"`
}

// BatchConfig bounds the C4 adaptive batch sizer.
type BatchConfig struct {
	Initial int `yaml:"initial" json:"initial"`
	Min     int `yaml:"min" json:"min"`
	Max     int `yaml:"max" json:"max"`
}

// WorkersConfig sizes the C10 parallel file worker pool.
type WorkersConfig struct {
	Count          int           `yaml:"count" json:"count"`
	PerFileTimeout time.Duration `yaml:"per_file_timeout" json:"per_file_timeout"`
}

// StoreConfig configures the C12 vector-store connection.
type StoreConfig struct {
	Collection string `yaml:"collection" json:"collection"`
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	UseTLS     bool   `yaml:"use_tls" json:"use_tls"`
}

// OrphansConfig configures the §4.8 orphan-cleanup sweep.
type OrphansConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Project: ProjectConfig{
			Include:     []string{"**/*.go", "**/*.py", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.md"},
			Exclude:     []string{".git/**", "node_modules/**", "vendor/**", "dist/**", "build/**"},
			MaxFileSize: 1 << 20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			OllamaHost: "http://localhost:11434",
		},
		Cache: CacheConfig{
			MemoryEntries: 10000,
			DiskMaxBytes:  500 << 20,
		},
		Batch: BatchConfig{
			Initial: 25,
			Min:     1,
			Max:     100,
		},
		Workers: WorkersConfig{
			Count:          4,
			PerFileTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Collection: "codeindex",
			Host:       "localhost",
			Port:       6334,
		},
		Orphans: OrphansConfig{
			SweepInterval: 10 * time.Minute,
		},
	}
}

// Load builds a Config for dir: defaults, overridden by dir's
// .codeindexer.yaml (or .yml) if present, overridden by environment
// variables, then validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()
	cfg.Project.Root = dir

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".codeindexer.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".codeindexer.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays other's non-zero fields onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Project.Root != "" {
		c.Project.Root = other.Project.Root
	}
	if len(other.Project.Include) > 0 {
		c.Project.Include = other.Project.Include
	}
	if len(other.Project.Exclude) > 0 {
		c.Project.Exclude = other.Project.Exclude
	}
	if other.Project.MaxFileSize != 0 {
		c.Project.MaxFileSize = other.Project.MaxFileSize
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.APIKey != "" {
		c.Embeddings.APIKey = other.Embeddings.APIKey
	}

	if other.Cache.MemoryEntries != 0 {
		c.Cache.MemoryEntries = other.Cache.MemoryEntries
	}
	if other.Cache.DiskPath != "" {
		c.Cache.DiskPath = other.Cache.DiskPath
	}
	if other.Cache.DiskMaxBytes != 0 {
		c.Cache.DiskMaxBytes = other.Cache.DiskMaxBytes
	}

	if other.Batch.Initial != 0 {
		c.Batch.Initial = other.Batch.Initial
	}
	if other.Batch.Min != 0 {
		c.Batch.Min = other.Batch.Min
	}
	if other.Batch.Max != 0 {
		c.Batch.Max = other.Batch.Max
	}

	if other.Workers.Count != 0 {
		c.Workers.Count = other.Workers.Count
	}
	if other.Workers.PerFileTimeout != 0 {
		c.Workers.PerFileTimeout = other.Workers.PerFileTimeout
	}

	if other.Store.Collection != "" {
		c.Store.Collection = other.Store.Collection
	}
	if other.Store.Host != "" {
		c.Store.Host = other.Store.Host
	}
	if other.Store.Port != 0 {
		c.Store.Port = other.Store.Port
	}
	if other.Store.APIKey != "" {
		c.Store.APIKey = other.Store.APIKey
	}
	if other.Store.UseTLS {
		c.Store.UseTLS = other.Store.UseTLS
	}

	if other.Orphans.SweepInterval != 0 {
		c.Orphans.SweepInterval = other.Orphans.SweepInterval
	}
}

// applyEnvOverrides applies CODEINDEXER_* environment variables, the
// highest-precedence config layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODEINDEXER_PROJECT_ROOT"); v != "" {
		c.Project.Root = v
	}
	if v := os.Getenv("CODEINDEXER_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CODEINDEXER_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODEINDEXER_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CODEINDEXER_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("CODEINDEXER_STORE_HOST"); v != "" {
		c.Store.Host = v
	}
	if v := os.Getenv("CODEINDEXER_STORE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Store.Port = n
		}
	}
	if v := os.Getenv("CODEINDEXER_STORE_API_KEY"); v != "" {
		c.Store.APIKey = v
	}
	if v := os.Getenv("CODEINDEXER_STORE_COLLECTION"); v != "" {
		c.Store.Collection = v
	}
	if v := os.Getenv("CODEINDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers.Count = n
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project.Root) == "" {
		return fmt.Errorf("project.root is required")
	}
	if c.Project.MaxFileSize <= 0 {
		return fmt.Errorf("project.max_file_size must be positive")
	}
	if c.Batch.Min <= 0 || c.Batch.Max < c.Batch.Min {
		return fmt.Errorf("batch.min must be positive and batch.max >= batch.min")
	}
	if c.Batch.Initial < c.Batch.Min || c.Batch.Initial > c.Batch.Max {
		return fmt.Errorf("batch.initial must be within [batch.min, batch.max]")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be positive")
	}
	if strings.TrimSpace(c.Store.Collection) == "" {
		return fmt.Errorf("store.collection is required")
	}
	if strings.TrimSpace(c.Embeddings.Provider) == "" {
		return fmt.Errorf("embeddings.provider is required")
	}
	return nil
}

// WriteYAML marshals c and writes it to path using a temp-file-then-
// rename so a crash mid-write never leaves a truncated config behind.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".codeindexer-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp config file into place: %w", err)
	}
	return nil
}
