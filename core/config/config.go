package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for the recommendation engine.
type Config struct {
	Catalog   CatalogConfig   `yaml:"catalog"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Rebuild   RebuildConfig   `yaml:"rebuild"`
	Cache     CacheConfig     `yaml:"cache"`
}

type CatalogConfig struct {
	// SQLite database path holding books, users and ratings.
	DBPath string `yaml:"db_path"`
}

type ArtifactsConfig struct {
	// Directory where embeddings, indexes and the rating matrix live.
	Dir string `yaml:"dir"`

	// Watch enables automatic reload when a rebuild installs new artifacts.
	Watch bool `yaml:"watch"`
}

type EmbedderConfig struct {
	// Provider selects the embedding backend: "local", "openai" or "mock".
	Provider string `yaml:"provider"`

	// Model name for the selected provider.
	Model string `yaml:"model"`

	// Dimension of the embedding vectors the model produces.
	Dimension int `yaml:"dimension"`

	// BatchSize for rebuild-time batch embedding.
	BatchSize int `yaml:"batch_size"`

	// APIKey for API-backed providers (falls back to OPENAI_API_KEY).
	APIKey string `yaml:"api_key"`

	// CacheDir for locally downloaded models.
	CacheDir string `yaml:"cache_dir"`
}

// FusionConfig exposes the hybrid blend weights. They are fixed by the
// scoring contract; surfaced here so operators can see them, not tune them.
type FusionConfig struct {
	ContentWeight       float64 `yaml:"content_weight"`
	CollaborativeWeight float64 `yaml:"collaborative_weight"`
}

type RebuildConfig struct {
	// Timeout bounds a full offline rebuild.
	Timeout time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	// MaxQueries caps the recommendation query cache.
	MaxQueries int `yaml:"max_queries"`
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			DBPath: "data/bookmind.db",
		},
		Artifacts: ArtifactsConfig{
			Dir:   "data/artifacts",
			Watch: true,
		},
		Embedder: EmbedderConfig{
			Provider:  "local",
			Model:     "all-MiniLM-L6-v2",
			Dimension: 384,
			BatchSize: 32,
		},
		Fusion: FusionConfig{
			ContentWeight:       0.6,
			CollaborativeWeight: 0.4,
		},
		Rebuild: RebuildConfig{
			Timeout: 30 * time.Minute,
		},
		Cache: CacheConfig{
			MaxQueries: 1024,
		},
	}
}

// Load reads a yaml config file, applying defaults for any omitted field.
// A missing file is not an error; defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config as yaml, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
