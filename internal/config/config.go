// Package config provides configuration loading and structs for the SmartImageFinder server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Vector      VectorConfig      `yaml:"vector"`
	Search      SearchConfig      `yaml:"search"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Watch       WatchConfig       `yaml:"watch"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the record database, uploads, and the four index files.
type StorageConfig struct {
	// Driver is "sqlite3" (cgo), "sqlite" (pure Go), or empty to pick whichever opens.
	Driver               string `yaml:"driver"`
	DatabasePath         string `yaml:"database_path"`
	UploadDir            string `yaml:"upload_dir"`
	TitleIndexPath       string `yaml:"title_index_path"`
	DescriptionIndexPath string `yaml:"description_index_path"`
	ImageIndexPath       string `yaml:"image_index_path"`
	IdentityMapPath      string `yaml:"identity_map_path"`
	BleveIndexPath       string `yaml:"bleve_index_path"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Enabled          *bool  `yaml:"enabled"`
	Provider         string `yaml:"provider"` // mock, onnx, remote
	ModelPath        string `yaml:"model_path"`
	VisionModelPath  string `yaml:"vision_model_path"`
	Dimensions       int    `yaml:"dimensions"`
	MaxTokens        int    `yaml:"max_tokens"`
	ImageSize        int    `yaml:"image_size"`
	CacheSize        int    `yaml:"cache_size"`
	CacheDir         string `yaml:"cache_dir"`
	APIBase          string `yaml:"api_base"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	FailureThreshold int    `yaml:"failure_threshold"`
	CooldownSeconds  int    `yaml:"cooldown_seconds"`
}

// EnabledOrDefault returns whether embeddings are enabled; defaults to true when unset.
func (e *EmbeddingConfig) EnabledOrDefault() bool {
	if e.Enabled != nil {
		return *e.Enabled
	}
	return true
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	IndexType         string `yaml:"index_type"` // memory, faiss
	CheckpointOnWrite *bool  `yaml:"checkpoint_on_write"`
}

// CheckpointOnWriteOrDefault defaults to true so every mutation is durable.
func (v *VectorConfig) CheckpointOnWriteOrDefault() bool {
	if v.CheckpointOnWrite != nil {
		return *v.CheckpointOnWrite
	}
	return true
}

// FanoutWeights are per-index weights for a multi-index vector query.
type FanoutWeights struct {
	Title       float64 `yaml:"title"`
	Description float64 `yaml:"description"`
	Image       float64 `yaml:"image"`
}

// IsZero reports whether no weight is set.
func (w FanoutWeights) IsZero() bool {
	return w.Title == 0 && w.Description == 0 && w.Image == 0
}

// SearchConfig holds hybrid search defaults.
type SearchConfig struct {
	DefaultLimit    int           `yaml:"default_limit"`
	MaxLimit        int           `yaml:"max_limit"`
	OverfetchFactor int           `yaml:"overfetch_factor"`
	TextBackend     string        `yaml:"text_backend"` // sql, bleve
	TextWeight      float64       `yaml:"text_weight"`
	VectorWeight    float64       `yaml:"vector_weight"`
	TextFanout      FanoutWeights `yaml:"text_fanout"`
	ImageFanout     FanoutWeights `yaml:"image_fanout"`
	SimilarFanout   FanoutWeights `yaml:"similar_fanout"`

	// Fuzziness lets the bleve backend match terms within this many edits. 0 is exact.
	Fuzziness int `yaml:"fuzziness"`
}

// MaintenanceConfig holds the background checkpoint and compaction schedule.
type MaintenanceConfig struct {
	Enabled              *bool   `yaml:"enabled"`
	CheckpointSchedule   string  `yaml:"checkpoint_schedule"`
	CompactionSchedule   string  `yaml:"compaction_schedule"`
	OrphanRatioThreshold float64 `yaml:"orphan_ratio_threshold"`
}

// EnabledOrDefault returns whether the scheduler runs; defaults to true when unset.
func (m *MaintenanceConfig) EnabledOrDefault() bool {
	if m.Enabled != nil {
		return *m.Enabled
	}
	return true
}

// WatchConfig holds import directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Patterns    []string `yaml:"patterns"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// AnalysisConfig configures the vision model that drafts titles, descriptions and tags.
// The API key falls back to OPENAI_API_KEY, then to the embedding API key.
type AnalysisConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIBase        string `yaml:"api_base"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Detail         string `yaml:"detail"` // low, high, auto
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))
	return &cfg, nil
}

func (cfg *Config) expandPaths(configDir string) {
	for _, p := range []*string{
		&cfg.Storage.DatabasePath,
		&cfg.Storage.UploadDir,
		&cfg.Storage.TitleIndexPath,
		&cfg.Storage.DescriptionIndexPath,
		&cfg.Storage.ImageIndexPath,
		&cfg.Storage.IdentityMapPath,
		&cfg.Storage.BleveIndexPath,
		&cfg.Embedding.ModelPath,
		&cfg.Embedding.VisionModelPath,
		&cfg.Embedding.CacheDir,
	} {
		*p = expandPath(*p, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
