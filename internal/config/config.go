// Package config loads server configuration from an optional TOML file,
// with environment variables filling in secrets.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Embedding configures the embedding backend and service.
type Embedding struct {
	// Backend is one of "mock", "openai", or "onnx".
	Backend    string `toml:"backend"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
	CacheSize  int    `toml:"cache_size"`
	Workers    int    `toml:"workers"`
	// ModelPath and TokenizerPath apply to the onnx backend only.
	ModelPath     string `toml:"model_path"`
	TokenizerPath string `toml:"tokenizer_path"`
	LibraryPath   string `toml:"library_path"`
}

// Discovery configures relationship auto-discovery.
type Discovery struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MaxDepth            int     `toml:"max_depth"`
	MinConfidence       string  `toml:"min_confidence"`
	Limit               int     `toml:"limit"`
}

// Storage configures where databases live.
type Storage struct {
	DataDir string `toml:"data_dir"`
}

// Config is the top-level server configuration.
type Config struct {
	Embedding Embedding `toml:"embedding"`
	Discovery Discovery `toml:"discovery"`
	Storage   Storage   `toml:"storage"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Embedding: Embedding{
			Backend:    "mock",
			Dimensions: 384,
			CacheSize:  1000,
			Workers:    2,
		},
		Discovery: Discovery{
			SimilarityThreshold: 0.70,
			MaxDepth:            2,
			MinConfidence:       "medium",
		},
		Storage: Storage{
			DataDir: defaultDataDir(),
		},
	}
}

// Load reads a TOML config file over the defaults. A missing file is not an
// error; a malformed one is. OPENAI_API_KEY from the environment overrides
// an empty api_key.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if dir := os.Getenv("MEMORY_MCP_DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memory-mcp"
	}
	return home + "/.memory-mcp"
}
