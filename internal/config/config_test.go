package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Embedding.Backend != "mock" {
		t.Errorf("Backend = %q, want mock", cfg.Embedding.Backend)
	}
	if cfg.Embedding.CacheSize != 1000 {
		t.Errorf("CacheSize = %d, want 1000", cfg.Embedding.CacheSize)
	}
	if cfg.Embedding.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Embedding.Workers)
	}
	if cfg.Discovery.SimilarityThreshold != 0.70 {
		t.Errorf("SimilarityThreshold = %v, want 0.70", cfg.Discovery.SimilarityThreshold)
	}
	if cfg.Discovery.MaxDepth != 2 {
		t.Errorf("MaxDepth = %d, want 2", cfg.Discovery.MaxDepth)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[embedding]
backend = "openai"
model = "text-embedding-3-small"
cache_size = 500

[discovery]
similarity_threshold = 0.8

[storage]
data_dir = "/tmp/memdata"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embedding.Backend != "openai" {
		t.Errorf("Backend = %q, want openai", cfg.Embedding.Backend)
	}
	if cfg.Embedding.CacheSize != 500 {
		t.Errorf("CacheSize = %d, want 500", cfg.Embedding.CacheSize)
	}
	// Unset fields keep their defaults.
	if cfg.Embedding.Workers != 2 {
		t.Errorf("Workers = %d, want default 2", cfg.Embedding.Workers)
	}
	if cfg.Discovery.SimilarityThreshold != 0.8 {
		t.Errorf("SimilarityThreshold = %v, want 0.8", cfg.Discovery.SimilarityThreshold)
	}
	if cfg.Storage.DataDir != "/tmp/memdata" {
		t.Errorf("DataDir = %q, want /tmp/memdata", cfg.Storage.DataDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.toml"); err == nil {
		t.Error("explicit missing config file should error")
	}

	// No path at all is fine.
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Embedding.Backend != "mock" {
		t.Errorf("Backend = %q, want mock", cfg.Embedding.Backend)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MEMORY_MCP_DATA_DIR", "/tmp/envdata")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", cfg.Embedding.APIKey)
	}
	if cfg.Storage.DataDir != "/tmp/envdata" {
		t.Errorf("DataDir = %q, want /tmp/envdata", cfg.Storage.DataDir)
	}
}
