package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sessionmind/memory-mcp/internal/config"
	"github.com/sessionmind/memory-mcp/internal/embedding"
	"github.com/sessionmind/memory-mcp/internal/server"
	"github.com/sessionmind/memory-mcp/internal/session"
	"github.com/sessionmind/memory-mcp/internal/storage"
)

func main() {
	transport := flag.String("transport", "stdio", "Transport mode: stdio or http")
	port := flag.String("port", "8081", "HTTP port (only used with --transport http)")
	dataDir := flag.String("data-dir", "", "Directory for SQLite databases (overrides config)")
	configPath := flag.String("config", "", "Path to TOML config file")
	flag.Parse()

	// Best-effort; secrets may also come from the real environment.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}

	backend, err := newBackend(cfg)
	if err != nil {
		log.Fatalf("Failed to create embedding backend: %v", err)
	}

	embedder, err := embedding.NewService(backend, embedding.Options{
		CacheSize: cfg.Embedding.CacheSize,
		Workers:   cfg.Embedding.Workers,
	})
	if err != nil {
		log.Fatalf("Failed to start embedding service: %v", err)
	}
	defer embedder.Close()

	meta, err := storage.OpenMeta(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to open meta store: %v", err)
	}

	sess := session.NewManager(meta, embedder, cfg.Discovery.SimilarityThreshold)
	defer sess.Close()

	srv := server.New(sess)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *transport {
	case "stdio":
		log.Printf("Memory MCP server starting (stdio, embedding backend: %s)", cfg.Embedding.Backend)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case "http":
		addr := ":" + *port
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		log.Printf("Memory MCP server listening on %s (embedding backend: %s)", addr, cfg.Embedding.Backend)
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	default:
		log.Fatalf("Unknown transport: %s (use stdio or http)", *transport)
	}
}

// newBackend builds the embedding backend named by the config.
func newBackend(cfg *config.Config) (embedding.Backend, error) {
	switch cfg.Embedding.Backend {
	case "", "mock":
		return embedding.NewMockBackend(cfg.Embedding.Dimensions), nil
	case "openai":
		if cfg.Embedding.APIKey == "" {
			return nil, fmt.Errorf("openai backend requires api_key or OPENAI_API_KEY")
		}
		return embedding.NewOpenAIBackend(
			cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions,
		), nil
	case "onnx":
		return embedding.NewONNXBackend(embedding.ONNXConfig{
			ModelPath:     cfg.Embedding.ModelPath,
			TokenizerPath: cfg.Embedding.TokenizerPath,
			LibraryPath:   cfg.Embedding.LibraryPath,
			Dimensions:    cfg.Embedding.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown embedding backend %q (use mock, openai, or onnx)", cfg.Embedding.Backend)
	}
}
