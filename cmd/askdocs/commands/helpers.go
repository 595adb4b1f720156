package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/askdocs/askdocs-go/internal/chunker"
	"github.com/askdocs/askdocs-go/internal/embedder"
	"github.com/askdocs/askdocs-go/internal/generator"
	"github.com/askdocs/askdocs-go/internal/rag"
)

// getEnvOrDefault returns the named environment variable, or fallback if it
// is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// dataDir resolves the askdocs data directory (~/.askdocs), creating it if
// necessary.
func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".askdocs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return dir, nil
}

// resolveDBPath returns the SQLite metadata database path, honoring
// ASKDOCS_DB and falling back to ~/.askdocs/askdocs.db.
func resolveDBPath() (string, error) {
	if p := os.Getenv("ASKDOCS_DB"); p != "" {
		return p, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "askdocs.db"), nil
}

// resolveStorageDir returns the uploaded-file storage directory, honoring
// ASKDOCS_STORAGE_DIR and falling back to ~/.askdocs/files.
func resolveStorageDir() (string, error) {
	if p := os.Getenv("ASKDOCS_STORAGE_DIR"); p != "" {
		return p, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "files"), nil
}

// buildSplitter constructs the document splitter from env overrides.
// Zero values select the chunker defaults.
func buildSplitter() chunker.Splitter {
	return chunker.Splitter{
		ChunkSize:    getEnvInt("ASKDOCS_CHUNK_SIZE", 0),
		Overlap:      getEnvInt("ASKDOCS_CHUNK_OVERLAP", 0),
		CSVBatchRows: getEnvInt("ASKDOCS_CSV_ROWS", 0),
	}
}

// buildVectorStore connects to Qdrant when QDRANT_HOST is set, and falls
// back to the in-memory store otherwise. The in-memory store loses all
// vectors on restart, so it is only suitable for local experimentation.
func buildVectorStore(log *slog.Logger) (rag.NamespaceStore, error) {
	qdrantHost := os.Getenv("QDRANT_HOST")
	if qdrantHost == "" {
		log.Warn("QDRANT_HOST not set — using in-memory vector store, vectors are lost on restart")
		return rag.NewMemoryStore(), nil
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	store, err := rag.NewQdrantStore(&rag.QdrantConfig{
		Host:       qdrantHost,
		Port:       qdrantPort,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", qdrantHost),
		slog.Int("port", qdrantPort),
		slog.Uint64("vector_size", vectorSize),
	)
	return store, nil
}

// buildGenerator constructs the answer-generation LLM client from env vars.
func buildGenerator(ctx context.Context) (*generator.Client, error) {
	backend := generator.Backend(getEnvOrDefault("MODEL_PROVIDER", "ollama"))

	cfg := &generator.Config{
		Backend:     backend,
		MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 0),
		Temperature: float32(getEnvFloat("MODEL_TEMPERATURE", 0)),
	}
	switch backend {
	case generator.BackendOllama:
		cfg.Model = getEnvOrDefault("OLLAMA_MODEL", "llama3.1")
		cfg.BaseURL = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
	case generator.BackendOpenAI:
		cfg.Model = getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini")
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return generator.New(ctx, cfg)
}

// pingable mirrors the probe shape the server's readiness checks consume.
type pingable interface {
	Ping(ctx context.Context) error
}

// asPingable returns v as a pingable if its concrete type supports probing.
func asPingable(v any) (pingable, bool) {
	p, ok := v.(pingable)
	return p, ok
}
