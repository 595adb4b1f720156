package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/askdocs/askdocs-go/internal/rag"
)

const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output size of nomic-embed-text.
	// Other Ollama models vary; set EMBEDDING_DIMENSIONS for those.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output size of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// DefaultDimensions returns the embedding vector size for a backend name.
// Callers that pre-size a vector index (Qdrant collection creation) should
// use this instead of hardcoding. EMBEDDING_DIMENSIONS wins when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if backend == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// NewFromEnv builds a rag.Embedder from the environment. The embedding
// backend follows the chat provider unless explicitly overridden:
// EMBEDDING_PROVIDER, then MODEL_PROVIDER, then "ollama". EMBEDDING_MODEL,
// EMBEDDING_API_KEY, EMBEDDING_ENDPOINT, and EMBEDDING_DIMENSIONS override
// the per-backend defaults.
func NewFromEnv() (rag.Embedder, error) {
	backend := resolveBackend()

	switch backend {
	case "ollama":
		host := os.Getenv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	case "openai":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		baseURL := os.Getenv("EMBEDDING_ENDPOINT")
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai)", backend)
	}
}

// resolveBackend picks the embedding backend: EMBEDDING_PROVIDER when set,
// otherwise the chat MODEL_PROVIDER, otherwise ollama.
func resolveBackend() string {
	if b := os.Getenv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	return getEnvOrDefault("MODEL_PROVIDER", "ollama")
}

// getEnvOrDefault returns the named environment variable, or fallback when
// it is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt parses the named environment variable as an int, returning
// fallback when it is unset, empty, or unparseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
