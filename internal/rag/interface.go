// Package rag defines the contracts between the document Q&A core and its
// retrieval-augmented generation collaborators: text embedding, answer
// generation, and the per-user vector index. Concrete implementations
// (Qdrant, in-memory, Ollama, OpenAI) satisfy these interfaces so the
// pipeline and engine never depend on a specific backend.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmbedding marks a failure of the embedding capability. Callers detect
// it with errors.Is after any amount of wrapping.
var ErrEmbedding = errors.New("embedding failed")

// ErrIndex marks a failure of the vector index (add, search, or delete).
var ErrIndex = errors.New("vector index error")

// ErrGeneration marks a failure of the answer generation capability.
var ErrGeneration = errors.New("generation failed")

// ChunkMeta is the positional metadata carried by every indexed chunk.
type ChunkMeta struct {
	// Filename is the original upload filename of the source document.
	Filename string

	// Page is the 1-based page number for paged formats. Zero means the
	// source format has no page structure.
	Page int

	// RowRange identifies the source rows for tabular batches (e.g. "51-100").
	// Empty for non-tabular content.
	RowRange string

	// ContentType classifies the chunk ("text", "pdf_page", "csv_summary",
	// "csv_data", "docx").
	ContentType string

	// Sequence is the chunk's position within its section. Numbering
	// restarts per page for paged formats.
	Sequence int
}

// Chunk is a unit of document text ready to be indexed: the text, its
// pre-computed embedding, and enough metadata to cite it later.
type Chunk struct {
	// ID is unique within the owner's namespace. Re-adding the same ID
	// replaces the stored chunk.
	ID string

	// DocumentID is the owning document. Deleting the document removes
	// every chunk carrying this ID.
	DocumentID string

	// Text is the raw chunk text.
	Text string

	// Embedding is the dense vector for Text.
	Embedding []float32

	// Meta is the positional metadata for citations.
	Meta ChunkMeta
}

// ScoredChunk is a search hit: the chunk content plus its distance from the
// query embedding. Lower distance means more similar.
type ScoredChunk struct {
	// DocumentID is the owning document of the matched chunk.
	DocumentID string

	// Text is the matched chunk text.
	Text string

	// Meta is the positional metadata of the matched chunk.
	Meta ChunkMeta

	// Distance is the query-to-chunk distance in [0,1] for cosine-backed
	// stores. Lower is more similar.
	Distance float64
}

// NamespaceStore is the per-user vector index contract. A namespace is the
// isolation boundary: chunks added under one namespace are never visible to
// a search under another. Implementations must be safe for concurrent use.
type NamespaceStore interface {
	// AddChunk stores or replaces a chunk in the given namespace.
	// Idempotent on Chunk.ID.
	AddChunk(ctx context.Context, ns string, c Chunk) error

	// Search returns at most k chunks from the namespace ordered by
	// ascending distance, ties broken by insertion order. A non-empty
	// filterDocIDs restricts results to chunks of those documents; an
	// empty candidate set yields an empty slice, not an error.
	Search(ctx context.Context, ns string, queryEmbedding []float32, filterDocIDs []string, k int) ([]ScoredChunk, error)

	// DeleteDocument removes every chunk of the given document from the
	// namespace. Subsequent searches never observe a partially deleted
	// document.
	DeleteDocument(ctx context.Context, ns, docID string) error

	// Ping reports whether the backing index is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings. The returned slice
// is parallel to the input. Deterministic for identical input and model.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer for a fully rendered prompt. May be
// non-deterministic. Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Namespace derives the vector namespace for an owner. Letters, digits,
// and hyphens pass through; every other byte, underscore included, is
// escaped as "_" plus two hex digits. The encoding is injective, so two
// distinct owners can never share a namespace, and emits only
// collection-name and filesystem safe characters.
func Namespace(owner string) string {
	var b strings.Builder
	b.WriteString("user_")
	for i := 0; i < len(owner); i++ {
		c := owner[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}
