// Package engine turns a user question into ranked evidence: it embeds the
// query, searches the user's vector namespace, assembles the retrieved
// chunks into a delimited context block, and scores how confident an answer
// grounded in that evidence can be.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdocs/askdocs-go/internal/logging"
	"github.com/askdocs/askdocs-go/internal/rag"
)

// ErrRetrieval wraps any embedding or search failure on the query path.
var ErrRetrieval = errors.New("retrieval failed")

// DefaultMaxResults is the number of chunks retrieved when the caller does
// not specify k.
const DefaultMaxResults = 10

// Source cites one retrieved chunk, in rank order.
type Source struct {
	// DocumentID is the source document.
	DocumentID string `json:"document_id"`
	// Filename is the source document's original filename.
	Filename string `json:"filename"`
	// Page is the 1-based source page for paged formats, 0 otherwise.
	Page int `json:"page,omitempty"`
	// Rank is the 1-based retrieval rank.
	Rank int `json:"rank"`
	// Distance is the vector distance; lower is closer.
	Distance float64 `json:"distance"`
}

// Result is the evidence bundle for one query.
type Result struct {
	// Context is the delimited section block fed to the generator.
	Context string
	// Sources cite the retrieved chunks in rank order.
	Sources []Source
	// Confidence is the answer confidence in [0.01, 1.0], or the
	// no-evidence default when nothing was retrieved.
	Confidence float64
}

// Engine retrieves and scores evidence from a user's vector namespace.
type Engine struct {
	embedder rag.Embedder
	store    rag.NamespaceStore
}

// New constructs an Engine. Both dependencies are required.
func New(embedder rag.Embedder, store rag.NamespaceStore) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("engine: embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: namespace store is required")
	}
	return &Engine{embedder: embedder, store: store}, nil
}

// Query embeds text, searches owner's namespace for the k closest chunks
// (optionally restricted to docIDs), and returns the assembled context,
// ranked sources, and confidence. k <= 0 selects DefaultMaxResults. An
// empty result set is not an error: the context is empty and the
// confidence is the no-evidence default.
func (e *Engine) Query(ctx context.Context, owner, text string, docIDs []string, k int) (*Result, error) {
	if k <= 0 {
		k = DefaultMaxResults
	}

	embeddings, err := e.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("engine: embed query: %w: %w", ErrRetrieval, err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("engine: embed query: %w: got %d embeddings for one input", ErrRetrieval, len(embeddings))
	}

	ns := rag.Namespace(owner)
	results, err := e.store.Search(ctx, ns, embeddings[0], docIDs, k)
	if err != nil {
		return nil, fmt.Errorf("engine: search %s: %w: %w", ns, ErrRetrieval, err)
	}

	distances := make([]float64, len(results))
	sources := make([]Source, len(results))
	for i, r := range results {
		distances[i] = r.Distance
		sources[i] = Source{
			DocumentID: r.DocumentID,
			Filename:   r.Meta.Filename,
			Page:       r.Meta.Page,
			Rank:       i + 1,
			Distance:   r.Distance,
		}
	}

	logging.FromContext(ctx).DebugContext(ctx, "retrieval complete",
		slog.String("namespace", ns),
		slog.Int("results", len(results)),
	)

	return &Result{
		Context:    formatContext(results),
		Sources:    sources,
		Confidence: Confidence(distances),
	}, nil
}

// formatContext renders the retrieved chunks as numbered sections, each
// headed by its provenance, in rank order.
func formatContext(results []rag.ScoredChunk) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "\n--- SECTION %d ---\n", i+1)
		fmt.Fprintf(&b, "Document ID: %s", r.DocumentID)
		if r.Meta.Filename != "" {
			fmt.Fprintf(&b, ", Source: %s", r.Meta.Filename)
		}
		if r.Meta.Page > 0 {
			fmt.Fprintf(&b, ", Page: %d", r.Meta.Page)
		}
		b.WriteString("\n\n")
		b.WriteString(r.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
