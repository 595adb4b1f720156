// Package ingest runs the per-document indexing pipeline: extract text for
// the file's format, split it into chunks, embed each chunk, and add it to
// the owner's vector namespace. A document moves through a linear state
// machine, processing to processed or error, and never leaves a terminal
// state.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/askdocs/askdocs-go/internal/chunker"
	"github.com/askdocs/askdocs-go/internal/logging"
	"github.com/askdocs/askdocs-go/internal/rag"
)

// DefaultBudget bounds the wall-clock time one document may spend in the
// pipeline before being failed.
const DefaultBudget = 10 * time.Minute

// statusWriter is the slice of the metadata store the pipeline consumes:
// exactly the two terminal transitions.
type statusWriter interface {
	MarkProcessed(ctx context.Context, owner, docID string, numPages int) error
	MarkFailed(ctx context.Context, owner, docID, cause string) error
}

// Job is one document to index.
type Job struct {
	// Owner is the username whose namespace receives the chunks.
	Owner string
	// DocID identifies the document record being processed.
	DocID string
	// Filename is the original upload filename, carried into chunk payloads.
	Filename string
	// FileType is the lowercased extension the format adapter dispatches on.
	FileType string
	// Data is the raw file content.
	Data []byte
}

// Pipeline indexes documents. Safe for concurrent use; each job is
// independent.
type Pipeline struct {
	splitter chunker.Splitter
	embedder rag.Embedder
	store    rag.NamespaceStore
	meta     statusWriter
	budget   time.Duration
	metrics  *Metrics
}

// New constructs a Pipeline. Embedder, store, and meta are required; a
// budget <= 0 selects DefaultBudget and a nil metrics disables
// instrumentation.
func New(splitter chunker.Splitter, embedder rag.Embedder, store rag.NamespaceStore, meta statusWriter, budget time.Duration, metrics *Metrics) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ingest: namespace store is required")
	}
	if meta == nil {
		return nil, fmt.Errorf("ingest: status writer is required")
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Pipeline{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		meta:     meta,
		budget:   budget,
		metrics:  metrics,
	}, nil
}

// Start runs the job in a detached goroutine. The pipeline outlives the
// upload request that spawned it: cancellation of ctx does not abort the
// job, only the wall-clock budget does. Failures surface on the document
// record, never to the caller.
func (p *Pipeline) Start(ctx context.Context, job Job) {
	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, p.budget)
		defer cancel()
		p.Process(ctx, job)
	}()
}

// Process runs the job synchronously and records the terminal state on the
// document. The returned error mirrors what was written to the record, for
// callers (the CLI ingest command) that want it directly.
func (p *Pipeline) Process(ctx context.Context, job Job) error {
	log := logging.FromContext(ctx).With(
		slog.String("owner", job.Owner),
		slog.String("doc_id", job.DocID),
		slog.String("file_type", job.FileType),
	)
	start := time.Now()
	defer p.metrics.trackInFlight()()

	numPages, err := p.index(ctx, job)
	if err != nil {
		log.ErrorContext(ctx, "ingestion failed", slog.String("error", err.Error()))
		if mErr := p.meta.MarkFailed(ctx, job.Owner, job.DocID, err.Error()); mErr != nil {
			log.ErrorContext(ctx, "could not record ingestion failure", slog.String("error", mErr.Error()))
		}
		p.metrics.observeDocument("error", time.Since(start))
		return err
	}

	if err := p.meta.MarkProcessed(ctx, job.Owner, job.DocID, numPages); err != nil {
		log.ErrorContext(ctx, "could not record ingestion success", slog.String("error", err.Error()))
		p.metrics.observeDocument("error", time.Since(start))
		return err
	}

	log.InfoContext(ctx, "ingestion complete",
		slog.Int("pages", numPages),
		slog.Duration("elapsed", time.Since(start)),
	)
	p.metrics.observeDocument("processed", time.Since(start))
	return nil
}

// index extracts, chunks, embeds, and stores the document, returning its
// page count. Chunks already indexed before a failure stay indexed: they
// are harmless orphans removed by document delete.
func (p *Pipeline) index(ctx context.Context, job Job) (int, error) {
	chunks, numPages, err := p.splitter.Extract(job.Filename, job.FileType, job.Data)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", job.Filename, err)
	}

	ns := rag.Namespace(job.Owner)
	for i, c := range chunks {
		embeddings, err := p.embedder.Embed(ctx, []string{c.Text})
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %d: %w: %w", i+1, len(chunks), rag.ErrEmbedding, err)
		}
		if len(embeddings) != 1 {
			return 0, fmt.Errorf("embed chunk %d: %w: got %d embeddings for one input", i+1, rag.ErrEmbedding, len(embeddings))
		}

		err = p.store.AddChunk(ctx, ns, rag.Chunk{
			ID:         job.DocID + "_" + strconv.Itoa(i),
			DocumentID: job.DocID,
			Text:       c.Text,
			Embedding:  embeddings[0],
			Meta: rag.ChunkMeta{
				Filename:    job.Filename,
				Page:        c.Meta.Page,
				RowRange:    c.Meta.RowRange,
				ContentType: c.Meta.ContentType,
				Sequence:    c.Meta.Sequence,
			},
		})
		if err != nil {
			return 0, fmt.Errorf("index chunk %d of %d: %w: %w", i+1, len(chunks), rag.ErrIndex, err)
		}
		p.metrics.addChunks(1)
	}

	return numPages, nil
}
