package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/askdocs/askdocs-go/internal/embedder"
	"github.com/askdocs/askdocs-go/internal/ingest"
	"github.com/askdocs/askdocs-go/internal/logging"
	"github.com/askdocs/askdocs-go/internal/metastore"
)

// NewIngestCmd constructs the `askdocs ingest` command, which indexes local
// files into a user's namespace without going through the HTTP API.
func NewIngestCmd() *cobra.Command {
	var owner string
	var tags []string

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest local documents into a user's search namespace",
		Long: `Chunk, embed, and index local files into the vector store, and record
their metadata so they are queryable through the API afterwards.

Unlike an API upload, ingestion runs synchronously: the command exits only
after every file has been fully indexed or has failed.

Supported formats: pdf, docx, doc, txt, csv.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (omit to use the in-memory store)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  askdocs ingest --owner alice report.pdf
  askdocs ingest --owner bob --tags finance,q3 statements.csv notes.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if owner == "" {
				return fmt.Errorf("ingest: --owner is required")
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}

			vectors, err := buildVectorStore(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = vectors.Close() }()

			dbPath, err := resolveDBPath()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			meta, err := metastore.Open(dbPath, getEnvInt("ASKDOCS_MAX_CHATS", 0))
			if err != nil {
				return fmt.Errorf("ingest: failed to open metadata store: %w", err)
			}
			defer func() { _ = meta.Close() }()

			pipeline, err := ingest.New(buildSplitter(), emb, vectors, meta, 0, nil)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			failed := 0
			for _, path := range args {
				if err := ingestFile(ctx, log, meta, pipeline, owner, path, tags); err != nil {
					log.Error("ingest failed",
						slog.String("file", path),
						slog.Any("error", err),
					)
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d files failed", failed, len(args))
			}
			log.Info("ingestion complete", slog.Int("files", len(args)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Username whose namespace receives the documents (required)")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "Tags to attach to every ingested document")

	return cmd
}

// ingestFile records one local file in the metadata store and indexes it
// synchronously.
func ingestFile(ctx context.Context, log *slog.Logger, meta *metastore.Store, pipeline *ingest.Pipeline, owner, path string, tags []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	filename := filepath.Base(path)
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")

	rec := &metastore.DocumentRecord{
		DocID:      uuid.NewString(),
		Owner:      owner,
		Filename:   filename,
		FileType:   fileType,
		UploadTime: time.Now().UTC(),
		SizeBytes:  int64(len(data)),
		Tags:       tags,
		Status:     metastore.StatusProcessing,
	}
	if err := meta.CreateDocument(ctx, rec); err != nil {
		return fmt.Errorf("record %s: %w", filename, err)
	}

	log.Info("ingesting",
		slog.String("file", filename),
		slog.String("doc_id", rec.DocID),
		slog.Int64("size_bytes", rec.SizeBytes),
	)

	return pipeline.Process(ctx, ingest.Job{
		Owner:    owner,
		DocID:    rec.DocID,
		Filename: filename,
		FileType: fileType,
		Data:     data,
	})
}
