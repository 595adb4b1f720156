// Package service is the application facade: it owns the document
// lifecycle (upload, list, tag, delete), the chat lifecycle, and the query
// path, wiring the metadata store, vector namespaces, ingestion pipeline,
// and answer synthesizer together. All state flows through explicitly
// injected dependencies; the process entry point owns their lifecycles.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs-go/internal/answer"
	"github.com/askdocs/askdocs-go/internal/chunker"
	"github.com/askdocs/askdocs-go/internal/ingest"
	"github.com/askdocs/askdocs-go/internal/logging"
	"github.com/askdocs/askdocs-go/internal/metastore"
	"github.com/askdocs/askdocs-go/internal/rag"
)

// DefaultMaxUploadBytes caps uploads at 50 MiB.
const DefaultMaxUploadBytes = 50 << 20

// supportedTypes are the file types the chunker has adapters for.
var supportedTypes = map[string]bool{
	"pdf": true, "docx": true, "doc": true, "txt": true, "csv": true,
}

// querier is the slice of the answer synthesizer the service consumes.
type querier interface {
	Query(ctx context.Context, owner, text string, docIDs []string, k int) (*answer.Answer, error)
}

// Config holds the service-level limits and storage location.
type Config struct {
	// StorageDir is the root directory for uploaded files, one
	// subdirectory per owner.
	StorageDir string

	// MaxUploadBytes rejects larger uploads. <= 0 selects
	// DefaultMaxUploadBytes.
	MaxUploadBytes int64

	// MaxDocuments caps the number of documents per owner. <= 0 means
	// unlimited.
	MaxDocuments int
}

// Service is the application facade. Safe for concurrent use.
type Service struct {
	meta     *metastore.Store
	vectors  rag.NamespaceStore
	pipeline *ingest.Pipeline
	synth    querier
	cfg      Config
}

// New constructs a Service. All dependencies are required.
func New(meta *metastore.Store, vectors rag.NamespaceStore, pipeline *ingest.Pipeline, synth querier, cfg Config) (*Service, error) {
	if meta == nil {
		return nil, fmt.Errorf("service: metadata store is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("service: vector store is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("service: ingestion pipeline is required")
	}
	if synth == nil {
		return nil, fmt.Errorf("service: synthesizer is required")
	}
	if cfg.StorageDir == "" {
		return nil, fmt.Errorf("service: storage dir is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Service{meta: meta, vectors: vectors, pipeline: pipeline, synth: synth, cfg: cfg}, nil
}

// UploadDocument validates and stores an upload, creates its processing
// record, and spawns ingestion. The returned record has status processing;
// completion is observed by polling the record.
func (s *Service) UploadDocument(ctx context.Context, owner, filename string, data []byte, tags []string) (*metastore.DocumentRecord, error) {
	if owner == "" {
		return nil, fmt.Errorf("service: owner is required")
	}
	if filename == "" {
		return nil, fmt.Errorf("service: filename is required")
	}

	fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !supportedTypes[fileType] {
		return nil, fmt.Errorf("service: upload %s: %w: %q", filename, chunker.ErrUnsupportedFormat, fileType)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("service: upload %s: %d bytes exceeds the %d byte limit", filename, len(data), s.cfg.MaxUploadBytes)
	}
	if s.cfg.MaxDocuments > 0 {
		n, err := s.meta.CountDocuments(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("service: upload %s: %w", filename, err)
		}
		if n >= s.cfg.MaxDocuments {
			return nil, fmt.Errorf("service: upload %s: %w: %d documents", filename, metastore.ErrCapacity, n)
		}
	}

	docID := uuid.NewString()
	path := s.documentPath(owner, docID, fileType)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("service: upload %s: create owner dir: %w", filename, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("service: upload %s: store file: %w", filename, err)
	}

	rec := &metastore.DocumentRecord{
		DocID:      docID,
		Owner:      owner,
		Filename:   filename,
		FileType:   fileType,
		UploadTime: time.Now().UTC(),
		SizeBytes:  int64(len(data)),
		Tags:       tags,
		Status:     metastore.StatusProcessing,
	}
	if err := s.meta.CreateDocument(ctx, rec); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("service: upload %s: %w", filename, err)
	}

	s.pipeline.Start(ctx, ingest.Job{
		Owner:    owner,
		DocID:    docID,
		Filename: filename,
		FileType: fileType,
		Data:     data,
	})

	logging.FromContext(ctx).InfoContext(ctx, "document accepted",
		slog.String("owner", owner),
		slog.String("doc_id", docID),
		slog.String("file_type", fileType),
		slog.Int("size_bytes", len(data)),
	)
	return rec, nil
}

// GetDocument returns one document record.
func (s *Service) GetDocument(ctx context.Context, owner, docID string) (*metastore.DocumentRecord, error) {
	return s.meta.GetDocument(ctx, owner, docID)
}

// ListDocuments returns the owner's documents, optionally restricted to
// those carrying every tag in tagFilter.
func (s *Service) ListDocuments(ctx context.Context, owner string, tagFilter []string) ([]*metastore.DocumentRecord, error) {
	return s.meta.ListDocuments(ctx, owner, tagFilter)
}

// UpdateDocumentTags replaces the document's tag set.
func (s *Service) UpdateDocumentTags(ctx context.Context, owner, docID string, tags []string) (*metastore.DocumentRecord, error) {
	return s.meta.UpdateDocumentTags(ctx, owner, docID, tags)
}

// DeleteDocument removes a document and everything derived from it, in
// dependency order: indexed vectors first, then the metadata record, then
// the stored file. A later step failing after an earlier one succeeded is
// reported, never swallowed; retrying the delete is safe.
func (s *Service) DeleteDocument(ctx context.Context, owner, docID string) error {
	rec, err := s.meta.GetDocument(ctx, owner, docID)
	if err != nil {
		return err
	}

	ns := rag.Namespace(owner)
	if err := s.vectors.DeleteDocument(ctx, ns, docID); err != nil {
		return fmt.Errorf("service: delete %s: remove vectors: %w", docID, err)
	}
	if err := s.meta.DeleteDocument(ctx, owner, docID); err != nil {
		return fmt.Errorf("service: delete %s: vectors removed but metadata remains: %w", docID, err)
	}
	path := s.documentPath(owner, docID, rec.FileType)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("service: delete %s: record removed but stored file remains at %s: %w", docID, path, err)
	}

	logging.FromContext(ctx).InfoContext(ctx, "document deleted",
		slog.String("owner", owner),
		slog.String("doc_id", docID),
	)
	return nil
}

// documentPath is where an owner's uploaded file lives on disk. The owner
// directory reuses the namespace encoding, which emits no path separators
// or dots, so an owner name can never address a path outside StorageDir.
func (s *Service) documentPath(owner, docID, fileType string) string {
	return filepath.Join(s.cfg.StorageDir, rag.Namespace(owner), docID+"."+fileType)
}
