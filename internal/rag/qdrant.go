package rag

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant-backed NamespaceStore.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// VectorSize is the dimensionality of the embeddings stored per namespace.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements NamespaceStore backed by a Qdrant instance.
// Each namespace maps to its own Qdrant collection, created on first use,
// so cross-user isolation is enforced by the index itself rather than by
// a payload filter.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// mu guards known.
	mu sync.Mutex

	// known caches namespaces whose collection is confirmed to exist.
	known map[string]bool
}

// NewQdrantStore creates a QdrantStore. Collections are created lazily per
// namespace, so this only establishes the gRPC connection.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client, cfg: cfg, known: make(map[string]bool)}, nil
}

// ensureCollection creates the collection backing ns if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, ns string) error {
	s.mu.Lock()
	ok := s.known[ns]
	s.mu.Unlock()
	if ok {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, ns)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection %q: %w", ns, err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: ns,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", ns, err)
		}
	}

	s.mu.Lock()
	s.known[ns] = true
	s.mu.Unlock()
	return nil
}

// pointID maps a chunk ID to a deterministic Qdrant point UUID so that
// re-adding the same chunk ID replaces the stored point.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String())
}

// AddChunk upserts a single chunk into the namespace's collection.
func (s *QdrantStore) AddChunk(ctx context.Context, ns string, c Chunk) error {
	if err := s.ensureCollection(ctx, ns); err != nil {
		return fmt.Errorf("%w: %w", ErrIndex, err)
	}

	payload := map[string]any{
		"chunk_id":     c.ID,
		"doc_id":       c.DocumentID,
		"text":         c.Text,
		"filename":     c.Meta.Filename,
		"content_type": c.Meta.ContentType,
		"sequence":     strconv.Itoa(c.Meta.Sequence),
	}
	if c.Meta.Page > 0 {
		payload["page"] = strconv.Itoa(c.Meta.Page)
	}
	if c.Meta.RowRange != "" {
		payload["row_range"] = c.Meta.RowRange
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ns,
		Points: []*qdrant.PointStruct{{
			Id:      pointID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant upsert: %w", ErrIndex, err)
	}
	return nil
}

// Search performs a cosine similarity search within the namespace and
// converts Qdrant's similarity score to a distance (1 - score) so that
// lower always means closer.
func (s *QdrantStore) Search(ctx context.Context, ns string, queryEmbedding []float32, filterDocIDs []string, k int) ([]ScoredChunk, error) {
	if err := s.ensureCollection(ctx, ns); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndex, err)
	}

	limit := uint64(k) //nolint:gosec // k is a small positive result count
	query := &qdrant.QueryPoints{
		CollectionName: ns,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filterDocIDs) > 0 {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("doc_id", filterDocIDs...),
			},
		}
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant search: %w", ErrIndex, err)
	}

	hits := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		hit := ScoredChunk{Distance: 1 - float64(r.Score)}
		if p := r.Payload; p != nil {
			hit.DocumentID = p["doc_id"].GetStringValue()
			hit.Text = p["text"].GetStringValue()
			hit.Meta = ChunkMeta{
				Filename:    p["filename"].GetStringValue(),
				ContentType: p["content_type"].GetStringValue(),
				RowRange:    p["row_range"].GetStringValue(),
			}
			if v := p["page"].GetStringValue(); v != "" {
				hit.Meta.Page, _ = strconv.Atoi(v)
			}
			if v := p["sequence"].GetStringValue(); v != "" {
				hit.Meta.Sequence, _ = strconv.Atoi(v)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteDocument removes every point whose doc_id payload matches docID.
// Qdrant applies the filter delete atomically per collection, so a query
// after this call never sees a partially deleted document.
func (s *QdrantStore) DeleteDocument(ctx context.Context, ns, docID string) error {
	if err := s.ensureCollection(ctx, ns); err != nil {
		return fmt.Errorf("%w: %w", ErrIndex, err)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: ns,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeyword("doc_id", docID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant delete document %s: %w", ErrIndex, docID, err)
	}
	return nil
}

// Ping calls the Qdrant HealthCheck RPC. Used by the server's readiness probe.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
