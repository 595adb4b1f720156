package rag

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process NamespaceStore using brute-force cosine
// similarity. It is the development and test backend; production deployments
// use QdrantStore. Safe for concurrent use.
type MemoryStore struct {
	// mu guards spaces.
	mu sync.RWMutex

	// spaces maps namespace to its chunks in insertion order.
	spaces map[string][]Chunk
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{spaces: make(map[string][]Chunk)}
}

// AddChunk stores c in the namespace, replacing any chunk with the same ID
// while preserving its original insertion position.
func (s *MemoryStore) AddChunk(_ context.Context, ns string, c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.spaces[ns]
	for i := range chunks {
		if chunks[i].ID == c.ID {
			chunks[i] = c
			return nil
		}
	}
	s.spaces[ns] = append(chunks, c)
	return nil
}

// Search returns at most k chunks ordered by ascending cosine distance,
// ties broken by insertion order.
func (s *MemoryStore) Search(_ context.Context, ns string, queryEmbedding []float32, filterDocIDs []string, k int) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allow map[string]bool
	if len(filterDocIDs) > 0 {
		allow = make(map[string]bool, len(filterDocIDs))
		for _, id := range filterDocIDs {
			allow[id] = true
		}
	}

	hits := make([]ScoredChunk, 0, k)
	for _, c := range s.spaces[ns] {
		if allow != nil && !allow[c.DocumentID] {
			continue
		}
		hits = append(hits, ScoredChunk{
			DocumentID: c.DocumentID,
			Text:       c.Text,
			Meta:       c.Meta,
			Distance:   cosineDistance(queryEmbedding, c.Embedding),
		})
	}

	// Stable sort keeps insertion order for equal distances.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteDocument removes every chunk of docID from the namespace in one
// critical section, so concurrent searches see either all chunks or none.
func (s *MemoryStore) DeleteDocument(_ context.Context, ns, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.spaces[ns]
	kept := chunks[:0]
	for _, c := range chunks {
		if c.DocumentID != docID {
			kept = append(kept, c)
		}
	}
	s.spaces[ns] = kept
	return nil
}

// Ping always succeeds: the store lives in process memory.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close releases all stored chunks.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces = make(map[string][]Chunk)
	return nil
}

// cosineDistance returns 1 - cosine similarity, clamped to [0,1] so that
// identical vectors yield 0 and orthogonal vectors yield 1.
func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := range n {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}
