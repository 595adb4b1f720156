package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/askdocs/askdocs-go/internal/chunker"
	"github.com/askdocs/askdocs-go/internal/rag"
)

// fakeEmbedder embeds every text as a unit vector, optionally failing after
// failAfter successful calls.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	failAfter int // 0 means never fail
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, errors.New("embedding service offline")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeMeta captures the terminal transition the pipeline writes.
type fakeMeta struct {
	mu        sync.Mutex
	processed map[string]int    // docID -> numPages
	failed    map[string]string // docID -> cause
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{processed: map[string]int{}, failed: map[string]string{}}
}

func (f *fakeMeta) MarkProcessed(_ context.Context, _, docID string, numPages int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[docID] = numPages
	return nil
}

func (f *fakeMeta) MarkFailed(_ context.Context, _, docID, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[docID] = cause
	return nil
}

func newTestPipeline(t *testing.T, emb *fakeEmbedder, meta *fakeMeta, store rag.NamespaceStore) *Pipeline {
	t.Helper()
	p, err := New(chunker.Splitter{ChunkSize: 100, Overlap: 20}, emb, store, meta, time.Minute, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func Test_Pipeline_ProcessesTextDocument(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore()
	meta := newFakeMeta()
	p := newTestPipeline(t, &fakeEmbedder{}, meta, store)

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)
	err := p.Process(context.Background(), Job{
		Owner: "alice", DocID: "doc-1", Filename: "notes.txt", FileType: "txt", Data: []byte(text),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if pages, ok := meta.processed["doc-1"]; !ok || pages != 0 {
		t.Errorf("want processed with 0 pages, got %+v", meta.processed)
	}
	if len(meta.failed) != 0 {
		t.Errorf("no failure expected, got %+v", meta.failed)
	}

	results, err := store.Search(context.Background(), rag.Namespace("alice"), []float32{1, 0, 0}, nil, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("chunks should be indexed")
	}
	for _, r := range results {
		if r.DocumentID != "doc-1" || r.Meta.Filename != "notes.txt" {
			t.Errorf("chunk payload wrong: %+v", r)
		}
	}
}

func Test_Pipeline_UnsupportedFormatFailsDocument(t *testing.T) {
	t.Parallel()
	meta := newFakeMeta()
	p := newTestPipeline(t, &fakeEmbedder{}, meta, rag.NewMemoryStore())

	err := p.Process(context.Background(), Job{
		Owner: "alice", DocID: "doc-1", Filename: "deck.pptx", FileType: "pptx", Data: []byte("x"),
	})
	if !errors.Is(err, chunker.ErrUnsupportedFormat) {
		t.Fatalf("want ErrUnsupportedFormat, got %v", err)
	}

	cause, ok := meta.failed["doc-1"]
	if !ok || cause == "" {
		t.Errorf("document should be failed with a cause, got %+v", meta.failed)
	}
	if len(meta.processed) != 0 {
		t.Errorf("document must not be processed: %+v", meta.processed)
	}
}

func Test_Pipeline_EmbedFailureLeavesEarlierChunks(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore()
	meta := newFakeMeta()
	// Two paragraphs well over the chunk size produce several chunks; fail
	// after the first embed call.
	p := newTestPipeline(t, &fakeEmbedder{failAfter: 1}, meta, store)

	text := strings.Repeat("alpha beta gamma delta. ", 30)
	err := p.Process(context.Background(), Job{
		Owner: "alice", DocID: "doc-1", Filename: "notes.txt", FileType: "txt", Data: []byte(text),
	})
	if !errors.Is(err, rag.ErrEmbedding) {
		t.Fatalf("want ErrEmbedding, got %v", err)
	}

	if _, ok := meta.failed["doc-1"]; !ok {
		t.Errorf("document should be failed: %+v", meta.failed)
	}

	// The chunk embedded before the failure stays indexed as a harmless
	// orphan; delete removes it later.
	results, err := store.Search(context.Background(), rag.Namespace("alice"), []float32{1, 0, 0}, nil, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("want exactly the one pre-failure chunk, got %d", len(results))
	}
}

func Test_Pipeline_CSVDocument(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore()
	meta := newFakeMeta()
	p := newTestPipeline(t, &fakeEmbedder{}, meta, store)

	csv := "name,age\nalice,30\nbob,41\n"
	err := p.Process(context.Background(), Job{
		Owner: "alice", DocID: "doc-csv", Filename: "people.csv", FileType: "csv", Data: []byte(csv),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	results, err := store.Search(context.Background(), rag.Namespace("alice"), []float32{1, 0, 0}, nil, 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// One summary chunk plus one row batch.
	if len(results) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(results))
	}
	types := map[string]bool{}
	for _, r := range results {
		types[r.Meta.ContentType] = true
	}
	if !types["csv_summary"] || !types["csv_data"] {
		t.Errorf("want summary and data chunks, got %v", types)
	}
}

func Test_Pipeline_StartDetachesFromRequestContext(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore()
	meta := newFakeMeta()
	p := newTestPipeline(t, &fakeEmbedder{}, meta, store)

	// Cancel the request context immediately; the detached job must still
	// run to completion.
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, Job{
		Owner: "alice", DocID: "doc-1", Filename: "notes.txt", FileType: "txt", Data: []byte("tiny document"),
	})
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		meta.mu.Lock()
		_, done := meta.processed["doc-1"]
		meta.mu.Unlock()
		if done {
			return
		}
		select {
		case <-deadline:
			t.Fatal("detached job did not complete")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func Test_Pipeline_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(chunker.Splitter{}, nil, rag.NewMemoryStore(), newFakeMeta(), 0, nil); err == nil {
		t.Error("nil embedder should be rejected")
	}
	if _, err := New(chunker.Splitter{}, &fakeEmbedder{}, nil, newFakeMeta(), 0, nil); err == nil {
		t.Error("nil store should be rejected")
	}
	if _, err := New(chunker.Splitter{}, &fakeEmbedder{}, rag.NewMemoryStore(), nil, 0, nil); err == nil {
		t.Error("nil status writer should be rejected")
	}
}
