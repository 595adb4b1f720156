package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/askdocs/askdocs-go/internal/answer"
	"github.com/askdocs/askdocs-go/internal/chunker"
	"github.com/askdocs/askdocs-go/internal/ingest"
	"github.com/askdocs/askdocs-go/internal/metastore"
	"github.com/askdocs/askdocs-go/internal/rag"
)

// fakeEmbedder returns a unit vector per text.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeSynth records the retrieval scope it was asked for.
type fakeSynth struct {
	docIDs []string
	k      int
	ans    *answer.Answer
	err    error
}

func (f *fakeSynth) Query(_ context.Context, _, _ string, docIDs []string, k int) (*answer.Answer, error) {
	f.docIDs = docIDs
	f.k = k
	if f.err != nil {
		return nil, f.err
	}
	return f.ans, nil
}

// testEnv bundles a fully wired Service over in-memory stores.
type testEnv struct {
	svc     *Service
	meta    *metastore.Store
	vectors *rag.MemoryStore
	synth   *fakeSynth
	dir     string
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	meta, err := metastore.Open(":memory:", 0)
	if err != nil {
		t.Fatalf("open metastore: %v", err)
	}
	t.Cleanup(func() { _ = meta.Close() })

	vectors := rag.NewMemoryStore()
	pipeline, err := ingest.New(chunker.Splitter{ChunkSize: 200, Overlap: 40}, fakeEmbedder{}, vectors, meta, time.Minute, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	synth := &fakeSynth{ans: &answer.Answer{Answer: "canned", Confidence: 0.7}}
	if cfg.StorageDir == "" {
		cfg.StorageDir = t.TempDir()
	}
	svc, err := New(meta, vectors, pipeline, synth, cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{svc: svc, meta: meta, vectors: vectors, synth: synth, dir: cfg.StorageDir}
}

// waitForStatus polls until the document leaves processing or the deadline
// passes.
func waitForStatus(t *testing.T, env *testEnv, owner, docID string) *metastore.DocumentRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := env.meta.GetDocument(context.Background(), owner, docID)
		if err != nil {
			t.Fatalf("get document: %v", err)
		}
		if rec.Status != metastore.StatusProcessing {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("document never left processing")
	return nil
}

func Test_Service_UploadIngestsAndIndexes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	rec, err := env.svc.UploadDocument(ctx, "alice", "notes.txt", []byte("the onboarding checklist lives here"), []string{"hr"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Status != metastore.StatusProcessing || rec.DocID == "" {
		t.Errorf("upload should return a processing record: %+v", rec)
	}

	stored := filepath.Join(env.dir, rag.Namespace("alice"), rec.DocID+".txt")
	if _, err := os.Stat(stored); err != nil {
		t.Errorf("uploaded file not stored at %s: %v", stored, err)
	}

	final := waitForStatus(t, env, "alice", rec.DocID)
	if final.Status != metastore.StatusProcessed {
		t.Fatalf("want processed, got %s (%s)", final.Status, final.Error)
	}

	results, err := env.vectors.Search(ctx, rag.Namespace("alice"), []float32{1, 0, 0}, nil, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Error("ingestion should have indexed chunks")
	}
}

func Test_Service_UploadRejectsUnsupportedType(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	_, err := env.svc.UploadDocument(context.Background(), "alice", "deck.pptx", []byte("x"), nil)
	if !errors.Is(err, chunker.ErrUnsupportedFormat) {
		t.Errorf("want ErrUnsupportedFormat, got %v", err)
	}
}

func Test_Service_UploadRejectsOversize(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{MaxUploadBytes: 10})

	_, err := env.svc.UploadDocument(context.Background(), "alice", "big.txt", make([]byte, 11), nil)
	if err == nil {
		t.Error("oversize upload should be rejected")
	}
}

func Test_Service_UploadEnforcesDocumentCap(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{MaxDocuments: 1})
	ctx := context.Background()

	if _, err := env.svc.UploadDocument(ctx, "alice", "one.txt", []byte("first"), nil); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	_, err := env.svc.UploadDocument(ctx, "alice", "two.txt", []byte("second"), nil)
	if !errors.Is(err, metastore.ErrCapacity) {
		t.Errorf("want ErrCapacity, got %v", err)
	}
}

func Test_Service_UploadOwnerCannotEscapeStorageDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	storage := filepath.Join(root, "files")
	env := newTestEnv(t, Config{StorageDir: storage})
	ctx := context.Background()

	rec, err := env.svc.UploadDocument(ctx, "../outside", "notes.txt", []byte("stay inside"), nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	want := filepath.Join(storage, rag.Namespace("../outside"), rec.DocID+".txt")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("uploaded file not stored under the storage dir: %v", err)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasPrefix(path, storage+string(os.PathSeparator)) {
			t.Errorf("file written outside the storage dir: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func Test_Service_DeleteCascades(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	rec, err := env.svc.UploadDocument(ctx, "alice", "notes.txt", []byte("short lived document"), nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	waitForStatus(t, env, "alice", rec.DocID)

	if err := env.svc.DeleteDocument(ctx, "alice", rec.DocID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Metadata gone.
	if _, err := env.svc.GetDocument(ctx, "alice", rec.DocID); !errors.Is(err, metastore.ErrNotFound) {
		t.Errorf("record should be gone, got %v", err)
	}
	// Vectors gone: a search restricted to the document finds nothing.
	results, err := env.vectors.Search(ctx, rag.Namespace("alice"), []float32{1, 0, 0}, []string{rec.DocID}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("vectors should be gone, got %d results", len(results))
	}
	// File gone.
	if _, err := os.Stat(filepath.Join(env.dir, rag.Namespace("alice"), rec.DocID+".txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stored file should be gone, got %v", err)
	}
}

func Test_Service_QueryPassesExplicitScope(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	ans, err := env.svc.Query(context.Background(), "alice", "question?", QueryOptions{
		DocumentIDs: []string{"doc-1", "doc-2"},
		MaxResults:  7,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ans.Answer != "canned" {
		t.Errorf("unexpected answer: %q", ans.Answer)
	}
	if len(env.synth.docIDs) != 2 || env.synth.k != 7 {
		t.Errorf("scope not passed through: ids=%v k=%d", env.synth.docIDs, env.synth.k)
	}
}

func Test_Service_QueryResolvesFilterToDocIDs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	tagged, err := env.svc.UploadDocument(ctx, "alice", "report.txt", []byte("tagged"), []string{"finance"})
	if err != nil {
		t.Fatalf("upload tagged: %v", err)
	}
	if _, err := env.svc.UploadDocument(ctx, "alice", "other.txt", []byte("untagged"), nil); err != nil {
		t.Fatalf("upload untagged: %v", err)
	}

	if _, err := env.svc.Query(ctx, "alice", "question?", QueryOptions{Tags: []string{"finance"}}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(env.synth.docIDs) != 1 || env.synth.docIDs[0] != tagged.DocID {
		t.Errorf("tag filter should resolve to the tagged document, got %v", env.synth.docIDs)
	}
}

func Test_Service_QueryResolvesDateRange(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	older := &metastore.DocumentRecord{
		DocID: "doc-old", Owner: "alice", Filename: "old.txt", FileType: "txt",
		UploadTime: time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), Status: metastore.StatusProcessed,
	}
	newer := &metastore.DocumentRecord{
		DocID: "doc-new", Owner: "alice", Filename: "new.txt", FileType: "txt",
		UploadTime: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Status: metastore.StatusProcessed,
	}
	for _, rec := range []*metastore.DocumentRecord{older, newer} {
		if err := env.meta.CreateDocument(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", rec.DocID, err)
		}
	}
	boundary := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := env.svc.Query(ctx, "alice", "question?", QueryOptions{UploadedAfter: boundary}); err != nil {
		t.Fatalf("query after: %v", err)
	}
	if len(env.synth.docIDs) != 1 || env.synth.docIDs[0] != "doc-new" {
		t.Errorf("lower bound should keep only the newer document, got %v", env.synth.docIDs)
	}

	if _, err := env.svc.Query(ctx, "alice", "question?", QueryOptions{UploadedBefore: boundary}); err != nil {
		t.Fatalf("query before: %v", err)
	}
	if len(env.synth.docIDs) != 1 || env.synth.docIDs[0] != "doc-old" {
		t.Errorf("upper bound should keep only the older document, got %v", env.synth.docIDs)
	}
}

func Test_Service_QueryFilterMatchingNothingStaysRestricted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	if _, err := env.svc.Query(context.Background(), "alice", "question?", QueryOptions{Tags: []string{"no-such-tag"}}); err != nil {
		t.Fatalf("query: %v", err)
	}
	// The scope must stay restrictive; an unrestricted search would leak
	// documents the filter excluded.
	if len(env.synth.docIDs) == 0 {
		t.Error("empty filter resolution must not widen to an unrestricted search")
	}
}

func Test_Service_QueryValidatesInput(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})

	if _, err := env.svc.Query(context.Background(), "", "q", QueryOptions{}); err == nil {
		t.Error("empty owner should be rejected")
	}
	if _, err := env.svc.Query(context.Background(), "alice", "", QueryOptions{}); err == nil {
		t.Error("empty query text should be rejected")
	}
}

func Test_Service_ChatLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	chat, err := env.svc.CreateChat(ctx, "alice", "my chat", nil)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	if _, err := env.svc.AppendMessage(ctx, "alice", chat.ChatID, metastore.Message{Sender: metastore.SenderUser, Text: "hi"}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	got, err := env.svc.GetChat(ctx, "alice", chat.ChatID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Errorf("want 1 message, got %d", len(got.Messages))
	}

	chats, err := env.svc.ListChats(ctx, "alice")
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 1 {
		t.Errorf("want 1 chat, got %d", len(chats))
	}

	if err := env.svc.DeleteChat(ctx, "alice", chat.ChatID); err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	if _, err := env.svc.GetChat(ctx, "alice", chat.ChatID); !errors.Is(err, metastore.ErrNotFound) {
		t.Errorf("chat should be gone, got %v", err)
	}
}
