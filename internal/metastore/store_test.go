package metastore

import (
	"context"
	"errors"
	"testing"
	"time"
)

// openTestStore opens an in-memory Store for use in tests.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", 0)
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newTestDocument builds a minimal processing-state record for owner.
func newTestDocument(owner, docID string, tags ...string) *DocumentRecord {
	return &DocumentRecord{
		DocID:      docID,
		Owner:      owner,
		Filename:   docID + ".pdf",
		FileType:   "pdf",
		UploadTime: time.Now().UTC(),
		SizeBytes:  1024,
		Tags:       tags,
		Status:     StatusProcessing,
	}
}

func Test_Store_CreateAndGetDocument(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateDocument(ctx, newTestDocument("alice", "doc-1", "work")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetDocument(ctx, "alice", "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Filename != "doc-1.pdf" || got.Status != StatusProcessing {
		t.Errorf("unexpected record: %+v", got)
	}

	if err := s.CreateDocument(ctx, newTestDocument("alice", "doc-1")); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate create: want ErrExists, got %v", err)
	}
}

func Test_Store_GetDocumentNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.GetDocument(context.Background(), "alice", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func Test_Store_CorruptedDocumentIsNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateDocument(ctx, newTestDocument("alice", "doc-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE documents SET payload = '{broken' WHERE doc_id = 'doc-1'`); err != nil {
		t.Fatalf("corrupt payload: %v", err)
	}

	_, err := s.GetDocument(ctx, "alice", "doc-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("corrupted document read: want ErrNotFound, got %v", err)
	}
}

func Test_Store_ListDocumentsTagFilterAndOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	older := newTestDocument("alice", "doc-old", "work", "q3")
	older.UploadTime = time.Now().UTC().Add(-time.Hour)
	newer := newTestDocument("alice", "doc-new", "work")
	for _, rec := range []*DocumentRecord{older, newer} {
		if err := s.CreateDocument(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", rec.DocID, err)
		}
	}
	if err := s.CreateDocument(ctx, newTestDocument("bob", "doc-bob", "work")); err != nil {
		t.Fatalf("create bob doc: %v", err)
	}

	all, err := s.ListDocuments(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].DocID != "doc-new" || all[1].DocID != "doc-old" {
		t.Errorf("want [doc-new doc-old], got %v", docIDs(all))
	}

	filtered, err := s.ListDocuments(ctx, "alice", []string{"work", "q3"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].DocID != "doc-old" {
		t.Errorf("tag filter: want [doc-old], got %v", docIDs(filtered))
	}
}

func Test_Store_ListDocumentsSkipsCorrupted(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"doc-ok", "doc-bad"} {
		if err := s.CreateDocument(ctx, newTestDocument("alice", id)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := s.db.Exec(`UPDATE documents SET payload = 'not json' WHERE doc_id = 'doc-bad'`); err != nil {
		t.Fatalf("corrupt payload: %v", err)
	}

	recs, err := s.ListDocuments(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 || recs[0].DocID != "doc-ok" {
		t.Errorf("want only doc-ok, got %v", docIDs(recs))
	}
}

func Test_Store_StatusTransitions(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateDocument(ctx, newTestDocument("alice", "doc-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkProcessed(ctx, "alice", "doc-1", 3); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	got, err := s.GetDocument(ctx, "alice", "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusProcessed || got.NumPages != 3 {
		t.Errorf("want processed with 3 pages, got %+v", got)
	}

	if err := s.CreateDocument(ctx, newTestDocument("alice", "doc-2")); err != nil {
		t.Fatalf("create doc-2: %v", err)
	}
	if err := s.MarkFailed(ctx, "alice", "doc-2", "extraction failed: bad zip"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, err = s.GetDocument(ctx, "alice", "doc-2")
	if err != nil {
		t.Fatalf("get doc-2: %v", err)
	}
	if got.Status != StatusError || got.Error == "" {
		t.Errorf("want error status with cause, got %+v", got)
	}
}

func Test_Store_UpdateTagsAndDelete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateDocument(ctx, newTestDocument("alice", "doc-1", "old")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.UpdateDocumentTags(ctx, "alice", "doc-1", []string{"new", "tags"})
	if err != nil {
		t.Fatalf("update tags: %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "new" {
		t.Errorf("tags not replaced: %v", got.Tags)
	}

	if err := s.DeleteDocument(ctx, "alice", "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteDocument(ctx, "alice", "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: want ErrNotFound, got %v", err)
	}
}

func Test_Store_Users(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, &UserRecord{ID: "u1", Username: "alice", Email: "alice@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, &UserRecord{ID: "u2", Username: "alice"}); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate username: want ErrExists, got %v", err)
	}

	got, err := s.GetUserByName(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.ID != "u1" || got.Email != "alice@example.com" {
		t.Errorf("unexpected user: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be populated on create")
	}

	if _, err := s.GetUserByName(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: want ErrNotFound, got %v", err)
	}
}

// docIDs extracts ids for failure messages.
func docIDs(recs []*DocumentRecord) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.DocID
	}
	return ids
}
