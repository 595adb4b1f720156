// Package metastore provides the SQLite-backed metadata store for documents,
// chats, and user profiles. Each record is persisted as one JSON payload row
// keyed by (owner, id), so a single damaged record never poisons its
// neighbours: unreadable documents surface as not found, unreadable chats are
// repaired in place on read.
package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when no record exists for the given owner and id.
var ErrNotFound = errors.New("record not found")

// ErrCorrupted marks a persisted payload that no longer decodes. Chat reads
// recover from it automatically; document reads report ErrNotFound instead.
var ErrCorrupted = errors.New("record corrupted")

// ErrCapacity is returned when a caller-imposed record limit is exceeded.
// Chat creation never returns it: the oldest chat is evicted instead.
var ErrCapacity = errors.New("capacity exceeded")

// ErrExists is returned when creating a record whose key is already taken.
var ErrExists = errors.New("record already exists")

// DefaultMaxChats is the per-user live chat cap.
const DefaultMaxChats = 5

// Store persists document metadata, chats, and user profiles in a local
// SQLite database. Safe for concurrent use.
type Store struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// maxChats is the per-user chat cap enforced by CreateChat.
	maxChats int
}

// DefaultDBPath returns the default metadata database path. It resolves to
// ~/.askdocs/metadata.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("metastore: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".askdocs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("metastore: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "metadata.db"), nil
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests. maxChats <= 0
// selects DefaultMaxChats.
func Open(path string, maxChats int) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("metastore: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	if maxChats <= 0 {
		maxChats = DefaultMaxChats
	}
	s := &Store{db: db, maxChats: maxChats}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    owner       TEXT    NOT NULL,
    doc_id      TEXT    NOT NULL,
    created_at  INTEGER NOT NULL,  -- Unix timestamp (seconds)
    payload     TEXT    NOT NULL,  -- JSON-encoded DocumentRecord
    PRIMARY KEY (owner, doc_id)
);
CREATE TABLE IF NOT EXISTS chats (
    owner       TEXT    NOT NULL,
    chat_id     TEXT    NOT NULL,
    created_at  INTEGER NOT NULL,
    payload     TEXT    NOT NULL,  -- JSON-encoded ChatRecord
    PRIMARY KEY (owner, chat_id)
);
CREATE INDEX IF NOT EXISTS idx_chats_owner_created
    ON chats (owner, created_at);
CREATE TABLE IF NOT EXISTS users (
    username    TEXT    PRIMARY KEY,
    payload     TEXT    NOT NULL   -- JSON-encoded UserRecord
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("metastore: migrate: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("metastore: close: %w", err)
	}
	return nil
}

// CreateDocument persists a new document record. The record's key must not
// already exist.
func (s *Store) CreateDocument(ctx context.Context, rec *DocumentRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("metastore: encode document %s: %w", rec.DocID, err)
	}
	const q = `INSERT INTO documents (owner, doc_id, created_at, payload) VALUES (?, ?, ?, ?)
               ON CONFLICT (owner, doc_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q, rec.Owner, rec.DocID, rec.UploadTime.Unix(), string(payload))
	if err != nil {
		return fmt.Errorf("metastore: create document %s: %w", rec.DocID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("metastore: create document %s: %w", rec.DocID, ErrExists)
	}
	return nil
}

// GetDocument returns one document record. A missing row and an unreadable
// payload both report ErrNotFound: a document whose metadata cannot be
// decoded is unusable and treated as gone.
func (s *Store) GetDocument(ctx context.Context, owner, docID string) (*DocumentRecord, error) {
	rec, err := s.decodeDocumentRow(ctx, owner, docID)
	if err != nil {
		if errors.Is(err, ErrCorrupted) {
			return nil, fmt.Errorf("metastore: document %s unreadable: %w", docID, ErrNotFound)
		}
		return nil, err
	}
	return rec, nil
}

// decodeDocumentRow reads and decodes one document payload, distinguishing
// ErrCorrupted from ErrNotFound for callers that care.
func (s *Store) decodeDocumentRow(ctx context.Context, owner, docID string) (*DocumentRecord, error) {
	const q = `SELECT payload FROM documents WHERE owner = ? AND doc_id = ?`
	var payload string
	err := s.db.QueryRowContext(ctx, q, owner, docID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metastore: document %s: %w", docID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: get document %s: %w", docID, err)
	}
	var rec DocumentRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("metastore: decode document %s: %w: %w", docID, ErrCorrupted, err)
	}
	return &rec, nil
}

// ListDocuments returns the owner's documents newest-first by upload time.
// When tagFilter is non-empty only records carrying every listed tag are
// returned. Rows whose payload no longer decodes are skipped.
func (s *Store) ListDocuments(ctx context.Context, owner string, tagFilter []string) ([]*DocumentRecord, error) {
	const q = `SELECT payload FROM documents WHERE owner = ?`
	rows, err := s.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("metastore: list documents: %w", err)
	}
	defer rows.Close()

	var recs []*DocumentRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("metastore: list documents scan: %w", err)
		}
		var rec DocumentRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			continue
		}
		if !rec.HasTags(tagFilter) {
			continue
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metastore: list documents rows: %w", err)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].UploadTime.After(recs[j].UploadTime)
	})
	return recs, nil
}

// CountDocuments returns the number of documents the owner has, readable or
// not. Callers enforcing an upload limit compare against it and report
// ErrCapacity themselves.
func (s *Store) CountDocuments(ctx context.Context, owner string) (int, error) {
	const q = `SELECT COUNT(*) FROM documents WHERE owner = ?`
	var n int
	if err := s.db.QueryRowContext(ctx, q, owner).Scan(&n); err != nil {
		return 0, fmt.Errorf("metastore: count documents: %w", err)
	}
	return n, nil
}

// UpdateDocumentTags replaces the document's tag set.
func (s *Store) UpdateDocumentTags(ctx context.Context, owner, docID string, tags []string) (*DocumentRecord, error) {
	rec, err := s.GetDocument(ctx, owner, docID)
	if err != nil {
		return nil, err
	}
	rec.Tags = tags
	if err := s.saveDocument(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkProcessed transitions the document to processed, recording the page
// count when the format has one.
func (s *Store) MarkProcessed(ctx context.Context, owner, docID string, numPages int) error {
	rec, err := s.GetDocument(ctx, owner, docID)
	if err != nil {
		return err
	}
	rec.Status = StatusProcessed
	rec.NumPages = numPages
	rec.Error = ""
	return s.saveDocument(ctx, rec)
}

// MarkFailed transitions the document to its terminal error state with a
// human-readable cause.
func (s *Store) MarkFailed(ctx context.Context, owner, docID, cause string) error {
	rec, err := s.GetDocument(ctx, owner, docID)
	if err != nil {
		return err
	}
	rec.Status = StatusError
	rec.Error = cause
	return s.saveDocument(ctx, rec)
}

// saveDocument overwrites an existing document payload.
func (s *Store) saveDocument(ctx context.Context, rec *DocumentRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("metastore: encode document %s: %w", rec.DocID, err)
	}
	const q = `UPDATE documents SET payload = ? WHERE owner = ? AND doc_id = ?`
	if _, err := s.db.ExecContext(ctx, q, string(payload), rec.Owner, rec.DocID); err != nil {
		return fmt.Errorf("metastore: save document %s: %w", rec.DocID, err)
	}
	return nil
}

// DeleteDocument removes one document record.
func (s *Store) DeleteDocument(ctx context.Context, owner, docID string) error {
	const q = `DELETE FROM documents WHERE owner = ? AND doc_id = ?`
	res, err := s.db.ExecContext(ctx, q, owner, docID)
	if err != nil {
		return fmt.Errorf("metastore: delete document %s: %w", docID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("metastore: document %s: %w", docID, ErrNotFound)
	}
	return nil
}

// CreateUser persists a new user profile. Usernames are unique.
func (s *Store) CreateUser(ctx context.Context, rec *UserRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("metastore: encode user %s: %w", rec.Username, err)
	}
	const q = `INSERT INTO users (username, payload) VALUES (?, ?)
               ON CONFLICT (username) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q, rec.Username, string(payload))
	if err != nil {
		return fmt.Errorf("metastore: create user %s: %w", rec.Username, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("metastore: user %s: %w", rec.Username, ErrExists)
	}
	return nil
}

// GetUserByName returns one user profile by username.
func (s *Store) GetUserByName(ctx context.Context, username string) (*UserRecord, error) {
	const q = `SELECT payload FROM users WHERE username = ?`
	var payload string
	err := s.db.QueryRowContext(ctx, q, username).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metastore: user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: get user %s: %w", username, err)
	}
	var rec UserRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("metastore: decode user %s: %w: %w", username, ErrCorrupted, err)
	}
	return &rec, nil
}
