package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// recoveredChatTitle is the placeholder title written by read-repair when a
// chat payload no longer decodes.
const recoveredChatTitle = "Recovered Chat"

// CreateChat creates a new chat for the owner. When the owner already has
// the maximum number of live chats the oldest by CreatedAt is evicted in the
// same transaction, so the cap holds at every commit point.
func (s *Store) CreateChat(ctx context.Context, owner, title string, documentIDs []string) (*ChatRecord, error) {
	now := time.Now().UTC()
	rec := &ChatRecord{
		ChatID:      uuid.NewString(),
		Owner:       owner,
		Title:       title,
		CreatedAt:   now,
		UpdatedAt:   now,
		Messages:    []Message{},
		DocumentIDs: documentIDs,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("metastore: encode chat: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("metastore: create chat: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE owner = ?`, owner).Scan(&count); err != nil {
		return nil, fmt.Errorf("metastore: create chat: count: %w", err)
	}
	for count >= s.maxChats {
		const evict = `DELETE FROM chats WHERE owner = ? AND chat_id IN (
            SELECT chat_id FROM chats WHERE owner = ? ORDER BY created_at ASC, chat_id ASC LIMIT 1)`
		if _, err := tx.ExecContext(ctx, evict, owner, owner); err != nil {
			return nil, fmt.Errorf("metastore: create chat: evict oldest: %w", err)
		}
		count--
	}

	const ins = `INSERT INTO chats (owner, chat_id, created_at, payload) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ins, owner, rec.ChatID, now.Unix(), string(payload)); err != nil {
		return nil, fmt.Errorf("metastore: create chat: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("metastore: create chat: commit: %w", err)
	}
	return rec, nil
}

// GetChat returns one chat. A payload that no longer decodes is repaired in
// place: the stored record is replaced with an empty placeholder chat (same
// id, fresh timestamps) and the placeholder is returned, so a second read
// observes a valid record.
func (s *Store) GetChat(ctx context.Context, owner, chatID string) (*ChatRecord, error) {
	const q = `SELECT payload FROM chats WHERE owner = ? AND chat_id = ?`
	var payload string
	err := s.db.QueryRowContext(ctx, q, owner, chatID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metastore: chat %s: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: get chat %s: %w", chatID, err)
	}

	var rec ChatRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return s.repairChat(ctx, owner, chatID)
	}
	return &rec, nil
}

// repairChat overwrites an undecodable chat payload with a valid placeholder
// and returns it.
func (s *Store) repairChat(ctx context.Context, owner, chatID string) (*ChatRecord, error) {
	now := time.Now().UTC()
	rec := &ChatRecord{
		ChatID:    chatID,
		Owner:     owner,
		Title:     recoveredChatTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
	if err := s.saveChat(ctx, rec); err != nil {
		return nil, fmt.Errorf("metastore: repair chat %s: %w", chatID, err)
	}
	return rec, nil
}

// ListChats returns the owner's chats newest-first by creation time,
// repairing any undecodable payloads along the way.
func (s *Store) ListChats(ctx context.Context, owner string) ([]*ChatRecord, error) {
	const q = `SELECT chat_id, payload FROM chats WHERE owner = ? ORDER BY created_at DESC, chat_id DESC`
	rows, err := s.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("metastore: list chats: %w", err)
	}
	defer rows.Close()

	var recs []*ChatRecord
	var damaged []string
	for rows.Next() {
		var chatID, payload string
		if err := rows.Scan(&chatID, &payload); err != nil {
			return nil, fmt.Errorf("metastore: list chats scan: %w", err)
		}
		var rec ChatRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			damaged = append(damaged, chatID)
			recs = append(recs, nil) // placeholder, filled after repair
			continue
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metastore: list chats rows: %w", err)
	}

	// Repair after the result set is closed; the single-writer pool would
	// otherwise deadlock on a write issued mid-iteration.
	di := 0
	for i, rec := range recs {
		if rec != nil {
			continue
		}
		repaired, err := s.repairChat(ctx, owner, damaged[di])
		if err != nil {
			return nil, err
		}
		recs[i] = repaired
		di++
	}
	return recs, nil
}

// CountChats returns the number of live chats the owner has.
func (s *Store) CountChats(ctx context.Context, owner string) (int, error) {
	const q = `SELECT COUNT(*) FROM chats WHERE owner = ?`
	var n int
	if err := s.db.QueryRowContext(ctx, q, owner).Scan(&n); err != nil {
		return 0, fmt.Errorf("metastore: count chats: %w", err)
	}
	return n, nil
}

// UpdateChat applies a partial update: a non-nil title replaces the title,
// a non-nil documentIDs replaces the document scope. UpdatedAt is refreshed.
func (s *Store) UpdateChat(ctx context.Context, owner, chatID string, title *string, documentIDs []string) (*ChatRecord, error) {
	rec, err := s.GetChat(ctx, owner, chatID)
	if err != nil {
		return nil, err
	}
	if title != nil {
		rec.Title = *title
	}
	if documentIDs != nil {
		rec.DocumentIDs = documentIDs
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := s.saveChat(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteChat removes one chat.
func (s *Store) DeleteChat(ctx context.Context, owner, chatID string) error {
	const q = `DELETE FROM chats WHERE owner = ? AND chat_id = ?`
	res, err := s.db.ExecContext(ctx, q, owner, chatID)
	if err != nil {
		return fmt.Errorf("metastore: delete chat %s: %w", chatID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("metastore: chat %s: %w", chatID, ErrNotFound)
	}
	return nil
}

// AppendMessage appends one message to the chat, assigning an id and
// timestamp when the caller left them empty, and refreshes UpdatedAt.
func (s *Store) AppendMessage(ctx context.Context, owner, chatID string, msg Message) (*ChatRecord, error) {
	rec, err := s.GetChat(ctx, owner, chatID)
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	rec.Messages = append(rec.Messages, msg)
	rec.UpdatedAt = time.Now().UTC()
	if err := s.saveChat(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteMessage removes one message by id and refreshes UpdatedAt. An
// unknown message id reports ErrNotFound.
func (s *Store) DeleteMessage(ctx context.Context, owner, chatID, messageID string) (*ChatRecord, error) {
	rec, err := s.GetChat(ctx, owner, chatID)
	if err != nil {
		return nil, err
	}
	kept := rec.Messages[:0]
	found := false
	for _, m := range rec.Messages {
		if m.ID == messageID {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return nil, fmt.Errorf("metastore: message %s in chat %s: %w", messageID, chatID, ErrNotFound)
	}
	rec.Messages = kept
	rec.UpdatedAt = time.Now().UTC()
	if err := s.saveChat(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// saveChat overwrites an existing chat payload.
func (s *Store) saveChat(ctx context.Context, rec *ChatRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("metastore: encode chat %s: %w", rec.ChatID, err)
	}
	const q = `UPDATE chats SET payload = ? WHERE owner = ? AND chat_id = ?`
	if _, err := s.db.ExecContext(ctx, q, string(payload), rec.Owner, rec.ChatID); err != nil {
		return fmt.Errorf("metastore: save chat %s: %w", rec.ChatID, err)
	}
	return nil
}
