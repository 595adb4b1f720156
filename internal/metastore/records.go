package metastore

import "time"

// DocumentStatus is the ingestion state of a document. The state machine is
// linear: a record is created as processing and transitions exactly once to
// processed or error.
type DocumentStatus string

const (
	// StatusProcessing means ingestion is still running.
	StatusProcessing DocumentStatus = "processing"
	// StatusProcessed means the document is fully indexed and queryable.
	StatusProcessed DocumentStatus = "processed"
	// StatusError is terminal; the record's Error field carries the cause.
	StatusError DocumentStatus = "error"
)

// DocumentRecord is the durable metadata for one uploaded document.
type DocumentRecord struct {
	// DocID uniquely identifies the document within its owner's namespace.
	DocID string `json:"doc_id"`
	// Owner is the username the document belongs to.
	Owner string `json:"owner"`
	// Filename is the original upload filename.
	Filename string `json:"filename"`
	// FileType is the lowercased extension (pdf, docx, txt, csv).
	FileType string `json:"file_type"`
	// UploadTime is when the upload request was accepted.
	UploadTime time.Time `json:"upload_time"`
	// SizeBytes is the uploaded file size.
	SizeBytes int64 `json:"size_bytes"`
	// NumPages is the page count for paged formats, 0 otherwise. Written
	// when ingestion completes.
	NumPages int `json:"num_pages,omitempty"`
	// Tags are the user-assigned labels, used for list and query filtering.
	Tags []string `json:"tags,omitempty"`
	// Status is the ingestion state.
	Status DocumentStatus `json:"status"`
	// Error holds the ingestion failure cause when Status is error.
	Error string `json:"error,omitempty"`
}

// HasTags reports whether the record carries every tag in want. An empty
// want matches all records.
func (d *DocumentRecord) HasTags(want []string) bool {
	for _, w := range want {
		found := false
		for _, t := range d.Tags {
			if t == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Sender identifies the author of a chat message.
type Sender string

const (
	// SenderUser is a question typed by the human.
	SenderUser Sender = "user"
	// SenderSystem is an answer produced by the query engine.
	SenderSystem Sender = "system"
)

// SourceRef points a system message back at the retrieved chunk that
// supported it.
type SourceRef struct {
	// DocumentID is the source document.
	DocumentID string `json:"document_id"`
	// Filename is the source document's original filename.
	Filename string `json:"filename"`
	// Page is the 1-based source page for paged formats, 0 otherwise.
	Page int `json:"page,omitempty"`
	// Rank is the 1-based retrieval rank.
	Rank int `json:"rank"`
	// Distance is the vector distance of the retrieved chunk.
	Distance float64 `json:"distance"`
}

// Message is one turn in a chat. Messages are append-only except for
// explicit per-message deletion by id.
type Message struct {
	// ID uniquely identifies the message within its chat.
	ID string `json:"id"`
	// Sender is the message author.
	Sender Sender `json:"sender"`
	// Text is the message content.
	Text string `json:"text"`
	// Timestamp is when the message was appended.
	Timestamp time.Time `json:"timestamp"`
	// Sources are the retrieval references behind a system answer.
	Sources []SourceRef `json:"sources,omitempty"`
	// Confidence is the engine's answer confidence, if any.
	Confidence float64 `json:"confidence,omitempty"`
	// QueryTimeSeconds is the wall-clock time the query took.
	QueryTimeSeconds float64 `json:"query_time_seconds,omitempty"`
	// Error records a failed query turn.
	Error string `json:"error,omitempty"`
}

// ChatRecord is one durable conversation. A user owns at most MaxChats
// live chats; creating one past the cap evicts the oldest by CreatedAt.
type ChatRecord struct {
	// ChatID uniquely identifies the chat within its owner's namespace.
	ChatID string `json:"chat_id"`
	// Owner is the username the chat belongs to.
	Owner string `json:"owner"`
	// Title is the user-visible chat title.
	Title string `json:"title"`
	// CreatedAt is when the chat was created; it orders capacity eviction.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is refreshed by every mutation.
	UpdatedAt time.Time `json:"updated_at"`
	// Messages is the ordered conversation history.
	Messages []Message `json:"messages"`
	// DocumentIDs optionally scopes the chat's queries to specific documents.
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// UserRecord is a minimal user profile. Authentication is handled above
// this layer; only identity is persisted here.
type UserRecord struct {
	// ID is the stable user identifier.
	ID string `json:"id"`
	// Username is unique across the store and keys all owned records.
	Username string `json:"username"`
	// Email is optional contact metadata.
	Email string `json:"email,omitempty"`
	// CreatedAt is when the profile was created.
	CreatedAt time.Time `json:"created_at"`
}
