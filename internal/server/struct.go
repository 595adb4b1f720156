package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/askdocs/askdocs-go/internal/answer"
	"github.com/askdocs/askdocs-go/internal/metastore"
	"github.com/askdocs/askdocs-go/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics and backs the
	// /metrics endpoint. If nil, a private registry is created.
	Registry *prometheus.Registry
}

// appService is the slice of the application facade the handlers consume.
// *service.Service satisfies it; tests inject a fake.
type appService interface {
	UploadDocument(ctx context.Context, owner, filename string, data []byte, tags []string) (*metastore.DocumentRecord, error)
	GetDocument(ctx context.Context, owner, docID string) (*metastore.DocumentRecord, error)
	ListDocuments(ctx context.Context, owner string, tagFilter []string) ([]*metastore.DocumentRecord, error)
	UpdateDocumentTags(ctx context.Context, owner, docID string, tags []string) (*metastore.DocumentRecord, error)
	DeleteDocument(ctx context.Context, owner, docID string) error

	Query(ctx context.Context, owner, text string, opts service.QueryOptions) (*answer.Answer, error)

	CreateChat(ctx context.Context, owner, title string, documentIDs []string) (*metastore.ChatRecord, error)
	GetChat(ctx context.Context, owner, chatID string) (*metastore.ChatRecord, error)
	ListChats(ctx context.Context, owner string) ([]*metastore.ChatRecord, error)
	CountChats(ctx context.Context, owner string) (int, error)
	UpdateChat(ctx context.Context, owner, chatID string, title *string, documentIDs []string) (*metastore.ChatRecord, error)
	DeleteChat(ctx context.Context, owner, chatID string) error
	AppendMessage(ctx context.Context, owner, chatID string, msg metastore.Message) (*metastore.ChatRecord, error)
	DeleteMessage(ctx context.Context, owner, chatID, messageID string) (*metastore.ChatRecord, error)
}

// Server is the HTTP server that exposes the document Q&A service.
type Server struct {
	// svc is the application facade behind every handler.
	svc appService
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// DocumentIDs restricts retrieval to these documents.
	DocumentIDs []string `json:"document_ids,omitempty"`
	// Tags restricts retrieval to documents carrying every listed tag.
	Tags []string `json:"tags,omitempty"`
	// FileTypes restricts retrieval to documents of any listed type.
	FileTypes []string `json:"file_types,omitempty"`
	// StartDate keeps only documents uploaded at or after this RFC 3339
	// time.
	StartDate *time.Time `json:"start_date,omitempty"`
	// EndDate keeps only documents uploaded at or before this RFC 3339
	// time.
	EndDate *time.Time `json:"end_date,omitempty"`
	// MaxResults is the retrieval depth k.
	MaxResults int `json:"max_results,omitempty"`
}

// tagsRequest is the JSON body for PUT /api/documents/{id}/tags.
type tagsRequest struct {
	// Tags is the replacement tag set.
	Tags []string `json:"tags"`
}

// createChatRequest is the JSON body for POST /api/chats.
type createChatRequest struct {
	// Title is the user-visible chat title.
	Title string `json:"title"`
	// DocumentIDs optionally scopes the chat's queries.
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// updateChatRequest is the JSON body for PUT /api/chats/{id}. Absent fields
// are left unchanged.
type updateChatRequest struct {
	// Title replaces the chat title when present.
	Title *string `json:"title,omitempty"`
	// DocumentIDs replaces the document scope when present.
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// chatCountResponse is the JSON response for GET /api/chats/count.
type chatCountResponse struct {
	// Total is the number of live chats the user has.
	Total int `json:"total"`
	// Remaining is how many more chats fit under the cap.
	Remaining int `json:"remaining"`
	// MaxAllowed is the per-user chat cap.
	MaxAllowed int `json:"max_allowed"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	// Error is the human-readable failure reason.
	Error string `json:"error"`
}
