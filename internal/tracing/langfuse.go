// Package tracing wires optional Langfuse observability into the eino
// callback chain. Tracing is opt-in: without Langfuse credentials in the
// environment the process runs untraced.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/askdocs/askdocs-go/internal/version"
)

// Setup builds the Langfuse callback handler when LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are both set. The returned flush function must run
// before process exit so buffered traces are delivered. When Langfuse is
// not configured all returns are zero and the third value is false.
func Setup() (callbacks.Handler, func(), bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "askdocs",
		Release:   version.Version,
	})

	return handler, flusher, true
}
