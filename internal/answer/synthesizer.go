// Package answer turns retrieved evidence into a grounded answer. It runs
// the full embed, search, generate chain once per question, under a single
// deadline, and reports how long the whole chain took.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/askdocs/askdocs-go/internal/engine"
	"github.com/askdocs/askdocs-go/internal/logging"
	"github.com/askdocs/askdocs-go/internal/rag"
)

// ErrQuery wraps any failure on the question-answering path.
var ErrQuery = errors.New("query failed")

// DefaultTimeout bounds the whole embed, search, generate chain.
const DefaultTimeout = 2 * time.Minute

// promptTemplate instructs the model to answer strictly from the supplied
// sections. The wording is part of the product's observed behavior; change
// it deliberately.
const promptTemplate = `You are an expert assistant specialized in analyzing documents and answering questions based on the provided content.

### Instructions for Answering:
- Base your answer ONLY on the information provided in the context below.
- If the context doesn't contain enough information to answer the question fully, clearly state what's missing.
- Be concise but thorough in your explanation.
- If appropriate, include specific quotes or references from the source documents.
- Format your answer for readability using markdown when helpful.
- Do not include any personal opinions or information not found in the context.

### Context (retrieved document sections):
%s

### User Question:
%s

### Answer:
`

// retriever is the slice of the engine the synthesizer consumes.
type retriever interface {
	Query(ctx context.Context, owner, text string, docIDs []string, k int) (*engine.Result, error)
}

// Answer is the complete response to one question.
type Answer struct {
	// Answer is the generated text.
	Answer string `json:"answer"`
	// Sources cite the retrieved chunks in rank order.
	Sources []engine.Source `json:"sources"`
	// Confidence is the engine's answer confidence.
	Confidence float64 `json:"confidence"`
	// QueryTimeSeconds is the wall-clock duration of the whole chain.
	QueryTimeSeconds float64 `json:"query_time_seconds"`
}

// Synthesizer answers questions against a user's indexed documents.
type Synthesizer struct {
	engine  retriever
	gen     rag.Generator
	timeout time.Duration
}

// New constructs a Synthesizer. Engine and generator are required; a
// timeout <= 0 selects DefaultTimeout.
func New(eng retriever, gen rag.Generator, timeout time.Duration) (*Synthesizer, error) {
	if eng == nil {
		return nil, fmt.Errorf("answer: engine is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("answer: generator is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Synthesizer{engine: eng, gen: gen, timeout: timeout}, nil
}

// Query retrieves evidence for text from owner's namespace and generates a
// grounded answer. The generator is invoked exactly once; there are no
// retries. A failed query returns an error, never a fabricated answer.
func (s *Synthesizer) Query(ctx context.Context, owner, text string, docIDs []string, k int) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	res, err := s.engine.Query(ctx, owner, text, docIDs, k)
	if err != nil {
		return nil, fmt.Errorf("answer: %w: %w", ErrQuery, err)
	}

	prompt := fmt.Sprintf(promptTemplate, res.Context, text)
	generated, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w: %w", ErrQuery, err)
	}

	elapsed := time.Since(start)
	logging.FromContext(ctx).InfoContext(ctx, "query answered",
		slog.Int("sources", len(res.Sources)),
		slog.Float64("confidence", res.Confidence),
		slog.Duration("elapsed", elapsed),
	)

	return &Answer{
		Answer:           generated,
		Sources:          res.Sources,
		Confidence:       res.Confidence,
		QueryTimeSeconds: elapsed.Seconds(),
	}, nil
}
