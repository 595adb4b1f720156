package service

import (
	"context"
	"fmt"
	"time"

	"github.com/askdocs/askdocs-go/internal/answer"
)

// QueryOptions narrow a question to a subset of the owner's documents.
// Explicit DocumentIDs win; otherwise Tags and FileTypes are resolved
// against the document list first.
type QueryOptions struct {
	// DocumentIDs restricts retrieval to these documents.
	DocumentIDs []string

	// Tags restricts retrieval to documents carrying every listed tag.
	// Ignored when DocumentIDs is set.
	Tags []string

	// FileTypes restricts retrieval to documents of any listed type.
	// Ignored when DocumentIDs is set.
	FileTypes []string

	// UploadedAfter keeps only documents uploaded at or after this time.
	// The zero value leaves the lower bound open. Ignored when
	// DocumentIDs is set.
	UploadedAfter time.Time

	// UploadedBefore keeps only documents uploaded at or before this
	// time. The zero value leaves the upper bound open. Ignored when
	// DocumentIDs is set.
	UploadedBefore time.Time

	// MaxResults is the retrieval depth k. <= 0 selects the engine default.
	MaxResults int
}

// hasFilter reports whether any document filter is set.
func (o QueryOptions) hasFilter() bool {
	return len(o.Tags) > 0 || len(o.FileTypes) > 0 ||
		!o.UploadedAfter.IsZero() || !o.UploadedBefore.IsZero()
}

// Query answers a question against the owner's documents. A filter that
// matches no documents yields a no-evidence answer rather than an error.
func (s *Service) Query(ctx context.Context, owner, text string, opts QueryOptions) (*answer.Answer, error) {
	if owner == "" {
		return nil, fmt.Errorf("service: owner is required")
	}
	if text == "" {
		return nil, fmt.Errorf("service: query text is required")
	}

	docIDs, err := s.resolveScope(ctx, owner, opts)
	if err != nil {
		return nil, err
	}
	return s.synth.Query(ctx, owner, text, docIDs, opts.MaxResults)
}

// resolveScope turns the options into the docID filter handed to
// retrieval. nil means unrestricted.
func (s *Service) resolveScope(ctx context.Context, owner string, opts QueryOptions) ([]string, error) {
	if len(opts.DocumentIDs) > 0 {
		return opts.DocumentIDs, nil
	}
	if !opts.hasFilter() {
		return nil, nil
	}

	docs, err := s.meta.ListDocuments(ctx, owner, opts.Tags)
	if err != nil {
		return nil, fmt.Errorf("service: resolve query filter: %w", err)
	}

	wantType := map[string]bool{}
	for _, t := range opts.FileTypes {
		wantType[t] = true
	}

	var ids []string
	for _, d := range docs {
		if len(wantType) > 0 && !wantType[d.FileType] {
			continue
		}
		if !opts.UploadedAfter.IsZero() && d.UploadTime.Before(opts.UploadedAfter) {
			continue
		}
		if !opts.UploadedBefore.IsZero() && d.UploadTime.After(opts.UploadedBefore) {
			continue
		}
		ids = append(ids, d.DocID)
	}
	if len(ids) == 0 {
		// The filter excluded everything. Restrict retrieval to an id that
		// cannot exist so the empty candidate set flows through as empty
		// evidence instead of an unrestricted search.
		return []string{""}, nil
	}
	return ids, nil
}
