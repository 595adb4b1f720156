package server

import (
	"net/http"
	"time"

	"github.com/askdocs/askdocs-go/internal/service"
)

// handleQuery handles POST /api/query: it answers a question against the
// user's documents and returns the answer, cited sources, confidence, and
// timing.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts := service.QueryOptions{
		DocumentIDs: req.DocumentIDs,
		Tags:        req.Tags,
		FileTypes:   req.FileTypes,
		MaxResults:  req.MaxResults,
	}
	if req.StartDate != nil {
		opts.UploadedAfter = *req.StartDate
	}
	if req.EndDate != nil {
		opts.UploadedBefore = *req.EndDate
	}

	start := time.Now()
	ans, err := s.svc.Query(r.Context(), o, req.Query, opts)
	if err != nil {
		s.observeQuery("error", time.Since(start))
		writeServiceError(w, err)
		return
	}

	s.observeQuery("ok", time.Since(start))
	writeJSON(w, http.StatusOK, ans)
}
