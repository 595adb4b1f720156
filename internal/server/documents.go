package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/askdocs/askdocs-go/internal/metastore"
)

// multipartMemoryLimit is the in-memory buffer for multipart parsing;
// larger file parts spill to disk.
const multipartMemoryLimit = 10 << 20

// handleUploadDocument handles POST /api/documents. The body is a multipart
// form with a "file" part and an optional repeated "tags" field. On success
// it returns 202 with the processing-state record; ingestion completes
// asynchronously and is observed by polling the record.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading file: "+err.Error())
		return
	}

	rec, err := s.svc.UploadDocument(r.Context(), o, header.Filename, data, formTags(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

// handleListDocuments handles GET /api/documents. The optional "tags" query
// parameter (comma separated) restricts the list to documents carrying
// every listed tag.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	recs, err := s.svc.ListDocuments(r.Context(), o, queryTags(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []*metastore.DocumentRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleGetDocument handles GET /api/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	rec, err := s.svc.GetDocument(r.Context(), o, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateTags handles PUT /api/documents/{id}/tags.
func (s *Server) handleUpdateTags(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	var req tagsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.svc.UpdateDocumentTags(r.Context(), o, r.PathValue("id"), req.Tags)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	o, ok := owner(w, r)
	if !ok {
		return
	}

	if err := s.svc.DeleteDocument(r.Context(), o, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

// formTags collects the repeated "tags" form field, splitting any
// comma-separated values.
func formTags(r *http.Request) []string {
	var tags []string
	for _, raw := range r.Form["tags"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// queryTags parses the comma-separated "tags" query parameter.
func queryTags(r *http.Request) []string {
	raw := r.URL.Query().Get("tags")
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
