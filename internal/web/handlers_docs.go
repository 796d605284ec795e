package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/choislab/hanisearch/internal/extract"
	"github.com/choislab/hanisearch/internal/index"
	"github.com/choislab/hanisearch/internal/store"
)

// maxUploadBytes caps document uploads and captures.
const maxUploadBytes = 32 << 20

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if err := s.deps.Docs.Refresh(); err != nil {
			writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load documents")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": s.deps.Docs.List()})

	case http.MethodPost:
		s.handleDocumentUpload(w, r)

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "multipart form required")
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "at least one file is required")
		return
	}

	// One bad file does not abort the batch.
	var imported []any
	failed := map[string]string{}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			failed[fh.Filename] = err.Error()
			continue
		}
		d, err := s.deps.Docs.Import(fh.Filename, f)
		f.Close()
		if err != nil {
			failed[fh.Filename] = err.Error()
			continue
		}
		imported = append(imported, d)
	}

	status := http.StatusCreated
	if len(imported) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{"imported": imported, "failed": failed})
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "document id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		d, ok := s.deps.Docs.Get(id)
		if !ok {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "document not found")
			return
		}
		writeJSON(w, http.StatusOK, d)

	case http.MethodPatch:
		var body struct {
			Selected *bool `json:"selected"`
		}
		if err := decodeJSONBody(r, &body); err != nil || body.Selected == nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "selected flag is required")
			return
		}
		if err := s.deps.Docs.Select(id, *body.Selected); err != nil {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "document not found")
			return
		}
		d, _ := s.deps.Docs.Get(id)
		writeJSON(w, http.StatusOK, d)

	case http.MethodDelete:
		if err := s.deps.Docs.Remove(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "document not found")
				return
			}
			writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to remove document")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) handleIndexByID(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/index/")
	if id == "" || strings.Contains(id, "/") {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "document id is required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		err := s.deps.Docs.BuildIndex(r.Context(), id, index.BuildOptions{})
		if err == nil {
			d, _ := s.deps.Docs.Get(id)
			writeJSON(w, http.StatusOK, d)
			return
		}

		var berr *index.BuildError
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "document not found")
		case errors.As(err, &berr) && berr.Reason == index.ReasonCapacity:
			writeAPIError(w, http.StatusRequestEntityTooLarge, "INDEX_CAPACITY_EXCEEDED",
				"document is too large to index; searches will scan raw lines")
		case errors.As(err, &berr):
			writeAPIError(w, http.StatusUnprocessableEntity, "EXTRACTION_FAILED",
				"document text could not be extracted")
		default:
			writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "index build failed")
		}

	case http.MethodDelete:
		if err := s.deps.Docs.DropIndex(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "document not found")
				return
			}
			writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to drop index")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"dropped": id})

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

// handleCapture imports pasted or captured page text as a plain-text
// document.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var body struct {
		Name string `json:"name"`
		Text string `json:"text"`
	}
	if err := decodeJSONBody(r, &body); err != nil || strings.TrimSpace(body.Text) == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required")
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = "capture"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".txt") {
		name += ".txt"
	}

	d, err := s.deps.Docs.Import(name, strings.NewReader(body.Text))
	if err != nil {
		var xerr *extract.Error
		if errors.As(err, &xerr) {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", xerr.Error())
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "capture failed")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func decodeJSONBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
