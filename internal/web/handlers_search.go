package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/choislab/hanisearch/internal/export"
	"github.com/choislab/hanisearch/internal/highlight"
	"github.com/choislab/hanisearch/internal/query"
	"github.com/choislab/hanisearch/internal/viewport"
)

type searchResponse struct {
	Terms   []string          `json:"terms"`
	Total   int               `json:"total"`
	Window  viewport.Window   `json:"window"`
	Results []searchResultRow `json:"results"`
}

type searchResultRow struct {
	query.DocResult
	Marked string `json:"marked"`
}

// searchRefs resolves the document set for a search: an explicit comma
// separated docs parameter, or the selected set.
func (s *Server) searchRefs(docsParam string) []query.DocRef {
	var refs []query.DocRef
	if docsParam != "" {
		for _, id := range strings.Split(docsParam, ",") {
			id = strings.TrimSpace(id)
			if d, ok := s.deps.Docs.Get(id); ok {
				refs = append(refs, query.DocRef{ID: d.ID, Name: d.Name})
			}
		}
		return refs
	}
	for _, d := range s.deps.Docs.Selected() {
		refs = append(refs, query.DocRef{ID: d.ID, Name: d.Name})
	}
	return refs
}

func (s *Server) runSearch(r *http.Request, raw, docsParam string) ([]string, []query.DocResult, []query.DocRef, error) {
	terms := query.Parse(raw)
	if len(terms) == 0 {
		return nil, nil, nil, nil
	}
	refs := s.searchRefs(docsParam)
	results, err := s.deps.Engine.SearchAll(r.Context(), s.deps.Docs, refs, terms)
	if err != nil {
		return nil, nil, nil, err
	}
	return terms, results, refs, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	q := r.URL.Query()
	terms, results, refs, err := s.runSearch(r, q.Get("q"), q.Get("docs"))
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "search failed")
		return
	}
	if len(terms) == 0 {
		writeJSON(w, http.StatusOK, searchResponse{Results: []searchResultRow{}})
		return
	}

	// Only searches that actually hit something make it into the history.
	if len(results) > 0 {
		used := make([]string, len(refs))
		for i, ref := range refs {
			used[i] = ref.Name
		}
		if err := s.deps.Store.AppendSearchLog(q.Get("q"), used, len(results)); err != nil {
			webLog.Warn("search log write failed", "error", err)
		}
	}

	// Window the result list server side so clients only render what
	// fits their view.
	cfg := viewport.Config{
		ItemHeight: intParam(q.Get("item_height"), 1),
		ViewHeight: intParam(q.Get("view_height"), len(results)),
		Overscan:   intParam(q.Get("overscan"), viewport.DefaultOverscan),
	}
	win := cfg.Window(intParam(q.Get("scroll"), 0), len(results))

	scheme := highlight.Assign(terms)
	rows := make([]searchResultRow, 0, win.Len())
	for _, res := range results[win.Start:win.End] {
		rows = append(rows, searchResultRow{
			DocResult: res,
			Marked:    scheme.Mark(res.Text),
		})
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Terms:   terms,
		Total:   len(results),
		Window:  win,
		Results: rows,
	})
}

func (s *Server) handleSearchLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	logs, err := s.deps.Store.SearchLogs()
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load search logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var body struct {
		Query string `json:"query"`
		Docs  string `json:"docs"`
		Title string `json:"title"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid body")
		return
	}

	terms, results, _, err := s.runSearch(r, body.Query, body.Docs)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "search failed")
		return
	}
	if len(terms) == 0 {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "query is required")
		return
	}

	title := body.Title
	if title == "" {
		title = "검색 결과: " + body.Query
	}

	var buf bytes.Buffer
	scheme := highlight.Assign(terms)
	if err := export.RenderDocx(&buf, title, export.SectionsByDocument(results), scheme); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "export failed")
		return
	}

	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", `attachment; filename="search-results.docx"`)
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
