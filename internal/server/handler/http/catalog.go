// Package http provides the HTTP handlers and routing of the catalog API.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/datavtar/localfirst/internal/ai"
	"github.com/datavtar/localfirst/internal/apps"
	"github.com/datavtar/localfirst/internal/query"
	"github.com/datavtar/localfirst/internal/service"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
	"github.com/go-chi/chi/v5"
)

// maxBody bounds request bodies, including uploads.
const maxBody = 32 << 20

// CatalogService defines the catalog operations required by CatalogHandler.
type CatalogService interface {
	Apps(ctx context.Context) []service.AppInfo
	Query(ctx context.Context, app, coll string, p query.Params, offset, limit int) (service.Page, error)
	Get(ctx context.Context, app, coll, id string, expand bool) (service.Item, error)
	Create(ctx context.Context, app, coll string, raw json.RawMessage) (any, error)
	Update(ctx context.Context, app, coll, id string, raw json.RawMessage) (any, error)
	Delete(ctx context.Context, app, coll, id string) error
	Export(ctx context.Context, app string) (transfer.Document, string, error)
	ExportCollection(ctx context.Context, app, coll string, f transfer.Format, w io.Writer) (string, error)
	Template(ctx context.Context, app, coll string, f transfer.Format) ([]byte, string, error)
	Import(ctx context.Context, app, coll string, data []byte) (transfer.Result, error)
	ImportCSV(ctx context.Context, app, coll string, r io.Reader, delim rune) (transfer.Result, error)
	Reset(ctx context.Context, app string) error
	Settings(ctx context.Context, app string) (apps.Settings, error)
	SaveSettings(ctx context.Context, app string, v apps.Settings) error
	Extract(ctx context.Context, app, coll, prompt string, att *ai.Attachment) (service.Extraction, error)
}

// CatalogHandler serves the /api/apps endpoints.
type CatalogHandler struct {
	Service CatalogService
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, &transfer.ParseError{Format: "request", Err: err}
	}
	return b, nil
}

// attachment sets the headers of a file download.
func attachment(w http.ResponseWriter, name, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}

func contentType(f transfer.Format) string {
	if f == transfer.FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Apps handles GET /api/apps.
func (h *CatalogHandler) Apps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Apps(r.Context()))
}

// List handles GET /api/apps/{app}/{coll}. Query parameters follow
// query.ParseParams plus offset and limit.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	page, err := h.Service.Query(r.Context(), chi.URLParam(r, "app"), chi.URLParam(r, "coll"), query.ParseParams(q), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /api/apps/{app}/{coll}/{id}. With expand=true the
// referenced entities are included; dangling references are null.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	expand, _ := strconv.ParseBool(r.URL.Query().Get("expand"))
	item, err := h.Service.Get(r.Context(), chi.URLParam(r, "app"), chi.URLParam(r, "coll"), chi.URLParam(r, "id"), expand)
	if err != nil {
		writeError(w, err)
		return
	}
	if !expand {
		writeJSON(w, http.StatusOK, item.Item)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// writeMutation reports the result of a create or update. A persistence
// failure still returns the entity, which is live in memory.
func writeMutation(w http.ResponseWriter, status int, v any, err error) {
	var pe *store.PersistenceError
	switch {
	case err == nil:
		writeJSON(w, status, v)
	case errors.As(err, &pe) && v != nil:
		writeJSON(w, http.StatusInsufficientStorage, map[string]any{"item": v, "error": err.Error()})
	default:
		writeError(w, err)
	}
}

// Create handles POST /api/apps/{app}/{coll}.
func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := h.Service.Create(r.Context(), chi.URLParam(r, "app"), chi.URLParam(r, "coll"), body)
	writeMutation(w, http.StatusCreated, v, err)
}

// Update handles PUT /api/apps/{app}/{coll}/{id}.
func (h *CatalogHandler) Update(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := h.Service.Update(r.Context(), chi.URLParam(r, "app"), chi.URLParam(r, "coll"), chi.URLParam(r, "id"), body)
	writeMutation(w, http.StatusOK, v, err)
}

// Delete handles DELETE /api/apps/{app}/{coll}/{id}. It is idempotent.
func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "app"), chi.URLParam(r, "coll"), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Template handles GET /api/apps/{app}/{coll}/template?format=json|csv.
func (h *CatalogHandler) Template(w http.ResponseWriter, r *http.Request) {
	f := transfer.ParseFormat(r.URL.Query().Get("format"))
	b, name, err := h.Service.Template(r.Context(), chi.URLParam(r, "app"), chi.URLParam(r, "coll"), f)
	if err != nil {
		writeError(w, err)
		return
	}
	attachment(w, name, contentType(f))
	_, _ = w.Write(b)
}

// ExportCollection handles GET /api/apps/{app}/{coll}/export?format=json|csv.
func (h *CatalogHandler) ExportCollection(w http.ResponseWriter, r *http.Request) {
	f := transfer.ParseFormat(r.URL.Query().Get("format"))
	var buf bytes.Buffer
	name, err := h.Service.ExportCollection(r.Context(), chi.URLParam(r, "app"), chi.URLParam(r, "coll"), f, &buf)
	if err != nil {
		writeError(w, err)
		return
	}
	attachment(w, name, contentType(f))
	_, _ = buf.WriteTo(w)
}

// ImportCollection handles POST /api/apps/{app}/{coll}/import. A text/csv
// body is read as a delimited table (delim selects the separator); anything
// else is read as a JSON document.
func (h *CatalogHandler) ImportCollection(w http.ResponseWriter, r *http.Request) {
	app, coll := chi.URLParam(r, "app"), chi.URLParam(r, "coll")
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		res transfer.Result
		err error
	)
	if mt == "text/csv" {
		delim, derr := parseDelim(r.URL.Query().Get("delim"))
		if derr != nil {
			writeError(w, derr)
			return
		}
		res, err = h.Service.ImportCSV(r.Context(), app, coll, http.MaxBytesReader(w, r.Body, maxBody), delim)
	} else {
		body, rerr := readBody(w, r)
		if rerr != nil {
			writeError(w, rerr)
			return
		}
		res, err = h.Service.Import(r.Context(), app, coll, body)
	}
	writeImport(w, res, err)
}

func parseDelim(s string) (rune, error) {
	if s == "" {
		return ',', nil
	}
	if s == `\t` || s == "tab" {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError {
		return 0, &transfer.ParseError{Format: string(transfer.FormatCSV), Err: fmt.Errorf("invalid delimiter %q", s)}
	}
	return r, nil
}

func writeImport(w http.ResponseWriter, res transfer.Result, err error) {
	var pe *store.PersistenceError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.As(err, &pe):
		writeJSON(w, http.StatusInsufficientStorage, map[string]any{"result": res, "error": err.Error()})
	default:
		writeError(w, err)
	}
}

// Export handles GET /api/apps/{app}/export.
func (h *CatalogHandler) Export(w http.ResponseWriter, r *http.Request) {
	doc, name, err := h.Service.Export(r.Context(), chi.URLParam(r, "app"))
	if err != nil {
		writeError(w, err)
		return
	}
	attachment(w, name, "application/json")
	_ = transfer.WriteDocument(w, doc)
}

// Import handles POST /api/apps/{app}/import with a full snapshot.
func (h *CatalogHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Service.Import(r.Context(), chi.URLParam(r, "app"), "", body)
	writeImport(w, res, err)
}

// Reset handles POST /api/apps/{app}/reset.
func (h *CatalogHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Reset(r.Context(), chi.URLParam(r, "app")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Settings handles GET /api/apps/{app}/settings.
func (h *CatalogHandler) Settings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Service.Settings(r.Context(), chi.URLParam(r, "app"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SaveSettings handles PUT /api/apps/{app}/settings.
func (h *CatalogHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var s apps.Settings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&s); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Service.SaveSettings(r.Context(), chi.URLParam(r, "app"), s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Extract handles POST /api/apps/{app}/{coll}/extract. The multipart form
// carries a prompt field and an optional file field.
func (h *CatalogHandler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(maxBody); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	var att *ai.Attachment
	if f, hdr, err := r.FormFile("file"); err == nil {
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "invalid upload", http.StatusBadRequest)
			return
		}
		att = &ai.Attachment{Name: hdr.Filename, ContentType: hdr.Header.Get("Content-Type"), Data: data}
	}
	out, err := h.Service.Extract(r.Context(), chi.URLParam(r, "app"), chi.URLParam(r, "coll"), r.FormValue("prompt"), att)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
