// Package service provides the catalog business logic shared by the HTTP
// handlers and the CLI, delegating persistence to the app registry.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/datavtar/localfirst/internal/ai"
	"github.com/datavtar/localfirst/internal/apps"
	"github.com/datavtar/localfirst/internal/query"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Catalog resolves apps by name. *apps.Registry implements it.
type Catalog interface {
	// App returns the app called name.
	App(name string) (*apps.App, bool)
	// Names lists every app.
	Names() []string
}

// AIError carries a collaborator failure together with a message fit for
// end users.
type AIError struct {
	Message string
	Err     error
}

func (e *AIError) Error() string { return e.Message }

func (e *AIError) Unwrap() error { return e.Err }

// AppInfo summarises one app.
type AppInfo struct {
	Name        string           `json:"name"`
	Title       string           `json:"title"`
	Collections []CollectionInfo `json:"collections"`
}

// CollectionInfo summarises one collection.
type CollectionInfo struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Columns []string `json:"columns"`
}

// Page is one query result.
type Page struct {
	Items []any `json:"items"`
	Total int   `json:"total"`
}

// Item is one entity and, when requested, its resolved references.
type Item struct {
	Item any            `json:"item"`
	Refs map[string]any `json:"refs,omitempty"`
}

// Extraction is a draft entity proposed by the AI collaborator.
type Extraction struct {
	Draft any    `json:"draft"`
	Text  string `json:"text"`
}

// CatalogService implements CRUD, query and data lifecycle operations over
// the bundled apps.
type CatalogService struct {
	catalog Catalog
	ai      ai.Completer
	log     *zap.Logger
	now     func() time.Time
}

// NewCatalogService constructs a CatalogService. completer may be nil, in
// which case Extract reports that AI is not configured.
func NewCatalogService(catalog Catalog, completer ai.Completer, log *zap.Logger) *CatalogService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogService{catalog: catalog, ai: completer, log: log, now: time.Now}
}

func (s *CatalogService) app(name string) (*apps.App, error) {
	a, ok := s.catalog.App(name)
	if !ok {
		return nil, fmt.Errorf("%w: app %q", store.ErrNotFound, name)
	}
	return a, nil
}

func (s *CatalogService) collection(app, coll string) (apps.Collection, error) {
	a, err := s.app(app)
	if err != nil {
		return nil, err
	}
	c, ok := a.Collection(coll)
	if !ok {
		return nil, fmt.Errorf("%w: collection %q in %s", store.ErrNotFound, coll, app)
	}
	return c, nil
}

// Apps lists every app with its collections.
func (s *CatalogService) Apps(ctx context.Context) []AppInfo {
	var out []AppInfo
	for _, name := range s.catalog.Names() {
		a, _ := s.catalog.App(name)
		info := AppInfo{Name: name, Title: a.Settings().Title}
		for _, c := range a.Collections() {
			info.Collections = append(info.Collections, CollectionInfo{Name: c.Name(), Count: c.Len(), Columns: c.Columns()})
		}
		out = append(out, info)
	}
	return out
}

// Query returns one page of the derived view of a collection.
func (s *CatalogService) Query(ctx context.Context, app, coll string, p query.Params, offset, limit int) (Page, error) {
	c, err := s.collection(app, coll)
	if err != nil {
		return Page{}, err
	}
	if a, ok := s.catalog.App(app); ok && p.Locale == language.Und {
		p.Locale = a.Locale()
	}
	items, total := c.Query(p, offset, limit)
	return Page{Items: items, Total: total}, nil
}

// Get returns one entity. With expand, its references are resolved too.
func (s *CatalogService) Get(ctx context.Context, app, coll, id string, expand bool) (Item, error) {
	c, err := s.collection(app, coll)
	if err != nil {
		return Item{}, err
	}
	v, ok := c.Get(id)
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	out := Item{Item: v}
	if expand {
		if out.Refs, err = c.Refs(id); err != nil {
			return Item{}, err
		}
	}
	return out, nil
}

// Create adds an entity from its JSON form. A persistence failure still
// returns the entity, which stays in memory.
func (s *CatalogService) Create(ctx context.Context, app, coll string, raw json.RawMessage) (any, error) {
	c, err := s.collection(app, coll)
	if err != nil {
		return nil, err
	}
	return c.Create(ctx, raw)
}

// Update replaces an entity from its JSON form.
func (s *CatalogService) Update(ctx context.Context, app, coll, id string, raw json.RawMessage) (any, error) {
	c, err := s.collection(app, coll)
	if err != nil {
		return nil, err
	}
	return c.Update(ctx, id, raw)
}

// Delete removes an entity. Deleting a missing id succeeds.
func (s *CatalogService) Delete(ctx context.Context, app, coll, id string) error {
	c, err := s.collection(app, coll)
	if err != nil {
		return err
	}
	return c.Remove(ctx, id)
}

// Export snapshots every collection and the settings of app.
func (s *CatalogService) Export(ctx context.Context, app string) (transfer.Document, string, error) {
	a, err := s.app(app)
	if err != nil {
		return transfer.Document{}, "", err
	}
	now := s.now()
	doc, err := transfer.ExportSnapshot(a.Targets(), a.SettingsTarget(), now)
	if err != nil {
		return transfer.Document{}, "", err
	}
	return doc, transfer.Filename(app, "backup", transfer.FormatJSON, now), nil
}

// ExportCollection writes one collection in format f.
func (s *CatalogService) ExportCollection(ctx context.Context, app, coll string, f transfer.Format, w io.Writer) (string, error) {
	c, err := s.collection(app, coll)
	if err != nil {
		return "", err
	}
	name := transfer.Filename(app, coll, f, s.now())
	if f == transfer.FormatCSV {
		return name, transfer.ExportDelimited(w, c, ',')
	}
	raw, err := c.Export()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return name, err
}

// Template renders an example import document for one collection.
func (s *CatalogService) Template(ctx context.Context, app, coll string, f transfer.Format) ([]byte, string, error) {
	c, err := s.collection(app, coll)
	if err != nil {
		return nil, "", err
	}
	b, err := transfer.ExportTemplate(c, f)
	if err != nil {
		return nil, "", err
	}
	return b, transfer.Filename(app, coll+"_template", f, s.now()), nil
}

// Import applies a JSON document to app. coll narrows a bare array
// document to one collection; it may be empty for a full snapshot.
func (s *CatalogService) Import(ctx context.Context, app, coll string, data []byte) (transfer.Result, error) {
	a, err := s.app(app)
	if err != nil {
		return transfer.Result{}, err
	}
	targets := a.Targets()
	settings := a.SettingsTarget()
	if coll != "" {
		c, err := s.collection(app, coll)
		if err != nil {
			return transfer.Result{}, err
		}
		targets, settings = []transfer.Target{c}, nil
	}
	res, err := transfer.ImportDocument(ctx, data, targets, settings)
	s.log.Info("import finished", zap.String("app", app), zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped), zap.Error(err))
	return res, err
}

// ImportCSV reads a delimited table into one collection.
func (s *CatalogService) ImportCSV(ctx context.Context, app, coll string, r io.Reader, delim rune) (transfer.Result, error) {
	c, err := s.collection(app, coll)
	if err != nil {
		return transfer.Result{}, err
	}
	res, err := transfer.ImportDelimited(ctx, r, c, delim)
	s.log.Info("csv import finished", zap.String("app", app), zap.String("collection", coll),
		zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped), zap.Error(err))
	return res, err
}

// Reset drops every collection and the settings of app, restoring the
// defaults.
func (s *CatalogService) Reset(ctx context.Context, app string) error {
	a, err := s.app(app)
	if err != nil {
		return err
	}
	if err := a.Reset(ctx); err != nil {
		s.log.Warn("reset failed", zap.String("app", app), zap.Error(err))
		return err
	}
	s.log.Info("app reset", zap.String("app", app))
	return nil
}

// Settings returns the preferences of app.
func (s *CatalogService) Settings(ctx context.Context, app string) (apps.Settings, error) {
	a, err := s.app(app)
	if err != nil {
		return apps.Settings{}, err
	}
	return a.Settings(), nil
}

// SaveSettings replaces the preferences of app.
func (s *CatalogService) SaveSettings(ctx context.Context, app string, v apps.Settings) error {
	a, err := s.app(app)
	if err != nil {
		return err
	}
	return a.SaveSettings(ctx, v)
}

// Extract proposes a draft entity from a prompt and an optional attachment.
// Collaborator failures come back as *AIError and never touch the stores.
func (s *CatalogService) Extract(ctx context.Context, app, coll, prompt string, att *ai.Attachment) (Extraction, error) {
	c, err := s.collection(app, coll)
	if err != nil {
		return Extraction{}, err
	}
	if s.ai == nil {
		return Extraction{}, &AIError{Message: ai.Message(ai.ErrNotConfigured), Err: ai.ErrNotConfigured}
	}
	draft, text, err := c.Extract(ctx, s.ai, prompt, att)
	if err != nil {
		s.log.Warn("ai extraction failed", zap.String("app", app), zap.String("collection", coll), zap.Error(err))
		return Extraction{}, &AIError{Message: ai.Message(err), Err: err}
	}
	return Extraction{Draft: draft, Text: text}, nil
}
