// Package transfer moves collections in and out of portable documents: a
// JSON snapshot of several collections, a flat delimited table for one
// collection, and example templates for building bulk imports by hand. It
// also provides the destructive reset.
package transfer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/datavtar/localfirst/internal/store"
)

const (
	exportedAtKey = "exportedAt"
	settingsKey   = "settings"
)

// Document is a snapshot of named collections plus optional settings.
type Document struct {
	ExportedAt  time.Time
	Collections map[string]json.RawMessage
	Settings    json.RawMessage
}

// MarshalJSON renders the flat {"exportedAt":..,"<name>":[..],"settings":{..}} shape.
func (d Document) MarshalJSON() ([]byte, error) {
	flat := make(map[string]json.RawMessage, len(d.Collections)+2)
	for k, v := range d.Collections {
		flat[k] = v
	}
	ts, err := json.Marshal(d.ExportedAt)
	if err != nil {
		return nil, err
	}
	flat[exportedAtKey] = ts
	if len(d.Settings) > 0 {
		flat[settingsKey] = d.Settings
	}
	return json.Marshal(flat)
}

// UnmarshalJSON accepts the flat shape produced by MarshalJSON.
func (d *Document) UnmarshalJSON(b []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	d.Collections = make(map[string]json.RawMessage, len(flat))
	for k, v := range flat {
		switch k {
		case exportedAtKey:
			_ = json.Unmarshal(v, &d.ExportedAt)
		case settingsKey:
			d.Settings = v
		default:
			d.Collections[k] = v
		}
	}
	return nil
}

// SettingsTarget is app level state carried alongside collections.
type SettingsTarget interface {
	ExportSettings() (json.RawMessage, error)
	ImportSettings(ctx context.Context, raw json.RawMessage) error
	Reset(ctx context.Context) error
}

type settingBinding[T any] struct{ s *store.Setting[T] }

// BindSetting adapts a persisted setting to SettingsTarget.
func BindSetting[T any](s *store.Setting[T]) SettingsTarget { return settingBinding[T]{s} }

func (b settingBinding[T]) ExportSettings() (json.RawMessage, error) { return json.Marshal(b.s.Get()) }

func (b settingBinding[T]) ImportSettings(ctx context.Context, raw json.RawMessage) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return b.s.Save(ctx, v)
}

func (b settingBinding[T]) Reset(ctx context.Context) error { return b.s.Drop(ctx) }

// Counts are per-collection import totals.
type Counts struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Result summarises an import.
type Result struct {
	Imported    int               `json:"imported"`
	Skipped     int               `json:"skipped"`
	Collections map[string]Counts `json:"collections"`
	Problems    []ValidationError `json:"problems,omitempty"`
	Settings    bool              `json:"settings,omitempty"`
}

func (r *Result) add(name string, c Counts, problems []ValidationError) {
	if r.Collections == nil {
		r.Collections = map[string]Counts{}
	}
	prev := r.Collections[name]
	r.Collections[name] = Counts{Imported: prev.Imported + c.Imported, Skipped: prev.Skipped + c.Skipped}
	r.Imported += c.Imported
	r.Skipped += c.Skipped
	r.Problems = append(r.Problems, problems...)
}

// ExportSnapshot captures targets and settings (which may be nil). Sources
// are only read.
func ExportSnapshot(targets []Target, settings SettingsTarget, now time.Time) (Document, error) {
	doc := Document{ExportedAt: now.UTC(), Collections: make(map[string]json.RawMessage, len(targets))}
	for _, t := range targets {
		raw, err := t.Export()
		if err != nil {
			return Document{}, fmt.Errorf("export %s: %w", t.Name(), err)
		}
		doc.Collections[t.Name()] = raw
	}
	if settings != nil {
		raw, err := settings.ExportSettings()
		if err != nil {
			return Document{}, fmt.Errorf("export settings: %w", err)
		}
		doc.Settings = raw
	}
	return doc, nil
}

// ExportTemplate renders the example record of t.
func ExportTemplate(t Target, f Format) ([]byte, error) {
	return t.Template(f)
}

// ImportDocument applies a JSON document to the matching targets. A document
// that is not valid JSON fails with *ParseError and changes nothing. Inside a
// valid document, invalid records are skipped and counted. A bare array is
// accepted when exactly one target is given. A document matching no target
// and carrying no settings yields a problem naming the expected collections.
func ImportDocument(ctx context.Context, data []byte, targets []Target, settings SettingsTarget) (Result, error) {
	var res Result
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return res, &ParseError{Format: string(FormatJSON), Err: errors.New("empty document")}
	}

	var doc Document
	if trimmed[0] == '[' {
		if len(targets) != 1 {
			return res, &ParseError{Format: string(FormatJSON), Err: errors.New("bare array needs exactly one target collection")}
		}
		if !json.Valid(trimmed) {
			return res, &ParseError{Format: string(FormatJSON), Err: errors.New("invalid JSON")}
		}
		doc.Collections = map[string]json.RawMessage{targets[0].Name(): trimmed}
	} else if err := json.Unmarshal(trimmed, &doc); err != nil {
		return res, &ParseError{Format: string(FormatJSON), Err: err}
	}

	var (
		errs    []error
		matched int
	)
	for _, t := range targets {
		raw, ok := doc.Collections[t.Name()]
		if !ok {
			continue
		}
		matched++
		var records []json.RawMessage
		if err := json.Unmarshal(raw, &records); err != nil {
			res.add(t.Name(), Counts{Skipped: 1}, []ValidationError{{Collection: t.Name(), Reason: "collection is not an array"}})
			continue
		}
		counts, problems, err := t.importRecords(ctx, records)
		res.add(t.Name(), counts, problems)
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", t.Name(), err))
		}
	}

	if settings != nil && len(doc.Settings) > 0 {
		if err := settings.ImportSettings(ctx, doc.Settings); err != nil {
			res.Problems = append(res.Problems, ValidationError{Collection: settingsKey, Reason: err.Error()})
		} else {
			res.Settings = true
		}
	}
	if matched == 0 && !res.Settings {
		res.Problems = append(res.Problems, ValidationError{
			Reason: "document holds none of: " + strings.Join(Names(targets), ", "),
		})
	}
	return res, errors.Join(errs...)
}

// ImportDelimited reads a delimited table into t. The first row is a header
// and is skipped, even when it is malformed; columns map positionally to the
// contract's Columns. Rows that break quoting, have the wrong number of
// cells, lack required values or hold unparsable cells are skipped and
// counted.
func ImportDelimited(ctx context.Context, r io.Reader, t Target, delim rune) (Result, error) {
	var res Result
	if delim == 0 {
		delim = ','
	}
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	cols := t.columns()
	var (
		counts   Counts
		problems []ValidationError
		rows     []any
		header   = true
	)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				if header {
					header = false
					continue
				}
				counts.Skipped++
				problems = append(problems, ValidationError{Collection: t.Name(), Index: pe.Line, Reason: pe.Err.Error()})
				continue
			}
			return res, &ParseError{Format: string(FormatCSV), Err: err}
		}
		if header {
			header = false
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(record) != len(cols) {
			counts.Skipped++
			problems = append(problems, ValidationError{Collection: t.Name(), Index: line,
				Reason: fmt.Sprintf("expected %d columns, got %d", len(cols), len(record))})
			continue
		}
		row := make(map[string]string, len(cols))
		for i, c := range cols {
			row[c] = strings.TrimSpace(record[i])
		}
		if missing := missingCell(row, t.required()); missing != "" {
			counts.Skipped++
			problems = append(problems, ValidationError{Collection: t.Name(), Index: line, Field: missing, Reason: "required field missing"})
			continue
		}
		v, err := t.importRow(row)
		if err != nil {
			counts.Skipped++
			problems = append(problems, ValidationError{Collection: t.Name(), Index: line, Reason: err.Error()})
			continue
		}
		rows = append(rows, v)
	}
	if header {
		return res, &ParseError{Format: string(FormatCSV), Err: errors.New("empty document")}
	}

	err := t.insertRows(ctx, rows)
	var pe *store.PersistenceError
	if err == nil || errors.As(err, &pe) {
		counts.Imported = len(rows)
	} else {
		counts.Skipped += len(rows)
	}
	res.add(t.Name(), counts, problems)
	return res, err
}

func missingCell(row map[string]string, required []string) string {
	for _, name := range required {
		if v, ok := row[name]; ok && v == "" {
			return name
		}
	}
	return ""
}

// ExportDelimited writes the whole collection of t as a delimited table.
func ExportDelimited(w io.Writer, t Target, delim rune) error {
	cw := csv.NewWriter(w)
	if delim != 0 {
		cw.Comma = delim
	}
	return t.WriteRows(cw)
}

// ResetAll drops every target: the collection is emptied and its key
// removed, so the next Load re-seeds the defaults.
func ResetAll(ctx context.Context, targets []Target, settings SettingsTarget) error {
	var errs []error
	for _, t := range targets {
		if err := t.Reset(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", t.Name(), err))
		}
	}
	if settings != nil {
		if err := settings.Reset(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reset settings: %w", err))
		}
	}
	return errors.Join(errs...)
}

// WriteDocument encodes doc as indented JSON.
func WriteDocument(w io.Writer, doc Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// Filename names a downloadable document, e.g. "recipes_backup_2024-05-01.json".
func Filename(app, kind string, f Format, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s.%s", app, kind, now.UTC().Format("2006-01-02"), f)
}

// Names lists target names sorted, for messages.
func Names(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Name()
	}
	sort.Strings(out)
	return out
}
