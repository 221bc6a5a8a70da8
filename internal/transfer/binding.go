package transfer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/datavtar/localfirst/internal/models"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/google/uuid"
)

// Format is a portable document format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat maps a user supplied name to a Format, defaulting to JSON.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatCSV)) {
		return FormatCSV
	}
	return FormatJSON
}

// Target is a collection taking part in export, import and reset.
type Target interface {
	// Name is the collection key inside documents.
	Name() string
	// Export encodes the whole collection as a JSON array.
	Export() (json.RawMessage, error)
	// Template renders one example record.
	Template(f Format) ([]byte, error)
	// WriteRows renders the collection as delimited text with a header row.
	WriteRows(w *csv.Writer) error
	// Reset clears the collection and removes its persisted key.
	Reset(ctx context.Context) error

	importRecords(ctx context.Context, records []json.RawMessage) (Counts, []ValidationError, error)
	importRow(row map[string]string) (any, error)
	columns() []string
	required() []string
	insertRows(ctx context.Context, rows []any) error
}

// Binding adapts a typed store to Target.
type Binding[T models.Entity[T]] struct {
	name     string
	store    *store.Store[T]
	contract Contract[T]
}

// Bind exposes s under name using contract c.
func Bind[T models.Entity[T]](name string, s *store.Store[T], c Contract[T]) *Binding[T] {
	return &Binding[T]{name: name, store: s, contract: c}
}

func (b *Binding[T]) Name() string { return b.name }

// Store returns the bound store.
func (b *Binding[T]) Store() *store.Store[T] { return b.store }

// Contract returns the bound contract.
func (b *Binding[T]) Contract() Contract[T] { return b.contract }

func (b *Binding[T]) Export() (json.RawMessage, error) {
	return b.store.MarshalJSON()
}

func (b *Binding[T]) Template(f Format) ([]byte, error) {
	if f == FormatCSV {
		if b.contract.ToRow == nil {
			return nil, fmt.Errorf("%s has no delimited form", b.name)
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write(b.contract.Columns)
		_ = w.Write(b.contract.ToRow(b.contract.Example))
		w.Flush()
		return buf.Bytes(), w.Error()
	}
	return json.MarshalIndent([]T{b.contract.Example}, "", "  ")
}

func (b *Binding[T]) WriteRows(w *csv.Writer) error {
	if b.contract.ToRow == nil {
		return fmt.Errorf("%s has no delimited form", b.name)
	}
	if err := w.Write(b.contract.Columns); err != nil {
		return err
	}
	for _, it := range b.store.List() {
		if err := w.Write(b.contract.ToRow(it)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (b *Binding[T]) Reset(ctx context.Context) error {
	return b.store.Drop(ctx)
}

// Validate reports the first required field raw lacks as a ValidationError.
func (b *Binding[T]) Validate(raw json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &ParseError{Format: string(FormatJSON), Err: err}
	}
	if missing := missingField(fields, b.contract.Required); missing != "" {
		return ValidationError{Collection: b.name, Field: missing, Reason: "required field missing"}
	}
	return nil
}

func (b *Binding[T]) columns() []string  { return b.contract.Columns }
func (b *Binding[T]) required() []string { return b.contract.Required }

// importRecords validates each record, skipping the invalid ones, and inserts
// the rest with a single write.
func (b *Binding[T]) importRecords(ctx context.Context, records []json.RawMessage) (Counts, []ValidationError, error) {
	var (
		counts   Counts
		problems []ValidationError
		accepted []T
	)
	seen := map[string]bool{}
	for i, raw := range records {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			counts.Skipped++
			problems = append(problems, ValidationError{Collection: b.name, Index: i, Reason: "not an object"})
			continue
		}
		if missing := missingField(fields, b.contract.Required); missing != "" {
			counts.Skipped++
			problems = append(problems, ValidationError{Collection: b.name, Index: i, Field: missing, Reason: "required field missing"})
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			counts.Skipped++
			problems = append(problems, ValidationError{Collection: b.name, Index: i, Reason: err.Error()})
			continue
		}
		v = b.assignID(v, seen)
		accepted = append(accepted, v)
	}
	if _, err := b.store.Insert(ctx, accepted...); err != nil {
		var pe *store.PersistenceError
		if !errors.As(err, &pe) {
			return Counts{Skipped: len(records)}, problems, err
		}
		counts.Imported = len(accepted)
		return counts, problems, err
	}
	counts.Imported = len(accepted)
	return counts, problems, nil
}

// assignID keeps a carried id only when it is new to both the store and the
// current batch.
func (b *Binding[T]) assignID(v T, seen map[string]bool) T {
	m := v.EntityMeta()
	if m.ID == "" || seen[m.ID] || b.store.Has(m.ID) {
		m.ID = uuid.NewString()
	}
	seen[m.ID] = true
	return v.WithMeta(m)
}

func (b *Binding[T]) importRow(row map[string]string) (any, error) {
	if b.contract.FromRow == nil {
		return nil, fmt.Errorf("%s has no delimited form", b.name)
	}
	v, err := b.contract.FromRow(row)
	if err != nil {
		return nil, err
	}
	m := v.EntityMeta()
	m.ID = strings.TrimSpace(row["id"])
	return v.WithMeta(m), nil
}

func (b *Binding[T]) insertRows(ctx context.Context, rows []any) error {
	seen := map[string]bool{}
	items := make([]T, 0, len(rows))
	for _, r := range rows {
		items = append(items, b.assignID(r.(T), seen))
	}
	_, err := b.store.Insert(ctx, items...)
	return err
}

func missingField(fields map[string]json.RawMessage, required []string) string {
	for _, name := range required {
		raw, ok := fields[name]
		if !ok {
			return name
		}
		switch strings.TrimSpace(string(raw)) {
		case "", "null", `""`, "[]":
			return name
		}
	}
	return ""
}
