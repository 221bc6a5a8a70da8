// Package query derives filtered and sorted views from a collection
// snapshot. Everything here is pure: inputs are never mutated and nothing
// returns an error.
package query

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Kind selects how a field is compared when sorting.
type Kind int

const (
	// KindText sorts with a locale aware collator.
	KindText Kind = iota
	// KindNumber sorts numerically.
	KindNumber
	// KindDate sorts ISO 8601 strings lexicographically, which matches
	// chronological order for that format.
	KindDate
)

// Field gives the query engine access to one entity attribute. Strings
// returns nil and Number returns false when the attribute is absent.
type Field[T any] struct {
	Kind    Kind
	Strings func(T) []string
	Number  func(T) (float64, bool)
}

// Schema names the fields of T that queries may use.
type Schema[T any] struct {
	Fields map[string]Field[T]
	// Search lists the fields scanned by Params.Search.
	Search []string
	// Locale drives string collation; the zero value means language.Und.
	Locale language.Tag
}

// Text is a single string field. The empty string counts as absent.
func Text[T any](get func(T) string) Field[T] {
	return Field[T]{Kind: KindText, Strings: func(v T) []string {
		if s := get(v); s != "" {
			return []string{s}
		}
		return nil
	}}
}

// List is a string slice field such as tags or ingredients.
func List[T any](get func(T) []string) Field[T] {
	return Field[T]{Kind: KindText, Strings: func(v T) []string {
		if l := get(v); len(l) > 0 {
			return l
		}
		return nil
	}}
}

// Date is an ISO 8601 string field. The empty string counts as absent.
func Date[T any](get func(T) string) Field[T] {
	f := Text(get)
	f.Kind = KindDate
	return f
}

// timeLayout is RFC 3339 with a fixed nine digit fraction, so that byte
// order of the UTC rendering is chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Time is a timestamp field, compared via its fixed width UTC form. The zero
// time counts as absent.
func Time[T any](get func(T) time.Time) Field[T] {
	return Field[T]{Kind: KindDate, Strings: func(v T) []string {
		t := get(v)
		if t.IsZero() {
			return nil
		}
		return []string{t.UTC().Format(timeLayout)}
	}}
}

// Number is a float field that is always present.
func Number[T any](get func(T) float64) Field[T] {
	return Field[T]{Kind: KindNumber, Number: func(v T) (float64, bool) { return get(v), true }}
}

// Int is an integer field that is always present.
func Int[T any](get func(T) int) Field[T] {
	return Field[T]{Kind: KindNumber, Number: func(v T) (float64, bool) { return float64(get(v)), true }}
}

// values returns the string form of a field for matching.
func (f Field[T]) values(v T) []string {
	if f.Strings != nil {
		return f.Strings(v)
	}
	if f.Number != nil {
		if n, ok := f.Number(v); ok {
			return []string{formatNumber(n)}
		}
	}
	return nil
}

func containsFold(haystack []string, needle string) bool {
	needle = strings.ToLower(needle)
	for _, h := range haystack {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}
