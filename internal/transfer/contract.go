package transfer

import (
	"fmt"
	"strconv"
	"strings"
)

// Contract describes how records of T enter and leave the portable formats.
type Contract[T any] struct {
	// Required lists the JSON field names a record must carry with a
	// non-empty value.
	Required []string
	// Columns maps delimited-text columns positionally to JSON field names.
	Columns []string
	// FromRow builds an entity from a delimited row keyed by column name.
	FromRow func(row map[string]string) (T, error)
	// ToRow renders an entity in Columns order.
	ToRow func(T) []string
	// Example is the record shown by templates.
	Example T
}

// ListSep separates list elements inside one delimited cell.
const ListSep = ";"

// SplitList splits a delimited cell into its trimmed, non-empty elements.
func SplitList(cell string) []string {
	var out []string
	for _, p := range strings.Split(cell, ListSep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinList is the inverse of SplitList.
func JoinList(items []string) string { return strings.Join(items, ListSep) }

// Int parses an optional integer cell; empty means zero.
func Int(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(cell)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", cell)
	}
	return n, nil
}

// Float parses an optional decimal cell; empty means zero.
func Float(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", cell)
	}
	return n, nil
}

// FormatInt and FormatFloat render numeric cells.
func FormatInt(n int) string { return strconv.Itoa(n) }

func FormatFloat(n float64) string { return strconv.FormatFloat(n, 'f', -1, 64) }
