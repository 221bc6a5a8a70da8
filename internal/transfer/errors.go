package transfer

import "fmt"

// ParseError reports a document that could not be parsed at all. Nothing
// from it has been applied.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s document: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError describes one skipped record.
type ValidationError struct {
	Collection string `json:"collection"`
	// Index is the zero based record index, or the 1 based line for
	// delimited input.
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s[%d]: %s: %s", e.Collection, e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s[%d]: %s", e.Collection, e.Index, e.Reason)
}
