package client

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Prompter asks questions on a line based terminal.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

// Ask prints label and returns the trimmed answer. At end of input it
// returns "".
func (p *Prompter) Ask(label string) string {
	line, _ := p.Line(label)
	return line
}

// Line is Ask that also reports whether input is still open.
func (p *Prompter) Line(label string) (string, bool) {
	fmt.Fprint(p.out, label)
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

// Confirm asks a yes/no question; only "y" and "yes" agree.
func (p *Prompter) Confirm(question string) bool {
	switch strings.ToLower(p.Ask(question + " [y/N]: ")) {
	case "y", "yes":
		return true
	}
	return false
}

// Row asks for every column but id and renders the answers as a
// delimited document with a header, ready for a delimited import.
func (p *Prompter) Row(columns []string) []byte {
	row := make([]string, len(columns))
	for i, c := range columns {
		if c == "id" {
			continue
		}
		row[i] = p.Ask(fmt.Sprintf("Enter %s: ", c))
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(columns)
	_ = w.Write(row)
	w.Flush()
	return buf.Bytes()
}

// Payload asks for a file to load, falling back to a JSON document typed on
// one line.
func (p *Prompter) Payload() ([]byte, error) {
	path := p.Ask("Enter file path to load (leave empty for manual input): ")
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %q: %w", path, err)
		}
		return data, nil
	}
	data := p.Ask("Enter JSON: ")
	if data == "" {
		return nil, fmt.Errorf("no input")
	}
	return []byte(data), nil
}
