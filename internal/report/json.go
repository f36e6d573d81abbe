package report

import (
	"bytes"
	"encoding/json"
	"io"
)

// JSONWriter renders a report as a single JSON document.
type JSONWriter struct {
	baseWriter
	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents nested values by two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = "  "
	}
}

// NewJSONWriter creates a JSONWriter writing to output.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write encodes r followed by a newline. Nothing is written when encoding
// fails.
func (w *JSONWriter) Write(r *Report) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", w.indent)
	if err := enc.Encode(r); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}
