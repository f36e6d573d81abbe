package report

import "io"

// Writer renders a report to its destination.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(r *Report) (int, error)
}

// MultiWriter fans one report out to several writers, such as a file in
// the requested format plus a summary on the terminal.
type MultiWriter []Writer

// NewMultiWriter combines writers. Nil writers are skipped.
func NewMultiWriter(writers ...Writer) MultiWriter {
	out := make(MultiWriter, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			out = append(out, w)
		}
	}
	return out
}

// Write renders r with every writer in order and stops at the first error.
func (m MultiWriter) Write(r *Report) (int, error) {
	total := 0
	for _, w := range m {
		n, err := w.Write(r)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
