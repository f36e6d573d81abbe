package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/unseen/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs plain text for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds partitions and probe errors.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report.
func (w *SimpleWriter) Write(r *Report) (int, error) {
	var sb strings.Builder

	w.writeTor(&sb, r)
	w.writeContainers(&sb, r)
	w.writeLeaks(&sb, r)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeTor(sb *strings.Builder, r *Report) {
	section(sb, "TOR")

	st := r.Tor
	fmt.Fprintf(sb, "  State:     %s\n", st.State)
	fmt.Fprintf(sb, "  SOCKS:     127.0.0.1:%d\n", st.Port)
	if st.Percent > 0 {
		fmt.Fprintf(sb, "  Bootstrap: %d%% %s\n", st.Percent, st.Message)
	}
	switch {
	case st.Adopted:
		sb.WriteString("  Backend:   existing listener\n")
	case st.Embedded:
		sb.WriteString("  Backend:   embedded\n")
	case st.PID > 0:
		fmt.Fprintf(sb, "  Backend:   process %d\n", st.PID)
	}
	if w.verbose && st.DataDir != "" {
		fmt.Fprintf(sb, "  Data dir:  %s\n", st.DataDir)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeContainers(sb *strings.Builder, r *Report) {
	section(sb, "CONTAINERS")

	if len(r.Containers) == 0 {
		sb.WriteString("  No containers\n\n")
		return
	}

	for _, e := range r.Containers {
		route := "direct"
		if e.Tor {
			route = "tor"
		}
		kind := "ephemeral"
		if e.Persistent {
			kind = "persistent"
		}
		fmt.Fprintf(sb, "  [%s] %-16s route=%-6s %s\n", indicator(e.Verdict()), e.Name, route, kind)
		if e.Probe != nil && e.Probe.IP() != "" {
			fmt.Fprintf(sb, "      egress: %s (%s)\n", e.Probe.IP(), e.Verdict())
		}
		if w.verbose {
			fmt.Fprintf(sb, "      partition: %s\n", e.Partition)
			if e.Probe != nil && e.Probe.Error != "" {
				fmt.Fprintf(sb, "      error: %s\n", e.Probe.Error)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeLeaks(sb *strings.Builder, r *Report) {
	leaks := r.Leaks()
	if len(leaks) == 0 {
		return
	}
	section(sb, "WARNING")
	for _, name := range leaks {
		fmt.Fprintf(sb, "  %s has Tor enabled but its traffic is not using Tor\n", name)
	}
	sb.WriteString("\n")
}

// indicator returns a short marker for a verdict.
func indicator(verdict string) string {
	switch verdict {
	case model.VerdictAnonymous:
		return "T"
	case model.VerdictDirect:
		return "D"
	case model.VerdictLeak:
		return "!!"
	case model.VerdictFailed:
		return "x"
	default:
		return "?"
	}
}
