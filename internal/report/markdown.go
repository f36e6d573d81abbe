package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/unseen/internal/tor"
)

// MarkdownWriter outputs reports in Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report.
func (w *MarkdownWriter) Write(r *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("unseen status")
	md.PlainText("")
	w.writeTor(md, r)
	w.writeContainers(md, r)
	w.writeAlert(md, r)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeTor(md *markdown.Markdown, r *Report) {
	md.H2("Tor")
	md.PlainText("")

	st := r.Tor
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"State", st.State.String()},
			{"SOCKS port", strconv.Itoa(st.Port)},
			{"Bootstrap", strconv.Itoa(st.Percent) + "%"},
			{"Adopted", strconv.FormatBool(st.Adopted)},
			{"Embedded", strconv.FormatBool(st.Embedded)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeContainers(md *markdown.Markdown, r *Report) {
	md.H2("Containers")
	md.PlainText("")

	if len(r.Containers) == 0 {
		md.PlainText("No containers.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(r.Containers))
	for i, e := range r.Containers {
		ip := "-"
		if e.Probe != nil && e.Probe.IP() != "" {
			ip = "`" + e.Probe.IP() + "`"
		}
		rows[i] = []string{
			e.Name,
			"`" + e.Partition + "`",
			strconv.FormatBool(e.Persistent),
			strconv.FormatBool(e.Tor),
			ip,
			e.Verdict(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Name", "Partition", "Persistent", "Tor", "Egress IP", "Verdict"},
		Rows:   rows,
	})
	md.PlainText("")

	counts := r.VerdictCounts()
	if len(counts) > 1 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Probe verdicts"),
			piechart.WithShowData(true),
		)
		for _, v := range sortedVerdicts(counts) {
			chart.LabelAndIntValue(v, uint64(counts[v])) //nolint:gosec // counts are non-negative
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, r *Report) {
	leaks := r.Leaks()
	switch {
	case len(leaks) > 0:
		md.Cautionf("%d container(s) with Tor enabled are not using Tor: %v", len(leaks), leaks)
	case r.Tor.State != tor.StateReady:
		md.Note("Tor is not ready. Containers with Tor enabled fall back to direct routing.")
	default:
		md.Tip("No routing leaks detected.")
	}
	md.PlainText("")
}
