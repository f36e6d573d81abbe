package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/tor"
)

func ptr[T any](v T) *T { return &v }

// createTestReport builds a report with one container per verdict.
func createTestReport() *Report {
	work := model.NewContainer("Work", true)
	work.AnonymityEnabled = true
	shop := model.NewContainer("Shopping", true)
	shop.AnonymityEnabled = true
	private := model.NewContainer("Private", false)
	banking := model.NewContainer("Banking", true)

	probes := []model.ProbeResult{
		{Container: "Work", ExpectedAnonymity: true, Succeeded: true, ObservedIP: ptr("198.51.100.1"), ObservedAnonymity: ptr(true)},
		{Container: "Shopping", ExpectedAnonymity: true, Succeeded: true, ObservedIP: ptr("203.0.113.7"), ObservedAnonymity: ptr(false)},
		{Container: "Private", Succeeded: false, Error: "ip probe: connection refused"},
		{Container: "Ghost", Succeeded: true},
	}
	status := tor.Status{State: tor.StateReady, Port: 9050, Percent: 100, Message: "done", PID: 4242, DataDir: "/tmp/tor"}
	return New(status, []model.Container{work, shop, private, banking}, probes)
}

func TestNew(t *testing.T) {
	t.Parallel()

	r := createTestReport()
	if len(r.Containers) != 4 {
		t.Fatalf("got %d containers", len(r.Containers))
	}

	want := map[string]string{
		"Work":     model.VerdictAnonymous,
		"Shopping": model.VerdictLeak,
		"Private":  model.VerdictFailed,
		"Banking":  VerdictUnchecked,
	}
	for _, e := range r.Containers {
		if e.Verdict() != want[e.Name] {
			t.Errorf("%s: Verdict() = %q, want %q", e.Name, e.Verdict(), want[e.Name])
		}
	}
	if leaks := r.Leaks(); len(leaks) != 1 || leaks[0] != "Shopping" {
		t.Errorf("Leaks() = %v", leaks)
	}
	counts := r.VerdictCounts()
	if counts[model.VerdictAnonymous] != 1 || counts[VerdictUnchecked] != 1 {
		t.Errorf("VerdictCounts() = %v", counts)
	}
	if got := sortedVerdicts(counts); got[0] != model.VerdictLeak {
		t.Errorf("sortedVerdicts() = %v, want leaks first", got)
	}
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tor and containers", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("n = %d, buffer has %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{
			"State:     ready",
			"127.0.0.1:9050",
			"process 4242",
			"[T] Work",
			"[!!] Shopping",
			"egress: 203.0.113.7 (LEAK)",
			"Shopping has Tor enabled but its traffic is not using Tor",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
		if strings.Contains(output, "partition:") {
			t.Error("partition shown without verbose")
		}
	})

	t.Run("verbose adds partitions and errors", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		for _, want := range []string{"partition: persist:c-Work", "partition: c-Private", "error: ip probe", "Data dir:  /tmp/tor"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("empty report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(New(tor.Status{}, nil, nil)); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "No containers") || strings.Contains(buf.String(), "WARNING") {
			t.Errorf("unexpected output:\n%s", buf.String())
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("compact output should be one line")
		}

		var decoded struct {
			Tor struct {
				State string `json:"state"`
			} `json:"tor"`
			Containers []struct {
				Name  string `json:"name"`
				Probe *struct {
					IsTor *bool `json:"isTor"`
				} `json:"probe"`
			} `json:"containers"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Tor.State != "ready" {
			t.Errorf("tor.state = %q", decoded.Tor.State)
		}
		if len(decoded.Containers) != 4 || decoded.Containers[3].Probe != nil {
			t.Errorf("containers = %+v", decoded.Containers)
		}
		if p := decoded.Containers[0].Probe; p == nil || p.IsTor == nil || !*p.IsTor {
			t.Error("Work probe should report isTor=true")
		}
	})

	t.Run("compact and pretty", func(t *testing.T) {
		t.Parallel()

		var compact, pretty bytes.Buffer
		if _, err := NewJSONWriter(&compact).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		if _, err := NewJSONWriter(&pretty, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatal(err)
		}
		if strings.Count(compact.String(), "\n") != 1 {
			t.Errorf("compact output spans lines:\n%s", compact.String())
		}
		if !strings.HasPrefix(pretty.String(), "{\n  \"generatedAt\"") {
			t.Errorf("unexpected pretty output:\n%s", pretty.String())
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
		t.Fatal(err)
	}
	output := buf.String()
	for _, want := range []string{
		"# unseen status",
		"## Containers",
		"`persist:c-Work`",
		"pie",
		"[!CAUTION]",
		"Shopping",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected markdown to contain %q\n%s", want, output)
		}
	}

	t.Run("tor not ready", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		r := New(tor.Status{State: tor.StateStopped}, []model.Container{model.NewContainer("Private", false)}, nil)
		if _, err := NewMarkdownWriter(&buf).Write(r); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "[!NOTE]") || strings.Contains(buf.String(), "pie") {
			t.Errorf("unexpected markdown:\n%s", buf.String())
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(*Report) (int, error) { return 3, errors.New("disk full") }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b))
	n, err := mw.Write(createTestReport())
	if err != nil {
		t.Fatal(err)
	}
	if n != a.Len()+b.Len() {
		t.Errorf("n = %d, want %d", n, a.Len()+b.Len())
	}

	var c bytes.Buffer
	mw = NewMultiWriter(failingWriter{}, nil, NewSimpleWriter(&c))
	if len(mw) != 2 {
		t.Errorf("nil writer kept: %d writers", len(mw))
	}
	if n, err := mw.Write(createTestReport()); err == nil || n != 3 || c.Len() != 0 {
		t.Errorf("expected to stop at first error, got n=%d err=%v written=%d", n, err, c.Len())
	}
}
