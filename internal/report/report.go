package report

import (
	"slices"
	"time"

	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/tor"
)

// VerdictUnchecked marks a container without a probe result.
const VerdictUnchecked = "unchecked"

// ContainerEntry is one container row of a report.
type ContainerEntry struct {
	Name       string `json:"name"`
	Partition  string `json:"partition"`
	Persistent bool   `json:"persistent"`
	Tor        bool   `json:"tor"`
	// Probe is the latest probe result, nil when the container was not probed.
	Probe *model.ProbeResult `json:"probe,omitempty"`
}

// Verdict returns the probe verdict, or "unchecked".
func (e ContainerEntry) Verdict() string {
	if e.Probe == nil {
		return VerdictUnchecked
	}
	return e.Probe.Verdict()
}

// Report is a point-in-time view of Tor and the containers.
type Report struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Tor         tor.Status       `json:"tor"`
	Containers  []ContainerEntry `json:"containers"`
}

// New builds a report. Probe results are matched to containers by name;
// results for unknown containers are ignored.
func New(status tor.Status, containers []model.Container, probes []model.ProbeResult) *Report {
	byName := make(map[string]model.ProbeResult, len(probes))
	for _, p := range probes {
		byName[p.Container] = p
	}

	r := &Report{
		GeneratedAt: time.Now(),
		Tor:         status,
		Containers:  make([]ContainerEntry, 0, len(containers)),
	}
	for _, c := range containers {
		e := ContainerEntry{
			Name:       c.Name,
			Partition:  c.PartitionID,
			Persistent: c.Persistent,
			Tor:        c.AnonymityEnabled,
		}
		if p, ok := byName[c.Name]; ok {
			e.Probe = &p
		}
		r.Containers = append(r.Containers, e)
	}
	return r
}

// Leaks returns the containers whose probe showed direct egress despite
// anonymity being enabled.
func (r *Report) Leaks() []string {
	var out []string
	for _, e := range r.Containers {
		if e.Verdict() == model.VerdictLeak {
			out = append(out, e.Name)
		}
	}
	return out
}

// VerdictCounts counts containers per verdict.
func (r *Report) VerdictCounts() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Containers {
		counts[e.Verdict()]++
	}
	return counts
}

// verdictOrder is the display order of verdicts.
var verdictOrder = []string{
	model.VerdictLeak,
	model.VerdictFailed,
	model.VerdictAnonymous,
	model.VerdictDirect,
	VerdictUnchecked,
}

func sortedVerdicts(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for _, v := range verdictOrder {
		if counts[v] > 0 {
			out = append(out, v)
		}
	}
	return slices.Clip(out)
}
