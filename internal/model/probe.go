package model

import "time"

// ProbeResult is the outcome of one connectivity probe. It is reported once
// and never persisted.
type ProbeResult struct {
	Container         string `json:"container"`
	ExpectedAnonymity bool   `json:"torExpected"`
	Succeeded         bool   `json:"ok"`
	// ObservedIP is the address the echo endpoint saw, nil when unknown.
	ObservedIP *string `json:"ip"`
	// ObservedAnonymity is the check page verdict, nil when unknown.
	ObservedAnonymity *bool     `json:"isTor"`
	Error             string    `json:"error,omitempty"`
	CheckedAt         time.Time `json:"checkedAt"`
}

// Verdict values summarize a probe for humans.
const (
	VerdictAnonymous = "anonymous"
	VerdictDirect    = "direct"
	VerdictLeak      = "LEAK"
	VerdictFailed    = "failed"
)

// Verdict compares what was expected with what was observed. A leak is an
// anonymized container whose traffic did not arrive through Tor.
func (r ProbeResult) Verdict() string {
	if !r.Succeeded || r.ObservedAnonymity == nil {
		return VerdictFailed
	}
	switch {
	case *r.ObservedAnonymity:
		return VerdictAnonymous
	case r.ExpectedAnonymity:
		return VerdictLeak
	default:
		return VerdictDirect
	}
}

// IP returns the observed address or "" when unknown.
func (r ProbeResult) IP() string {
	if r.ObservedIP == nil {
		return ""
	}
	return *r.ObservedIP
}
