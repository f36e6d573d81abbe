package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestReadBuildInfo(t *testing.T) {
	t.Parallel()

	info := readBuildInfo()
	if info.Version == "" || info.Commit == "" || info.Date == "" || info.Go == "" {
		t.Errorf("incomplete build info %+v", info)
	}
	if getVersion() != info.Version {
		t.Errorf("getVersion() = %q, want %q", getVersion(), info.Version)
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "unseen version ") || !strings.Contains(out, "commit:") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = execute(t, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var info buildInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil || info.Go == "" {
		t.Errorf("json output %q: %v", out, err)
	}
}
