package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nao1215/unseen/internal/model"
)

func TestContainersOffline(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	out, err := e.run(t, "containers", "add", "Side")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "Side (persist:c-Side)" {
		t.Errorf("add output = %q", out)
	}

	out, err = e.run(t, "containers", "add", "Temp", "--ephemeral")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "Temp (c-Temp)" {
		t.Errorf("add --ephemeral output = %q", out)
	}

	out, err = e.run(t, "containers", "tor", "Work", "on")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "on next start") {
		t.Errorf("tor output = %q", out)
	}

	if _, err := e.run(t, "containers", "tor", "Work", "maybe"); err == nil {
		t.Error("expected error for an invalid switch")
	}

	out, err = e.run(t, "containers", "list", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var list []model.Container
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatal(err)
	}
	want := []string{"Private", "Work", "Social", "Side", "Temp"}
	if len(list) != len(want) {
		t.Fatalf("got %d containers, want %d: %+v", len(list), len(want), list)
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("list[%d] = %q, want %q", i, list[i].Name, name)
		}
	}
	if !list[1].AnonymityEnabled || list[0].AnonymityEnabled {
		t.Error("only Work should have Tor enabled")
	}
	if list[4].Persistent {
		t.Error("Temp should be ephemeral")
	}

	out, err = e.run(t, "containers", "list")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 || !strings.HasPrefix(lines[0], "NAME") {
		t.Errorf("unexpected table:\n%s", out)
	}
	if fields := strings.Fields(lines[2]); len(fields) != 4 || fields[3] != string(model.RouteTor) {
		t.Errorf("unexpected Work row %q", lines[2])
	}
}

func TestParseSwitch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"true", true, false},
		{"off", false, false},
		{"0", false, false},
		{"yes", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseSwitch(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("parseSwitch(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}
