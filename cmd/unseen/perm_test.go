package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/permission"
)

func TestPerm(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	out, err := e.run(t, "perm", "set", "Meet.Example.com", "media", "allow")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || strings.Join(strings.Fields(lines[1]), " ") != "meet.example.com allow deny" {
		t.Errorf("set output:\n%s", out)
	}

	if _, err := e.run(t, "perm", "set", "maps.example.com", "geolocation", "deny"); err != nil {
		t.Fatal(err)
	}

	out, err = e.run(t, "perm", "get", "unknown.example")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.Join(strings.Fields(out), " "), "unknown.example deny deny") {
		t.Errorf("unknown host should be denied:\n%s", out)
	}

	out, err = e.run(t, "perm", "list", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var all []model.PermissionDecision
	if err := json.Unmarshal([]byte(out), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Host != "maps.example.com" || !all[1].Media {
		t.Errorf("list = %+v", all)
	}

	t.Run("rejects bad input", func(t *testing.T) {
		t.Parallel()
		if _, err := e.run(t, "perm", "set", "a.example", "camera", "allow"); !errors.Is(err, permission.ErrUnknownCapability) {
			t.Errorf("expected ErrUnknownCapability, got %v", err)
		}
		if _, err := e.run(t, "perm", "set", "a.example", "media", "maybe"); err == nil {
			t.Error("expected error for an invalid decision")
		}
		if _, err := e.run(t, "perm", "set", "a.example", "media"); err == nil {
			t.Error("expected error for missing arguments")
		}
	})
}
