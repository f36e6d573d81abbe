// Package snapshot saves and restores the open pages and containers across
// restarts.
package snapshot

import (
	"errors"
	"fmt"
	"os"

	"github.com/nao1215/unseen/internal/jsonfile"
	"github.com/nao1215/unseen/internal/model"
)

// ErrNoSnapshot is returned by Load when there is no usable snapshot: the
// file is missing or malformed. The browser then starts fresh.
var ErrNoSnapshot = errors.New("no session snapshot")

// Tab is one saved page.
type Tab struct {
	Container string `json:"container"`
	URL       string `json:"url"`
}

// Container is one saved container.
type Container struct {
	Name       string `json:"name"`
	Tor        bool   `json:"tor"`
	Persistent bool   `json:"persistent"`
}

// Snapshot is the content of the session file.
type Snapshot struct {
	ActiveIndex int         `json:"activeIndex"`
	Tabs        []Tab       `json:"tabs"`
	Containers  []Container `json:"containers"`
}

// FromState builds a snapshot of the current tab state. An active page
// that is not in the list saves as index 0.
func FromState(st model.TabState) *Snapshot {
	s := &Snapshot{
		Tabs:       make([]Tab, 0, len(st.Tabs)),
		Containers: make([]Container, 0, len(st.Containers)),
	}
	active := -1
	for i, t := range st.Tabs {
		if t.ID == st.ActiveTabID {
			active = i
		}
		s.Tabs = append(s.Tabs, Tab{Container: t.Container, URL: t.URL})
	}
	s.ActiveIndex = max(0, active)
	for _, c := range st.Containers {
		s.Containers = append(s.Containers, Container{Name: c.Name, Tor: c.Tor, Persistent: c.Persistent})
	}
	return s
}

// Active returns the index of the page to activate after restore, clamped
// to the saved pages. It is -1 when there are none.
func (s *Snapshot) Active() int {
	if len(s.Tabs) == 0 {
		return -1
	}
	return max(0, min(s.ActiveIndex, len(s.Tabs)-1))
}

// Save writes the snapshot atomically.
func Save(path string, s *Snapshot) error {
	if err := jsonfile.Save(path, s); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot.
func Load(path string) (*Snapshot, error) {
	var s Snapshot
	err := jsonfile.Load(path, &s)
	switch {
	case err == nil:
		return &s, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, jsonfile.ErrMalformed):
		return nil, fmt.Errorf("%w: %w", ErrNoSnapshot, err)
	default:
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
}

// Container returns the saved container called name.
func (s *Snapshot) Container(name string) (Container, bool) {
	for _, c := range s.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return Container{}, false
}

// PutContainer adds c or replaces the saved container with the same name.
func (s *Snapshot) PutContainer(c Container) {
	for i := range s.Containers {
		if s.Containers[i].Name == c.Name {
			s.Containers[i] = c
			return
		}
	}
	s.Containers = append(s.Containers, c)
}
