package session

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/nao1215/unseen/internal/model"
)

func TestPartitionDir(t *testing.T) {
	t.Parallel()

	a := PartitionDir("/data", "persist:c-Work")
	b := PartitionDir("/data", "c-Work")
	if a == b {
		t.Error("persistent and ephemeral partitions share a directory")
	}
	if a != PartitionDir("/data", "persist:c-Work") {
		t.Error("PartitionDir is not deterministic")
	}
	if filepath.Dir(a) != "/data" || len(filepath.Base(a)) != 32 {
		t.Errorf("unexpected directory %q", a)
	}
}

func TestManagerForContainer(t *testing.T) {
	t.Parallel()

	m := NewManager(WithRoot(t.TempDir()))
	t.Cleanup(func() { _ = m.Close() })

	var created []string
	m.OnCreate(func(s *Session) { created = append(created, s.Partition()) })

	work := model.NewContainer("Work", true)
	s1, err := m.ForContainer(t.Context(), work)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := m.ForContainer(t.Context(), work)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Error("expected the same session for the same container")
	}
	if s1.Database() == nil {
		t.Error("persistent session should have a database")
	}

	private, err := m.ForContainer(t.Context(), model.NewContainer("Private", false))
	if err != nil {
		t.Fatal(err)
	}
	if private.Database() != nil {
		t.Error("ephemeral session must not open a database")
	}

	if len(created) != 2 {
		t.Errorf("OnCreate ran %d times, want 2", len(created))
	}
	if got := m.Sessions(); len(got) != 2 || got[0] != s1 {
		t.Errorf("Sessions() = %v", got)
	}
	if _, ok := m.Get("persist:c-Work"); !ok {
		t.Error("Get() missed existing session")
	}

	late := 0
	m.OnCreate(func(*Session) { late++ })
	if late != 2 {
		t.Errorf("late OnCreate saw %d sessions, want 2", late)
	}
}

func TestManagerPersistsCookies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "kept", Value: "1", MaxAge: 3600})
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "1"})
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL) //nolint:errcheck // httptest URL

	root := t.TempDir()
	work := model.NewContainer("Work", true)

	m1 := NewManager(WithRoot(root))
	s, err := m1.ForContainer(t.Context(), work)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := get(t, s, srv.URL); err != nil {
		t.Fatal(err)
	}
	if err := m1.Close(); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager(WithRoot(root))
	t.Cleanup(func() { _ = m2.Close() })
	s, err = m2.ForContainer(t.Context(), work)
	if err != nil {
		t.Fatal(err)
	}
	cookies := s.Jar().Cookies(u)
	if len(cookies) != 1 || cookies[0].Name != "kept" {
		t.Errorf("restored cookies = %v, want only kept", cookies)
	}
}

func TestManagerClearNonPersistent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := NewManager(WithRoot(root))
	t.Cleanup(func() { _ = m.Close() })

	work, err := m.ForContainer(t.Context(), model.NewContainer("Work", true))
	if err != nil {
		t.Fatal(err)
	}
	private, err := m.ForContainer(t.Context(), model.NewContainer("Private", false))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(private.StorageDir(), 0o700); err != nil {
		t.Fatal(err)
	}

	if err := m.ClearNonPersistent(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(private.StorageDir()); !os.IsNotExist(err) {
		t.Errorf("ephemeral storage still exists: %v", err)
	}
	if _, err := os.Stat(work.StorageDir()); err != nil {
		t.Errorf("persistent storage removed: %v", err)
	}
}

func TestManagerWipePartition(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := NewManager(WithRoot(root))
	t.Cleanup(func() { _ = m.Close() })

	stale := PartitionDir(root, "c-Old")
	if err := os.MkdirAll(stale, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := m.WipePartition("c-Old"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale partition not removed")
	}

	if _, err := m.ForContainer(t.Context(), model.NewContainer("Work", true)); err != nil {
		t.Fatal(err)
	}
	if err := m.WipePartition("persist:c-Work"); err == nil {
		t.Error("expected error wiping a live partition")
	}
}
