package database

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *PartitionDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "partitions", "abc")
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false fails for a missing database", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := db.RecordVisit(t.Context(), "https://example.com/", "Example", time.Now()); err != nil {
			t.Fatal(err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen: %v", err)
		}
		defer db.Close()

		visits, err := db.RecentVisits(t.Context(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(visits) != 1 {
			t.Errorf("expected 1 visit after reopen, got %d", len(visits))
		}
	})
}

func TestVisits(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, u := range []string{"https://a.example/", "https://b.example/", "https://c.example/"} {
		if _, err := db.RecordVisit(ctx, u, "", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	visits, err := db.RecentVisits(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(visits) != 2 {
		t.Fatalf("expected 2 visits, got %d", len(visits))
	}
	if visits[0].URL != "https://c.example/" || visits[1].URL != "https://b.example/" {
		t.Errorf("unexpected order: %v, %v", visits[0].URL, visits[1].URL)
	}
	if !visits[0].VisitedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("VisitedAt = %v", visits[0].VisitedAt)
	}
}

func TestCookies(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u, _ := url.Parse("https://www.example.com/login")

	t.Run("persists cookies with an expiry only", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		err := db.SaveCookies(t.Context(), u, []*http.Cookie{
			{Name: "session", Value: "s"},
			{Name: "pref", Value: "dark", MaxAge: 3600, Secure: true, HttpOnly: true},
			{Name: "wide", Value: "1", Domain: ".example.com", Path: "/", Expires: now.Add(time.Hour)},
		}, now)
		if err != nil {
			t.Fatal(err)
		}

		got, err := db.LoadCookies(t.Context(), now)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 cookies, got %d", len(got))
		}

		byName := map[string]StoredCookie{}
		for _, c := range got {
			byName[c.Cookie.Name] = c
		}

		pref := byName["pref"]
		if pref.Cookie.Domain != "" {
			t.Errorf("host-only cookie got domain %q", pref.Cookie.Domain)
		}
		if pref.URL.String() != "https://www.example.com/" {
			t.Errorf("pref URL = %q", pref.URL)
		}
		if !pref.Cookie.Secure || !pref.Cookie.HttpOnly {
			t.Error("flags were not kept")
		}

		wide := byName["wide"]
		if wide.Cookie.Domain != "example.com" {
			t.Errorf("domain cookie got domain %q", wide.Cookie.Domain)
		}
		if wide.URL.Scheme != "http" {
			t.Errorf("non-secure cookie replay scheme = %q", wide.URL.Scheme)
		}
	})

	t.Run("update and delete", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := t.Context()
		set := func(c *http.Cookie) {
			t.Helper()
			if err := db.SaveCookies(ctx, u, []*http.Cookie{c}, now); err != nil {
				t.Fatal(err)
			}
		}

		set(&http.Cookie{Name: "a", Value: "1", MaxAge: 60})
		set(&http.Cookie{Name: "a", Value: "2", MaxAge: 60})
		got, _ := db.LoadCookies(ctx, now) //nolint:errcheck // checked by length
		if len(got) != 1 || got[0].Cookie.Value != "2" {
			t.Fatalf("expected updated cookie, got %+v", got)
		}

		set(&http.Cookie{Name: "a", MaxAge: -1})
		got, _ = db.LoadCookies(ctx, now) //nolint:errcheck // checked by length
		if len(got) != 0 {
			t.Errorf("expected cookie deleted, got %d", len(got))
		}
	})

	t.Run("expired cookies are not loaded", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		if err := db.SaveCookies(t.Context(), u, []*http.Cookie{{Name: "a", Value: "1", MaxAge: 60}}, now); err != nil {
			t.Fatal(err)
		}
		got, err := db.LoadCookies(t.Context(), now.Add(2*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("expected no cookies, got %d", len(got))
		}
	})
}

func TestDownloads(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	d := &Download{
		ID:        "d1",
		URL:       "https://example.com/file.zip",
		Name:      "file.zip",
		State:     "progressing",
		Total:     -1,
		StartedAt: start,
	}
	if err := db.SaveDownload(ctx, d); err != nil {
		t.Fatal(err)
	}

	d.State = "completed"
	d.Received = 42
	d.Path = "/tmp/file.zip"
	d.FinishedAt = start.Add(time.Second)
	if err := db.SaveDownload(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetDownload(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != "completed" || got.Received != 42 || got.Path != "/tmp/file.zip" {
		t.Errorf("unexpected download: %+v", got)
	}
	if !got.FinishedAt.Equal(start.Add(time.Second)) {
		t.Errorf("FinishedAt = %v", got.FinishedAt)
	}

	if _, err := db.GetDownload(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, err := db.Downloads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 download, got %d", len(all))
	}
}
