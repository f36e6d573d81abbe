package policy

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/nao1215/unseen/internal/session"
)

// fakeIsolation records attachments without any networking.
type fakeIsolation struct {
	ids []string
}

func (f *fakeIsolation) Partition() string                  { return "c-test" }
func (f *fakeIsolation) SetProxy(session.ProxyConfig) error { return nil }
func (f *fakeIsolation) ClearResolverCache()                {}
func (f *fakeIsolation) Attached() []string                 { return f.ids }
func (f *fakeIsolation) AttachInterceptor(id string, _ session.Interceptor) bool {
	if slices.Contains(f.ids, id) {
		return false
	}
	f.ids = append(f.ids, id)
	return true
}

func TestEngineAttach(t *testing.T) {
	t.Parallel()

	t.Run("without ruleset", func(t *testing.T) {
		t.Parallel()

		e := NewEngine()
		f := &fakeIsolation{}
		added := e.Attach(f)
		want := []string{IDTrackerUpgrade, IDHeaderSanitizer}
		if !slices.Equal(added, want) || !slices.Equal(f.ids, want) {
			t.Errorf("Attach() = %v, attached %v", added, f.ids)
		}
	})

	t.Run("with ruleset and idempotent", func(t *testing.T) {
		t.Parallel()

		e := NewEngine(WithRuleset(NewDomainRuleset("ads.example")))
		f := &fakeIsolation{}
		e.Attach(f)
		if added := e.Attach(f); len(added) != 0 {
			t.Errorf("second Attach() added %v", added)
		}
		want := []string{IDBlocklist, IDTrackerUpgrade, IDHeaderSanitizer}
		if !slices.Equal(f.ids, want) {
			t.Errorf("attached %v, want %v", f.ids, want)
		}
	})

	t.Run("user agent", func(t *testing.T) {
		t.Parallel()

		if NewEngine().UserAgent() != DefaultUserAgent {
			t.Error("expected default user agent")
		}
		if NewEngine(WithUserAgent("ua")).UserAgent() != "ua" {
			t.Error("WithUserAgent ignored")
		}
	})
}

func TestEngineOnSession(t *testing.T) {
	t.Parallel()

	type seen struct {
		uri     string
		referer string
		ua      string
		dnt     string
	}
	var (
		mu       sync.Mutex
		requests []seen
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, seen{r.URL.RequestURI(), r.Referer(), r.UserAgent(), r.Header.Get("DNT")})
		mu.Unlock()
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	e := NewEngine(WithUserAgent("generic"), WithRuleset(NewDomainRuleset("ads.example")))
	s := session.New("c-Private", false)
	e.Attach(s)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/p?a=1&utm_source=x&b=2", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Referer", "https://previous.example/")
	req.Header.Set("DNT", "1")
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	mu.Lock()
	got := slices.Clone(requests)
	mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("server saw %d requests, want 1: %v", len(got), got)
	}
	if got[0].uri != "/p?a=1&b=2" {
		t.Errorf("server saw %q", got[0].uri)
	}
	if got[0].referer != "" || got[0].dnt != "" || got[0].ua != "generic" {
		t.Errorf("headers not sanitized: %+v", got[0])
	}

	blocked, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "https://ads.example/x.js", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Client().Do(blocked); !errors.Is(err, session.ErrBlocked) {
		t.Errorf("expected ErrBlocked, got %v", err)
	}

	stats := e.Stats()
	if stats.Blocked != 1 || stats.Stripped != 1 || stats.Sanitized < 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}
