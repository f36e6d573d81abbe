package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLoopbackHost(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(LoopbackHost(func() int { return 7878 }))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	testCases := []struct {
		host string
		want int
	}{
		{"127.0.0.1:7878", http.StatusOK},
		{"localhost:7878", http.StatusOK},
		{"LOCALHOST:7878", http.StatusOK},
		{"[::1]:7878", http.StatusOK},
		{"127.0.0.1:7879", http.StatusForbidden},
		{"127.0.0.1", http.StatusForbidden},
		{"rebind.attacker.example:7878", http.StatusForbidden},
		{"192.0.2.1:7878", http.StatusForbidden},
		{"localhost.attacker.example:7878", http.StatusForbidden},
	}
	for _, tc := range testCases {
		t.Run(tc.host, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil)
			req.Host = tc.host
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	t.Run("any port before the listener is known", func(t *testing.T) {
		t.Parallel()
		r := gin.New()
		r.Use(LoopbackHost(func() int { return 0 }))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		for host, want := range map[string]int{
			"127.0.0.1:1":        http.StatusOK,
			"[::1]":              http.StatusOK,
			"attacker.example:1": http.StatusForbidden,
		} {
			req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil)
			req.Host = host
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != want {
				t.Errorf("%s: status = %d, want %d", host, rec.Code, want)
			}
		}
	})
}

// controlRequest builds a request that passes every guard unless the test
// changes it.
func controlRequest(t *testing.T, f *fixture, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequestWithContext(t.Context(), method, path, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	req.Host = "127.0.0.1:7878"
	req.Header.Set("Authorization", "Bearer "+f.server.Token())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestControlAPIGuards(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	testCases := []struct {
		name   string
		method string
		path   string
		body   string
		modify func(r *http.Request)
		want   int
	}{
		{
			name:   "allowed request",
			method: http.MethodPost, path: "/tor/stop",
			modify: func(*http.Request) {},
			want:   http.StatusOK,
		},
		{
			name:   "rebinding Host",
			method: http.MethodPost, path: "/tor/stop",
			modify: func(r *http.Request) { r.Host = "rebind.attacker.example:7878" },
			want:   http.StatusForbidden,
		},
		{
			name:   "foreign Origin",
			method: http.MethodPost, path: "/tor/stop",
			modify: func(r *http.Request) { r.Header.Set("Origin", "https://attacker.example") },
			want:   http.StatusForbidden,
		},
		{
			name:   "opaque Origin",
			method: http.MethodPost, path: "/tor/stop",
			modify: func(r *http.Request) { r.Header.Set("Origin", "null") },
			want:   http.StatusForbidden,
		},
		{
			name:   "loopback Origin",
			method: http.MethodPost, path: "/tor/stop",
			modify: func(r *http.Request) { r.Header.Set("Origin", "http://localhost:5173") },
			want:   http.StatusOK,
		},
		{
			name:   "loopback preflight",
			method: http.MethodOptions, path: "/tor/stop",
			modify: func(r *http.Request) {
				r.Header.Del("Authorization")
				r.Header.Set("Origin", "http://127.0.0.1:5173")
				r.Header.Set("Access-Control-Request-Method", http.MethodPost)
			},
			want: http.StatusNoContent,
		},
		{
			name:   "foreign preflight",
			method: http.MethodOptions, path: "/tor/stop",
			modify: func(r *http.Request) {
				r.Header.Del("Authorization")
				r.Header.Set("Origin", "https://attacker.example")
				r.Header.Set("Access-Control-Request-Method", http.MethodPost)
			},
			want: http.StatusForbidden,
		},
		{
			name:   "missing token",
			method: http.MethodGet, path: "/state",
			modify: func(r *http.Request) { r.Header.Del("Authorization") },
			want:   http.StatusUnauthorized,
		},
		{
			name:   "wrong token",
			method: http.MethodGet, path: "/state",
			modify: func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-the-token") },
			want:   http.StatusUnauthorized,
		},
		{
			name:   "basic scheme",
			method: http.MethodGet, path: "/state",
			modify: func(r *http.Request) { r.Header.Set("Authorization", "Basic "+f.server.Token()) },
			want:   http.StatusUnauthorized,
		},
		{
			name:   "form body",
			method: http.MethodPost, path: "/containers", body: `{"name":"Forms"}`,
			modify: func(r *http.Request) { r.Header.Set("Content-Type", "text/plain") },
			want:   http.StatusUnsupportedMediaType,
		},
		{
			name:   "body without content type",
			method: http.MethodPost, path: "/containers", body: `{"name":"Bare"}`,
			modify: func(r *http.Request) { r.Header.Del("Content-Type") },
			want:   http.StatusUnsupportedMediaType,
		},
		{
			name:   "json with charset",
			method: http.MethodPost, path: "/containers", body: `{"name":"Charset"}`,
			modify: func(r *http.Request) { r.Header.Set("Content-Type", "application/json; charset=utf-8") },
			want:   http.StatusCreated,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := controlRequest(t, f, tc.method, tc.path, tc.body)
			tc.modify(req)
			rec := httptest.NewRecorder()
			f.server.Handler().ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestServerToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	other := NewServer(f.browser)
	if f.server.Token() == "" || f.server.Token() == other.Token() {
		t.Errorf("tokens %q and %q should be random and distinct", f.server.Token(), other.Token())
	}
	if got := NewServer(f.browser, WithToken("fixed")).Token(); got != "fixed" {
		t.Errorf("Token() = %q, want fixed", got)
	}
}
