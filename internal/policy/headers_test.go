package policy

import (
	"net/http"
	"testing"
)

func TestSanitizeHeaders(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Referer", "https://origin.example/private")
	h.Set("Referrer", "https://origin.example/private")
	h.Set("DNT", "1")
	h.Set("User-Agent", "curl/8.0")
	h.Set("Accept", "text/html")

	SanitizeHeaders(h, "generic")

	for _, name := range []string{"Referer", "Referrer", "DNT"} {
		if v := h.Get(name); v != "" {
			t.Errorf("%s = %q, want removed", name, v)
		}
	}
	if got := h.Get("User-Agent"); got != "generic" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := h.Get("Accept"); got != "text/html" {
		t.Errorf("Accept = %q, want untouched", got)
	}
}
