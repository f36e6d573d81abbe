package policy

import "net/http"

// strippedHeaders identify where a request came from or what the user asked
// for. "Referrer" is the common misspelling some clients send.
var strippedHeaders = []string{"Referer", "Referrer", "DNT"}

// SanitizeHeaders removes identifying headers and sets the shared
// User-Agent.
func SanitizeHeaders(h http.Header, userAgent string) {
	for _, name := range strippedHeaders {
		h.Del(name)
	}
	h.Set("User-Agent", userAgent)
}
