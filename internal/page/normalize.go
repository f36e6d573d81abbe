package page

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/nao1215/unseen/internal/tor"
)

// Navigation defaults.
const (
	BlankURL         = "about:blank"
	DefaultStartURL  = "https://start.duckduckgo.com/"
	DefaultSearchURL = "https://duckduckgo.com/?q="
)

var (
	schemePattern = regexp.MustCompile(`^[a-zA-Z]+://`)
	hostPattern   = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
)

// NormalizeInput turns address bar input into a URL. Input with a scheme is
// kept as typed, host-like input gets https://, and anything else becomes a
// query to searchURL.
func NormalizeInput(input, searchURL string) (string, error) {
	s := strings.TrimSpace(input)
	switch {
	case s == "":
		return "", ErrEmptyInput
	case strings.EqualFold(s, BlankURL):
		return BlankURL, nil
	case schemePattern.MatchString(s):
		return s, nil
	case hostPattern.MatchString(s) && strings.Contains(s, "."):
		return "https://" + s, nil
	}
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return searchURL + url.QueryEscape(s), nil
}

// CheckNavigation rejects URLs a container must not load. Onion hosts are
// only allowed with Tor enabled and must be well-formed v3 addresses.
func CheckNavigation(rawURL string, anonymity bool) error {
	if rawURL == BlankURL {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := u.Hostname()
	if !tor.IsOnionHost(host) {
		return nil
	}
	if !anonymity {
		return ErrOnionWithoutTor
	}
	return tor.CheckOnionHost(host)
}
