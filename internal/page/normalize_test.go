package page

import (
	"errors"
	"testing"

	"github.com/nao1215/unseen/internal/tor"
)

func TestNormalizeInput(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
		err   error
	}{
		{"empty", "   ", "", ErrEmptyInput},
		{"about blank any case", " About:Blank ", BlankURL, nil},
		{"explicit scheme kept", "http://example.com/a?b=c", "http://example.com/a?b=c", nil},
		{"other scheme kept", "ftp://files.example.com", "ftp://files.example.com", nil},
		{"host gets https", "example.com", "https://example.com", nil},
		{"subdomain host", "www.example.co.uk", "https://www.example.co.uk", nil},
		{"single word searches", "golang", DefaultSearchURL + "golang", nil},
		{"words search", "tor browser", DefaultSearchURL + "tor+browser", nil},
		{"host with path searches", "example.com/path", DefaultSearchURL + "example.com%2Fpath", nil},
		{"host with port searches", "localhost:8080", DefaultSearchURL + "localhost%3A8080", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizeInput(tc.input, "")
			if !errors.Is(err, tc.err) {
				t.Fatalf("NormalizeInput(%q) error = %v, want %v", tc.input, err, tc.err)
			}
			if got != tc.want {
				t.Errorf("NormalizeInput(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}

	t.Run("custom search prefix", func(t *testing.T) {
		t.Parallel()
		got, _ := NormalizeInput("a b", "https://search.example/?s=") //nolint:errcheck // input is valid
		if got != "https://search.example/?s=a+b" {
			t.Errorf("got %q", got)
		}
	})
}

func TestCheckNavigation(t *testing.T) {
	t.Parallel()

	onion, err := tor.ComputeV3AddressFromPublicKey(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name      string
		url       string
		anonymity bool
		err       error
	}{
		{"blank", BlankURL, false, nil},
		{"clearnet direct", "https://example.com/", false, nil},
		{"clearnet tor", "https://example.com/", true, nil},
		{"onion without tor", "http://" + onion + "/", false, ErrOnionWithoutTor},
		{"onion subdomain without tor", "http://www." + onion + "/", false, ErrOnionWithoutTor},
		{"onion with tor", "http://" + onion + "/", true, nil},
		{"malformed onion", "http://notanonionaddress.onion/", true, tor.ErrInvalidOnionAddress},
		{"v2 onion", "http://abcdefghijklmnop.onion/", true, tor.ErrV2AddressDeprecated},
		{"file scheme", "file:///etc/passwd", false, ErrUnsupportedScheme},
		{"ftp scheme", "ftp://example.com", true, ErrUnsupportedScheme},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := CheckNavigation(tc.url, tc.anonymity); !errors.Is(err, tc.err) {
				t.Errorf("CheckNavigation(%q, %v) = %v, want %v", tc.url, tc.anonymity, err, tc.err)
			}
		})
	}
}
