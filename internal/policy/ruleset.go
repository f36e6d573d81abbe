package policy

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"golang.org/x/net/idna"
)

// Ruleset decides whether a request is blocked. Implementations must be
// safe for concurrent use.
type Ruleset interface {
	Blocks(u *url.URL) bool
}

// DomainRuleset blocks a set of domains and all of their subdomains.
type DomainRuleset struct {
	domains map[string]struct{}
}

// NewDomainRuleset returns a ruleset blocking the given domains.
func NewDomainRuleset(domains ...string) *DomainRuleset {
	r := &DomainRuleset{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		if n, ok := normalizeDomain(d); ok {
			r.domains[n] = struct{}{}
		}
	}
	return r
}

// Len returns the number of blocked domains.
func (r *DomainRuleset) Len() int {
	return len(r.domains)
}

// Blocks reports whether the host of u or any parent domain is listed.
func (r *DomainRuleset) Blocks(u *url.URL) bool {
	host, ok := normalizeDomain(u.Hostname())
	if !ok {
		return false
	}
	for {
		if _, ok := r.domains[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
}

// hostsAddresses are the sink addresses used by hosts-file block lists.
var hostsAddresses = map[string]bool{
	"0.0.0.0":   true,
	"127.0.0.1": true,
	"::":        true,
	"::1":       true,
}

// hostsSelfEntries are the machine's own names found in hosts files.
var hostsSelfEntries = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
	"local":                 true,
	"broadcasthost":         true,
	"ip6-localhost":         true,
	"ip6-loopback":          true,
	"0.0.0.0":               true,
}

// ParseRuleset reads a pre-built domain list. It accepts hosts-file lines
// ("0.0.0.0 ads.example"), network filter lines ("||ads.example^") and bare
// domains, one per line. Comments start with '#' or '!'. Other filter
// syntax is ignored.
func ParseRuleset(r io.Reader) (*DomainRuleset, error) {
	set := &DomainRuleset{domains: make(map[string]struct{})}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		for _, d := range parseRuleLine(scanner.Text()) {
			if n, ok := normalizeDomain(d); ok {
				set.domains[n] = struct{}{}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ruleset: %w", err)
	}
	return set, nil
}

// LoadRuleset reads a ruleset file.
func LoadRuleset(path string) (*DomainRuleset, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided ruleset path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open ruleset: %w", err)
	}
	defer f.Close()
	return ParseRuleset(f)
}

func parseRuleLine(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' || line[0] == '!' || line[0] == '[' {
		return nil
	}
	if i := strings.Index(line, " #"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}

	// network filter: ||domain^ with optional $options
	if rest, ok := strings.CutPrefix(line, "||"); ok {
		end := strings.IndexAny(rest, "^$/")
		if end < 0 || rest[end] != '^' {
			return nil
		}
		if opts := rest[end+1:]; opts != "" && opts != "|" && !strings.HasPrefix(opts, "$") {
			return nil
		}
		return []string{rest[:end]}
	}
	if strings.ContainsAny(line, "|^$*/@#") {
		return nil
	}

	fields := strings.Fields(line)
	if len(fields) > 1 {
		if !hostsAddresses[fields[0]] {
			return nil
		}
		var out []string
		for _, f := range fields[1:] {
			if !hostsSelfEntries[strings.ToLower(f)] {
				out = append(out, f)
			}
		}
		return out
	}
	return fields
}

// normalizeDomain lowercases d, drops a trailing dot and converts
// internationalized names to their ASCII form.
func normalizeDomain(d string) (string, bool) {
	d = strings.TrimSuffix(strings.TrimSpace(d), ".")
	if d == "" || !strings.Contains(d, ".") {
		return "", false
	}
	ascii, err := idna.Punycode.ToASCII(strings.ToLower(d))
	if err != nil {
		return "", false
	}
	return ascii, true
}
