// Package document extracts what the browser core needs from an HTML page:
// its title, favicon, visible text and outgoing links.
package document

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the parsed form of one HTML page.
type Document struct {
	// Title is the trimmed <title> text, "" when absent.
	Title string
	// Favicon is the resolved URL of the first icon link, or /favicon.ico
	// on the page's origin.
	Favicon string
	// Text is the visible text with whitespace collapsed. Script, style and
	// template contents are skipped.
	Text string
	// Links are resolved href targets of anchors, in document order and
	// without duplicates.
	Links []string
}

// OnionLinks returns the links pointing at .onion hosts.
func (d *Document) OnionLinks() []string {
	var out []string
	for _, l := range d.Links {
		if u, err := url.Parse(l); err == nil && strings.HasSuffix(strings.ToLower(u.Hostname()), ".onion") {
			out = append(out, l)
		}
	}
	return out
}

// Parse reads an HTML page served from base.
func Parse(base *url.URL, r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	d := &Document{}
	var text strings.Builder
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Template, atom.Noscript:
				return
			case atom.Title:
				if d.Title == "" {
					d.Title = strings.Join(strings.Fields(innerText(n)), " ")
				}
				return
			case atom.Link:
				if d.Favicon == "" && isIconRel(getAttr(n, "rel")) {
					d.Favicon = resolve(base, getAttr(n, "href"))
				}
			case atom.A:
				if href := resolve(base, getAttr(n, "href")); href != "" && !seen[href] {
					seen[href] = true
					d.Links = append(d.Links, href)
				}
			}
		case html.TextNode:
			text.WriteString(n.Data)
			text.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	d.Text = strings.Join(strings.Fields(text.String()), " ")
	if d.Favicon == "" && base != nil && base.Host != "" {
		d.Favicon = (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/favicon.ico"}).String()
	}
	return d, nil
}

// Text returns the visible text of an HTML page.
func Text(r io.Reader) (string, error) {
	d, err := Parse(nil, r)
	if err != nil {
		return "", err
	}
	return d.Text, nil
}

func innerText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func isIconRel(rel string) bool {
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		if r == "icon" {
			return true
		}
	}
	return false
}

// resolve resolves href against base and drops non-navigable targets.
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
