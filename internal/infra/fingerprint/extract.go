// Package fingerprint builds a four-channel content fingerprint from raw
// HTML bytes: word, tag, link, and img multisets. The Jaccard-based
// similarity that compares two of them is domain.Fingerprint.Similarity.
//
// Parsing uses golang.org/x/net/html, walked with a small element-name
// stack rather than a DOM-diffing library: the dependence on HTML
// semantics here is shallow enough that a permissive streaming walk
// suffices.
package fingerprint

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/harvestnet/reharvest/internal/domain"
)

// splitWord matches runs of characters that are NOT letters, digits, or
// underscore — the token boundary for the word channel.
var splitWord = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// excluded names are removed from the tree before any counting:
// script/style/head/title never contribute to any channel.
var excludedNames = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Head:   true,
	atom.Title:  true,
}

// Extract builds a domain.Fingerprint from a raw HTML response body.
// Malformed HTML never causes an error: html.Parse is permissive by
// design, and missing structure simply yields empty multisets.
func Extract(body []byte) domain.Fingerprint {
	fp := domain.NewFingerprint()

	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return fp
	}

	walk(root, &fp)
	return fp
}

// walk performs a depth-first traversal, skipping excluded elements and
// anything hidden via an inline display:none / visibility:hidden style,
// and accumulating the four channels along the way.
func walk(n *html.Node, fp *domain.Fingerprint) {
	if n.Type == html.ElementNode {
		if excludedNames[n.DataAtom] || isHidden(n) {
			return
		}
		switch n.DataAtom {
		case atom.A:
			if href, ok := attr(n, "href"); ok {
				fp.Link[href]++
			}
		case atom.Img:
			if src, ok := attr(n, "src"); ok {
				fp.Img[src]++
			}
		}
	}

	if n.Type == html.TextNode {
		addText(n.Data, fp)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fp)
	}
}

// addText records one visible text fragment into the word and tag
// channels. Word tokens are lowercased uniformly; tag entries are the
// whitespace-collapsed fragment verbatim.
func addText(text string, fp *domain.Fingerprint) {
	stripped := collapseWhitespace(text)
	if stripped == "" {
		return
	}
	fp.Tag[stripped]++

	for _, tok := range splitWord.Split(strings.ToLower(text), -1) {
		if tok == "" {
			continue
		}
		fp.Word[tok]++
	}
}

// collapseWhitespace mirrors BeautifulSoup's stripped_strings: internal
// whitespace runs become a single space, and leading/trailing space is
// trimmed. Returns "" for a fragment that is pure whitespace.
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// attr returns the value of the named attribute, if present.
func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// isHidden reports whether the element carries an inline style hiding it:
// display:none or visibility:hidden.
func isHidden(n *html.Node) bool {
	style, ok := attr(n, "style")
	if !ok {
		return false
	}
	style = strings.ToLower(style)
	return strings.Contains(style, "display:none") ||
		strings.Contains(style, "display: none") ||
		strings.Contains(style, "visibility:hidden") ||
		strings.Contains(style, "visibility: hidden")
}
