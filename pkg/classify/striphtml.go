package classify

import (
	"strings"

	"golang.org/x/net/html"
)

// StripMarkup extracts plain text from a possibly-HTML fragment. Plain input
// passes through unchanged except for whitespace normalization.
func StripMarkup(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.ContainsRune(s, '<') {
		return collapseSpaces(s)
	}
	root, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return collapseSpaces(s)
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockLevel(n.Data) {
			b.WriteByte(' ')
		}
	}
	walk(root)
	return collapseSpaces(b.String())
}

func blockLevel(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "ul", "ol", "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
