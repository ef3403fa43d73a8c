package page

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// nonContent lists elements whose text is never visible on the page.
const nonContent = "script, style, noscript, template, iframe, object"

// ExtractText returns the visible text of an HTML document as non-empty,
// trimmed lines joined by "\n". Runs of whitespace inside a line collapse to
// one space and lines are NFC-normalized, so markup-only edits leave the
// output unchanged. Malformed markup is parsed best-effort; an unreadable
// input yields "".
func ExtractText(r io.Reader) string {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ""
	}
	doc.Find(nonContent).Remove()

	var lines []string
	for _, n := range doc.Nodes {
		collectLines(n, &lines)
	}
	return strings.Join(lines, "\n")
}

// ExtractHTML is ExtractText for in-memory markup.
func ExtractHTML(markup string) string {
	return ExtractText(strings.NewReader(markup))
}

func collectLines(n *html.Node, lines *[]string) {
	switch n.Type {
	case html.TextNode:
		for _, raw := range strings.Split(n.Data, "\n") {
			if line := normalizeLine(raw); line != "" {
				*lines = append(*lines, line)
			}
		}
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLines(c, lines)
	}
}

func normalizeLine(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return norm.NFC.String(strings.Join(fields, " "))
}
