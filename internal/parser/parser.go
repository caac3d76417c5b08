// Package parser extracts links, titles, and plain text from HTML with goquery.
package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is parsed page markup.
type Document struct {
	doc *goquery.Document
}

// Parse parses raw markup. Malformed HTML is repaired rather than rejected.
func Parse(content string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Links returns the sorted, deduplicated hrefs that start with "/".
func (d *Document) Links() []string {
	seen := make(map[string]struct{})
	d.doc.Find("a[href^='/']").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "/") {
			seen[href] = struct{}{}
		}
	})
	links := make([]string, 0, len(seen))
	for href := range seen {
		links = append(links, href)
	}
	sort.Strings(links)
	return links
}

// Title returns the trimmed text of the first <title>.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// inlineTags do not break words; every other element separates its text from
// its neighbours.
var inlineTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "cite": true,
	"code": true, "data": true, "dfn": true, "em": true, "font": true, "i": true,
	"kbd": true, "mark": true, "q": true, "s": true, "samp": true, "small": true,
	"span": true, "strong": true, "sub": true, "sup": true, "time": true,
	"u": true, "var": true,
}

// Text returns the visible text with whitespace collapsed. Block elements are
// separated by a space.
func (d *Document) Text() string {
	d.doc.Find("script, style, noscript, template").Remove()
	var b strings.Builder
	writeText(&b, d.doc.Selection)
	return strings.Join(strings.Fields(b.String()), " ")
}

func writeText(b *strings.Builder, sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); {
		case name == "#text":
			b.WriteString(s.Text())
		case strings.HasPrefix(name, "#"):
		case inlineTags[name]:
			writeText(b, s)
		default:
			b.WriteByte(' ')
			writeText(b, s)
			b.WriteByte(' ')
		}
	})
}

// ExtractLinks parses content and returns its root-relative links.
func ExtractLinks(content string) ([]string, error) {
	doc, err := Parse(content)
	if err != nil {
		return nil, err
	}
	return doc.Links(), nil
}

// ExtractTitle parses content and returns its title, or "" when it cannot be parsed.
func ExtractTitle(content string) string {
	doc, err := Parse(content)
	if err != nil {
		return ""
	}
	return doc.Title()
}

// Text strips markup from content.
func Text(content string) string {
	doc, err := Parse(content)
	if err != nil {
		return ""
	}
	return doc.Text()
}
