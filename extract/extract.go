// Package extract turns fetched HTML into the plain text handed to the model.
package extract

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Boilerplate lists the elements removed before text is collected.
var Boilerplate = []string{"script", "style", "header", "footer", "nav", "noscript", "template"}

// FromReader parses an HTML document and returns its text, title included,
// with boilerplate removed and whitespace collapsed to single spaces.
func FromReader(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	return fromDocument(doc), nil
}

// Text is FromReader for an in-memory document.
func Text(html string) (string, error) {
	return FromReader(strings.NewReader(html))
}

func fromDocument(doc *goquery.Document) string {
	doc.Find(strings.Join(Boilerplate, ",")).Remove()

	var b strings.Builder
	doc.Contents().Each(func(_ int, s *goquery.Selection) {
		collect(&b, s)
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// collect writes text node content, separating block siblings with a space so
// adjacent elements never fuse into one word.
func collect(b *strings.Builder, s *goquery.Selection) {
	if goquery.NodeName(s) == "#text" {
		b.WriteString(s.Text())
		return
	}
	b.WriteByte(' ')
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		collect(b, c)
	})
	b.WriteByte(' ')
}

// Title returns the document title, falling back to the first heading.
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// Truncate returns the first maxChars runes of s. A non-positive maxChars
// disables truncation.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
