package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML drops script and style elements and returns the remaining text
// nodes trimmed and joined by single spaces. Plain text passes through
// with whitespace collapsed.
func StripHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}

	doc.Find("script, style").Remove()

	var parts []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		collectText(s, &parts)
	})

	return strings.Join(parts, " ")
}

func collectText(s *goquery.Selection, parts *[]string) {
	if goquery.NodeName(s) == "#text" {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			*parts = append(*parts, text)
		}
		return
	}
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		collectText(child, parts)
	})
}
