// Package extract turns fetched HTML into plain text, a title and outbound links.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MaxLinks caps the links returned for one page.
const MaxLinks = 200

// Content is the readable part of a page.
type Content struct {
	PageTitle string
	Text      string
	Links     []string
}

// Extract parses html and returns its title, collapsed text and absolute
// http(s) links resolved against baseURL. The title falls back to baseURL.
func Extract(page, baseURL string) Content {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return Content{PageTitle: baseURL, Links: []string{}}
	}

	title := collapse(doc.Find("title").First().Text())
	if title == "" {
		title = baseURL
	}

	links := extractLinks(doc, baseURL)

	doc.Find("script, style, noscript, template").Remove()

	return Content{
		PageTitle: title,
		Text:      collapse(visibleText(doc.Selection)),
		Links:     links,
	}
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func extractLinks(doc *goquery.Document, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	seen := make(map[string]struct{})
	links := []string{}

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.AttrOr("href", ""))
		if raw == "" || strings.HasPrefix(raw, "#") ||
			strings.HasPrefix(raw, "javascript:") || strings.HasPrefix(raw, "mailto:") {
			return true
		}

		ref, err := url.Parse(raw)
		if err != nil {
			return true
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return true
		}

		abs := ref.String()
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return len(links) < MaxLinks
	})

	return links
}

// visibleText joins every text node with a space, so adjacent elements
// such as <p>a</p><p>b</p> or a<br>b never fuse into one word.
func visibleText(sel *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
