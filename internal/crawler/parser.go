package crawler

import (
	"bytes"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// summaryRunes is the number of content runes kept in a page summary.
const summaryRunes = 100

// Parser extracts links, breadcrumbs and a summary from a rendered page.
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	baseURL *url.URL
}

// Link is one hyperlink found on a page.
type Link struct {
	// URL is absolute and normalized.
	URL string
	// Text is the anchor text, NFKC-normalized.
	Text string
}

// ParseResult contains all information extracted from an HTML page.
type ParseResult struct {
	// Title is the page title from the <title> tag.
	Title string

	// Links are the hyperlinks of the page in document order, without duplicates.
	Links []Link

	// Breadcrumb is the page's own breadcrumb trail, without separators and
	// the home entry. Empty when the page has none.
	Breadcrumb []string

	// Text is the main text of the page with whitespace collapsed.
	Text string

	// Summary is "Title: <title> | Content: <first 100 runes of Text>".
	Summary string
}

// NewParser creates a new HTML parser with the given base URL.
// The base URL is used to resolve relative links.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts all relevant information.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	raw, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	doc := goquery.NewDocumentFromNode(root)

	result := &ParseResult{
		Title:      clean(doc.Find("title").First().Text()),
		Breadcrumb: breadcrumbs(doc),
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := p.resolveURL(href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		text := clean(s.Text())
		if text == "" {
			text = clean(s.AttrOr("title", s.Find("img").AttrOr("alt", "")))
		}
		result.Links = append(result.Links, Link{URL: resolved, Text: text})
	})

	result.Text = p.mainText(raw, doc)
	title := result.Title
	if title == "" {
		title = "No Title"
	}
	result.Summary = "Title: " + title + " | Content: " + truncateRunes(result.Text, summaryRunes)
	return result, nil
}

// mainText returns the readable text of the page. It prefers the article
// content found by readability and falls back to the body text without
// navigation chrome.
func (p *Parser) mainText(raw []byte, doc *goquery.Document) string {
	rp := readability.NewParser()
	article, err := rp.Parse(bytes.NewReader(raw), p.baseURL)
	if err == nil && article.Content != "" {
		if content, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
			if text := clean(content.Text()); text != "" {
				return text
			}
		}
	}
	if err == nil && article.Excerpt != "" {
		return clean(article.Excerpt)
	}

	body := doc.Find("body").Clone()
	body.Find("nav, footer, header, script, style, aside, noscript").Remove()
	return clean(body.Text())
}

var (
	breadcrumbPattern = regexp.MustCompile(`(?i)breadcrumb|topicpath`)
	crumbSeparators   = map[string]bool{">": true, "/": true, "»": true, "＞": true, "›": true, "|": true}
	crumbHome         = map[string]bool{"HOME": true, "TOP": true, "🏠": true, "首页": true, "ホーム": true, "トップ": true}
)

// breadcrumbs extracts the breadcrumb trail of the page.
func breadcrumbs(doc *goquery.Document) []string {
	container := doc.Find(`[typeof="BreadcrumbList"]`).First()
	if container.Length() == 0 {
		doc.Find("[id], [class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if breadcrumbPattern.MatchString(s.AttrOr("id", "")) || breadcrumbPattern.MatchString(s.AttrOr("class", "")) {
				container = s
				return false
			}
			return true
		})
	}
	if container.Length() == 0 {
		return nil
	}

	items := container.Find("li")
	if items.Length() == 0 {
		items = container.Find("a, span")
	}

	var trail []string
	items.Each(func(_ int, s *goquery.Selection) {
		text := strings.ReplaceAll(clean(s.Text()), "🏠", "")
		text = strings.TrimSpace(text)
		if text == "" || crumbSeparators[text] || crumbHome[strings.ToUpper(text)] {
			return
		}
		if len(trail) > 0 && trail[len(trail)-1] == text {
			return
		}
		trail = append(trail, text)
	})
	return trail
}

// resolveURL resolves href against the page URL and normalizes it.
// Non-HTTP links return "".
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "fax:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return NormalizeURL(resolved.String())
}

// NormalizeURL lower-cases scheme and host and drops the fragment and any
// trailing slash, so the same page is never indexed twice.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// clean NFKC-normalizes s and collapses whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
