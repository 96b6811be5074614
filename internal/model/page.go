package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Page is the result of fetching a single URL during tree building.
// Both the plain HTTP fetcher and the browser fetcher produce it, so the
// tree builder never needs to know how a page was rendered.
type Page struct {
	// URL is the URL that was requested.
	URL string `json:"url"`

	// FinalURL is the URL after redirects. Equal to URL when no redirect happened.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP response status code.
	// The browser fetcher reports 200 for any page it managed to render.
	StatusCode int `json:"status_code"`

	// Headers contains the HTTP response headers, canonicalized.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the MIME type of the response.
	ContentType string `json:"content_type"`

	// Title is the page title extracted from the <title> tag.
	Title string `json:"title,omitempty"`

	// Raw contains the rendered HTML (or raw body for non-HTML responses).
	// Limited to MaxPageSize bytes.
	Raw []byte `json:"-"`

	// Captcha is true when the page was identified as a human-verification wall.
	Captcha bool `json:"captcha,omitempty"`

	// Hash is the SHA-256 hash of Raw.
	Hash string `json:"hash,omitempty"`
}

// MaxPageSize is the maximum size of raw page content to keep.
const MaxPageSize = 5 * 1024 * 1024 // 5 MB

// ComputeHash calculates and sets the SHA-256 hash of the page's raw content.
func (p *Page) ComputeHash() {
	if len(p.Raw) == 0 {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256(p.Raw)
	p.Hash = hex.EncodeToString(hash[:])
}

// IsHTML returns true if the page content type indicates HTML.
// An empty content type is treated as HTML because the browser fetcher
// does not always expose one.
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return ct == "" ||
		strings.HasPrefix(ct, "text/html") ||
		strings.HasPrefix(ct, "application/xhtml+xml")
}

// Location returns the URL that relative links on this page resolve against.
func (p *Page) Location() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// TruncateRaw ensures the raw content doesn't exceed MaxPageSize.
func (p *Page) TruncateRaw() {
	if len(p.Raw) > MaxPageSize {
		p.Raw = p.Raw[:MaxPageSize]
	}
}
