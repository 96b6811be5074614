package crawler

import (
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/univcrawl/internal/config"
	"github.com/nao1215/univcrawl/internal/keyword"
	"github.com/nao1215/univcrawl/internal/retry"
)

// MaxDepthLimit caps the crawl depth whatever the configuration says.
const MaxDepthLimit = 10

// Policy decides which links become nodes and which nodes are fetched.
type Policy struct {
	// Core keywords make a page hot: every same-site link on a hot page is followed.
	Core *keyword.Set

	// Heuristic keywords gate link following on ordinary pages.
	Heuristic *keyword.Set

	// Blacklist keywords drop a link before it becomes a node.
	Blacklist *keyword.Set

	// FileExtensions mark links that are recorded as file leaves and never fetched.
	FileExtensions []string

	// IgnorePatterns are glob patterns on the URL path. A match drops the link.
	IgnorePatterns []string

	// FollowPatterns are glob patterns on the URL path. When set, only
	// matching pages are fetched. File links are not affected.
	FollowPatterns []string

	// MaxPages bounds the number of fetched pages. Zero means no bound.
	MaxPages int

	// Delay is the pause between two fetches.
	Delay time.Duration

	// Retry bounds how often a failed fetch is repeated.
	Retry retry.Policy
}

// DefaultPolicy returns the policy built from the keyword lists in config.
func DefaultPolicy() Policy {
	return Policy{
		Core:           keyword.NewSet(config.CoreKeywords...),
		Heuristic:      keyword.NewSet(config.HeuristicKeywords...),
		Blacklist:      keyword.NewSet(config.Blacklist...),
		FileExtensions: config.FileExtensions,
		MaxPages:       config.DefaultMaxPages,
		Delay:          config.DefaultDelay,
		Retry:          retry.DefaultPolicy(),
	}
}

// ForSite returns a copy of p with the settings of one site applied. Site
// keywords extend the default lists; site patterns replace the policy's.
func (p Policy) ForSite(sc config.SiteConfig) Policy {
	if len(sc.Keywords) > 0 {
		p.Heuristic = keyword.NewSet(slices.Concat(config.HeuristicKeywords, sc.Keywords)...)
	}
	if len(sc.Blacklist) > 0 {
		p.Blacklist = keyword.NewSet(slices.Concat(config.Blacklist, sc.Blacklist)...)
	}
	if len(sc.IgnorePatterns) > 0 {
		p.IgnorePatterns = slices.Clone(sc.IgnorePatterns)
	}
	if len(sc.FollowPatterns) > 0 {
		p.FollowPatterns = slices.Clone(sc.FollowPatterns)
	}
	return p
}

// fileExtension returns the file extension of link when it is a file link.
func (p Policy) fileExtension(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return "", false
	}
	for _, e := range p.FileExtensions {
		if strings.EqualFold(e, ext) {
			return ext, true
		}
	}
	return "", false
}

// blocked reports whether a link is dropped before it becomes a node.
func (p Policy) blocked(link, text string) bool {
	if p.Blacklist != nil {
		if _, ok := p.Blacklist.Match(link, text); ok {
			return true
		}
	}
	u, err := url.Parse(link)
	if err != nil {
		return true
	}
	linkPath := u.Path
	if linkPath == "" {
		linkPath = "/"
	}
	for _, pattern := range p.IgnorePatterns {
		if matchPattern(pattern, linkPath) {
			return true
		}
	}
	return false
}

// follow reports whether a page link found on a page is worth a node.
// Every link on a hot page is followed.
func (p Policy) follow(link, text string, hot bool) bool {
	if hot || p.Heuristic == nil {
		return true
	}
	_, ok := p.Heuristic.Match(link, text)
	return ok
}

// fetchable reports whether a page node may be fetched and expanded.
func (p Policy) fetchable(link string) bool {
	if len(p.FollowPatterns) == 0 {
		return true
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	linkPath := u.Path
	if linkPath == "" {
		linkPath = "/"
	}
	for _, pattern := range p.FollowPatterns {
		if matchPattern(pattern, linkPath) {
			return true
		}
	}
	return false
}

// isHot reports whether page text contains a core keyword.
func (p Policy) isHot(texts ...string) (string, bool) {
	if p.Core == nil {
		return "", false
	}
	return p.Core.Match(texts...)
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match everything below a directory
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, p)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Patterns without a slash also match the last path element.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(p))
		if err == nil && matched {
			return true
		}
	}
	return false
}
