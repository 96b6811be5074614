package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/univcrawl/internal/model"
	"github.com/nao1215/univcrawl/internal/retry"
)

// Builder crawls a university site breadth-first and records every
// discovered link as a node of a tree.
type Builder struct {
	fetcher PageFetcher
	policy  Policy
	logger  *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPolicy sets the link policy.
func WithPolicy(p Policy) BuilderOption {
	return func(b *Builder) {
		b.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder that loads pages with fetcher.
func NewBuilder(fetcher PageFetcher, opts ...BuilderOption) *Builder {
	b := &Builder{
		fetcher: fetcher,
		policy:  DefaultPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Stats summarizes one crawl.
type Stats struct {
	Fetched  int
	Failed   int
	Captchas int
	Files    int
	Skipped  int
}

// Build crawls from seedURL and returns the tree of discovered nodes.
//
// The seed is node 0 at depth 0. Links are recorded in discovery order and a
// URL already discovered is never added again, so every node has exactly
// one father. Pages at maxDepth are recorded but not fetched. maxDepth is
// clamped to MaxDepthLimit.
//
// A page that cannot be fetched, or that shows a captcha wall, stays in the
// tree with a note and is not expanded. Only a failure on the seed itself
// fails the crawl, with a *model.FetchError.
func (b *Builder) Build(ctx context.Context, seedURL string, maxDepth int) (*model.Tree, Stats, error) {
	var stats Stats
	seed, err := url.Parse(NormalizeURL(seedURL))
	if err != nil {
		return nil, stats, fmt.Errorf("invalid seed URL %q: %w", seedURL, err)
	}
	if seed.Host == "" {
		return nil, stats, fmt.Errorf("invalid seed URL %q: missing host", seedURL)
	}
	if seed.Scheme != "http" && seed.Scheme != "https" {
		seed.Scheme = "https"
	}
	maxDepth = min(max(maxDepth, 0), MaxDepthLimit)

	tree := model.NewTree()
	root, err := tree.Add(model.Node{FatherIndex: model.NoFather, URL: seed.String()})
	if err != nil {
		return nil, stats, err
	}
	site := siteHost(seed.Hostname())
	discovered := map[string]bool{root.URL: true}
	queue := []int{root.Index}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return tree, stats, err
		}
		if b.policy.MaxPages > 0 && stats.Fetched >= b.policy.MaxPages {
			b.logger.Info("page limit reached", "max_pages", b.policy.MaxPages, "queued", len(queue))
			break
		}

		current := tree.Node(queue[0])
		queue = queue[1:]
		if current.Depth >= maxDepth && !current.IsRoot() {
			continue
		}
		if !current.IsRoot() && !b.policy.fetchable(current.URL) {
			stats.Skipped++
			continue
		}

		if stats.Fetched+stats.Failed > 0 && b.policy.Delay > 0 {
			select {
			case <-ctx.Done():
				return tree, stats, ctx.Err()
			case <-time.After(b.policy.Delay):
			}
		}

		page, attempts, err := b.fetch(ctx, current.URL)
		if err != nil {
			if ctx.Err() != nil {
				return tree, stats, ctx.Err()
			}
			fetchErr := &model.FetchError{URL: current.URL, Attempts: attempts, Err: err}
			if current.IsRoot() {
				return tree, stats, fetchErr
			}
			stats.Failed++
			current.AddNote(fetchErr.Error())
			b.logger.Warn("page fetch failed", "url", current.URL, "attempts", attempts, "error", err)
			continue
		}
		stats.Fetched++

		if !page.IsHTML() {
			current.IsFile = true
			current.FileExtension = extensionForContentType(page.ContentType)
			stats.Files++
			continue
		}
		if page.Captcha {
			stats.Captchas++
			current.AddNote(model.ErrCaptchaDetected.Error())
			if err := current.SetCategory(model.CategoryNoise); err == nil {
				current.RaiseConfidence(1)
			}
			b.logger.Warn("captcha wall", "url", current.URL)
			if current.IsRoot() {
				return tree, stats, &model.FetchError{URL: current.URL, Attempts: attempts, Err: model.ErrCaptchaDetected}
			}
			continue
		}
		if final, err := url.Parse(page.Location()); err == nil && !sameSite(site, final.Hostname()) {
			current.AddNote("redirected off site to " + page.Location())
			continue
		}

		parser, err := NewParser(page.Location())
		if err != nil {
			current.AddNote(err.Error())
			continue
		}
		result, err := parser.Parse(bytes.NewReader(page.Raw))
		if err != nil {
			current.AddNote("parse failed: " + err.Error())
			continue
		}

		pageTitle := result.Title
		if current.Title == "" {
			current.Title = pageTitle
		}
		if pageTitle == "" {
			pageTitle = current.Title
		}
		current.Summary = result.Summary

		trail := result.Breadcrumb
		if len(trail) == 0 {
			trail = append(slices.Clone(current.Breadcrumb), pageTitle)
		}

		if current.Depth >= maxDepth {
			continue
		}

		word, hot := b.policy.isHot(result.Title, result.Text)
		if hot {
			b.logger.Debug("hot page", "url", current.URL, "keyword", word)
		}

		added := 0
		for _, link := range result.Links {
			if discovered[link.URL] {
				continue
			}
			u, err := url.Parse(link.URL)
			if err != nil || !sameSite(site, u.Hostname()) {
				continue
			}
			if b.policy.blocked(link.URL, link.Text) {
				continue
			}
			ext, isFile := b.policy.fileExtension(link.URL)
			if !isFile && !b.policy.follow(link.URL, link.Text, hot) {
				continue
			}

			discovered[link.URL] = true
			child, err := tree.Add(model.Node{
				FatherIndex:   current.Index,
				URL:           link.URL,
				Title:         link.Text,
				Breadcrumb:    slices.Clone(trail),
				FatherTitle:   pageTitle,
				IsFile:        isFile,
				FileExtension: ext,
			})
			if err != nil {
				return tree, stats, err
			}
			added++
			if isFile {
				stats.Files++
				continue
			}
			queue = append(queue, child.Index)
		}
		b.logger.Debug("page expanded", "url", current.URL, "index", current.Index, "depth", current.Depth,
			"links", len(result.Links), "added", added, "queued", len(queue))
	}

	b.logger.Info("crawl finished", "seed", root.URL, "nodes", tree.Len(), "fetched", stats.Fetched,
		"failed", stats.Failed, "captchas", stats.Captchas, "files", stats.Files)
	return tree, stats, nil
}

// fetch loads a page with retries. It returns the number of tries made.
func (b *Builder) fetch(ctx context.Context, pageURL string) (*model.Page, int, error) {
	var page *model.Page
	attempts, err := retry.Do(ctx, b.policy.Retry, retryableFetch, func(int) error {
		var err error
		page, err = b.fetcher.Fetch(ctx, pageURL)
		return err
	})
	if err != nil {
		return nil, attempts, err
	}
	if page == nil {
		return nil, attempts, errors.New("fetcher returned no page")
	}
	return page, attempts, nil
}

// siteHost returns the host that defines the site, without a leading "www.".
func siteHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// sameSite reports whether host belongs to the site, subdomains included.
func sameSite(site, host string) bool {
	host = strings.ToLower(host)
	return host == site || strings.HasSuffix(host, "."+site)
}
