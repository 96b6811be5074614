package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nao1215/univcrawl/internal/crawler"
	"github.com/nao1215/univcrawl/internal/model"
)

// Default rendering settings.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultRenderTimeout     = 20 * time.Second
	pollInterval             = 200 * time.Millisecond
)

// consentLabels are button texts of cookie banners that are clicked away.
var consentLabels = []string{"同意", "Accept", "Agree", "OK", "はい", "承諾"}

// RodFetcher renders pages in one reused browser tab.
// It is not safe for concurrent use.
type RodFetcher struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	logger   *slog.Logger

	navigationTimeout time.Duration
	renderTimeout     time.Duration
}

var _ crawler.PageFetcher = (*RodFetcher)(nil)

// Option configures a RodFetcher.
type Option func(*RodFetcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *RodFetcher) {
		f.logger = logger
	}
}

// WithTimeouts sets how long navigation and rendering may take.
func WithTimeouts(navigation, render time.Duration) Option {
	return func(f *RodFetcher) {
		if navigation > 0 {
			f.navigationTimeout = navigation
		}
		if render > 0 {
			f.renderTimeout = render
		}
	}
}

// New launches a headless browser. controlURL connects to an already running
// browser instead; pass "" to launch a local one. Close must be called to
// release the browser.
func New(ctx context.Context, controlURL string, opts ...Option) (*RodFetcher, error) {
	f := &RodFetcher{
		logger:            slog.Default(),
		navigationTimeout: DefaultNavigationTimeout,
		renderTimeout:     DefaultRenderTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}

	if controlURL == "" {
		f.launcher = launcher.New().Headless(true)
		u, err := f.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	f.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := f.browser.Connect(); err != nil {
		f.cleanup()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := f.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	f.page = page
	return f, nil
}

// Fetch implements crawler.PageFetcher. It navigates, waits for the document
// to finish loading, and returns the rendered DOM. A page still loading after
// the render timeout is stopped and its partial DOM is used.
func (f *RodFetcher) Fetch(ctx context.Context, pageURL string) (*model.Page, error) {
	page := f.page.Context(ctx)

	if err := page.Timeout(f.navigationTimeout).Navigate(pageURL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Chromium aborts the navigation when the response is a download.
		if strings.Contains(err.Error(), "ERR_ABORTED") {
			return &model.Page{URL: pageURL, FinalURL: pageURL, ContentType: "application/octet-stream"}, nil
		}
		return nil, fmt.Errorf("navigate: %w", err)
	}

	if !f.waitReady(ctx, page) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Debug("render timeout, using partial DOM", "url", pageURL, "timeout", f.renderTimeout)
		_, _ = page.Eval(`() => window.stop()`)
	}

	contentType := ""
	if res, err := page.Eval(`() => document.contentType`); err == nil {
		contentType = res.Value.Str()
	}
	finalURL := pageURL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	result := &model.Page{
		URL:         pageURL,
		FinalURL:    finalURL,
		StatusCode:  200,
		ContentType: contentType,
	}
	if !result.IsHTML() {
		return result, nil
	}

	raw, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read DOM: %w", err)
	}
	result.Raw = []byte(raw)
	result.Captcha = crawler.DetectCaptcha(result.Raw)
	result.ComputeHash()
	result.TruncateRaw()

	if result.Captcha {
		// Leave the wall so the next navigation starts from a clean tab.
		if err := page.NavigateBack(); err != nil {
			f.logger.Debug("navigate back failed", "url", pageURL, "error", err)
		}
		return result, nil
	}
	f.dismissConsent(page)
	return result, nil
}

// waitReady polls document.readyState until it is "complete".
func (f *RodFetcher) waitReady(ctx context.Context, page *rod.Page) bool {
	deadline := time.NewTimer(f.renderTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		if res, err := page.Eval(`() => document.readyState`); err == nil && res.Value.Str() == "complete" {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}

// dismissConsent clicks the first cookie banner button it recognizes.
func (f *RodFetcher) dismissConsent(page *rod.Page) {
	buttons, err := page.Elements("button")
	if err != nil {
		return
	}
	for _, btn := range buttons {
		text, err := btn.Text()
		if err != nil || !isConsentLabel(text) {
			continue
		}
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err == nil {
			f.logger.Debug("cookie banner dismissed", "label", strings.TrimSpace(text))
		}
		return
	}
}

func isConsentLabel(text string) bool {
	for _, label := range consentLabels {
		if strings.Contains(text, label) {
			return true
		}
	}
	return false
}

// Close closes the browser and, when it was launched by New, kills the
// process and removes its profile directory.
func (f *RodFetcher) Close() error {
	var errs []error
	if f.page != nil {
		if err := f.page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if f.browser != nil {
		if err := f.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.cleanup()
	return errors.Join(errs...)
}

func (f *RodFetcher) cleanup() {
	if f.launcher != nil {
		f.launcher.Kill()
		f.launcher.Cleanup()
		f.launcher = nil
	}
}
