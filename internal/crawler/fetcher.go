package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/univcrawl/internal/model"
)

// Default HTTP fetcher settings.
const (
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultMaxBodySize = model.MaxPageSize
	DefaultTimeout     = 30 * time.Second
)

// PageFetcher loads one page. Implementations need not be safe for
// concurrent use; the builder fetches one page at a time.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*model.Page, error)
}

// captchaSignals are markers of a human-verification wall.
var captchaSignals = []string{
	"g-recaptcha", "hcaptcha", "captcha-delivery", "cf-challenge",
	"人机验证", "人機驗證", "私はロボットではありません",
}

// DetectCaptcha reports whether rendered HTML is a human-verification wall.
func DetectCaptcha(body []byte) bool {
	for _, sig := range captchaSignals {
		if bytes.Contains(body, []byte(sig)) {
			return true
		}
	}
	return false
}

// StatusError is returned for an HTTP response that is not a success.
type StatusError struct {
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// retryableFetch reports whether a fetch error is worth another try.
// Client errors other than 408 and 429 are final.
func retryableFetch(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusRequestTimeout ||
			se.StatusCode == http.StatusTooManyRequests ||
			se.StatusCode >= 500
	}
	return true
}

// HTTPFetcher fetches pages with a plain HTTP client. It does not run
// scripts, so it suits sites that render server-side.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	headers     map[string]string
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithHeaders adds headers to every request, such as a site cookie.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.headers = maps.Clone(headers)
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxBodySize = size
	}
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client gets a default one
// with DefaultTimeout.
func NewHTTPFetcher(client *http.Client, opts ...HTTPOption) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	f := &HTTPFetcher{
		client:      client,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements PageFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en;q=0.9,zh;q=0.8")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	page := &model.Page{
		URL:         pageURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     resp.Header,
	}
	if !page.IsHTML() {
		// File bodies are never parsed.
		return page, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, err
	}
	page.Raw = body
	page.Captcha = DetectCaptcha(body)
	page.ComputeHash()
	page.TruncateRaw()
	return page, nil
}

// contentTypeExtensions maps document MIME types to file extensions.
var contentTypeExtensions = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/zip": ".zip",
}

// extensionForContentType returns the file extension of a non-HTML response.
func extensionForContentType(ct string) string {
	mediaType, _, _ := strings.Cut(strings.ToLower(ct), ";")
	return contentTypeExtensions[strings.TrimSpace(mediaType)]
}
