// Package browser provides a crawler.PageFetcher backed by a headless
// Chromium controlled through go-rod. Many university sites build their
// navigation with scripts, so the rendered DOM carries links that the raw
// HTML does not.
package browser
