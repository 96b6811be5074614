// Package report renders the result of a crawl task.
//
// Writers turn a Crawl into output for different readers:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: structured JSON for other tools
//   - MarkdownWriter: tier tables and a node chart for reviewers
//
// Writers implement the Writer interface and can be combined with
// MultiWriter. The files of a task are handed off separately through the
// FileHandoff interface; ManifestWriter records them as JSON lines for the
// downloader.
package report
