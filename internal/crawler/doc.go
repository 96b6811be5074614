// Package crawler builds the link tree of a university site.
//
// # Architecture
//
// The package is built around the Builder type, which walks a site
// breadth-first from a seed URL. Every link that passes the Policy becomes a
// node of a model.Tree. Pages are loaded through a PageFetcher, so the same
// walk runs over plain HTTP (HTTPFetcher) or a headless browser
// (browser.RodFetcher).
//
// # Components
//
//   - Builder: breadth-first walk that records nodes in discovery order
//   - Policy: keyword and pattern rules deciding which links become nodes
//   - Parser: extracts links, breadcrumbs and a summary from a rendered page
//   - HTTPFetcher: PageFetcher over net/http with captcha detection
//
// # Link selection
//
// A link becomes a node when it stays on the seed's site, matches no
// blacklist keyword or ignore pattern, and is either a file link or passes
// the heuristic keywords. On a hot page, one whose text carries a core
// keyword, every remaining link is taken. File links are leaves and are
// never fetched.
//
// # Politeness
//
//   - Delays between requests (Policy.Delay)
//   - Bounded retries with backoff (Policy.Retry)
//   - A cap on fetched pages (Policy.MaxPages)
//   - A hard depth limit (MaxDepthLimit)
//
// # Usage
//
//	b := crawler.NewBuilder(crawler.NewHTTPFetcher(nil), crawler.WithLogger(logger))
//	tree, stats, err := b.Build(ctx, "https://www.chiba-u.ac.jp", 3)
package crawler
