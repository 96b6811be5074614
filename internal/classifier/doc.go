// Package classifier drives the two-stage model protocol over a crawl tree.
//
// The category stage labels every active node FILE, PAGE or NOISE. The
// pruning stage then drops whole branches that carry nothing useful. Both
// stages pack the tree into chunks, send the chunks to the model concurrently
// and merge the answers back into the tree by node index.
//
// A failed or unreadable answer never loses data: after the retry budget the
// affected nodes keep their retention and stay UNCLASSIFIED.
package classifier
