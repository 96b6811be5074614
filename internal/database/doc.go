// Package database provides SQLite-based storage for univcrawl.
//
// The CrawlDB stores:
//   - Tasks, one per seed URL, which double as the seed queue
//   - The node tree of every task, checkpointed after each pipeline stage
//   - The files handed off for download
//
// The database is a single file opened through modernc.org/sqlite, a CGO-free
// driver, in WAL mode.
package database
