// Package pipeline runs crawl tasks through the processing stages.
//
// A task flows through six steps, each implementing Step over a shared
// per-task Run:
//
//	crawl -> sample -> category -> prune -> partition -> persist
//
// Pipeline executes the steps in order, checks cancellation between them
// and verifies after every step that no retained node has a pruned
// ancestor. Runner wraps a pipeline for one task: it moves the task
// record through its statuses and checkpoints the tree after every step,
// so a task interrupted half-way resumes after its last completed stage.
// BatchProcessor runs many tasks concurrently with errgroup.
//
// Runs share nothing. Each task gets its own fetcher from a
// FetcherFactory and its own classifier from a ClassifierFactory.
package pipeline
