package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidDepth is returned when the crawl depth is negative.
	ErrInvalidDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidChunkBytes is returned when the chunk budget is not positive.
	ErrInvalidChunkBytes = errors.New("invalid max chunk bytes: must be positive")

	// ErrInvalidThreshold is returned when the confidence threshold is outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid confidence threshold: must be within [0, 1]")

	// ErrInvalidConcurrency is returned when the model concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid llm concurrency: must be positive")

	// ErrInvalidAttempts is returned when a retry budget allows no try at all.
	ErrInvalidAttempts = errors.New("invalid attempts: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when a delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
