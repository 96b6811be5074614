package model

import (
	"encoding/hex"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"
)

// TaskStatus is the lifecycle state of a crawl task.
type TaskStatus string

const (
	// TaskPending is a seed waiting to be crawled.
	TaskPending TaskStatus = "pending"
	// TaskCrawling is a task currently running the pipeline.
	TaskCrawling TaskStatus = "crawling"
	// TaskCompleted is a task whose pipeline finished.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed is a task aborted by a task-level error.
	TaskFailed TaskStatus = "failed"
)

// CanTransition reports whether a task may move from s to next.
// Status only moves forward, except that a failed task may be reset to pending.
// A crawling task may also be picked up again after a crash.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskCrawling || next == TaskFailed
	case TaskCrawling:
		return next == TaskCrawling || next == TaskCompleted || next == TaskFailed
	case TaskFailed:
		return next == TaskPending
	default:
		return false
	}
}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskCrawling, TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// MaxErrorMessageLength bounds the error message stored on a failed task.
const MaxErrorMessageLength = 500

// Task is one crawl of one seed URL.
type Task struct {
	ID         int64      `json:"id"`
	SeedURL    string     `json:"seed_url"`
	URLHash    string     `json:"url_hash"`
	SchoolName string     `json:"school_name,omitempty"`
	Status     TaskStatus `json:"status"`

	NodeCount   int `json:"node_count"`
	PrunedCount int `json:"pruned_count"`
	FileCount   int `json:"file_count"`

	// LastStage is the name of the last pipeline stage that completed.
	LastStage string `json:"last_stage,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TrimErrorMessage cuts msg to at most MaxErrorMessageLength bytes
// without splitting a UTF-8 sequence.
func TrimErrorMessage(msg string) string {
	if len(msg) <= MaxErrorMessageLength {
		return msg
	}
	cut := MaxErrorMessageLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// URLHash returns a stable identifier for a seed URL.
func URLHash(url string) string {
	sum := sha3.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}
