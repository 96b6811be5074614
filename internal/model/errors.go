package model

import (
	"errors"
	"fmt"
)

// Tree structure errors. These indicate a programming error in whichever
// stage produced the tree and are never retried.
var (
	// ErrDanglingParent is returned when a node references a father that does not exist.
	ErrDanglingParent = errors.New("father index does not reference an existing node")

	// ErrDepthMismatch is returned when a node's depth is not its father's depth plus one.
	ErrDepthMismatch = errors.New("depth does not match father depth + 1")

	// ErrIndexMismatch is returned when a node's index does not match its arena position.
	ErrIndexMismatch = errors.New("node index does not match arena position")

	// ErrInvalidTransition is returned when a category or status change is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrCaptchaDetected is returned by page fetchers when a page is a
	// human-verification wall. It is recorded on the node and never aborts a task.
	ErrCaptchaDetected = errors.New("captcha detected")
)

// FetchError is returned when a page could not be fetched after the retry budget.
// For the seed URL it fails the whole task; for any other page it is recorded
// on the node.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

// Error implements error.
func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// OversizedNodeError is returned by the chunk packer when a single node's
// serialized record cannot fit into one chunk. The caller must truncate the
// node's text before packing again.
type OversizedNodeError struct {
	NodeIndex int
	Size      int
	Limit     int
}

// Error implements error.
func (e *OversizedNodeError) Error() string {
	return fmt.Sprintf("node %d serializes to %d bytes, exceeding chunk limit %d", e.NodeIndex, e.Size, e.Limit)
}

// LLMTransportError wraps a failed request to the model endpoint.
type LLMTransportError struct {
	StatusCode int
	Retryable  bool
	Err        error
}

// Error implements error.
func (e *LLMTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm transport error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm transport error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *LLMTransportError) Unwrap() error {
	return e.Err
}

// LLMParseError is returned when the model text cannot be parsed even after repair.
type LLMParseError struct {
	RawText string
	Err     error
}

// Error implements error.
func (e *LLMParseError) Error() string {
	return fmt.Sprintf("failed to parse llm response: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *LLMParseError) Unwrap() error {
	return e.Err
}

// ConnectivityViolation reports a retained node whose father is not retained.
// It always means a defect in sampling or pruning and aborts the task.
type ConnectivityViolation struct {
	NodeIndex   int
	FatherIndex int
	Reason      string
}

// Error implements error.
func (e *ConnectivityViolation) Error() string {
	return fmt.Sprintf("connectivity violation: node %d kept while father %d is %s", e.NodeIndex, e.FatherIndex, e.Reason)
}
