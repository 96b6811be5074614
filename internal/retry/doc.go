// Package retry runs an operation a bounded number of times with exponential
// backoff and jitter. Page fetches and model calls both go through it.
package retry
