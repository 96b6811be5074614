// Package llm is the boundary to the language model used for classification.
//
// A Client only moves text: it renders the prompt, sends it and returns the
// model's raw answer. Interpreting that answer is up to the caller, with
// ParseObject as the tolerant JSON decoder.
package llm
