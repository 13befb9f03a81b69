// Package llm provides text generation through an ordered provider chain
// with tiered fallback, plus embedding support, using langchaingo.
package llm

import (
	"context"
	"errors"
)

// Request is a generation request.
type Request struct {
	System string
	Prompt string

	// RequireJSON marks operations that need machine-parseable output.
	// A provider whose response contains no parseable JSON object counts
	// as failed and the chain advances to the next provider.
	RequireJSON bool
}

// Response is a generation result with provenance and accounting.
type Response struct {
	Content      string
	Provider     string
	InputTokens  int64
	OutputTokens int64

	// Degraded is true when the deterministic last-resort provider
	// produced the content.
	Degraded bool
}

// Provider is a single LLM backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Sentinel errors. Check with errors.Is.
var (
	// ErrExhausted means every provider in the chain failed. This is the
	// only chain error that reaches the query boundary as a hard failure.
	ErrExhausted = errors.New("all llm providers exhausted")

	// ErrCostLimit means the token budget ceiling was hit; the chain
	// absorbs it by routing to the last-resort provider.
	ErrCostLimit = errors.New("llm cost limit exceeded")

	// ErrFatalAPI marks provider errors that will not recover on retry
	// (auth, billing, quota). The breaker opens immediately on these.
	ErrFatalAPI = errors.New("fatal llm api error")
)
