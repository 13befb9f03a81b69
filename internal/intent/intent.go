// Package intent turns free-text queries into structured retrieval
// intents via the LLM provider chain.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dstrand/trivium/internal/llm"
	"github.com/dstrand/trivium/internal/metrics"
)

// Strategy is the classifier's routing hint.
type Strategy string

const (
	VectorFirst     Strategy = "vector_first"
	AnalyticalFirst Strategy = "analytical_first"
	GraphFirst      Strategy = "graph_first"
	Hybrid          Strategy = "hybrid"
	MultiStep       Strategy = "multi_step"
)

// Intent is the structured interpretation of a query.
type Intent struct {
	Strategy          Strategy `json:"strategy"`
	Entities          []string `json:"entities"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning,omitempty"`
	RequiresMultiStep bool     `json:"requires_multi_step"`
}

// ClassificationError means no parseable intent could be extracted. The
// caller falls back to a conservative default plan instead of guessing.
type ClassificationError struct {
	Raw string
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("intent classification failed: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Config tunes the classifier.
type Config struct {
	// MultiStepThreshold is the minimum confidence at which the model's
	// multi-step flag is honored. Below it the flag is ignored.
	MultiStepThreshold float64

	// CacheSize bounds the normalized-query cache. Zero disables caching.
	CacheSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MultiStepThreshold: 0.5, CacheSize: 128}
}

// Classifier classifies queries through the provider chain, with a
// bounded cache keyed by the normalized query text.
type Classifier struct {
	chain     *llm.Chain
	cfg       Config
	cache     *queryCache
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewClassifier builds a classifier over the given chain.
func NewClassifier(chain *llm.Chain, cfg Config, collector *metrics.Collector, logger *slog.Logger) *Classifier {
	if cfg.MultiStepThreshold <= 0 {
		cfg.MultiStepThreshold = DefaultConfig().MultiStepThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	var cache *queryCache
	if cfg.CacheSize > 0 {
		cache = newQueryCache(cfg.CacheSize)
	}
	return &Classifier{
		chain:     chain,
		cfg:       cfg,
		cache:     cache,
		collector: collector,
		logger:    logger,
	}
}

const classifySystem = `You route knowledge-base queries to retrieval backends.

Backends:
- vector: semantic similarity over document text. Best for conceptual or "about" questions.
- analytical: structured fields and tables. Best for filters, counts, and exact values.
- graph: entities and their relationships. Best for "who/what is connected to X" questions.
- hybrid: no single backend clearly fits; all are queried.

Respond with ONLY a JSON object:
{"backend": "vector|analytical|graph|hybrid", "confidence": 0.0-1.0, "reasoning": "one sentence", "multi_step": true|false, "entities": ["named entities in the query"]}

Set multi_step to true only when answering requires one backend's output to seed a query against another.`

// Classify returns the intent for a query, consulting the cache first.
// A *ClassificationError is returned when no parseable intent can be
// extracted from any provider.
func (c *Classifier) Classify(ctx context.Context, query string) (*Intent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ClassificationError{Err: fmt.Errorf("empty query")}
	}

	key := normalize(query)
	if c.cache != nil {
		if cached, ok := c.cache.get(key); ok {
			return cached, nil
		}
	}

	start := time.Now()
	resp, err := c.chain.Generate(ctx, llm.Request{
		System:      classifySystem,
		Prompt:      "Query: " + query,
		RequireJSON: true,
	})
	if err != nil {
		return nil, &ClassificationError{Err: err}
	}

	intent, err := parseIntent(resp.Content, c.cfg.MultiStepThreshold)
	if err != nil {
		c.logger.Warn("unparseable intent response", "provider", resp.Provider, "error", err)
		return nil, err
	}
	if resp.Degraded && intent.Confidence > 0.5 {
		intent.Confidence = 0.5
	}

	if c.collector != nil {
		c.collector.RecordTiming(metrics.OpIntentClassify, time.Since(start))
	}
	c.logger.Debug("classified query",
		"strategy", intent.Strategy, "confidence", intent.Confidence,
		"entities", intent.Entities, "provider", resp.Provider)

	if c.cache != nil {
		c.cache.put(key, intent)
	}
	return intent, nil
}

// wireIntent is the JSON shape the prompt asks for.
type wireIntent struct {
	Backend    string   `json:"backend"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	MultiStep  bool     `json:"multi_step"`
	Entities   []string `json:"entities"`
}

// parseIntent applies the strict-then-lenient policy: exact JSON schema
// first, key/value scanning second, *ClassificationError when both fail.
func parseIntent(raw string, multiStepThreshold float64) (*Intent, error) {
	var wire wireIntent
	ok := false
	if candidate, found := llm.ExtractJSON(raw); found {
		if err := json.Unmarshal([]byte(candidate), &wire); err == nil && validBackend(wire.Backend) {
			ok = true
		}
	}
	if !ok {
		lenient, found := scanIntent(raw)
		if !found {
			return nil, &ClassificationError{Raw: raw, Err: fmt.Errorf("no backend found in response")}
		}
		wire = lenient
	}

	if wire.Confidence < 0 {
		wire.Confidence = 0
	}
	if wire.Confidence > 1 {
		wire.Confidence = 1
	}

	intent := &Intent{
		Strategy:   backendStrategy(wire.Backend),
		Entities:   wire.Entities,
		Confidence: wire.Confidence,
		Reasoning:  wire.Reasoning,
	}
	if intent.Entities == nil {
		intent.Entities = []string{}
	}
	if wire.MultiStep && wire.Confidence >= multiStepThreshold {
		intent.Strategy = MultiStep
		intent.RequiresMultiStep = true
	}
	return intent, nil
}

func validBackend(b string) bool {
	switch b {
	case "vector", "analytical", "graph", "hybrid":
		return true
	}
	return false
}

func backendStrategy(b string) Strategy {
	switch b {
	case "vector":
		return VectorFirst
	case "analytical":
		return AnalyticalFirst
	case "graph":
		return GraphFirst
	default:
		return Hybrid
	}
}

var (
	backendRe    = regexp.MustCompile(`(?i)backend["'\s:=]+(vector|analytical|graph|hybrid)`)
	confidenceRe = regexp.MustCompile(`(?i)confidence["'\s:=]+([01](?:\.\d+)?)`)
	multiStepRe  = regexp.MustCompile(`(?i)multi[_\s-]?step["'\s:=]+(true|false)`)
	entitiesRe   = regexp.MustCompile(`(?i)entities["'\s:=]+\[([^\]]*)\]`)
	quotedRe     = regexp.MustCompile(`"([^"]+)"`)
)

// scanIntent is the lenient second pass: a key/value scan over prose or
// partially malformed JSON. It under-accepts: without a recognizable
// backend it reports failure rather than misrouting the query.
func scanIntent(raw string) (wireIntent, bool) {
	m := backendRe.FindStringSubmatch(raw)
	if m == nil {
		return wireIntent{}, false
	}
	wire := wireIntent{Backend: strings.ToLower(m[1])}

	if m := confidenceRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			wire.Confidence = v
		}
	}
	if m := multiStepRe.FindStringSubmatch(raw); m != nil {
		wire.MultiStep = strings.EqualFold(m[1], "true")
	}
	if m := entitiesRe.FindStringSubmatch(raw); m != nil {
		for _, q := range quotedRe.FindAllStringSubmatch(m[1], -1) {
			wire.Entities = append(wire.Entities, q[1])
		}
	}
	return wire, true
}

var spaceRe = regexp.MustCompile(`\s+`)

// normalize produces the cache key: lowercase, collapsed whitespace,
// trailing punctuation stripped.
func normalize(query string) string {
	s := strings.ToLower(strings.TrimSpace(query))
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimRight(s, "?!. ")
}
