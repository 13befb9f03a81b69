// Package synthesizer turns execution results into a cited
// natural-language answer via the LLM provider chain.
package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dstrand/trivium/internal/executor"
	"github.com/dstrand/trivium/internal/llm"
	"github.com/dstrand/trivium/internal/metrics"
)

// Completeness of an answer relative to its plan.
const (
	Complete = "complete"
	Partial  = "partial"
)

// Answer is the synthesized output. Citations lists only packet ids the
// text actually references, all of which came from ok execution results.
type Answer struct {
	Text         string   `json:"text"`
	Citations    []string `json:"citations"`
	Completeness string   `json:"completeness"`
	Provider     string   `json:"provider,omitempty"`
	Degraded     bool     `json:"degraded,omitempty"`
}

// Synthesizer assembles context from execution results and prompts the
// chain for grounded prose.
type Synthesizer struct {
	chain     *llm.Chain
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a synthesizer over the given chain.
func New(chain *llm.Chain, collector *metrics.Collector, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{chain: chain, collector: collector, logger: logger}
}

const synthesizeSystem = `You answer questions from retrieved knowledge-base excerpts.

Rules:
- Use ONLY the excerpts provided. Never invent facts.
- Cite the supporting excerpt for each claim by its bracketed id, e.g. [a1b2c3].
- Cite only ids that appear in the excerpt list.
- If the excerpts do not answer the question, say so plainly.`

const noInformation = "No information found in the knowledge base for this query."

// Synthesize produces an answer from the step results. With no usable
// data it returns the explicit no-information answer rather than
// prompting the model with an empty context. Citations the model invents
// are stripped before the answer is returned.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []executor.Result) (*Answer, error) {
	start := time.Now()

	lines, supplied := buildContext(results)
	completeness := Complete
	for _, r := range results {
		if r.Status != executor.StatusOK {
			completeness = Partial
			break
		}
	}

	if len(lines) == 0 {
		return &Answer{
			Text:         noInformation,
			Citations:    []string{},
			Completeness: Partial,
		}, nil
	}

	prompt := fmt.Sprintf("Question: %s\n\nExcerpts:\n%s\n\nAnswer the question using only these excerpts, citing ids in brackets.",
		query, strings.Join(lines, "\n"))

	resp, err := s.chain.Generate(ctx, llm.Request{System: synthesizeSystem, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	text, citations := filterCitations(resp.Content, supplied)
	if stripped := len(extractCitations(resp.Content)) - len(extractCitations(text)); stripped > 0 {
		s.logger.Warn("stripped uncited packet references", "count", stripped, "provider", resp.Provider)
	}

	if s.collector != nil {
		s.collector.RecordTiming(metrics.OpSynthesize, time.Since(start))
	}

	return &Answer{
		Text:         text,
		Citations:    citations,
		Completeness: completeness,
		Provider:     resp.Provider,
		Degraded:     resp.Degraded,
	}, nil
}

// buildContext renders one line per ok result row and returns the set of
// packet ids the model is allowed to cite.
func buildContext(results []executor.Result) ([]string, map[string]bool) {
	var lines []string
	supplied := map[string]bool{}
	seen := map[string]bool{}

	for _, r := range results {
		if r.Status != executor.StatusOK || r.Response == nil {
			continue
		}
		for _, item := range r.Response.Results {
			if item.PacketID == "" || item.Excerpt == "" {
				continue
			}
			line := fmt.Sprintf("- [%s] (%s) %s", item.PacketID, r.Adapter, item.Excerpt)
			if seen[line] {
				continue
			}
			seen[line] = true
			lines = append(lines, line)
			supplied[item.PacketID] = true
		}
	}
	return lines, supplied
}

var (
	citationRe = regexp.MustCompile(`\[([A-Za-z0-9_.:/-]+)\]`)
	spaceRunRe = regexp.MustCompile(`[ \t]{2,}`)
)

func extractCitations(text string) []string {
	var out []string
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// filterCitations removes bracket references to ids outside the supplied
// set and returns the ordered distinct citations that remain.
func filterCitations(text string, supplied map[string]bool) (string, []string) {
	cited := []string{}
	seen := map[string]bool{}

	cleaned := citationRe.ReplaceAllStringFunc(text, func(m string) string {
		id := citationRe.FindStringSubmatch(m)[1]
		if !supplied[id] {
			return ""
		}
		if !seen[id] {
			seen[id] = true
			cited = append(cited, id)
		}
		return m
	})
	cleaned = strings.TrimSpace(spaceRunRe.ReplaceAllString(cleaned, " "))
	return cleaned, cited
}
