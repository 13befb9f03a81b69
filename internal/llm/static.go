package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// StaticProvider is the deterministic last-resort chain member. It never
// fails and never performs I/O; its output is low-confidence keyword
// heuristics, always flagged degraded.
type StaticProvider struct{}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider returns the rule-based fallback provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

func (p *StaticProvider) Name() string { return KindStatic }

func (p *StaticProvider) Generate(_ context.Context, req Request) (*Response, error) {
	var content string
	if req.RequireJSON {
		content = p.classifyByKeywords(req.Prompt)
	} else {
		content = p.extractiveAnswer(req.Prompt)
	}
	return &Response{
		Content:      content,
		Provider:     KindStatic,
		InputTokens:  0,
		OutputTokens: int64(len(content)) / charsPerToken,
		Degraded:     true,
	}, nil
}

var (
	graphCues      = []string{"who ", "whom", "related", "connect", "relationship", "depends on", "defined by", "authored", "owns"}
	analyticalCues = []string{"how many", "count", "average", "total", "sum of", "between 20", "per year", "list all", "compare"}
	properName     = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)
)

// classifyByKeywords emits intent JSON in the same wire shape the real
// providers are prompted for.
func (p *StaticProvider) classifyByKeywords(prompt string) string {
	lower := strings.ToLower(prompt)

	graph := containsAny(lower, graphCues)
	analytical := containsAny(lower, analyticalCues)

	backend := "vector"
	switch {
	case graph && analytical:
		backend = "graph"
	case graph:
		backend = "graph"
	case analytical:
		backend = "analytical"
	}

	entities := properName.FindAllString(prompt, 5)
	if entities == nil {
		entities = []string{}
	}

	out, _ := json.Marshal(map[string]any{
		"backend":    backend,
		"confidence": 0.2,
		"reasoning":  "keyword heuristic fallback",
		"multi_step": graph && analytical,
		"entities":   entities,
	})
	return string(out)
}

// extractiveAnswer pulls the retrieved excerpt lines out of the synthesis
// prompt instead of generating prose. Excerpt lines carry their packet id
// markers, so citations stay verifiable downstream.
func (p *StaticProvider) extractiveAnswer(prompt string) string {
	var excerpts []string
	for _, line := range strings.Split(prompt, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- [") {
			excerpts = append(excerpts, trimmed)
			if len(excerpts) == 3 {
				break
			}
		}
	}
	if len(excerpts) == 0 {
		return "No language model was reachable and no retrieved context was supplied."
	}
	return "No language model was reachable. The most relevant retrieved excerpts are:\n" +
		strings.Join(excerpts, "\n")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
