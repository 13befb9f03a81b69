package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// fakeProvider is a scripted chain member.
type fakeProvider struct {
	mu      sync.Mutex
	name    string
	content string
	err     error
	calls   int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Generate(_ context.Context, req Request) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Response{
		Content:      p.content,
		Provider:     p.name,
		InputTokens:  int64(len(req.Prompt)) / charsPerToken,
		OutputTokens: int64(len(p.content)) / charsPerToken,
	}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestChain(cfg ChainConfig, providers ...Provider) *Chain {
	return NewChain(providers, cfg, nil, nil)
}

func TestChain_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "primary", content: "answer"}
	secondary := &fakeProvider{name: "secondary", content: "unused"}
	chain := newTestChain(ChainConfig{}, primary, secondary, NewStaticProvider())

	resp, err := chain.Generate(context.Background(), Request{Prompt: "question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "primary" {
		t.Errorf("provider = %q, want primary", resp.Provider)
	}
	if resp.Degraded {
		t.Error("primary response must not be degraded")
	}
	if secondary.callCount() != 0 {
		t.Error("secondary should not have been called")
	}
}

func TestChain_FallsBackOnFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("connection refused")}
	secondary := &fakeProvider{name: "secondary", content: "from secondary"}
	chain := newTestChain(ChainConfig{}, primary, secondary, NewStaticProvider())

	resp, err := chain.Generate(context.Background(), Request{Prompt: "question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "secondary" {
		t.Errorf("provider = %q, want secondary", resp.Provider)
	}
	if resp.Degraded {
		t.Error("secondary response must not be degraded")
	}
}

func TestChain_LastResortIsDegraded(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("connection refused")}
	secondary := &fakeProvider{name: "secondary", err: errors.New("unavailable")}
	chain := newTestChain(ChainConfig{}, primary, secondary, NewStaticProvider())

	resp, err := chain.Generate(context.Background(), Request{Prompt: "who defined this?", RequireJSON: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != KindStatic {
		t.Errorf("provider = %q, want %q", resp.Provider, KindStatic)
	}
	if !resp.Degraded {
		t.Error("last-resort response must be degraded")
	}
}

func TestChain_UnparseableJSONAdvances(t *testing.T) {
	primary := &fakeProvider{name: "primary", content: "I think the backend should be vector, probably."}
	secondary := &fakeProvider{name: "secondary", content: `{"backend": "vector", "confidence": 0.9}`}
	chain := newTestChain(ChainConfig{}, primary, secondary, NewStaticProvider())

	resp, err := chain.Generate(context.Background(), Request{Prompt: "q", RequireJSON: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "secondary" {
		t.Errorf("provider = %q, want secondary (primary output is not JSON)", resp.Provider)
	}
}

func TestChain_BudgetSkipsToStatic(t *testing.T) {
	primary := &fakeProvider{name: "primary", content: "expensive answer"}
	chain := newTestChain(ChainConfig{TokenBudget: 10}, primary, NewStaticProvider())

	// First call consumes the budget.
	if _, err := chain.Generate(context.Background(), Request{Prompt: strings.Repeat("x", 200)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chain.TokensUsed() < 10 {
		t.Fatalf("expected budget consumed, used %d", chain.TokensUsed())
	}

	resp, err := chain.Generate(context.Background(), Request{Prompt: "another question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != KindStatic {
		t.Errorf("provider = %q, want static once budget exceeded", resp.Provider)
	}
	if !resp.Degraded {
		t.Error("over-budget response must be degraded")
	}
	if primary.callCount() != 1 {
		t.Errorf("primary called %d times, want 1", primary.callCount())
	}
}

func TestChain_BreakerOpensOnFatalError(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: wrapFatalError(errors.New("invalid api key"))}
	secondary := &fakeProvider{name: "secondary", content: "ok"}
	chain := newTestChain(ChainConfig{}, primary, secondary, NewStaticProvider())

	for i := 0; i < 3; i++ {
		if _, err := chain.Generate(context.Background(), Request{Prompt: "q"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// One fatal failure is enough to open the breaker; later calls skip
	// the provider entirely.
	if primary.callCount() != 1 {
		t.Errorf("primary called %d times, want 1 (breaker should be open)", primary.callCount())
	}
}

func TestChain_ExhaustedWithoutStatic(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("down")}
	chain := newTestChain(ChainConfig{}, primary)

	_, err := chain.Generate(context.Background(), Request{Prompt: "q"})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"prose around", `Sure! Here it is: {"a":1} Hope that helps.`, `{"a":1}`, true},
		{"no object", "just prose", "", false},
		{"invalid json", `{"a":}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStaticProvider_IntentJSON(t *testing.T) {
	static := NewStaticProvider()

	resp, err := static.Generate(context.Background(), Request{
		Prompt:      "Who defined the thermal constraints? Mention of Sarah Chen expected.",
		RequireJSON: true,
	})
	if err != nil {
		t.Fatalf("static provider must not fail: %v", err)
	}
	raw, ok := ExtractJSON(resp.Content)
	if !ok {
		t.Fatalf("static output is not JSON: %q", resp.Content)
	}
	if !strings.Contains(raw, `"graph"`) {
		t.Errorf("expected graph backend for a who-question, got %s", raw)
	}
	if !strings.Contains(raw, "Sarah Chen") {
		t.Errorf("expected proper-name entity extraction, got %s", raw)
	}
}
