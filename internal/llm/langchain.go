package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider kinds recognized by NewProvider.
const (
	KindOllama    = "ollama"
	KindAnthropic = "anthropic"
	KindOpenAI    = "openai"
	KindStatic    = "static"
)

// ProviderConfig configures one chain member.
type ProviderConfig struct {
	Kind      string
	Model     string
	ServerURL string // ollama only
	APIKey    string // cloud providers
}

// langchainProvider wraps a langchaingo model as a chain member.
type langchainProvider struct {
	name  string
	model llms.Model
}

// NewProvider creates a provider from configuration. The set of kinds is
// closed; unknown kinds are an error, not a silent default.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case KindOllama:
		model, err := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.ServerURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return &langchainProvider{name: KindOllama, model: model}, nil

	case KindAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		model, err := anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return &langchainProvider{name: KindAnthropic, model: model}, nil

	case KindOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		model, err := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return &langchainProvider{name: KindOpenAI, model: model}, nil

	case KindStatic:
		return NewStaticProvider(), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Kind)
	}
}

func (p *langchainProvider) Name() string { return p.name }

func (p *langchainProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := []llms.MessageContent{}
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := p.model.GenerateContent(ctx, messages)
	if err != nil {
		return nil, wrapFatalError(fmt.Errorf("generate: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	choice := resp.Choices[0]
	in, out := tokenUsage(choice, req, choice.Content)
	return &Response{
		Content:      choice.Content,
		Provider:     p.name,
		InputTokens:  in,
		OutputTokens: out,
	}, nil
}

// charsPerToken is the rough character-to-token ratio used when a provider
// does not report usage.
const charsPerToken = 4

// tokenUsage reads reported usage from GenerationInfo, estimating from
// character counts when the provider reports nothing.
func tokenUsage(choice *llms.ContentChoice, req Request, content string) (in, out int64) {
	if choice.GenerationInfo != nil {
		if v, ok := asInt64(choice.GenerationInfo["PromptTokens"]); ok {
			in = v
		}
		if v, ok := asInt64(choice.GenerationInfo["CompletionTokens"]); ok {
			out = v
		}
	}
	if in == 0 {
		in = int64(len(req.System)+len(req.Prompt)) / charsPerToken
	}
	if out == 0 {
		out = int64(len(content)) / charsPerToken
	}
	return in, out
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
