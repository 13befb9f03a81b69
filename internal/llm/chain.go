package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dstrand/trivium/internal/metrics"
)

// ChainConfig configures fallback behavior and cost accounting.
type ChainConfig struct {
	// TokenBudget is the total token ceiling across all calls. When it
	// is exceeded the chain skips straight to the last-resort provider.
	// Zero means unlimited.
	TokenBudget int64

	// ProviderTimeout bounds each individual provider call.
	ProviderTimeout time.Duration

	// FailureThreshold is the consecutive failures before a provider's
	// breaker opens; Cooldown is the open duration before a half-open
	// retry.
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultChainConfig returns sensible defaults.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		ProviderTimeout:  30 * time.Second,
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
	}
}

// Chain tries providers in configured order, advancing on transport
// errors, timeouts, and unparseable structured output. The last provider
// is expected to be the deterministic static one, which never fails.
type Chain struct {
	providers []Provider
	breakers  []*providerBreaker
	cfg       ChainConfig
	used      atomic.Int64
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewChain builds a provider chain. Providers are tried in slice order.
func NewChain(providers []Provider, cfg ChainConfig, collector *metrics.Collector, logger *slog.Logger) *Chain {
	def := DefaultChainConfig()
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = def.ProviderTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	breakers := make([]*providerBreaker, len(providers))
	for i := range providers {
		breakers[i] = &providerBreaker{threshold: cfg.FailureThreshold, cooldown: cfg.Cooldown}
	}
	return &Chain{
		providers: providers,
		breakers:  breakers,
		cfg:       cfg,
		collector: collector,
		logger:    logger,
	}
}

// TokensUsed returns total tokens consumed across all calls.
func (c *Chain) TokensUsed() int64 {
	return c.used.Load()
}

// Generate tries each provider in order and returns the first usable
// response. Returns ErrExhausted only when every provider failed, which
// cannot happen while the static provider is in the chain.
func (c *Chain) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for i, p := range c.providers {
		isStatic := p.Name() == KindStatic

		if c.overBudget() && !isStatic {
			c.logger.Warn("token budget exceeded, skipping provider",
				"provider", p.Name(), "used", c.used.Load(), "budget", c.cfg.TokenBudget)
			lastErr = ErrCostLimit
			continue
		}
		if !c.breakers[i].allow() {
			c.logger.Debug("provider breaker open, skipping", "provider", p.Name())
			continue
		}

		resp, elapsed, err := c.callProvider(ctx, p, req)
		if err != nil {
			c.breakers[i].failure(errors.Is(err, ErrFatalAPI))
			c.logger.Warn("provider failed, advancing chain", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}

		c.breakers[i].success()
		c.used.Add(resp.InputTokens + resp.OutputTokens)
		if c.collector != nil {
			c.collector.RecordLLMUsage(metrics.OpLLMGenerate, elapsed, resp.InputTokens, resp.OutputTokens)
		}
		return resp, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no providers configured")
	}
	return nil, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

func (c *Chain) callProvider(ctx context.Context, p Provider, req Request) (*Response, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Generate(callCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, err
	}

	if req.RequireJSON {
		if _, ok := ExtractJSON(resp.Content); !ok {
			return nil, elapsed, fmt.Errorf("response failed structural JSON parsing")
		}
	}
	return resp, elapsed, nil
}

func (c *Chain) overBudget() bool {
	return c.cfg.TokenBudget > 0 && c.used.Load() >= c.cfg.TokenBudget
}

// ExtractJSON locates the outermost JSON object in s, tolerating fenced
// code blocks and surrounding prose. Returns false when no valid object
// is present.
func ExtractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

// providerBreaker is per-provider circuit state. Fatal API errors open
// the breaker immediately; ordinary failures open it after a streak.
type providerBreaker struct {
	mu          sync.Mutex
	failures    int
	open        bool
	lastFailure time.Time
	threshold   int
	cooldown    time.Duration
}

func (b *providerBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if time.Since(b.lastFailure) >= b.cooldown {
		// Half-open: let one attempt through.
		b.open = false
		b.failures = b.threshold - 1
		return true
	}
	return false
}

func (b *providerBreaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

func (b *providerBreaker) failure(fatal bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	if fatal || b.failures >= b.threshold {
		b.open = true
	}
}
