package generate

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/config"
	"github.com/sells-group/signal-hunter/internal/cost"
	"github.com/sells-group/signal-hunter/internal/resilience"
)

// RouterConfig selects providers per feature.
type RouterConfig struct {
	Routes   map[Feature]string
	Default  string
	Fallback string
	Retry    resilience.RetryPolicy
	Breaker  resilience.BreakerConfig
}

// RouterConfigFrom builds a RouterConfig from the generation config section.
func RouterConfigFrom(g config.GenerationConfig, retry resilience.RetryPolicy) RouterConfig {
	rc := RouterConfig{
		Routes:   make(map[Feature]string, len(g.Routes)),
		Default:  g.Default,
		Fallback: g.Fallback,
		Retry:    retry,
		Breaker:  resilience.DefaultBreakerConfig(),
	}
	for f, p := range g.Routes {
		rc.Routes[Feature(f)] = p
	}
	if g.BreakerThreshold > 0 {
		rc.Breaker.FailureThreshold = g.BreakerThreshold
	}
	if g.BreakerCooldownSec > 0 {
		rc.Breaker.Cooldown = time.Duration(g.BreakerCooldownSec) * time.Second
	}
	return rc
}

// Router sends each request to its feature's provider, retrying transient
// failures, then to the fallback provider. Each provider has its own breaker.
type Router struct {
	cfg       RouterConfig
	providers map[string]Provider
	breakers  *resilience.Breakers
	calc      *cost.Calculator
}

// NewRouter validates the routes against the registered providers. An
// unknown fallback is dropped with a warning; an unknown default or route is
// an error.
func NewRouter(cfg RouterConfig, calc *cost.Calculator, providers ...Provider) (*Router, error) {
	if len(providers) == 0 {
		return nil, ErrNoProvider
	}
	r := &Router{
		cfg:       cfg,
		providers: make(map[string]Provider, len(providers)),
		breakers:  resilience.NewBreakers(cfg.Breaker),
		calc:      calc,
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	if r.cfg.Default == "" {
		r.cfg.Default = providers[0].Name()
	}
	if _, ok := r.providers[r.cfg.Default]; !ok {
		return nil, eris.Wrapf(ErrNoProvider, "default provider %q", r.cfg.Default)
	}
	for f, name := range r.cfg.Routes {
		if _, ok := r.providers[name]; !ok {
			return nil, eris.Wrapf(ErrNoProvider, "route %s provider %q", f, name)
		}
	}
	if r.cfg.Fallback != "" {
		if _, ok := r.providers[r.cfg.Fallback]; !ok {
			zap.L().Warn("generate: fallback provider not configured, disabling fallback",
				zap.String("fallback", r.cfg.Fallback))
			r.cfg.Fallback = ""
		}
	}
	return r, nil
}

// Chain lists the providers tried for a feature, in order.
func (r *Router) Chain(f Feature) []string {
	primary := r.cfg.Default
	if name, ok := r.cfg.Routes[f]; ok {
		primary = name
	}
	if r.cfg.Fallback == "" || r.cfg.Fallback == primary {
		return []string{primary}
	}
	return []string{primary, r.cfg.Fallback}
}

// Generate implements Generator.
func (r *Router) Generate(ctx context.Context, req Request) (*Response, error) {
	chain := r.Chain(req.Feature)
	var lastErr error
	for i, name := range chain {
		p := r.providers[name]
		b := r.breakers.Get(name)
		policy := r.cfg.Retry.WithLogger(name, string(req.Feature))

		resp, err := resilience.RetryVal(ctx, policy, func(ctx context.Context) (*Response, error) {
			return resilience.Call(ctx, b, func(ctx context.Context) (*Response, error) {
				return p.Generate(ctx, req)
			})
		})
		if err == nil {
			resp.Provider = name
			resp.CostUSD = r.calc.Generation(name, resp.Model, cost.TokenUsage{
				Input:      resp.Usage.InputTokens,
				Output:     resp.Usage.OutputTokens,
				CacheWrite: resp.Usage.CacheWriteTokens,
				CacheRead:  resp.Usage.CacheReadTokens,
			})
			zap.L().Debug("generate: cost attribution",
				zap.String("feature", string(req.Feature)),
				zap.String("provider", name),
				zap.String("model", resp.Model),
				zap.Int64("input_tokens", resp.Usage.InputTokens),
				zap.Int64("output_tokens", resp.Usage.OutputTokens),
				zap.Float64("est_usd", resp.CostUSD),
			)
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(chain)-1 {
			zap.L().Warn("generate: provider failed, using fallback",
				zap.String("feature", string(req.Feature)),
				zap.String("provider", name),
				zap.String("fallback", chain[i+1]),
				zap.Error(err),
			)
		}
	}
	return nil, eris.Wrapf(lastErr, "generate: %s failed", req.Feature)
}

// Providers lists registered provider names, sorted.
func (r *Router) Providers() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BreakerStates reports each provider breaker that has been used.
func (r *Router) BreakerStates() map[string]string {
	return r.breakers.States()
}
