package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/cost"
	"github.com/sells-group/signal-hunter/internal/generate"
	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/monitoring"
	"github.com/sells-group/signal-hunter/internal/pipeline"
	"github.com/sells-group/signal-hunter/internal/registry"
	"github.com/sells-group/signal-hunter/internal/scrape"
	"github.com/sells-group/signal-hunter/internal/search"
	"github.com/sells-group/signal-hunter/internal/sink"
	"github.com/sells-group/signal-hunter/internal/store"
	anthropicpkg "github.com/sells-group/signal-hunter/pkg/anthropic"
	"github.com/sells-group/signal-hunter/pkg/firecrawl"
	"github.com/sells-group/signal-hunter/pkg/google"
	"github.com/sells-group/signal-hunter/pkg/jina"
	"github.com/sells-group/signal-hunter/pkg/notion"
	"github.com/sells-group/signal-hunter/pkg/perplexity"
	sfpkg "github.com/sells-group/signal-hunter/pkg/salesforce"
)

const (
	notionRatePerSec     = 3
	salesforceRatePerSec = 5
)

// appEnv holds the store and coordinator shared by the hunt, serve and
// schedule commands.
type appEnv struct {
	Store       store.Store
	Coordinator *pipeline.Coordinator
	// Router is nil in simulated run mode.
	Router *generate.Router
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "", "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "signals.db"
		}
		st, err = store.NewSQLite(dsn, store.WithMaxLeads(cfg.Store.MaxLeads))
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil, store.WithMaxLeads(cfg.Store.MaxLeads))
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initSink returns the Salesforce sink, or nil when no client ID is set.
func initSink() (pipeline.Sink, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, nil
	}
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}
	client, err := sfpkg.Dial(sfpkg.Creds{
		LoginURL: cfg.Salesforce.LoginURL,
		Username: cfg.Salesforce.Username,
		ClientID: cfg.Salesforce.ClientID,
		KeyPEM:   string(pemData),
	}, sfpkg.WithRateLimit(salesforceRatePerSec))
	if err != nil {
		return nil, err
	}
	return sink.NewSalesforce(client, cfg.Salesforce.LeadSource, pipeline.SettingsFrom(cfg).Retry), nil
}

// initApp validates config, opens the store, wires providers and builds the
// coordinator. Callers should defer env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	deps, err := buildDeps(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	deps.Store = st

	coord, err := pipeline.NewCoordinator(deps, pipeline.SettingsFrom(cfg))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	router, _ := deps.Generator.(*generate.Router)
	return &appEnv{Store: st, Coordinator: coord, Router: router}, nil
}

// buildDeps wires everything the coordinator needs except the store.
func buildDeps(ctx context.Context) (pipeline.Deps, error) {
	library, err := loadLibrary(ctx)
	if err != nil {
		return pipeline.Deps{}, err
	}

	if cfg.Pipeline.RunMode == "simulated" {
		zap.L().Info("pipeline running with simulated providers")
		gen, searcher, fetcher := pipeline.SimulatedProviders()
		return pipeline.Deps{Generator: gen, Searcher: searcher, Fetcher: fetcher, Library: library}, nil
	}

	settings := pipeline.SettingsFrom(cfg)
	calc := cost.NewCalculator(cost.FromConfig(cfg.Pricing))

	router, err := generate.NewRouter(generate.RouterConfigFrom(cfg.Generation, settings.Retry), calc, generationProviders()...)
	if err != nil {
		return pipeline.Deps{}, eris.Wrap(err, "init generation router")
	}

	snk, err := initSink()
	if err != nil {
		return pipeline.Deps{}, err
	}

	deps := pipeline.Deps{
		Generator: router,
		Searcher:  buildSearcher(),
		Fetcher:   buildFetcher(),
		Cost:      calc,
		Library:   library,
	}
	if snk != nil {
		deps.Sink = snk
	}
	return deps, nil
}

func generationProviders() []generate.Provider {
	var providers []generate.Provider
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		providers = append(providers, generate.NewAnthropicProvider(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens))
	}
	if cfg.Perplexity.Key != "" {
		client := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		providers = append(providers, generate.NewPerplexityProvider(client, cfg.Perplexity.Model))
	}
	return providers
}

func jinaClient() jina.Client {
	opts := []jina.Option{jina.WithRateLimit(cfg.Search.RatePerSec)}
	if cfg.Jina.BaseURL != "" {
		opts = append(opts, jina.WithBaseURL(cfg.Jina.BaseURL))
	}
	if cfg.Jina.SearchBaseURL != "" {
		opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	return jina.NewClient(cfg.Jina.Key, opts...)
}

// buildSearcher combines the configured providers that have keys.
func buildSearcher() search.Searcher {
	var searchers []search.Searcher
	for _, name := range cfg.Search.Providers {
		switch name {
		case "jina":
			if cfg.Jina.Key != "" {
				searchers = append(searchers, search.NewJinaSearcher(jinaClient()))
			}
		case "places":
			if cfg.Google.Key != "" {
				client := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
				searchers = append(searchers, search.NewPlacesSearcher(client, cfg.Search.RatePerSec))
			}
		}
	}
	if len(searchers) == 1 {
		return searchers[0]
	}
	return search.NewMulti(searchers...)
}

// buildFetcher tries a plain HTTP fetch first, then Jina Reader, then
// Firecrawl when a key is set.
func buildFetcher() scrape.Fetcher {
	scrapers := []scrape.Scraper{scrape.NewLocalScraper()}
	if cfg.Jina.Key != "" {
		scrapers = append(scrapers, scrape.NewJinaAdapter(jinaClient()))
	}
	if cfg.Firecrawl.Key != "" {
		client := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(client))
	}
	return scrape.NewChain(scrape.NewPathMatcher(nil), scrapers...)
}

// loadLibrary reads the shared signal library from Notion when a database
// is configured, otherwise from the YAML file.
func loadLibrary(ctx context.Context) ([]model.SignalDefinition, error) {
	src := registry.Source{Path: cfg.Pipeline.SignalsPath}
	if cfg.Notion.Token != "" && cfg.Notion.SignalDB != "" {
		src.Notion = notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(notionRatePerSec))
		src.NotionDB = cfg.Notion.SignalDB
	}
	if src.Notion == nil {
		if _, err := os.Stat(src.Path); err != nil {
			zap.L().Warn("no signal library file; users must carry their own signals", zap.String("path", src.Path))
			return nil, nil
		}
	}
	signals, err := registry.ResolveSignals(ctx, src)
	if err != nil {
		return nil, eris.Wrap(err, "load signal library")
	}
	return signals, nil
}

// newChecker builds the run-health alert checker over st.
func newChecker(st store.Store) *monitoring.Checker {
	return monitoring.NewChecker(
		monitoring.NewCollector(st),
		monitoring.NewAlerter(cfg.Monitoring),
		cfg.Monitoring,
	)
}
