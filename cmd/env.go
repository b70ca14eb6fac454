package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/ai"
	"github.com/sells-group/reconcile-cli/internal/cache"
	"github.com/sells-group/reconcile-cli/internal/cost"
	"github.com/sells-group/reconcile-cli/internal/extraction"
	"github.com/sells-group/reconcile-cli/internal/monitoring"
	"github.com/sells-group/reconcile-cli/internal/pipeline"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// appEnv holds everything the process/analyze/serve commands need.
// Fields other than Roster may be nil in reduced environments.
type appEnv struct {
	Store       store.Store
	Cache       *cache.Cache
	Engine      *extraction.Engine
	Roster      *ai.Roster
	Extractor   *ai.Extractor
	Coordinator *pipeline.Coordinator
	Collector   *monitoring.Collector
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the store and wires the engine, extractor, detector and
// coordinator. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := store.Open(ctx, cfg.Store, cfg.Pipeline.StoreRetryAttempts)
	if err != nil {
		return nil, err
	}

	c, err := initCache()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	calc := initCalculator()
	roster, err := initRoster(calc)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	adapters, err := ai.NewAdapters(roster.Snapshot(), ai.Credentials{
		OpenAI:    cfg.AI.OpenAIKey,
		GLM:       cfg.AI.GLMKey,
		Anthropic: cfg.AI.AnthropicKey,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	engine := extraction.NewEngine(
		extraction.DefaultStrategies(extraction.NewToolbox(cfg.Extraction)),
		extraction.WithResultCache(c),
		extraction.WithMetricsSink(st),
	)

	health := resilience.NewServiceHealth(resilience.HealthConfigFrom(
		cfg.AI.BreakerFailureThreshold, cfg.AI.BreakerResetSecs,
	))
	extractor := ai.NewExtractor(roster, adapters,
		ai.WithRecorder(st),
		ai.WithCalculator(calc),
		ai.WithTimeout(time.Duration(cfg.AI.TimeoutSecs)*time.Second),
		ai.WithRateLimit(cfg.AI.RateLimitPerSec),
		ai.WithHealth(health),
	)

	coord := pipeline.New(engine, extractor, reconcile.NewDetector(st), st)

	zap.L().Debug("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Cache.Backend),
		zap.Strings("strategies", engine.Strategies()),
		zap.Int("providers", len(roster.Snapshot())),
	)

	return &appEnv{
		Store:       st,
		Cache:       c,
		Engine:      engine,
		Roster:      roster,
		Extractor:   extractor,
		Coordinator: coord,
		Collector:   monitoring.NewCollector(st),
	}, nil
}

func initCache() (*cache.Cache, error) {
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour

	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "memory":
		backend = cache.NewMemoryBackend(ttl)
	default:
		fs, err := cache.NewFSBackend(cfg.Cache.Dir)
		if err != nil {
			return nil, eris.Wrap(err, "init cache")
		}
		backend = fs
	}
	return cache.New(backend,
		cache.WithTTL(ttl),
		cache.WithSweepProbability(cfg.Cache.SweepProbability),
	), nil
}

func initCalculator() *cost.Calculator {
	overrides := make(map[string]cost.ModelRate, len(cfg.Pricing.Models))
	for name, p := range cfg.Pricing.Models {
		overrides[name] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	return cost.NewCalculator(cost.DefaultRates().WithOverrides(overrides))
}

// initRoster loads providers from the roster file when it exists, then from
// configuration, then the built-in defaults.
func initRoster(calc *cost.Calculator) (*ai.Roster, error) {
	providers := cfg.AI.Providers
	if len(providers) == 0 {
		providers = ai.DefaultProviders()
	}
	roster, err := ai.NewRoster(providers, calc)
	if err != nil {
		return nil, err
	}

	if cfg.AI.RosterFile == "" {
		return roster, nil
	}
	f, err := os.Open(cfg.AI.RosterFile)
	if errors.Is(err, os.ErrNotExist) {
		return roster, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "open roster file")
	}
	defer f.Close() //nolint:errcheck

	if err := roster.Import(f); err != nil {
		return nil, eris.Wrapf(err, "import roster file %s", cfg.AI.RosterFile)
	}
	return roster, nil
}

// saveRoster persists operator changes so later invocations see them.
func saveRoster(roster *ai.Roster) error {
	if cfg.AI.RosterFile == "" {
		zap.L().Warn("ai.roster_file not set, provider changes last for this process only")
		return nil
	}
	if dir := filepath.Dir(cfg.AI.RosterFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "create roster dir")
		}
	}
	tmp := cfg.AI.RosterFile + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrap(err, "create roster file")
	}
	if err := roster.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "close roster file")
	}
	return eris.Wrap(os.Rename(tmp, cfg.AI.RosterFile), "replace roster file")
}
