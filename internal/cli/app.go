package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/suricare/suricare/internal/alerts"
	"github.com/suricare/suricare/internal/assistant"
	"github.com/suricare/suricare/internal/config"
	"github.com/suricare/suricare/internal/genai"
	"github.com/suricare/suricare/internal/guardrail"
	"github.com/suricare/suricare/internal/knowledge"
	"github.com/suricare/suricare/internal/patterns"
	"github.com/suricare/suricare/internal/prompt"
	"github.com/suricare/suricare/internal/store"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       *config.Config
	st        store.Store
	analyzer  *patterns.Analyzer
	guard     *guardrail.Engine
	index     *knowledge.Index
	assistant *assistant.Assistant
	alerts    *alerts.Generator
	online    bool
	cached    bool
	closers   []func() error
}

func dsnType(cfg *config.Config) string { return store.DetectDSNType(cfg.DSN()) }

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// openStore ensures the SQLite directory exists and opens the configured store.
func openStore(cfg *config.Config) (store.Store, error) {
	dsn := cfg.DSN()
	if store.DetectDSNType(dsn) == "sqlite3" {
		dir := filepath.Dir(dsn)
		slog.Debug("openStore: creating state directory", "state_dir", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", dir, err)
		}
	}
	st, err := store.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func loadGuardrail(path string) (*guardrail.Engine, error) {
	if path == "" {
		return guardrail.NewDefault(), nil
	}
	rs, err := guardrail.LoadRules(path)
	if err != nil {
		return nil, err
	}
	return guardrail.New(rs)
}

// newGenerator returns the OpenAI client, or the offline generator when no key is set.
func newGenerator(cfg *config.Config) (assistant.Generator, knowledge.Embedder, error) {
	o := cfg.OpenAI
	opts := []genai.Option{
		genai.WithAPIKey(o.APIKey),
		genai.WithModel(o.Model),
		genai.WithEmbeddingModel(o.EmbeddingModel),
		genai.WithTemperature(o.Temperature),
		genai.WithMaxTokens(int(o.MaxTokens)),
		genai.WithDebugMode(o.Debug, cfg.StateDir),
	}
	if o.BaseURL != "" {
		opts = append(opts, genai.WithBaseURL(o.BaseURL))
	}
	client, err := genai.NewClient(opts...)
	if errors.Is(err, genai.ErrNoAPIKey) {
		slog.Warn("newGenerator: OPENAI_API_KEY not set, assistant runs offline")
		return genai.Offline{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, client, nil
}

// newApp wires storage, analysis, the assistant pipeline and the alert generator.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.st = st
	a.closers = append(a.closers, st.Close)

	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return fail(err)
	}
	a.analyzer = patterns.NewAnalyzer(st,
		patterns.WithWindow(days(cfg.Analysis.WindowDays)),
		patterns.WithGrowthWindow(days(cfg.Analysis.GrowthWindowDays)),
		patterns.WithLocation(loc))

	if a.guard, err = loadGuardrail(cfg.GuardrailRules); err != nil {
		return fail(fmt.Errorf("load guardrail rules: %w", err))
	}
	var promptOpts []prompt.Option
	if cfg.PersonaFile != "" {
		opt, err := prompt.LoadPersonaFile(cfg.PersonaFile)
		if err != nil {
			return fail(fmt.Errorf("load persona: %w", err))
		}
		promptOpts = append(promptOpts, opt)
	}
	builder := prompt.NewBuilder(a.guard.Rules(), promptOpts...)

	gen, embedder, err := newGenerator(cfg)
	if err != nil {
		return fail(err)
	}
	a.online = embedder != nil

	docs := knowledge.Default()
	if cfg.KnowledgeBase != "" {
		if docs, err = knowledge.Load(cfg.KnowledgeBase); err != nil {
			return fail(fmt.Errorf("load knowledge base: %w", err))
		}
	}
	a.index = knowledge.Build(ctx, docs, embedder)
	var searcher knowledge.Searcher = a.index
	if cfg.Redis.Addr != "" {
		client, err := knowledge.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("newApp: redis unavailable, knowledge search is uncached", "addr", cfg.Redis.Addr, "error", err)
		} else {
			searcher = knowledge.NewCachedSearcher(a.index, knowledge.NewRedisKVStore(client), cfg.Redis.CacheTTL.Duration)
			a.cached = true
			a.closers = append(a.closers, client.Close)
		}
	}

	a.assistant = assistant.New(gen, builder, a.guard,
		assistant.WithSearcher(searcher),
		assistant.WithAnalyzer(a.analyzer),
		assistant.WithMessageStore(st),
		assistant.WithTimeout(cfg.GenerationTimeout.Duration))
	a.alerts = alerts.NewGenerator(a.analyzer, st)

	slog.Info("newApp: components ready", "dsn_type", dsnType(cfg), "knowledge_chunks", a.index.Len(),
		"online", a.online, "search_cache", a.cached)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
