package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Macrina/Listify-Agent-sub000/internal/config"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/coerce"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/ports"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/prompt"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/usecase"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/acquire"
	rediscache "github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/cache/redis"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/export/xlsx"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/llm/ollama"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/llm/openai"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/queue/nats"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/repository/lists"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/resilience"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store/rpc"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store/sqldb"
)

type Option func(*options)

type options struct {
	observer  ports.PipelineObserver
	retryHook resilience.RetryHook
}

// WithObserver receives pipeline stages and every store attempt.
func WithObserver(observer ports.PipelineObserver) Option {
	return func(o *options) { o.observer = observer }
}

func WithRetryHook(hook resilience.RetryHook) Option {
	return func(o *options) { o.retryHook = hook }
}

type App struct {
	Config config.Config

	Extractor *usecase.ExtractUseCase
	Lists     *usecase.ListService
	Repo      *lists.Repository
	Queue     *nats.Queue

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	repo, err := app.openRepository(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	app.Repo = repo

	acquirer, err := app.newAcquirer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	model, err := newModelClient(cfg)
	if err != nil {
		return nil, err
	}

	coercer, err := coerce.New()
	if err != nil {
		return nil, fmt.Errorf("compile candidate schema: %w", err)
	}

	var ucOpts []usecase.ExtractOption
	if o.observer != nil {
		ucOpts = append(ucOpts, usecase.WithObserver(o.observer))
	}
	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
		ucOpts = append(ucOpts, usecase.WithPublisher(queue))
	}

	app.Extractor = usecase.NewExtractUseCase(
		usecase.ExtractConfig{
			RunTimeout:     cfg.RunTimeout,
			AcquireTimeout: cfg.AcquireTimeout,
			ModelTimeout:   cfg.ModelTimeout,
			PersistTimeout: cfg.PersistTimeout,
		},
		acquirer,
		prompt.New(),
		model,
		coercer,
		repo,
		ucOpts...,
	)
	app.Lists = usecase.NewListService(repo, xlsx.New())

	ok = true
	return app, nil
}

// OpenRepository opens only the list store and ensures its schema. It is for
// callers that never run the pipeline.
func OpenRepository(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{Config: cfg}
	repo, err := app.openRepository(ctx, cfg, o)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Repo = repo
	app.Lists = usecase.NewListService(repo, xlsx.New())
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) openRepository(ctx context.Context, cfg config.Config, o options) (*lists.Repository, error) {
	transport, dialect, err := a.openTransport(cfg)
	if err != nil {
		return nil, err
	}

	var gwOpts []store.Option
	if o.observer != nil {
		gwOpts = append(gwOpts, store.WithAttemptObserver(o.observer.PersistAttempt))
	}
	if o.retryHook != nil {
		gwOpts = append(gwOpts, store.WithRetryHook(o.retryHook))
	}
	gateway := store.New(transport, storeResilience(cfg), gwOpts...)

	repo := lists.New(gateway, dialect)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func (a *App) openTransport(cfg config.Config) (store.Transport, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "rpc":
		if cfg.StoreURL == "" {
			return nil, "", fmt.Errorf("STORE_URL is required for the rpc store driver")
		}
		client := rpc.New(rpc.Config{
			URL:       cfg.StoreURL,
			Token:     cfg.StoreToken,
			RateLimit: cfg.StoreRateLimitRPS,
			Burst:     cfg.StoreRateLimitBurst,
			Timeout:   cfg.StoreTimeout,
		})
		return client, lists.DialectSQLite, nil
	case "sqlite", "":
		return a.openSQL(sqldb.DialectSQLite, cfg.StoreDSN, lists.DialectSQLite)
	case "postgres":
		return a.openSQL(sqldb.DialectPostgres, cfg.StoreDSN, lists.DialectPostgres)
	default:
		return nil, "", fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (a *App) openSQL(dialect sqldb.Dialect, dsn, repoDialect string) (store.Transport, string, error) {
	db, err := sqldb.Open(dialect, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}
	transport := sqldb.New(db, dialect)
	a.closeFns = append(a.closeFns, func() { closeDB(transport, db) })
	return transport, repoDialect, nil
}

func closeDB(transport *sqldb.Transport, db *sql.DB) {
	if err := transport.Close(); err != nil {
		slog.Warn("store_close_failed", "error", err)
	}
	_ = db.Close()
}

func (a *App) newAcquirer(ctx context.Context, cfg config.Config) (*acquire.Acquirer, error) {
	profiles := acquire.DefaultProfiles()
	if cfg.AcquireProfilesFile != "" {
		loaded, err := acquire.LoadProfiles(cfg.AcquireProfilesFile)
		if err != nil {
			return nil, fmt.Errorf("load header profiles: %w", err)
		}
		profiles = loaded
	}

	var acqOpts []acquire.Option
	if cfg.RenderEnabled {
		acqOpts = append(acqOpts, acquire.WithRenderer(acquire.NewChromeRenderer(acquire.ChromeConfig{
			ExecPath:  cfg.ChromePath,
			UserAgent: profiles[0].UserAgent(),
		})))
	}
	if cfg.RedisAddr != "" {
		cache, err := rediscache.New(ctx, rediscache.Config{Addr: cfg.RedisAddr})
		if err != nil {
			slog.Warn("content_cache_disabled", "error", err)
		} else {
			a.closeFns = append(a.closeFns, func() { _ = cache.Close() })
			acqOpts = append(acqOpts, acquire.WithCache(cache))
		}
	}

	return acquire.New(acquire.Config{
		MaxChars:      cfg.AcquireMaxChars,
		MaxImageBytes: int(cfg.MaxUploadBytes),
		RenderTimeout: cfg.RenderTimeout,
		FetchTimeout:  cfg.FetchTimeout,
		CacheTTL:      cfg.ContentCacheTTL,
		Profiles:      profiles,
	}, acqOpts...), nil
}

func newModelClient(cfg config.Config) (ports.ModelClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "openai", "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return openai.New(openai.Config{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.ModelTimeout,
		}, nil), nil
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func storeResilience(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.StoreRetryAttempts
	rc.RetryInitialBackoff = cfg.StoreRetryInitial
	rc.RetryMaxBackoff = cfg.StoreRetryMax
	rc.RetryJitter = cfg.StoreRetryJitter
	return rc
}
