package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/relayhq/relay/internal/config"
	"github.com/relayhq/relay/internal/dispatch"
	"github.com/relayhq/relay/internal/intent"
	"github.com/relayhq/relay/internal/ledger"
	"github.com/relayhq/relay/internal/provider"
	"github.com/relayhq/relay/internal/registry"
	"github.com/relayhq/relay/internal/scheduler"
	"github.com/relayhq/relay/internal/script"
	"github.com/relayhq/relay/internal/state"
	"github.com/relayhq/relay/internal/telemetry"
	"github.com/relayhq/relay/internal/workflow"
)

// app wires the whole engine together from one config file.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *registry.Registry
	metrics   *telemetry.Metrics
	history   *state.History
	ledger    *ledger.Ledger
	engine    *workflow.Engine
	scheduler *scheduler.Scheduler
	redis     *redis.Client
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}

	llm, err := provider.FromConfig(provider.Config{
		ID:      cfg.Provider.ID,
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		API:     cfg.Provider.API,
		Model:   cfg.Provider.Model,
	})
	if err != nil {
		return nil, err
	}
	var classifier intent.Classifier = intent.NewLLMClassifier(llm, logger)

	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		classifier = intent.NewCachedClassifier(classifier, redisClient, cfg.Cache.CacheTTL(), logger)
	}

	dsn := cfg.Ledger.DSN
	if cfg.Ledger.Driver == ledger.DriverSQLite && dsn == "" {
		dsn = filepath.Join(cfg.DataDir, "relay.db")
	}
	led, err := ledger.Open(cfg.Ledger.Driver, dsn)
	if err != nil {
		return nil, err
	}

	disp := dispatch.New(cfg.Webhook.BaseURL, cfg.Webhook.RequestTimeout(), script.NewRunner(cfg.ScriptsDir), logger)
	metrics := telemetry.New()
	history := state.NewHistory()
	engine := workflow.New(reg, classifier, disp, metrics, history, led, logger)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		metrics:   metrics,
		history:   history,
		ledger:    led,
		engine:    engine,
		scheduler: scheduler.New(engineRunner{engine}, cfg.DataDir, logger),
		redis:     redisClient,
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, metrics.Handler()); err != nil {
				logger.Warn("metrics listener stopped", "error", err)
			}
		}()
	}
	return a, nil
}

func (a *app) close() {
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// engineRunner adapts the workflow engine to the scheduler's Runner.
type engineRunner struct {
	engine *workflow.Engine
}

func (r engineRunner) Run(ctx context.Context, input string) (string, error) {
	res := r.engine.Handle(ctx, input)
	if res.Kind == workflow.ResponseError {
		return "", errors.New(res.Text)
	}
	return res.Text, nil
}
