package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/c360studio/semlogic/compiler"
	"github.com/c360studio/semlogic/config"
	"github.com/c360studio/semlogic/llm"
	"github.com/c360studio/semlogic/llm/gemini"
	"github.com/c360studio/semlogic/metrics"
	"github.com/c360studio/semlogic/model"
	"github.com/c360studio/semlogic/semantic"
	"github.com/c360studio/semlogic/storage"
)

// Environment variables holding the Gemini API key, in lookup order.
var geminiKeyEnv = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// app wires configuration, the model registry and the optional audit store
// and metrics into compilers.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *model.Registry

	// pinned is the endpoint every stage is routed to, or empty when the
	// registry's capability routing applies.
	pinned string

	store   *storage.Store
	metrics *metrics.Metrics
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}

// loadConfig reads an explicit config file, or runs the layered loader.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if path == "" {
		return config.NewLoader(logger).Load()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadRegistry returns the configured registry file or the built-in defaults.
func loadRegistry(cfg *config.Config) (*model.Registry, error) {
	if cfg.Model.RegistryFile == "" {
		return model.NewDefaultRegistry(), nil
	}
	registry, err := model.LoadFromFile(cfg.Model.RegistryFile)
	if err != nil {
		return nil, fmt.Errorf("load model registry: %w", err)
	}
	return registry, nil
}

// newApp loads configuration and resolves the model selection. An explicit
// --model token, or the configured default when no registry file is set,
// pins every stage to one endpoint.
func newApp(ctx context.Context, opts *rootOptions, stderr io.Writer) (*app, error) {
	logger := newLogger(opts.logLevel, stderr)
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts.configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: registry}

	token := opts.modelToken
	if token == "" && cfg.Model.RegistryFile == "" {
		token = cfg.Model.Default
	}
	if token != "" {
		endpoint, err := registry.ResolveToken(token)
		if err != nil {
			return nil, err
		}
		registry.Pin(endpoint)
		a.pinned = endpoint

		if cfg.Model.Endpoint != "" {
			ep := *registry.GetEndpoint(endpoint)
			ep.URL = cfg.Model.Endpoint
			registry.SetEndpoint(endpoint, &ep)
		}
		logger.Debug("Pinned model endpoint", "model", endpoint)
	}

	if cfg.Storage.Enabled {
		store, err := storage.Open(ctx, cfg.Storage.Path, storage.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		a.store = store
	}

	return a, nil
}

// Close releases the audit store.
func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// compileContext bounds ctx by model.timeout.
func (a *app) compileContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Model.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Model.Timeout)
	}
	return context.WithCancel(ctx)
}

func geminiAPIKey() string {
	for _, name := range geminiKeyEnv {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// completer returns the completion backend. A pinned gemini endpoint uses the
// GenAI SDK; everything else goes through the registry-backed HTTP client.
func (a *app) completer(ctx context.Context) (llm.Completer, error) {
	var completer llm.Completer

	ep := a.registry.GetEndpoint(a.pinned)
	if a.pinned != "" && ep != nil && ep.Provider == "gemini" {
		opts := []gemini.Option{
			gemini.WithTemperature(float32(a.cfg.Model.Temperature)),
			gemini.WithLogger(a.logger),
		}
		if a.store != nil {
			opts = append(opts, gemini.WithRecorder(a.store))
		}
		c, err := gemini.New(ctx, geminiAPIKey(), ep.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("create gemini completer: %w", err)
		}
		completer = c
	} else {
		opts := []llm.ClientOption{
			llm.WithLogger(a.logger),
			llm.WithTemperature(a.cfg.Model.Temperature),
		}
		if a.store != nil {
			opts = append(opts, llm.WithRecorder(a.store))
		}
		completer = llm.NewClient(a.registry, opts...).StageCompleter()
	}

	if a.metrics != nil {
		completer = a.metrics.InstrumentCompleter(completer)
	}
	return completer, nil
}

// embedder returns the Gemini embedder used for intent matching and semantic
// scoring.
func (a *app) embedder(ctx context.Context) (semantic.Embedder, error) {
	key := geminiAPIKey()
	if key == "" {
		return nil, errors.New("embeddings need GEMINI_API_KEY or GOOGLE_API_KEY")
	}
	return semantic.NewGenAIEmbedder(ctx, key, semantic.DefaultEmbeddingModel)
}

// newCompiler builds a compiler with the configured budgets, audit store and
// metrics. withIntent adds the embedding-based intent preprocessor.
func (a *app) newCompiler(ctx context.Context, withIntent bool) (*compiler.Compiler, error) {
	completer, err := a.completer(ctx)
	if err != nil {
		return nil, err
	}

	opts := []compiler.Option{
		compiler.WithLogger(a.logger),
		compiler.WithBudgets(compiler.Budgets{
			Reasoning:  a.cfg.Budgets.Reasoning,
			Pseudocode: a.cfg.Budgets.Pseudocode,
			Code:       a.cfg.Budgets.Code,
		}),
	}
	if a.store != nil {
		opts = append(opts, compiler.WithAuditor(a.store))
	}
	if a.metrics != nil {
		opts = append(opts, compiler.WithObserver(a.metrics))
	}
	if withIntent {
		emb, err := a.embedder(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, compiler.WithPreprocessor(semantic.NewPreprocessor(emb, semantic.WithLogger(a.logger))))
	}

	return compiler.New(completer, opts...), nil
}
