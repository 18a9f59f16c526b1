package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/embedding/gemini"
	"docqa/internal/embedding/hashing"
	"docqa/internal/embedding/openai"
	"docqa/internal/events"
	"docqa/internal/extract"
	"docqa/internal/service"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/disk"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
)

// app holds the assembled service and everything that must be closed with it.
type app struct {
	svc     *service.Service
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// providerWithGenerator is what every backend implements.
type providerWithGenerator interface {
	embedding.Provider
	domain.Generator
}

// echoGenerator answers with the prompt context; it pairs with the offline embedder.
type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	_, ctxPart, ok := strings.Cut(prompt, "Context:\n")
	if !ok {
		return "", errors.New("prompt has no context")
	}
	ctxPart, _, _ = strings.Cut(ctxPart, "\n\nQuestion:")
	first, _, _ := strings.Cut(ctxPart, "\n\n")
	return strings.TrimSpace(first), nil
}

type hashingBackend struct {
	*hashing.Embedder
	echoGenerator
}

func newProvider(ctx context.Context, cfg config.ProviderConfig) (providerWithGenerator, error) {
	switch cfg.Type {
	case "gemini":
		g := cfg.Gemini
		return gemini.NewClient(ctx, gemini.Config{
			BaseURL:    g.BaseURL,
			APIKeyEnv:  g.APIKeyEnv,
			EmbedModel: g.EmbedModel,
			ChatModel:  g.ChatModel,
			Timeout:    time.Duration(g.TimeoutSecs) * time.Second,
		})
	case "openai":
		o := cfg.OpenAI
		return openai.NewClient(openai.Config{
			BaseURL:        o.BaseURL,
			APIKeyEnv:      o.APIKeyEnv,
			EmbedModel:     o.EmbedModel,
			ChatModel:      o.ChatModel,
			DocumentPrefix: o.DocumentPrefix,
			QueryPrefix:    o.QueryPrefix,
			Timeout:        time.Duration(o.TimeoutSecs) * time.Second,
		})
	case "hashing":
		return hashingBackend{Embedder: hashing.NewEmbedder(cfg.Hashing.Dimension)}, nil
	default:
		return nil, domain.ConfigError("provider", fmt.Errorf("unknown provider %q", cfg.Type))
	}
}

func newStore(cfg config.StoreConfig, logger *slog.Logger) (vectorstore.Store, func(), error) {
	switch cfg.Type {
	case "disk":
		return disk.NewStore(cfg.Location, cfg.BundleName, disk.WithLogger(logger)), func() {}, nil
	case "memory":
		return memory.NewStore(cfg.BundleName), func() {}, nil
	case "qdrant":
		s, err := qdrant.New(qdrant.Config{
			Addr:   cfg.Qdrant.Addr,
			APIKey: cfg.Qdrant.APIKey,
			Name:   cfg.BundleName,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, domain.ConfigError("store", fmt.Errorf("unknown store %q", cfg.Type))
	}
}

func buildApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	a := &app{}

	provider, err := newProvider(ctx, cfg.Provider)
	if err != nil {
		return nil, err
	}
	opts := []embedding.Option{embedding.WithLogger(logger)}
	if cfg.Provider.RateLimit > 0 {
		opts = append(opts, embedding.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Provider.RateLimit), 1)))
	}
	emb := embedding.NewEmbedder(provider, cfg.Provider.BatchSize, opts...)

	store, closeStore, err := newStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	var pub events.Publisher = events.Nop{}
	var nc *events.NATS
	if cfg.Events.NATSURL != "" {
		nc, err = events.Connect(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, nc.Close)
		pub = nc
	}

	a.svc = service.New(service.Deps{
		Extractor:  extract.New(),
		Splitter:   chunker.NewRecursiveSplitter(cfg.Splitter.ChunkSize, cfg.Splitter.ChunkOverlap, cfg.Splitter.Separators),
		Embedder:   emb,
		Store:      store,
		Generator:  provider,
		Summarizer: summarizer.NewFrequencySummarizer(),
		Events:     pub,
		Logger:     logger,
	}, service.Options{
		DocumentPath:     cfg.Document.Path,
		TopK:             cfg.Retrieval.TopK,
		SummarySentences: cfg.Document.MaxSentences,
	})

	if nc != nil {
		sub, err := nc.Subscribe(a.svc.HandleBundleSwapped)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("subscribe bundle events: %w", err)
		}
		a.closers = append(a.closers, func() { _ = sub.Unsubscribe() })
	}

	logger.Info("service assembled",
		"provider", provider.Name(), "model", provider.Model(),
		"store", cfg.Store.Type, "bundle", cfg.Store.BundleName, "events", cfg.Events.NATSURL != "")
	return a, nil
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

func warn(cfg *config.AppConfig) {
	for _, w := range cfg.Validate() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
}

// writeConfig saves the config loaded from src (defaults when empty) to dst.
func writeConfig(src, dst string, force bool, out io.Writer) error {
	if _, err := os.Stat(dst); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", dst)
	}
	cfg, err := loadConfig(src)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Save(dst, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s\n", dst)
	return nil
}
