package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/content-radar/backend/internal/config"
	"github.com/DeafMist/content-radar/backend/internal/dedupe"
	"github.com/DeafMist/content-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/content-radar/backend/internal/embedding"
	"github.com/DeafMist/content-radar/backend/internal/logger"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var embeddings embeddingSource
	if cfg.GeminiAPIKey != "" {
		cache := dedupe.NewCache[[]float32](cfg.EmbeddingCacheSize, cfg.EmbeddingCacheTTL)
		provider, err := embedding.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingDim, cache, log)
		if err != nil {
			log.Error("init gemini embeddings", slog.Any("err", err))
			os.Exit(1)
		}
		embeddings = provider
		log.Info("pretrained embeddings enabled", slog.String("model", provider.Model()))
	} else if cfg.Strategy == "embedding" {
		log.Warn("GEMINI_API_KEY not set, embedding strategy uses hashed embeddings")
	}

	srv, err := newServer(log, cfg, esClient, embeddings)
	if err != nil {
		log.Error("init engine config", slog.Any("err", err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("strategy", cfg.Strategy),
			slog.Int("window_days", cfg.WindowDays),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
