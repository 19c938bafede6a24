package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carebridge/voice-gateway/internal/pipeline"
	"github.com/carebridge/voice-gateway/internal/session"
	"github.com/carebridge/voice-gateway/internal/store"
	"github.com/carebridge/voice-gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("dotenv load", "error", err)
	}

	cfg := loadConfig()

	asrClient := pipeline.NewASRClient(cfg.asrURL, cfg.poolSize, cfg.asrTimeout)
	ttsClient := pipeline.NewTTSClient(cfg.ttsURL, cfg.ttsSampleRate, 1, cfg.poolSize, cfg.ttsTimeout)

	llmBackends := map[string]pipeline.LLMProvider{
		"stub":   pipeline.NewStubProvider(),
		"ollama": pipeline.NewOllamaProvider(cfg.ollamaURL, cfg.ollamaModel, cfg.llmMaxTokens, cfg.llmTemp, cfg.poolSize, cfg.llmTimeout),
	}
	if cfg.openaiAPIKey != "" {
		llmBackends["openai"] = pipeline.NewOpenAIProvider(cfg.openaiAPIKey, cfg.openaiModel, cfg.llmMaxTokens, cfg.llmTemp, cfg.llmTimeout)
	}
	llmRouter := pipeline.NewLLMRouter(llmBackends, "stub")
	if !llmRouter.Has(cfg.llmProvider) {
		slog.Error("unknown llm provider", "provider", cfg.llmProvider, "available", llmRouter.Providers())
		os.Exit(1)
	}

	var turnStore *store.Store
	if cfg.databaseURL != "" {
		var err error
		turnStore, err = store.Open(cfg.databaseURL, slog.Default())
		if err != nil {
			slog.Error("store open failed", "error", err)
			os.Exit(1)
		}
		defer turnStore.Close()
		slog.Info("turn store enabled")
	}

	handler := ws.NewHandler(ws.HandlerConfig{
		Session: session.Config{
			ASR:                 asrClient,
			LLM:                 llmRouter,
			LLMProvider:         cfg.llmProvider,
			TTS:                 ttsClient,
			Store:               turnStore,
			ASRTimeout:          cfg.asrTimeout,
			LLMTimeout:          cfg.llmTimeout,
			TTSTimeout:          cfg.ttsTimeout,
			SampleRate:          cfg.sampleRate,
			Channels:            1,
			TTSSampleRate:       cfg.ttsSampleRate,
			ChunkBytes:          cfg.chunkBytes,
			ChunkPacing:         cfg.chunkPacing,
			SilenceOnTTSFailure: cfg.ttsSilence,
			SystemPrompt:        cfg.systemPrompt,
		},
		AuthToken:     cfg.authToken,
		MaxConcurrent: cfg.maxConcurrent,
	})

	mux := http.NewServeMux()
	mux.Handle("/v1/audio/stream", handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "llm_provider", cfg.llmProvider, "max_concurrent", cfg.maxConcurrent)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}
