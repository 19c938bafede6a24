package main

import (
	"os"
	"strconv"
	"time"

	"github.com/carebridge/voice-gateway/internal/prompts"
)

type config struct {
	port          string
	authToken     string
	asrURL        string
	ttsURL        string
	llmProvider   string
	ollamaURL     string
	ollamaModel   string
	openaiAPIKey  string
	openaiModel   string
	llmMaxTokens  int
	llmTemp       float64
	systemPrompt  string
	databaseURL   string
	sampleRate    int
	ttsSampleRate int
	chunkBytes    int
	chunkPacing   time.Duration
	ttsSilence    bool
	asrTimeout    time.Duration
	llmTimeout    time.Duration
	ttsTimeout    time.Duration
	poolSize      int
	maxConcurrent int
}

func loadConfig() config {
	return config{
		port:          envStr("GATEWAY_PORT", "8089"),
		authToken:     envStr("GATEWAY_AUTH_TOKEN", ""),
		asrURL:        envStr("ASR_URL", "http://localhost:8081"),
		ttsURL:        envStr("TTS_URL", "http://localhost:8082"),
		llmProvider:   envStr("LLM_PROVIDER", "stub"),
		ollamaURL:     envStr("OLLAMA_URL", "http://localhost:11434"),
		ollamaModel:   envStr("OLLAMA_MODEL", "llama3.2:3b"),
		openaiAPIKey:  envStr("OPENAI_API_KEY", ""),
		openaiModel:   envStr("OPENAI_MODEL", "gpt-4o-mini"),
		llmMaxTokens:  envInt("LLM_MAX_TOKENS", 150),
		llmTemp:       envFloat("LLM_TEMPERATURE", 0.4),
		systemPrompt:  prompts.ForSession(envStr("LLM_SYSTEM_PROMPT", "")),
		databaseURL:   envStr("DATABASE_URL", ""),
		sampleRate:    envInt("AUDIO_SAMPLE_RATE", 16000),
		ttsSampleRate: envInt("TTS_SAMPLE_RATE", 24000),
		chunkBytes:    envInt("AUDIO_CHUNK_BYTES", 32*1024),
		chunkPacing:   envDur("AUDIO_CHUNK_PACING", 0),
		ttsSilence:    envStr("TTS_FALLBACK", "fail") == "silence",
		asrTimeout:    envDur("ASR_TIMEOUT", 30*time.Second),
		llmTimeout:    envDur("LLM_TIMEOUT", 60*time.Second),
		ttsTimeout:    envDur("TTS_TIMEOUT", 2*time.Minute),
		poolSize:      envInt("HTTP_POOL_SIZE", 50),
		maxConcurrent: envInt("MAX_CONCURRENT_SESSIONS", 100),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
