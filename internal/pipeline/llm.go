package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carebridge/voice-gateway/internal/metrics"
)

// Message is one role-tagged entry of conversation history.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// LLMResult holds a completion with timing.
type LLMResult struct {
	Text      string
	LatencyMs float64
}

// LLMProvider produces a chat completion from ordered conversation history.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message) (*LLMResult, error)
}

// LLMRouter dispatches to the configured LLM provider by name.
type LLMRouter struct {
	*Router[LLMProvider]
}

// NewLLMRouter creates a router with registered providers and a fallback default.
func NewLLMRouter(backends map[string]LLMProvider, fallback string) *LLMRouter {
	return &LLMRouter{Router: NewRouter(backends, fallback)}
}

// Chat routes to the named provider and returns its completion. An empty
// completion is a worker failure, never silently treated as success.
func (r *LLMRouter) Chat(ctx context.Context, provider string, messages []Message) (*LLMResult, error) {
	backend, err := r.Route(provider)
	if err != nil {
		return nil, err
	}
	result, err := backend.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Text) == "" {
		metrics.Errors.WithLabelValues("llm", "empty").Inc()
		return nil, fmt.Errorf("llm returned empty completion")
	}
	return result, nil
}

// --- stub provider (offline/dev sessions, no network dependency) ---

// StubProvider deterministically acknowledges the user's last message.
type StubProvider struct{}

// NewStubProvider creates the offline provider.
func NewStubProvider() *StubProvider { return &StubProvider{} }

// Chat echoes a short acknowledgement of the most recent user message.
func (s *StubProvider) Chat(_ context.Context, messages []Message) (*LLMResult, error) {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = strings.TrimSpace(messages[i].Content)
			break
		}
	}
	if last == "" {
		return &LLMResult{Text: "I'm listening. Please tell me what brings you in today."}, nil
	}
	return &LLMResult{Text: fmt.Sprintf("I heard you say: %s. Could you tell me more about that?", last)}, nil
}

// --- Ollama provider (self-hosted chat endpoint) ---

// OllamaProvider calls an Ollama /api/chat endpoint, non-streaming.
type OllamaProvider struct {
	url         string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewOllamaProvider creates an Ollama HTTP provider.
func NewOllamaProvider(url, model string, maxTokens int, temperature float64, poolSize int, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		url:         url,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      NewPooledHTTPClient(poolSize, timeout),
	}
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []Message     `json:"messages"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Message Message `json:"message"`
}

// Chat sends the conversation to Ollama and returns the completion.
func (c *OllamaProvider) Chat(ctx context.Context, messages []Message) (*LLMResult, error) {
	start := time.Now()

	body, err := json.Marshal(ollamaRequest{
		Model:    c.model,
		Stream:   false,
		Messages: messages,
		Options:  ollamaOptions{NumPredict: c.maxTokens, Temperature: c.temperature},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, respBody)
	}

	var result ollamaResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.Errors.WithLabelValues("llm", "decode").Inc()
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())

	return &LLMResult{
		Text:      result.Message.Content,
		LatencyMs: float64(latency.Milliseconds()),
	}, nil
}
