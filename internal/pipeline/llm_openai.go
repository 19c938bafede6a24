package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/carebridge/voice-gateway/internal/metrics"
)

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIProvider creates an OpenAI provider with the given credentials.
func NewOpenAIProvider(apiKey, model string, maxTokens int, temperature float64, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithRequestTimeout(timeout),
		),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Chat sends the conversation history and returns the completion.
func (c *OpenAIProvider) Chat(ctx context.Context, messages []Message) (*LLMResult, error) {
	start := time.Now()

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    msgs,
		MaxTokens:   openai.Int(int64(c.maxTokens)),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		metrics.Errors.WithLabelValues("llm", "empty").Inc()
		return nil, fmt.Errorf("openai chat: no choices returned")
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())

	return &LLMResult{
		Text:      completion.Choices[0].Message.Content,
		LatencyMs: float64(latency.Milliseconds()),
	}, nil
}
