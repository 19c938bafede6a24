package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carebridge/voice-gateway/internal/audio"
	"github.com/carebridge/voice-gateway/internal/metrics"
)

// Transcriber produces a transcript from buffered turn audio.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (*ASRResult, error)
}

// ASRResult holds the transcription output.
type ASRResult struct {
	Text      string
	LatencyMs float64
}

// ASRClient calls the speech-recognition worker over HTTP. The worker takes
// base64 WAV audio and returns a transcript string.
type ASRClient struct {
	url    string
	client *http.Client
}

// NewASRClient creates a client for the ASR worker at url.
func NewASRClient(url string, poolSize int, timeout time.Duration) *ASRClient {
	return &ASRClient{
		url:    url,
		client: NewPooledHTTPClient(poolSize, timeout),
	}
}

type asrRequest struct {
	AudioB64 string `json:"audio_b64"`
}

type asrResponse struct {
	Transcript string `json:"transcript"`
}

// Transcribe frames the PCM as WAV, ships it base64-encoded, and returns the
// worker's transcript. Non-success responses and malformed payloads are
// worker-unavailable failures; retries belong to the caller, not here.
func (c *ASRClient) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (*ASRResult, error) {
	start := time.Now()

	wav := audio.EncodeWAV(pcm, sampleRate, channels)
	body, err := json.Marshal(asrRequest{AudioB64: base64.StdEncoding.EncodeToString(wav)})
	if err != nil {
		return nil, fmt.Errorf("marshal asr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/asr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create asr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "http").Inc()
		return nil, fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("asr", "status").Inc()
		return nil, fmt.Errorf("asr status %d: %s", resp.StatusCode, respBody)
	}

	var result asrResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.Errors.WithLabelValues("asr", "decode").Inc()
		return nil, fmt.Errorf("decode asr response: %w", err)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("asr").Observe(latency.Seconds())

	return &ASRResult{
		Text:      strings.TrimSpace(result.Transcript),
		LatencyMs: float64(latency.Milliseconds()),
	}, nil
}
