package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carebridge/voice-gateway/internal/audio"
	"github.com/carebridge/voice-gateway/internal/metrics"
)

// Synthesizer produces raw PCM audio from text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*TTSResult, error)
}

// TTSResult holds synthesized audio with format metadata and timing.
type TTSResult struct {
	PCM        []byte // raw PCM16LE samples
	SampleRate int
	Channels   int
	LatencyMs  float64
}

// TTSClient calls the speech-synthesis worker over HTTP. The worker returns
// base64 PCM at a fixed target rate; if it instead returns a framed WAV
// container, the client extracts the raw samples itself.
type TTSClient struct {
	url        string
	sampleRate int
	channels   int
	client     *http.Client
}

// NewTTSClient creates a client for the TTS worker at url. The timeout should
// be generous: synthesis of long text is the slowest pipeline stage.
func NewTTSClient(url string, sampleRate, channels, poolSize int, timeout time.Duration) *TTSClient {
	return &TTSClient{
		url:        url,
		sampleRate: sampleRate,
		channels:   channels,
		client:     NewPooledHTTPClient(poolSize, timeout),
	}
}

type ttsRequest struct {
	Text string `json:"text"`
}

type ttsResponse struct {
	AudioPCMB64 string `json:"audio_pcm_b64"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
}

// Synthesize converts text to raw PCM. Empty audio is a worker failure.
func (c *TTSClient) Synthesize(ctx context.Context, text string) (*TTSResult, error) {
	start := time.Now()

	body, err := json.Marshal(ttsRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "http").Inc()
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("tts", "status").Inc()
		return nil, fmt.Errorf("tts status %d: %s", resp.StatusCode, respBody)
	}

	var result ttsResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.Errors.WithLabelValues("tts", "decode").Inc()
		return nil, fmt.Errorf("decode tts response: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(result.AudioPCMB64)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "decode").Inc()
		return nil, fmt.Errorf("decode tts audio: %w", err)
	}

	sampleRate := result.SampleRate
	channels := result.Channels
	pcm := raw

	// Some synthesis backends hand back a full WAV container instead of the
	// documented raw samples.
	if len(raw) >= 4 && string(raw[0:4]) == "RIFF" {
		pcm, sampleRate, channels, err = audio.DecodeWAV(raw)
		if err != nil {
			metrics.Errors.WithLabelValues("tts", "container").Inc()
			return nil, fmt.Errorf("extract tts container: %w", err)
		}
	}

	if len(pcm) == 0 {
		metrics.Errors.WithLabelValues("tts", "empty").Inc()
		return nil, fmt.Errorf("tts returned empty audio")
	}
	if sampleRate == 0 {
		sampleRate = c.sampleRate
	}
	if channels == 0 {
		channels = c.channels
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("tts").Observe(latency.Seconds())
	metrics.SynthesizedAudio.Observe(audio.PCMDuration(pcm, sampleRate, channels).Seconds())

	return &TTSResult{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   channels,
		LatencyMs:  float64(latency.Milliseconds()),
	}, nil
}
