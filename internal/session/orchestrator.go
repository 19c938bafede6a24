package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/voice-gateway/internal/audio"
	"github.com/carebridge/voice-gateway/internal/metrics"
	"github.com/carebridge/voice-gateway/internal/pipeline"
	"github.com/carebridge/voice-gateway/internal/protocol"
	"github.com/carebridge/voice-gateway/internal/store"
)

// Sender delivers one event to the connected client. Implementations must be
// safe for use from the orchestrator's goroutines; the orchestrator itself
// serializes calls under its session mutex.
type Sender interface {
	Send(ev protocol.Event) error
}

// Config wires a session orchestrator to its workers and tuning.
type Config struct {
	ASR         pipeline.Transcriber
	LLM         *pipeline.LLMRouter
	LLMProvider string
	TTS         pipeline.Synthesizer
	Store       *store.Store // optional
	Logger      *slog.Logger

	ASRTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	SampleRate    int // inbound PCM rate from the client
	Channels      int
	TTSSampleRate int // outbound playback rate, synthesis is resampled to it

	ChunkBytes  int           // base64 characters per audio-out event
	ChunkPacing time.Duration // delay between audio-out events, 0 = unpaced

	SilenceOnTTSFailure bool // substitute silence instead of failing the turn
	SystemPrompt        string

	Now func() time.Time
}

func (c *Config) fill() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ASRTimeout == 0 {
		c.ASRTimeout = 30 * time.Second
	}
	if c.LLMTimeout == 0 {
		c.LLMTimeout = 60 * time.Second
	}
	if c.TTSTimeout == 0 {
		c.TTSTimeout = 2 * time.Minute
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.TTSSampleRate == 0 {
		c.TTSSampleRate = 24000
	}
	if c.ChunkBytes == 0 {
		c.ChunkBytes = 32 * 1024
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// turnState tracks one in-flight pipeline run. The cancelled flag is only
// read and written under the orchestrator mutex.
type turnState struct {
	id        string
	cancel    context.CancelFunc
	cancelled bool
}

// Orchestrator runs the ASR→LLM→TTS pipeline for a single connection.
// Commands come in through HandleCommand; events go out through the sender.
type Orchestrator struct {
	cfg  Config
	id   string
	send Sender
	log  *slog.Logger

	mu       sync.Mutex
	seq      uint64
	state    string
	audioBuf []byte
	turn     *turnState
	history  []pipeline.Message
	draft    IntakeDraft
	closed   bool

	wg sync.WaitGroup
}

// New creates an orchestrator for one client connection.
func New(cfg Config, send Sender) *Orchestrator {
	cfg.fill()
	id := uuid.NewString()
	o := &Orchestrator{
		cfg:   cfg,
		id:    id,
		send:  send,
		log:   cfg.Logger.With("session_id", id),
		state: protocol.StateConnecting,
	}
	if cfg.SystemPrompt != "" {
		o.history = append(o.history, pipeline.Message{Role: "system", Content: cfg.SystemPrompt})
	}
	return o
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Start marks the session live after a successful handshake.
func (o *Orchestrator) Start() {
	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	if st := o.cfg.Store; st != nil {
		id := o.id
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.CreateSession(ctx, id); err != nil {
				slog.Warn("session persist failed", "session_id", id, "error", err)
			}
		}()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setStateLocked(protocol.StateConnected)
	o.setStateLocked(protocol.StateListening)
}

// HandleCommand dispatches one decoded client command.
func (o *Orchestrator) HandleCommand(cmd protocol.Command) {
	switch cmd.Kind {
	case protocol.CommandAudioChunk:
		o.handleAudioChunk(cmd.Payload)
	case protocol.CommandTurnComplete:
		o.handleTurnComplete()
	case protocol.CommandBargeIn:
		o.BargeIn(protocol.PayloadString(cmd.Payload, "reason"))
	case protocol.CommandStop:
		o.Stop()
	case protocol.CommandAudioFlushed:
		o.log.Debug("client flushed playback queue")
	case protocol.CommandHello:
		// Handshake is consumed by the transport layer; a repeat is harmless.
		o.log.Debug("duplicate hello ignored")
	default:
		o.log.Warn("unknown command ignored",
			"original_type", protocol.PayloadString(cmd.Payload, protocol.OriginalTypeKey))
	}
}

func (o *Orchestrator) handleAudioChunk(payload map[string]any) {
	data := protocol.PayloadString(payload, "data")
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		o.mu.Lock()
		o.emitErrorLocked("bad_audio", "audio chunk is not valid base64")
		o.mu.Unlock()
		return
	}
	metrics.AudioChunksIn.Inc()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turn != nil {
		// Audio received while a turn is in flight belongs to the next
		// utterance; the client should have barged in first.
		o.log.Debug("audio chunk buffered during active turn", "bytes", len(pcm))
	}
	o.audioBuf = append(o.audioBuf, pcm...)
}

func (o *Orchestrator) handleTurnComplete() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.turn != nil {
		o.emitErrorLocked("busy", "turn already in progress")
		o.mu.Unlock()
		return
	}
	if len(o.audioBuf) == 0 {
		o.emitErrorLocked("empty_turn", "no audio buffered for this turn")
		o.mu.Unlock()
		return
	}

	pcm := o.audioBuf
	o.audioBuf = nil

	ctx, cancel := context.WithCancel(context.Background())
	turn := &turnState{id: uuid.NewString(), cancel: cancel}
	o.turn = turn
	o.setStateLocked(protocol.StateThinking)
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.runTurn(ctx, turn, pcm)
	}()
}

// BargeIn cancels the in-flight turn. Exactly one audio-stop event is emitted
// per cancelled turn, and because both cancellation and event emission hold
// the session mutex, no audio-out for that turn can follow it.
//
// A barge-in can also land after streaming has finished: the client keeps
// playing buffered audio for seconds after the last chunk, so interruptions
// routinely arrive with no turn in flight. The client stops local playback
// and waits for the audio-stop acknowledgement before accepting more audio,
// so the acknowledgement is emitted either way.
func (o *Orchestrator) BargeIn(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.turn == nil || o.turn.cancelled {
		o.log.Debug("late barge-in acknowledged", "reason", reason)
		o.emitLocked(protocol.EventAudioStop, map[string]any{"reason": reason})
		return
	}
	o.turn.cancelled = true
	o.turn.cancel()
	metrics.BargeIns.Inc()
	o.log.Info("barge-in", "turn_id", o.turn.id, "reason", reason)
	o.emitLocked(protocol.EventAudioStop, map[string]any{
		"turn_id": o.turn.id,
		"reason":  reason,
	})
	o.setStateLocked(protocol.StateListening)
}

// Stop ends the session: the in-flight turn is cancelled and no further
// events are emitted.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.turn != nil && !o.turn.cancelled {
		o.turn.cancelled = true
		o.turn.cancel()
	}
	o.mu.Unlock()

	metrics.SessionsActive.Dec()
	if st := o.cfg.Store; st != nil {
		id := o.id
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.EndSession(ctx, id); err != nil {
				slog.Warn("session close persist failed", "session_id", id, "error", err)
			}
		}()
	}
	o.log.Info("session stopped")
}

// Wait blocks until any in-flight turn goroutine has finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// errTurnCancelled marks a stage abandoned by barge-in or session stop, as
// opposed to a worker failure.
var errTurnCancelled = errors.New("turn cancelled")

// runTurn drives one ASR→LLM→TTS pass. Any stage failure closes the turn
// with an error event; there are no retries.
func (o *Orchestrator) runTurn(ctx context.Context, turn *turnState, pcm []byte) {
	start := o.cfg.Now()
	log := o.log.With("turn_id", turn.id)

	outcome := "completed"
	var transcript, response string
	defer func() {
		o.mu.Lock()
		o.closeTurnLocked(turn)
		o.mu.Unlock()
		metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		o.persistTurn(turn, transcript, response, outcome, start)
	}()

	var err error
	transcript, err = o.stageASR(ctx, turn, pcm)
	if err != nil {
		outcome = o.settleFailure(turn, "asr", err, log)
		return
	}

	response, err = o.stageLLM(ctx, turn, transcript)
	if err != nil {
		outcome = o.settleFailure(turn, "llm", err, log)
		return
	}

	result, err := o.stageTTS(ctx, response, log)
	if err != nil {
		outcome = o.settleFailure(turn, "tts", err, log)
		return
	}

	if !o.streamAudio(ctx, turn, result) {
		outcome = "cancelled"
		return
	}

	o.mu.Lock()
	o.setStateLocked(protocol.StateListening)
	o.mu.Unlock()

	metrics.TurnDuration.Observe(o.cfg.Now().Sub(start).Seconds())
	log.Info("turn completed",
		"transcript_len", len(transcript),
		"response_len", len(response),
		"duration_ms", o.cfg.Now().Sub(start).Milliseconds())
}

func (o *Orchestrator) stageASR(ctx context.Context, turn *turnState, pcm []byte) (string, error) {
	asrCtx, cancel := context.WithTimeout(ctx, o.cfg.ASRTimeout)
	defer cancel()

	res, err := o.cfg.ASR.Transcribe(asrCtx, pcm, o.cfg.SampleRate, o.cfg.Channels)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if res.Text == "" {
		return "", fmt.Errorf("empty transcript")
	}

	o.mu.Lock()
	if turn.cancelled {
		o.mu.Unlock()
		return "", errTurnCancelled
	}
	log := o.log.With("turn_id", turn.id)
	o.emitLocked(protocol.EventTranscriptFinal, map[string]any{
		"turn_id":    turn.id,
		"text":       res.Text,
		"latency_ms": res.LatencyMs,
	})
	if phrase := ScreenEmergency(res.Text); phrase != "" {
		log.Warn("emergency phrase detected", "phrase", phrase)
		o.emitLocked(protocol.EventEmergency, map[string]any{
			"turn_id": turn.id,
			"phrase":  phrase,
		})
	}
	o.history = append(o.history, pipeline.Message{Role: "user", Content: res.Text})
	o.mu.Unlock()
	return res.Text, nil
}

func (o *Orchestrator) stageLLM(ctx context.Context, turn *turnState, transcript string) (string, error) {
	o.mu.Lock()
	messages := make([]pipeline.Message, len(o.history))
	copy(messages, o.history)
	o.mu.Unlock()

	llmCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()

	res, err := o.cfg.LLM.Chat(llmCtx, o.cfg.LLMProvider, messages)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	o.mu.Lock()
	if turn.cancelled {
		o.mu.Unlock()
		return "", errTurnCancelled
	}
	o.history = append(o.history, pipeline.Message{Role: "assistant", Content: res.Text})
	if patch := o.draft.Patch(transcript, res.Text); patch != nil {
		patch["turn_id"] = turn.id
		o.emitLocked(protocol.EventDraftUpdate, patch)
	}
	o.mu.Unlock()
	return res.Text, nil
}

func (o *Orchestrator) stageTTS(ctx context.Context, response string, log *slog.Logger) (*pipeline.TTSResult, error) {
	ttsCtx, cancel := context.WithTimeout(ctx, o.cfg.TTSTimeout)
	defer cancel()

	res, err := o.cfg.TTS.Synthesize(ttsCtx, response)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errTurnCancelled
		}
		if !o.cfg.SilenceOnTTSFailure {
			return nil, fmt.Errorf("synthesize: %w", err)
		}
		log.Warn("tts failed, substituting silence", "error", err)
		metrics.TTSFallbacks.Inc()
		res = &pipeline.TTSResult{
			PCM:        audio.SilencePCM(300*time.Millisecond, o.cfg.TTSSampleRate, 1),
			SampleRate: o.cfg.TTSSampleRate,
			Channels:   1,
		}
	}
	if res.SampleRate != o.cfg.TTSSampleRate {
		log.Debug("resampling synthesis",
			"from", res.SampleRate, "to", o.cfg.TTSSampleRate, "channels", res.Channels)
		res.PCM = audio.ResamplePCM16Interleaved(res.PCM, res.SampleRate, o.cfg.TTSSampleRate, res.Channels)
		res.SampleRate = o.cfg.TTSSampleRate
	}
	return res, nil
}

// streamAudio emits paced audio-out events. Returns false if the turn was
// cancelled mid-stream.
func (o *Orchestrator) streamAudio(ctx context.Context, turn *turnState, res *pipeline.TTSResult) bool {
	encoded := base64.StdEncoding.EncodeToString(res.PCM)
	chunks := audio.ChunkString(encoded, o.cfg.ChunkBytes)

	for i, chunk := range chunks {
		if o.cfg.ChunkPacing > 0 && i > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(o.cfg.ChunkPacing):
			}
		}

		o.mu.Lock()
		if turn.cancelled {
			o.mu.Unlock()
			return false
		}
		if i == 0 {
			o.setStateLocked(protocol.StateSpeaking)
		}
		o.emitLocked(protocol.EventAudioOut, map[string]any{
			"turn_id":     turn.id,
			"data":        chunk,
			"sample_rate": res.SampleRate,
			"channels":    res.Channels,
			"chunk":       i,
			"last":        i == len(chunks)-1,
		})
		metrics.AudioChunksOut.Inc()
		o.mu.Unlock()
	}
	return true
}

// settleFailure reports a stage failure and returns the turn outcome. A
// cancelled turn fails silently: its audio-stop already closed it.
func (o *Orchestrator) settleFailure(turn *turnState, stage string, err error, log *slog.Logger) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if errors.Is(err, errTurnCancelled) || turn.cancelled {
		return "cancelled"
	}
	log.Error("turn failed", "stage", stage, "error", err)
	o.emitErrorLocked(stage, err.Error())
	o.setStateLocked(protocol.StateListening)
	return "failed"
}

func (o *Orchestrator) persistTurn(turn *turnState, transcript, response, status string, start time.Time) {
	if o.cfg.Store != nil {
		o.cfg.Store.SaveTurnAsync(store.TurnRecord{
			ID:         turn.id,
			SessionID:  o.id,
			Transcript: transcript,
			Response:   response,
			Status:     status,
			DurationMs: float64(o.cfg.Now().Sub(start).Milliseconds()),
			CreatedAt:  start,
		})
	}
}

// closeTurnLocked clears the active turn if it is still the current one.
func (o *Orchestrator) closeTurnLocked(turn *turnState) {
	if o.turn == turn {
		o.turn = nil
	}
}

func (o *Orchestrator) setStateLocked(state string) {
	if o.state == state || o.closed {
		return
	}
	o.state = state
	o.emitLocked(protocol.EventSessionState, map[string]any{"state": state})
}

func (o *Orchestrator) emitErrorLocked(code, message string) {
	o.emitLocked(protocol.EventError, map[string]any{
		"code":    code,
		"message": message,
	})
}

// emitLocked assigns the next sequence number and sends. Callers hold mu,
// which is what makes per-session event order total.
func (o *Orchestrator) emitLocked(kind protocol.EventKind, payload map[string]any) {
	if o.closed {
		return
	}
	o.seq++
	ev := protocol.Event{Kind: kind, Payload: payload, Seq: o.seq}
	if err := o.send.Send(ev); err != nil {
		o.log.Warn("event send failed", "kind", string(kind), "error", err)
	}
}
