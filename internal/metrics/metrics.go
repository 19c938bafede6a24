package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sessions_active",
		Help: "Currently active voice sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sessions_total",
		Help: "Total voice sessions served",
	})

	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_turns_total",
		Help: "Completed turns by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_stage_duration_seconds",
		Help:    "Per-stage worker latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_turn_duration_seconds",
		Help:    "End-to-end latency from turn commit to last audio chunk",
		Buckets: []float64{0.2, 0.5, 1.0, 2.0, 3.0, 5.0, 8.0, 15.0, 30.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	AudioChunksIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_audio_chunks_in_total",
		Help: "Inbound audio chunks received",
	})

	AudioChunksOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_audio_chunks_out_total",
		Help: "Outbound synthesized audio chunks emitted",
	})

	BargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_barge_ins_total",
		Help: "Barge-in commands that cancelled an in-flight turn",
	})

	TTSFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_tts_silence_fallbacks_total",
		Help: "Turns completed with synthetic silence after TTS failure",
	})

	SynthesizedAudio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_synthesized_audio_seconds",
		Help:    "Playback duration of each completed synthesis",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
	})
)
