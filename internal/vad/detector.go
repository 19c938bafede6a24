package vad

import (
	"time"

	"github.com/carebridge/voice-gateway/internal/audio"
)

// Sensitivity selects how aggressively the detector classifies speech and how
// much trailing silence it demands before committing an endpoint. Lower
// sensitivity suits noisy environments (larger voice margin, longer
// confirmation silence); higher sensitivity gives faster turn-taking in quiet
// rooms.
type Sensitivity int

const (
	SensitivityVeryLow Sensitivity = iota
	SensitivityLow
	SensitivityMedium
	SensitivityHigh
	SensitivityVeryHigh
)

// tuning holds the per-preset thresholds.
type tuning struct {
	voiceMarginDB float64
	armSilence    time.Duration
	commitSilence time.Duration
	minSpeech     time.Duration
}

var tunings = map[Sensitivity]tuning{
	SensitivityVeryLow:  {voiceMarginDB: 18, armSilence: 600 * time.Millisecond, commitSilence: 1200 * time.Millisecond, minSpeech: 500 * time.Millisecond},
	SensitivityLow:      {voiceMarginDB: 15, armSilence: 450 * time.Millisecond, commitSilence: 900 * time.Millisecond, minSpeech: 400 * time.Millisecond},
	SensitivityMedium:   {voiceMarginDB: 12, armSilence: 350 * time.Millisecond, commitSilence: 700 * time.Millisecond, minSpeech: 300 * time.Millisecond},
	SensitivityHigh:     {voiceMarginDB: 10, armSilence: 300 * time.Millisecond, commitSilence: 600 * time.Millisecond, minSpeech: 250 * time.Millisecond},
	SensitivityVeryHigh: {voiceMarginDB: 8, armSilence: 250 * time.Millisecond, commitSilence: 500 * time.Millisecond, minSpeech: 200 * time.Millisecond},
}

// Config controls endpoint detection behavior.
type Config struct {
	Sensitivity Sensitivity

	// Noise-floor clamp and starting estimate, in dBFS.
	FloorMinDB   float64
	FloorMaxDB   float64
	FloorStartDB float64

	// CalibrationWindow is how long incoming loudness trains the floor at
	// session start before any voice/silence classification happens.
	CalibrationWindow time.Duration
	// RecalibrationWindow reopens a short training window after each commit,
	// guarding against environment changes right after playback stops.
	RecalibrationWindow time.Duration

	CalibrationBlend float64 // blend factor while calibrating
	AdaptBlend       float64 // blend factor for steady-state tracking
	AdaptMarginDB    float64 // floor tracks loudness within this margin even mid-speech
}

// DefaultConfig returns detection defaults for handset-distance speech.
func DefaultConfig() Config {
	return Config{
		Sensitivity:         SensitivityMedium,
		FloorMinDB:          -75,
		FloorMaxDB:          -30,
		FloorStartDB:        -60,
		CalibrationWindow:   600 * time.Millisecond,
		RecalibrationWindow: 300 * time.Millisecond,
		CalibrationBlend:    0.08,
		AdaptBlend:          0.05,
		AdaptMarginDB:       3,
	}
}

// State is a snapshot of the detector's speech-tracking fields.
type State struct {
	NoiseFloorDB  float64
	Calibrating   bool
	InSpeech      bool
	EndpointArmed bool
	SpeechStart   time.Time
	LastVoice     time.Time
}

// Decision is the outcome of processing one frame.
type Decision struct {
	LoudnessDB    float64
	Voice         bool
	SpeechStarted bool // first voice frame of an utterance
	EndpointArmed bool // silence just crossed the arm threshold
}

// Detector decides when the user has finished speaking, from a stream of
// fixed-duration PCM frames. All timing comes from caller-supplied frame
// timestamps; the detector never reads the wall clock, so tests drive it with
// synthetic clocks and synthetic PCM.
type Detector struct {
	cfg Config
	tun tuning

	floor          float64
	started        bool
	calibrating    bool
	calibrateUntil time.Time

	inSpeech    bool
	armed       bool
	speechStart time.Time
	lastVoice   time.Time
}

// New creates a detector with the given config.
func New(cfg Config) *Detector {
	tun, ok := tunings[cfg.Sensitivity]
	if !ok {
		tun = tunings[SensitivityMedium]
	}
	d := &Detector{cfg: cfg, tun: tun, floor: cfg.FloorStartDB}
	d.clampFloor()
	return d
}

// ProcessFrame feeds one frame into the detector. Frames must arrive with
// monotonically increasing timestamps. Empty or undersized frames measure at
// the loudness floor rather than failing.
func (d *Detector) ProcessFrame(f audio.Frame) Decision {
	loud := audio.LoudnessDB(f.PCM)
	ts := f.TS

	if !d.started {
		d.started = true
		d.calibrating = true
		d.calibrateUntil = ts.Add(d.cfg.CalibrationWindow)
	}

	if d.calibrating {
		if ts.Before(d.calibrateUntil) {
			d.blendFloor(loud, d.cfg.CalibrationBlend)
			return Decision{LoudnessDB: loud}
		}
		d.calibrating = false
	}

	// Track a changing environment without letting loud speech drag the
	// floor upward.
	if !d.inSpeech || loud <= d.floor+d.cfg.AdaptMarginDB {
		d.blendFloor(loud, d.cfg.AdaptBlend)
	}

	dec := Decision{LoudnessDB: loud}
	dec.Voice = loud >= d.floor+d.tun.voiceMarginDB

	if dec.Voice {
		if !d.inSpeech {
			d.inSpeech = true
			d.speechStart = ts
			dec.SpeechStarted = true
		}
		d.lastVoice = ts
		d.armed = false
		return dec
	}

	if d.inSpeech && !d.armed && ts.Sub(d.lastVoice) >= d.tun.armSilence {
		d.armed = true
		dec.EndpointArmed = true
	}
	return dec
}

// CommitReady reports whether the current utterance has ended: the endpoint
// is armed, the commit-silence window has elapsed since the last voice frame,
// and the utterance lasted at least the minimum speech duration.
func (d *Detector) CommitReady(now time.Time) bool {
	if !d.inSpeech || !d.armed {
		return false
	}
	if now.Sub(d.lastVoice) < d.tun.commitSilence {
		return false
	}
	return d.lastVoice.Sub(d.speechStart) >= d.tun.minSpeech
}

// Commit consumes a committed endpoint: speech tracking resets, the learned
// noise floor is kept, and a short recalibration window opens.
func (d *Detector) Commit(now time.Time) {
	d.inSpeech = false
	d.armed = false
	d.speechStart = time.Time{}
	d.lastVoice = time.Time{}
	d.calibrating = true
	d.calibrateUntil = now.Add(d.cfg.RecalibrationWindow)
}

// State returns a snapshot of the detector's current state.
func (d *Detector) State() State {
	return State{
		NoiseFloorDB:  d.floor,
		Calibrating:   d.calibrating,
		InSpeech:      d.inSpeech,
		EndpointArmed: d.armed,
		SpeechStart:   d.speechStart,
		LastVoice:     d.lastVoice,
	}
}

// NoiseFloorDB returns the current noise-floor estimate.
func (d *Detector) NoiseFloorDB() float64 { return d.floor }

func (d *Detector) blendFloor(loud, blend float64) {
	d.floor += blend * (loud - d.floor)
	d.clampFloor()
}

func (d *Detector) clampFloor() {
	if d.floor < d.cfg.FloorMinDB {
		d.floor = d.cfg.FloorMinDB
	}
	if d.floor > d.cfg.FloorMaxDB {
		d.floor = d.cfg.FloorMaxDB
	}
}
