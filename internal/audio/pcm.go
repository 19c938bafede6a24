package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// LoudnessFloorDB is the lowest loudness value LoudnessDB reports. Empty or
// silent frames land here instead of negative infinity.
const LoudnessFloorDB = -96.0

// Frame is one fixed-duration slice of captured audio. Timestamps are
// caller-supplied so detectors never read the wall clock.
type Frame struct {
	PCM        []byte // PCM16LE samples
	SampleRate int
	Channels   int
	TS         time.Time
}

// Duration reports the frame's playback duration.
func (f Frame) Duration() time.Duration {
	return PCMDuration(f.PCM, f.SampleRate, f.Channels)
}

// LoudnessDB computes short-term loudness of PCM16LE bytes as RMS of the
// normalized samples in dBFS, clamped to LoudnessFloorDB.
func LoudnessDB(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return LoudnessFloorDB
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / math.MaxInt16
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	if rms < 1e-5 {
		return LoudnessFloorDB
	}
	db := 20 * math.Log10(rms)
	if db < LoudnessFloorDB {
		return LoudnessFloorDB
	}
	return db
}

// SilencePCM returns d worth of zeroed PCM16LE samples.
func SilencePCM(d time.Duration, sampleRate, channels int) []byte {
	frames := int(d.Seconds() * float64(sampleRate))
	return make([]byte, frames*channels*2)
}
