package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// sinePCM generates PCM16LE mono samples at the given amplitude (0..1).
func sinePCM(amplitude float64, sampleRate int, d time.Duration) []byte {
	n := int(float64(sampleRate) * d.Seconds())
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s*math.MaxInt16)))
	}
	return pcm
}

func TestLoudnessDBFullScale(t *testing.T) {
	// A full-scale sine has RMS 1/sqrt(2), about -3 dBFS.
	loud := LoudnessDB(sinePCM(1.0, 16000, 100*time.Millisecond))
	if math.Abs(loud-(-3.01)) > 0.2 {
		t.Errorf("expected about -3 dBFS, got %.2f", loud)
	}
}

func TestLoudnessDBQuietVsLoud(t *testing.T) {
	quiet := LoudnessDB(sinePCM(0.01, 16000, 50*time.Millisecond))
	loud := LoudnessDB(sinePCM(0.5, 16000, 50*time.Millisecond))
	if quiet >= loud {
		t.Errorf("quiet (%.2f) should measure below loud (%.2f)", quiet, loud)
	}
}

func TestLoudnessDBFloor(t *testing.T) {
	if got := LoudnessDB(nil); got != LoudnessFloorDB {
		t.Errorf("empty frame: expected %.1f, got %.2f", LoudnessFloorDB, got)
	}
	if got := LoudnessDB(make([]byte, 640)); got != LoudnessFloorDB {
		t.Errorf("silent frame: expected %.1f, got %.2f", LoudnessFloorDB, got)
	}
	if got := LoudnessDB([]byte{7}); got != LoudnessFloorDB {
		t.Errorf("sub-sample frame: expected %.1f, got %.2f", LoudnessFloorDB, got)
	}
}

func TestSilencePCM(t *testing.T) {
	pcm := SilencePCM(250*time.Millisecond, 16000, 1)
	if len(pcm) != 8000 {
		t.Fatalf("expected 8000 bytes, got %d", len(pcm))
	}
	for _, b := range pcm {
		if b != 0 {
			t.Fatal("silence must be zeroed")
		}
	}
	if d := PCMDuration(pcm, 16000, 1); d != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", d)
	}
}

func TestFrameDuration(t *testing.T) {
	f := Frame{PCM: make([]byte, 640), SampleRate: 16000, Channels: 1}
	if d := f.Duration(); d != 20*time.Millisecond {
		t.Errorf("expected 20ms, got %v", d)
	}
}
