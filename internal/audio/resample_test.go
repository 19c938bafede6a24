package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestResampleSameRate(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("expected passthrough, got %d samples", len(out))
	}
}

func TestResampleHalvesAndDoublesLength(t *testing.T) {
	in := make([]float32, 1600)
	down := Resample(in, 16000, 8000)
	if math.Abs(float64(len(down)-800)) > 2 {
		t.Errorf("downsample: expected about 800 samples, got %d", len(down))
	}
	up := Resample(in, 16000, 32000)
	if math.Abs(float64(len(up)-3200)) > 2 {
		t.Errorf("upsample: expected about 3200 samples, got %d", len(up))
	}
}

func TestResamplePCM16PreservesDuration(t *testing.T) {
	pcm := sinePCM(0.5, 22050, 200*time.Millisecond)
	out := ResamplePCM16(pcm, 22050, 24000)

	want := 200 * time.Millisecond
	got := PCMDuration(out, 24000, 1)
	if diff := got - want; diff < -5*time.Millisecond || diff > 5*time.Millisecond {
		t.Errorf("expected about %v, got %v", want, got)
	}
}

func TestResamplePCM16InterleavedKeepsChannelsSeparate(t *testing.T) {
	// Distinct DC levels per channel: interleaving mistakes or cross-channel
	// filtering would blend them.
	const frames = 4800
	left := int16(8192)
	right := int16(-16384)
	pcm := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(pcm[i*4:], uint16(left))
		binary.LittleEndian.PutUint16(pcm[i*4+2:], uint16(right))
	}

	out := ResamplePCM16Interleaved(pcm, 48000, 24000, 2)

	outFrames := len(out) / 4
	if math.Abs(float64(outFrames-2400)) > 2 {
		t.Fatalf("expected about 2400 frames, got %d", outFrames)
	}
	// Skip the filter edges; the DC level must hold in the interior.
	for i := outFrames / 4; i < outFrames*3/4; i++ {
		l := int16(binary.LittleEndian.Uint16(out[i*4:]))
		r := int16(binary.LittleEndian.Uint16(out[i*4+2:]))
		if math.Abs(float64(l-left)) > 300 || math.Abs(float64(r-right)) > 300 {
			t.Fatalf("channels blended at frame %d: left=%d right=%d", i, l, r)
		}
	}
}

func TestResamplePCM16InterleavedDegenerate(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if out := ResamplePCM16Interleaved(pcm, 24000, 24000, 2); &out[0] != &pcm[0] {
		t.Error("matching rates must pass input through")
	}
	mono := sinePCM(0.5, 22050, 50*time.Millisecond)
	a := ResamplePCM16Interleaved(mono, 22050, 24000, 1)
	b := ResamplePCM16(mono, 22050, 24000)
	if len(a) != len(b) {
		t.Errorf("single channel must match the mono path: %d vs %d bytes", len(a), len(b))
	}
}

func TestResamplePCM16Degenerate(t *testing.T) {
	if out := ResamplePCM16(nil, 22050, 24000); len(out) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(out))
	}
	pcm := []byte{1, 2, 3, 4}
	if out := ResamplePCM16(pcm, 16000, 16000); &out[0] != &pcm[0] {
		t.Error("matching rates must pass input through")
	}
}
