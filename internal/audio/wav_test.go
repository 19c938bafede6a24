package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodeDecodeWAVRoundTrip(t *testing.T) {
	pcm := make([]byte, 320)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	wav := EncodeWAV(pcm, 16000, 1)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}

	got, rate, channels, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("expected 16000/1, got %d/%d", rate, channels)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("decoded PCM does not match input")
	}
}

func TestEncodeDecodeWAVEmptyPayload(t *testing.T) {
	wav := EncodeWAV(nil, 24000, 1)
	pcm, rate, channels, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if len(pcm) != 0 {
		t.Errorf("expected empty PCM, got %d bytes", len(pcm))
	}
	if rate != 24000 || channels != 1 {
		t.Errorf("expected 24000/1, got %d/%d", rate, channels)
	}
}

// Files with metadata chunks between fmt and data must still decode: the
// data chunk is located by scanning, not by fixed offset.
func TestDecodeWAVWithListChunk(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := EncodeWAV(pcm, 8000, 1)

	list := make([]byte, 8+7) // odd-size chunk body exercises pad alignment
	copy(list[0:4], "LIST")
	binary.LittleEndian.PutUint32(list[4:8], 7)
	padded := append(list, 0) // pad byte

	withList := make([]byte, 0, len(wav)+len(padded))
	withList = append(withList, wav[:36]...) // RIFF header + fmt chunk
	withList = append(withList, padded...)
	withList = append(withList, wav[36:]...) // data chunk
	binary.LittleEndian.PutUint32(withList[4:8], uint32(len(withList)-8))

	got, rate, _, err := DecodeWAV(withList)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 8000 {
		t.Errorf("expected rate 8000, got %d", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("decoded PCM does not match input")
	}
}

func TestDecodeWAVRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"wrong magic", append([]byte("FAKE"), make([]byte, 40)...)},
		{"no data chunk", EncodeWAV(nil, 16000, 1)[:36]},
	}
	for _, tc := range cases {
		if _, _, _, err := DecodeWAV(tc.data); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestDecodeWAVTruncatedData(t *testing.T) {
	wav := EncodeWAV(make([]byte, 100), 16000, 1)
	if _, _, _, err := DecodeWAV(wav[:80]); err == nil {
		t.Error("expected error for truncated data chunk")
	}
}

func TestWAVDuration(t *testing.T) {
	pcm := make([]byte, 16000*2) // one second mono at 16kHz
	wav := EncodeWAV(pcm, 16000, 1)

	d, err := WAVDuration(wav)
	if err != nil {
		t.Fatalf("WAVDuration failed: %v", err)
	}
	if d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}
}

func TestPCMDuration(t *testing.T) {
	if d := PCMDuration(make([]byte, 24000*2), 24000, 1); d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}
	if d := PCMDuration(make([]byte, 1000), 0, 1); d != 0 {
		t.Errorf("expected 0 for invalid rate, got %v", d)
	}
}
