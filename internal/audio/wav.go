package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

const wavHeaderSize = 44

// EncodeWAV wraps raw PCM16LE bytes in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	blockAlign := channels * 2
	buf := make([]byte, wavHeaderSize+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*blockAlign)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)

	return buf
}

// DecodeWAV extracts raw PCM16LE bytes and format metadata from a WAV file.
// The data chunk is located by scanning chunk headers rather than assuming a
// fixed offset, so files carrying extra metadata chunks (LIST, INFO) decode
// correctly.
func DecodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 12 {
		return nil, 0, 0, fmt.Errorf("wav too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var havefmt bool
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkLen > len(data) {
			return nil, 0, 0, fmt.Errorf("truncated %q chunk: need %d bytes, have %d", chunkID, chunkLen, len(data)-body)
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, 0, 0, fmt.Errorf("fmt chunk too short: %d bytes", chunkLen)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, 0, fmt.Errorf("unsupported audio format %d (PCM only)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, 0, 0, fmt.Errorf("unsupported bit depth %d (16-bit only)", bits)
			}
			havefmt = true
		case "data":
			if !havefmt {
				return nil, 0, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			out := make([]byte, chunkLen)
			copy(out, data[body:body+chunkLen])
			return out, sampleRate, channels, nil
		}

		// Chunks are word-aligned: odd sizes carry a pad byte.
		pos = body + chunkLen
		if chunkLen%2 == 1 {
			pos++
		}
	}

	return nil, 0, 0, fmt.Errorf("no data chunk found")
}

// WAVDuration reports the playback duration of a WAV file.
func WAVDuration(data []byte) (time.Duration, error) {
	pcm, sampleRate, channels, err := DecodeWAV(data)
	if err != nil {
		return 0, err
	}
	if sampleRate <= 0 || channels <= 0 {
		return 0, fmt.Errorf("invalid format: rate=%d channels=%d", sampleRate, channels)
	}
	frames := len(pcm) / (2 * channels)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate), nil
}

// PCMDuration reports the playback duration of raw PCM16LE bytes.
func PCMDuration(pcm []byte, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	frames := len(pcm) / (2 * channels)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
