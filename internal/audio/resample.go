package audio

import (
	"encoding/binary"
	"math"
)

// ResamplePCM16 converts PCM16LE bytes from srcRate to dstRate. Used when a
// synthesis worker returns audio at a rate other than the session target.
func ResamplePCM16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	return pcm16FromFloat32(Resample(float32Samples(pcm), srcRate, dstRate))
}

// ResamplePCM16Interleaved converts interleaved multi-channel PCM16LE bytes
// from srcRate to dstRate. Each channel is deinterleaved and resampled
// independently so the anti-aliasing filter never smears across channels.
func ResamplePCM16Interleaved(pcm []byte, srcRate, dstRate, channels int) []byte {
	if channels <= 1 {
		return ResamplePCM16(pcm, srcRate, dstRate)
	}
	if srcRate == dstRate || len(pcm) < 2*channels {
		return pcm
	}

	samples := float32Samples(pcm)
	frames := len(samples) / channels
	resampled := make([][]float32, channels)
	for c := 0; c < channels; c++ {
		ch := make([]float32, frames)
		for i := 0; i < frames; i++ {
			ch[i] = samples[i*channels+c]
		}
		resampled[c] = Resample(ch, srcRate, dstRate)
	}

	outFrames := len(resampled[0])
	out := make([]float32, outFrames*channels)
	for c, ch := range resampled {
		for i := 0; i < outFrames; i++ {
			out[i*channels+c] = ch[i]
		}
	}
	return pcm16FromFloat32(out)
}

// float32Samples decodes PCM16LE bytes into normalized [-1, 1) samples.
func float32Samples(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

func pcm16FromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}

// Resample converts samples from srcRate to dstRate using linear interpolation
// with a windowed-sinc anti-aliasing filter. Returns the input unchanged if
// rates already match.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate {
		return samples
	}

	cutoff := float64(min(srcRate, dstRate)) / 2.0

	// Downsampling: filter before interpolation to remove frequencies above new Nyquist.
	if srcRate > dstRate {
		samples = lowPass(samples, cutoff, float64(srcRate), 31)
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		srcIdx := float64(i) * ratio
		idx := int(srcIdx)
		frac := float32(srcIdx - float64(idx))
		out[i] = interpolate(samples, idx, frac)
	}

	// Upsampling: filter after interpolation to remove imaging artifacts.
	if dstRate > srcRate {
		out = lowPass(out, cutoff, float64(dstRate), 31)
	}

	return out
}

// lowPass applies a windowed-sinc FIR low-pass filter via convolution.
// For each output sample, only the kernel taps overlapping the valid input range contribute.
func lowPass(samples []float32, cutoff, sampleRate float64, taps int) []float32 {
	kernel := sincKernel(cutoff, sampleRate, taps)
	half := taps / 2
	out := make([]float32, len(samples))

	for i := range samples {
		jStart := max(0, half-i)
		jEnd := min(taps, len(samples)-i+half)
		var sum float32
		for j := jStart; j < jEnd; j++ {
			sum += samples[i+j-half] * kernel[j]
		}
		out[i] = sum
	}

	return out
}

// sincKernel generates a normalized windowed-sinc FIR kernel using a Blackman window.
func sincKernel(cutoff, sampleRate float64, taps int) []float32 {
	fc := cutoff / sampleRate
	half := taps / 2
	kernel := make([]float32, taps)

	var sum float64
	for i := 0; i < taps; i++ {
		n := float64(i - half)
		sinc := 1.0
		if n != 0 {
			x := 2.0 * math.Pi * fc * n
			sinc = math.Sin(x) / x
		}
		// Blackman window
		w := 0.42 - 0.5*math.Cos(2.0*math.Pi*float64(i)/float64(taps-1)) +
			0.08*math.Cos(4.0*math.Pi*float64(i)/float64(taps-1))
		val := sinc * w
		kernel[i] = float32(val)
		sum += val
	}

	// Normalize so kernel sums to 1 (unity gain at DC).
	scale := float32(1.0 / sum)
	for i := range kernel {
		kernel[i] *= scale
	}

	return kernel
}

func interpolate(samples []float32, idx int, frac float32) float32 {
	if idx+1 >= len(samples) {
		return samples[len(samples)-1]
	}
	return samples[idx]*(1-frac) + samples[idx+1]*frac
}
