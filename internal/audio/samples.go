package audio

import (
	"encoding/binary"
	"math"
)

// Audio format defaults for narration.
const (
	// DefaultSampleRate matches the native rate of the neural voices.
	DefaultSampleRate = 24000
	// DefaultBlockSize is the number of samples handed to a sink per write.
	DefaultBlockSize = 1024
	// Channels is fixed to mono.
	Channels = 1
	// BytesPerFloatSample is the encoded size of one float32 sample.
	BytesPerFloatSample = 4
)

// SamplesToMs converts a sample count to whole milliseconds, truncating.
func SamplesToMs(samples int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return samples * 1000 / int64(sampleRate)
}

// MsToSamples converts milliseconds to a sample count, truncating.
func MsToSamples(ms int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return ms * int64(sampleRate) / 1000
}

// Normalize scales every sample by volume and then clamps it to [-1, 1].
// The input is not modified. An empty segment yields a single silent sample
// so that consumers always receive something to account for.
func Normalize(segment []float32, volume float64) []float32 {
	if len(segment) == 0 {
		return []float32{0}
	}

	out := make([]float32, len(segment))
	for i, s := range segment {
		v := float64(s) * volume
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		out[i] = float32(v)
	}
	return out
}

// DecodePCM16LE converts signed 16-bit little endian PCM to float samples.
// A trailing odd byte is ignored.
func DecodePCM16LE(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// EncodeFloat32LE appends the little endian encoding of samples to dst.
func EncodeFloat32LE(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// DecodeFloat32LE is the inverse of EncodeFloat32LE.
func DecodeFloat32LE(data []byte) []float32 {
	n := len(data) / BytesPerFloatSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
