// Package audio holds the PCM codec utilities, capture framing, and the
// playback scheduling timeline shared by both interaction modes.
package audio

import (
	"encoding/base64"
	"math"
	"time"
)

const (
	// InputSampleRate is the microphone capture rate sent upstream.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of synthesized speech from the backend.
	OutputSampleRate = 24000

	// FrameSamples is the capture chunk size forwarded per audio callback.
	FrameSamples = 4096

	bytesPerSample = 2
)

// FloatToLinear16 converts floating-point samples in [-1,1] to 16-bit
// signed PCM. Out-of-range input from noisy hardware is clamped before
// scaling. The scale factor differs by sign so the full signed range is
// used symmetrically.
func FloatToLinear16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s >= 0 {
			out[i] = int16(math.Round(s * 32767))
		} else {
			out[i] = int16(math.Round(s * 32768))
		}
	}
	return out
}

// Linear16ToFloat is the inverse mapping, dividing by 32768.
func Linear16ToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768
	}
	return out
}

// Int16ToBytes marshals samples as little-endian PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// BytesToInt16 unmarshals little-endian PCM bytes. A trailing odd byte is
// ignored.
func BytesToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/bytesPerSample)
	for i := range out {
		out[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}
	return out
}

// EncodeTransport encodes raw audio bytes for text-based transport.
func EncodeTransport(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeTransport reverses EncodeTransport, reproducing the original bytes
// exactly for any length input.
func DecodeTransport(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}

// PCMDuration returns the play time of raw 16-bit mono PCM at the output
// sample rate.
func PCMDuration(pcm []byte) time.Duration {
	samples := len(pcm) / bytesPerSample
	return time.Duration(samples) * time.Second / OutputSampleRate
}
