package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// InputMIMEPrefix is the MIME type for PCM16 mono sent to the live model.
	InputMIMEPrefix = "audio/pcm;rate="
)

var ErrOddPCMLength = errors.New("pcm16 payload has an odd number of bytes")

// Buffer is a block of decoded mono samples ready for playback.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// MIMEType builds the realtime input MIME type for the given sample rate.
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("%s%d", InputMIMEPrefix, sampleRate)
}

// ParseRate extracts the rate parameter from a MIME type such as
// "audio/pcm;rate=24000", returning fallback when it is absent or invalid.
func ParseRate(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}

// Float32ToPCM16 converts samples in [-1, 1] to signed 16-bit little-endian PCM.
// Out-of-range samples are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}

		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat32 converts signed 16-bit little-endian PCM to samples in [-1, 1).
func PCM16ToFloat32(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddPCMLength
	}

	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}

// DecodePCM16 decodes a PCM16 payload into a playable buffer.
func DecodePCM16(data []byte, sampleRate int) (Buffer, error) {
	samples, err := PCM16ToFloat32(data)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// Float32ToBytes packs samples as little-endian IEEE-754 floats.
func Float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// BytesToFloat32 unpacks little-endian IEEE-754 floats. Trailing bytes that do not
// form a whole sample are ignored.
func BytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return data, nil
}
