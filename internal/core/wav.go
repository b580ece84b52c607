package core

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SR is the fixed sample rate the core pipeline operates at. All time values
// are derived by dividing sample counts by SR.
const SR = 16_000

// maxInt16Abs is the divisor used to normalize a signed 16-bit PCM sample
// into [-1, 1]: the absolute value of math.MinInt16.
const maxInt16Abs = 32768.0

// ErrBadWavFormat is the sentinel wrapped by every rejection reason the
// decoder produces: wrong sample width, wrong sample rate, wrong channel
// count, a malformed RIFF container, or a truncated data chunk.
var ErrBadWavFormat = errors.New("core: bad wav format")

// DecodeWav parses a complete WAV byte stream and returns its samples
// normalized to [-1, 1], in the same order as the WAV frames. It rejects any
// input whose sample width is not 2 bytes, sample rate is not 16 kHz, or
// channel count is not 1. It performs no resampling and no channel mixing.
func DecodeWav(data []byte) ([]float32, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE container", ErrBadWavFormat)
	}

	var (
		sampleRate    uint32
		channels      uint16
		bitsPerSample uint16
		haveFmt       bool
		samples       []float32
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			return nil, fmt.Errorf("%w: chunk %q overruns buffer", ErrBadWavFormat, chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too short", ErrBadWavFormat)
			}
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data chunk precedes fmt chunk", ErrBadWavFormat)
			}
			if bitsPerSample != 16 {
				return nil, fmt.Errorf("%w: sample width %d bits, want 16", ErrBadWavFormat, bitsPerSample)
			}
			if sampleRate != SR {
				return nil, fmt.Errorf("%w: sample rate %d Hz, want %d", ErrBadWavFormat, sampleRate, SR)
			}
			if channels != 1 {
				return nil, fmt.Errorf("%w: channel count %d, want 1", ErrBadWavFormat, channels)
			}

			n := chunkSize / 2
			samples = make([]float32, n)
			for i := 0; i < n; i++ {
				v := int16(binary.LittleEndian.Uint16(data[body+i*2 : body+i*2+2]))
				samples[i] = float32(v) / maxInt16Abs
			}
		}

		// Chunks are word-aligned: a chunk with an odd size is followed by
		// one pad byte that is not part of chunkSize.
		advance := chunkSize
		if advance%2 == 1 {
			advance++
		}
		offset = body + advance
	}

	if !haveFmt {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrBadWavFormat)
	}
	if samples == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrBadWavFormat)
	}
	return samples, nil
}
