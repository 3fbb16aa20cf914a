// Package audio provides the codec and playback-scheduling layer for Resona:
// Base64↔binary transcoding of wire audio chunks, PCM16→WAV container
// synthesis, PCM decoding into playable buffers, and a gapless playback
// scheduler that serializes independently-arriving chunks onto one output
// device timeline.
//
// The codec functions are stateless and deterministic. All PCM handled here
// is 16-bit signed little-endian; no resampling or re-quantization is ever
// performed — payloads pass through bit-exact.
//
// The [Capture] and [Output] interfaces abstract the platform audio devices.
// Real implementations live in audio/portaudio; audio/mock provides test
// doubles.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the fixed size of the RIFF/WAVE header produced by
// [PCMToWAV]: 12-byte RIFF descriptor + 24-byte fmt chunk + 8-byte data
// chunk header.
const wavHeaderSize = 44

// DecodeBase64 decodes a standard-alphabet Base64 chunk into the exact byte
// sequence it was produced from. The decode is strict: non-alphabet
// characters and incorrect padding fail with a [*DecodeError] rather than
// being skipped, since a malformed chunk means the wire transport corrupted
// the payload.
func DecodeBase64(text string) ([]byte, error) {
	data, err := base64.StdEncoding.Strict().DecodeString(text)
	if err != nil {
		return nil, &DecodeError{Op: "base64", Reason: "malformed input", Err: err}
	}
	return data, nil
}

// EncodeBase64 encodes data using the standard Base64 alphabet. It is the
// exact inverse of [DecodeBase64]: DecodeBase64(EncodeBase64(x)) == x for
// all x.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// PCMToWAV wraps raw PCM16 little-endian sample data in a RIFF/WAVE
// container. The PCM payload is copied verbatim after the 44-byte header;
// all derived header fields (byte rate, block align, chunk sizes) are
// computed from the actual payload length.
//
// An empty payload fails with [ErrEmptyPayload]: it always signals an
// upstream generation failure, not a legitimately silent clip.
func PCMToWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyPayload
	}

	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataSize := len(pcm)

	out := make([]byte, wavHeaderSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitsPerSample))

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	copy(out[44:], pcm)
	return out, nil
}

// DecodePCM16 converts raw PCM16 little-endian bytes into a playable
// [Buffer] scoped to the given sample rate and channel count, bypassing the
// WAV container — the low-latency path for live-session chunks where a
// 44-byte header per chunk is pure overhead.
//
// Each int16 sample is scaled into the normalized float range by dividing by
// 32768. A byte length that is not a multiple of 2 fails with a
// [*DecodeError] (incomplete trailing sample).
func DecodePCM16(pcm []byte, sampleRate, channels int) (Buffer, error) {
	if len(pcm)%2 != 0 {
		return Buffer{}, &DecodeError{
			Op:     "pcm16",
			Reason: fmt.Sprintf("byte length %d is not a multiple of the sample width", len(pcm)),
		}
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32768
	}

	return Buffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}
