// Package audio encodes synthesized 16-bit PCM for transport and storage.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PCMBytes encodes mono samples as little-endian 16-bit PCM.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Samples decodes little-endian 16-bit PCM.
func Samples(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out, nil
}

// WriteWAV writes samples as a mono 16-bit RIFF/WAVE stream.
func WriteWAV(w io.WriteSeeker, samples []int16, sampleRate int) error {
	if sampleRate < 1 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// Chunk splits pcm into frames of roughly durationMS each. A non-positive
// duration yields a single chunk. Empty input yields no chunks.
func Chunk(pcm []byte, sampleRate, durationMS int) [][]byte {
	if len(pcm) == 0 {
		return nil
	}
	size := len(pcm)
	if durationMS > 0 && sampleRate > 0 {
		size = sampleRate * durationMS / 1000 * 2
		if size < 2 {
			size = 2
		}
	}
	var chunks [][]byte
	for start := 0; start < len(pcm); start += size {
		end := start + size
		if end > len(pcm) {
			end = len(pcm)
		}
		chunks = append(chunks, pcm[start:end])
	}
	return chunks
}

// EncodeWAV returns samples as a complete mono 16-bit WAV file.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	buf := &seekBuffer{}
	if err := WriteWAV(buf, samples, sampleRate); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	n := copy(b.data[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative position %d", next)
	}
	b.pos = int(next)
	return next, nil
}
