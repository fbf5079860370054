package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestPCMBytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	pcm := PCMBytes(in)
	if !bytes.Equal(pcm[2:4], []byte{0x01, 0x00}) || !bytes.Equal(pcm[4:6], []byte{0xff, 0xff}) {
		t.Fatalf("unexpected encoding: %x", pcm)
	}
	out, err := Samples(pcm)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d: got %d want %d", i, out[i], in[i])
		}
	}
	if _, err := Samples([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected alignment error")
	}
}

func TestWriteWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	samples := []int16{100, -100, 2000, -2000, 0, 7}
	if err := WriteWAV(f, samples, 22050); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	dec := wav.NewDecoder(r)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 22050 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Fatalf("unexpected format: rate=%d chans=%d depth=%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(buf.Data) != len(samples) || buf.Data[3] != -2000 {
		t.Fatalf("unexpected data: %v", buf.Data)
	}
}

func TestWriteWAVRejectsRate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "bad.wav"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := WriteWAV(f, []int16{1}, 0); err == nil {
		t.Fatalf("expected sample rate error")
	}
}

func TestChunk(t *testing.T) {
	pcm := make([]byte, 16000*2) // one second at 16 kHz
	chunks := Chunk(pcm, 16000, 300)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 9600 || len(chunks[3]) != 32000-3*9600 {
		t.Fatalf("unexpected chunk sizes %d/%d", len(chunks[0]), len(chunks[3]))
	}
	if got := Chunk(pcm, 16000, 0); len(got) != 1 {
		t.Fatalf("expected single chunk, got %d", len(got))
	}
	if got := Chunk(nil, 16000, 100); got != nil {
		t.Fatalf("expected no chunks")
	}
}

func TestEncodeWAV(t *testing.T) {
	data, err := EncodeWAV([]int16{1, 2, 3, 4}, 48000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header: %q", data[:12])
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 48000 || len(buf.Data) != 4 || buf.Data[3] != 4 {
		t.Fatalf("unexpected decode: rate=%d data=%v", dec.SampleRate, buf.Data)
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	data, err := EncodeWAV(nil, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) < 44 {
		t.Fatalf("expected at least a header, got %d bytes", len(data))
	}
}
