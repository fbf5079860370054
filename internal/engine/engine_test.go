package engine

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-jtalk/internal/htsvoice"
	"github.com/loqalabs/loqa-jtalk/internal/synth"
)

const voiceHeader = `[GLOBAL]
HTS_VOICE_VERSION:1.0
SAMPLING_FREQUENCY:22050
FRAME_PERIOD:110
NUM_STATES:5
NUM_STREAMS:3
STREAM_TYPE:MCP,LF0,LPF
[STREAM]
VECTOR_LENGTH[MCP]:35
OPTION[MCP]:ALPHA=0.42
[DATA]
`

func writeVoice(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice.htsvoice")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write voice: %v", err)
	}
	return path
}

func mustHeader(t *testing.T) htsvoice.Header {
	t.Helper()
	h, err := htsvoice.Parse(strings.NewReader(voiceHeader))
	if err != nil {
		t.Fatalf("parse header: %v", err)
	}
	return h
}

var labels = []string{"xx^xx-sil+k=o", "xx^sil-k+o=N", "sil^k-o+N=n", "k^o-N+n=i", "o^N-sil+xx=xx"}

func TestStateSeededFromHeader(t *testing.T) {
	s := NewState(mustHeader(t))
	if s.SamplingFrequency() != 22050 || s.FramePeriod() != 110 || s.Alpha() != 0.42 {
		t.Fatalf("unexpected seed: %+v", s.Params())
	}
	p := s.Params()
	if p.SpeechSpeedRate != 1 || p.VoicedUnvoicedThreshold != 0.5 || p.WeightOfGVForLogF0 != 1 {
		t.Fatalf("unexpected non-snapshot seed: %+v", p)
	}
}

func TestStateSetters(t *testing.T) {
	s := NewMock(mustHeader(t))
	want := synth.Params{
		SamplingFrequency:        16000,
		FramePeriod:              80,
		AllPassConstant:          0.3,
		PostfilteringCoefficient: 0.2,
		SpeechSpeedRate:          1.5,
		AdditionalHalfTone:       -2,
		VoicedUnvoicedThreshold:  0.6,
		WeightOfGVForSpectrum:    0.7,
		WeightOfGVForLogF0:       0.8,
		VolumeInDB:               3,
	}
	want.Apply(s)
	if got := s.Params(); got != want {
		t.Fatalf("params = %+v, want %+v", got, want)
	}

	// the spectrum stream has no MSD threshold
	s.SetMSDThreshold(synth.StreamSpectrum, 0.1)
	if s.Params().VoicedUnvoicedThreshold != 0.6 {
		t.Fatalf("spectrum MSD threshold leaked into log-F0")
	}
}

func TestMockDeterministic(t *testing.T) {
	m := NewMock(mustHeader(t))
	a, err := m.Synthesize(context.Background(), labels)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	b, err := m.Synthesize(context.Background(), labels)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(a) != len(labels)*mockFramesPerLabel*110 {
		t.Fatalf("unexpected length %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
	// leading and trailing silence labels render as zeros
	if a[0] != 0 || a[len(a)-1] != 0 {
		t.Fatalf("expected silent edges")
	}
}

func TestMockParametersShapeOutput(t *testing.T) {
	m := NewMock(mustHeader(t))
	base, _ := m.Synthesize(context.Background(), labels)

	m.SetSpeed(2)
	fast, _ := m.Synthesize(context.Background(), labels)
	if len(fast) != len(base)/2 {
		t.Fatalf("speed 2: got %d samples, want %d", len(fast), len(base)/2)
	}
	m.SetSpeed(1)

	m.SetVolume(-20)
	quiet, _ := m.Synthesize(context.Background(), labels)
	if peak(quiet) >= peak(base) {
		t.Fatalf("volume -20 dB did not attenuate: %v >= %v", peak(quiet), peak(base))
	}
}

func TestMockRejectsInvalidTiming(t *testing.T) {
	m := NewMock(mustHeader(t))
	m.SetFramePeriod(0)
	if _, err := m.Synthesize(context.Background(), labels); err == nil {
		t.Fatalf("expected frame period error")
	}
	m.SetFramePeriod(110)
	m.SetSamplingFrequency(0)
	if _, err := m.Synthesize(context.Background(), labels); err == nil {
		t.Fatalf("expected sampling frequency error")
	}
}

func TestMockBoundsOutputLength(t *testing.T) {
	tests := []struct {
		name        string
		speed       float64
		framePeriod int
	}{
		{name: "tiny speed", speed: 1e-300, framePeriod: 110},
		{name: "nan speed", speed: math.NaN(), framePeriod: 110},
		{name: "huge speed", speed: 1e12, framePeriod: 110},
		{name: "huge frame period", speed: 1, framePeriod: math.MaxInt32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMock(mustHeader(t))
			m.SetSpeed(tt.speed)
			m.SetFramePeriod(tt.framePeriod)
			out, err := m.Synthesize(context.Background(), labels)
			if err == nil {
				t.Fatalf("expected error, got %d samples", len(out))
			}
		})
	}

	// a slow but bounded rate still renders
	m := NewMock(mustHeader(t))
	m.SetSpeed(0.25)
	out, err := m.Synthesize(context.Background(), labels)
	if err != nil {
		t.Fatalf("speed 0.25: %v", err)
	}
	if want := 4 * mockFramesPerLabel * 110 * len(labels); len(out) != want {
		t.Fatalf("speed 0.25: got %d samples, want %d", len(out), want)
	}
}

func TestMockHonoursContext(t *testing.T) {
	m := NewMock(mustHeader(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Synthesize(ctx, labels); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestLoaderMock(t *testing.T) {
	load, err := Loader("mock", "")
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	e, err := load(writeVoice(t, voiceHeader))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := synth.DefaultsFromEngine(e)
	if *d.SamplingFrequency != 22050 || *d.FramePeriod != 110 || *d.AllPassConstant != 0.42 {
		t.Fatalf("unexpected defaults: %+v", d)
	}

	if _, err := load(filepath.Join(t.TempDir(), "missing.htsvoice")); err == nil {
		t.Fatalf("expected error for missing model")
	}
	if _, err := load(writeVoice(t, "not a voice")); err == nil {
		t.Fatalf("expected error for malformed model")
	}
}

func TestLoaderRejectsUnknownMode(t *testing.T) {
	if _, err := Loader("neural", ""); err == nil {
		t.Fatalf("expected unknown mode error")
	}
	if _, err := Loader("exec", "   "); err == nil {
		t.Fatalf("expected empty command error")
	}
}

func TestExecRoundTrip(t *testing.T) {
	dir := t.TempDir()
	reqPath := filepath.Join(dir, "request.json")
	script := filepath.Join(dir, "engine.sh")
	body := "#!/bin/sh\ncat > \"$1\"\necho '{\"samples\":[1.5,-2,40000]}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	load, err := Loader("exec", script+" "+reqPath)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	model := writeVoice(t, voiceHeader)
	e, err := load(model)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	e.SetSpeed(1.25)

	samples, err := e.Synthesize(context.Background(), labels)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(samples) != 3 || samples[2] != 40000 {
		t.Fatalf("unexpected samples: %v", samples)
	}

	raw, err := os.ReadFile(reqPath)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	var req execRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Model != model || len(req.Labels) != len(labels) {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Params.SpeechSpeedRate != 1.25 || req.Params.SamplingFrequency != 22050 {
		t.Fatalf("params not forwarded: %+v", req.Params)
	}
}

func TestExecReportsEngineError(t *testing.T) {
	script := filepath.Join(t.TempDir(), "engine.sh")
	body := "#!/bin/sh\ncat > /dev/null\necho '{\"error\":\"model mismatch\"}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	e, err := NewExec([]string{script}, "voice", mustHeader(t))
	if err != nil {
		t.Fatalf("new exec: %v", err)
	}
	if _, err := e.Synthesize(context.Background(), labels); err == nil || !strings.Contains(err.Error(), "model mismatch") {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func peak(samples []float64) float64 {
	var m float64
	for _, s := range samples {
		m = math.Max(m, math.Abs(s))
	}
	return m
}
