package synth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeEngine struct {
	samplingFrequency int
	framePeriod       int
	alpha             float64
	beta              float64
	speed             float64
	halfTone          float64
	msd               map[int]float64
	gv                map[int]float64
	volume            float64

	samples []float64
	err     error
	calls   int
	applied []Params
	closed  bool
}

func newFakeEngine(hz, fperiod int, alpha float64) *fakeEngine {
	return &fakeEngine{
		samplingFrequency: hz,
		framePeriod:       fperiod,
		alpha:             alpha,

		// live state that must never leak into resolution
		beta:   0.4,
		speed:  2.5,
		volume: -6,
		msd:    map[int]float64{StreamLogF0: 0.9},
		gv:     map[int]float64{StreamSpectrum: 0.2, StreamLogF0: 0.3},
	}
}

func (e *fakeEngine) SamplingFrequency() int                { return e.samplingFrequency }
func (e *fakeEngine) SetSamplingFrequency(hz int)           { e.samplingFrequency = hz }
func (e *fakeEngine) FramePeriod() int                      { return e.framePeriod }
func (e *fakeEngine) SetFramePeriod(samples int)            { e.framePeriod = samples }
func (e *fakeEngine) Alpha() float64                        { return e.alpha }
func (e *fakeEngine) SetAlpha(alpha float64)                { e.alpha = alpha }
func (e *fakeEngine) SetBeta(beta float64)                  { e.beta = beta }
func (e *fakeEngine) SetSpeed(rate float64)                 { e.speed = rate }
func (e *fakeEngine) SetAdditionalHalfTone(ht float64)      { e.halfTone = ht }
func (e *fakeEngine) SetMSDThreshold(stream int, v float64) { e.msd[stream] = v }
func (e *fakeEngine) SetGVWeight(stream int, v float64)     { e.gv[stream] = v }
func (e *fakeEngine) SetVolume(db float64)                  { e.volume = db }
func (e *fakeEngine) Close() error                          { e.closed = true; return nil }

func (e *fakeEngine) current() Params {
	return Params{
		SamplingFrequency:        e.samplingFrequency,
		FramePeriod:              e.framePeriod,
		AllPassConstant:          e.alpha,
		PostfilteringCoefficient: e.beta,
		SpeechSpeedRate:          e.speed,
		AdditionalHalfTone:       e.halfTone,
		VoicedUnvoicedThreshold:  e.msd[StreamLogF0],
		WeightOfGVForSpectrum:    e.gv[StreamSpectrum],
		WeightOfGVForLogF0:       e.gv[StreamLogF0],
		VolumeInDB:               e.volume,
	}
}

func (e *fakeEngine) Synthesize(_ context.Context, labels []string) ([]float64, error) {
	e.calls++
	e.applied = append(e.applied, e.current())
	if e.err != nil {
		return nil, e.err
	}
	if e.samples != nil {
		return e.samples, nil
	}
	out := make([]float64, len(labels))
	for i := range labels {
		out[i] = float64(e.samplingFrequency%1000) + float64(i)
	}
	return out, nil
}

type fakeAnalyzer struct {
	err    error
	calls  int
	closed bool
}

func (a *fakeAnalyzer) Analyze(_ context.Context, text string) ([]string, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	labels := []string{"sil"}
	for _, w := range strings.Fields(text) {
		labels = append(labels, w)
	}
	return append(labels, "sil"), nil
}

func (a *fakeAnalyzer) Close() error { a.closed = true; return nil }

func fakeLoaders(engine *fakeEngine, analyzer *fakeAnalyzer) Loaders {
	return Loaders{
		Engine: func(model string) (Engine, error) {
			if model == "" {
				return nil, errors.New("model path empty")
			}
			return engine, nil
		},
		Analyzer: func(dictionary string) (Analyzer, error) {
			if dictionary == "" {
				return nil, errors.New("dictionary path empty")
			}
			return analyzer, nil
		},
	}
}
