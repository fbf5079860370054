// Package synth resolves synthesis options and composes text analysis with
// acoustic synthesis into 16-bit PCM.
package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Engine is a stateful acoustic synthesis engine. Setters mutate state that
// the next Synthesize call reads.
type Engine interface {
	SamplingFrequency() int
	SetSamplingFrequency(hz int)
	FramePeriod() int
	SetFramePeriod(samples int)
	Alpha() float64
	SetAlpha(alpha float64)
	SetBeta(beta float64)
	SetSpeed(rate float64)
	SetAdditionalHalfTone(halfTone float64)
	SetMSDThreshold(stream int, threshold float64)
	SetGVWeight(stream int, weight float64)
	SetVolume(db float64)
	Synthesize(ctx context.Context, labels []string) ([]float64, error)
}

// Analyzer turns text into full-context labels.
type Analyzer interface {
	Analyze(ctx context.Context, text string) ([]string, error)
}

// EngineLoader loads an engine from an acoustic model location.
type EngineLoader func(model string) (Engine, error)

// AnalyzerLoader loads an analyzer from a dictionary location.
type AnalyzerLoader func(dictionary string) (Analyzer, error)

// Loaders supplies the collaborators a Session is built from.
type Loaders struct {
	Engine   EngineLoader
	Analyzer AnalyzerLoader
}

// Config locates the dictionary and acoustic model.
type Config struct {
	Dictionary string
	Model      string
}

// Session owns one analyzer, one engine and the defaults snapshot taken when
// the engine was loaded. Calls are serialized so that parameters applied to
// the engine are the ones the same call synthesizes with.
type Session struct {
	mu       sync.Mutex
	analyzer Analyzer
	engine   Engine
	defaults Defaults
	logger   *slog.Logger
	closed   bool
}

// New loads the engine, snapshots its defaults and then loads the analyzer.
// Either the whole session is returned or an error of KindConfiguration.
func New(cfg Config, loaders Loaders, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if loaders.Engine == nil || loaders.Analyzer == nil {
		return nil, newError(KindConfiguration, "load", errors.New("engine and analyzer loaders are required"))
	}

	engine, err := loaders.Engine(cfg.Model)
	if err != nil {
		return nil, newError(KindConfiguration, "load model", err)
	}
	if engine == nil {
		return nil, newError(KindConfiguration, "load model", fmt.Errorf("no engine for %q", cfg.Model))
	}
	defaults := DefaultsFromEngine(engine)

	analyzer, err := loaders.Analyzer(cfg.Dictionary)
	if err == nil && analyzer == nil {
		err = fmt.Errorf("no analyzer for %q", cfg.Dictionary)
	}
	if err != nil {
		_ = closeHandle(engine)
		return nil, newError(KindConfiguration, "load dictionary", err)
	}

	logger.Debug("synthesis session loaded",
		slog.String("model", cfg.Model),
		slog.String("dictionary", cfg.Dictionary),
		slog.Int("sampling_frequency", *defaults.SamplingFrequency),
		slog.Int("frame_period", *defaults.FramePeriod),
		slog.Float64("alpha", *defaults.AllPassConstant))

	return &Session{
		analyzer: analyzer,
		engine:   engine,
		defaults: defaults,
		logger:   logger,
	}, nil
}

// Defaults returns the snapshot taken at construction.
func (s *Session) Defaults() Defaults {
	return s.defaults
}

// Synthesize resolves opt, applies it to the engine, analyzes text and
// synthesizes the labels. Text with no speakable content yields an empty,
// non-nil slice.
func (s *Session) Synthesize(ctx context.Context, text string, opt Option) ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, newError(KindConfiguration, "synthesize", errors.New("session closed"))
	}

	params := Resolve(opt, s.defaults)
	params.Apply(s.engine)

	start := time.Now()
	labels, err := s.analyzer.Analyze(ctx, text)
	if err != nil {
		return nil, newError(KindAnalysis, "analyze", withContext(ctx, err))
	}
	if len(labels) <= 2 {
		s.logger.Debug("no speakable content", slog.Int("labels", len(labels)))
		return []int16{}, nil
	}

	samples, err := s.engine.Synthesize(ctx, labels)
	if err != nil {
		return nil, newError(KindSynthesis, "synthesize", withContext(ctx, err))
	}
	pcm := ToPCM16(samples)

	s.logger.Debug("synthesized",
		slog.Int("labels", len(labels)),
		slog.Int("samples", len(pcm)),
		slog.Int("sampling_frequency", params.SamplingFrequency),
		slog.Duration("elapsed", time.Since(start)))
	return pcm, nil
}

// Close releases the engine and analyzer if they hold resources.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(closeHandle(s.analyzer), closeHandle(s.engine))
}

// withContext keeps a cancellation or deadline in the chain when a
// collaborator reports it as its own failure, e.g. a killed subprocess.
func withContext(ctx context.Context, err error) error {
	cerr := ctx.Err()
	if cerr == nil || errors.Is(err, cerr) {
		return err
	}
	return fmt.Errorf("%w: %w", cerr, err)
}

func closeHandle(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
