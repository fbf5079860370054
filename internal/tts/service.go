package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-jtalk/internal/audio"
	"github.com/loqalabs/loqa-jtalk/internal/bus"
	"github.com/loqalabs/loqa-jtalk/internal/config"
	"github.com/loqalabs/loqa-jtalk/internal/eventstore"
	"github.com/loqalabs/loqa-jtalk/internal/protocol"
	"github.com/loqalabs/loqa-jtalk/internal/synth"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/loqalabs/loqa-jtalk/tts"

// Synthesizer is satisfied by *synth.Pool.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opt synth.Option) ([]int16, error)
	Defaults() synth.Defaults
}

// Recorder persists request history. *eventstore.Store satisfies it.
type Recorder interface {
	AppendRequest(ctx context.Context, req eventstore.Request) error
	AppendResult(ctx context.Context, res eventstore.Result) error
}

// Result is the audio produced for one request.
type Result struct {
	RequestID  string
	PCM        []int16
	SampleRate int
	Duration   time.Duration
}

type Service struct {
	cfg      config.TTSConfig
	bus      *bus.Client
	synth    Synthesizer
	recorder Recorder
	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger

	tracer   trace.Tracer
	requests metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	samples  metric.Int64Histogram
}

// NewService builds the service. busClient and recorder may be nil, in which
// case Start is a no-op and history is not kept.
func NewService(parent context.Context, cfg config.TTSConfig, busClient *bus.Client, synthesizer Synthesizer, recorder Recorder, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		bus:      busClient,
		synth:    synthesizer,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "tts-service")),
		tracer:   otel.Tracer(instrumentation),
	}
	if err := s.initMetrics(); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return s
}

func (s *Service) initMetrics() error {
	meter := otel.Meter(instrumentation)
	var err error
	if s.requests, err = meter.Int64Counter("jtalk.synthesis.requests", metric.WithDescription("Synthesis requests received")); err != nil {
		return err
	}
	if s.failures, err = meter.Int64Counter("jtalk.synthesis.failures", metric.WithDescription("Synthesis requests that failed")); err != nil {
		return err
	}
	if s.duration, err = meter.Float64Histogram("jtalk.synthesis.duration_ms", metric.WithUnit("ms"), metric.WithDescription("Synthesis latency")); err != nil {
		return err
	}
	s.samples, err = meter.Int64Histogram("jtalk.synthesis.samples", metric.WithDescription("Samples produced per request"))
	return err
}

func (s *Service) Start() error {
	if !s.cfg.Enabled || s.bus == nil {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTTSRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("tts service subscribed", slog.String("subject", protocol.SubjectTTSRequest))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.bus == nil || s.sub != nil }

// Synthesize runs one request through the synthesizer, recording history,
// spans and metrics, bounded by tts.timeout_ms. A missing request id is
// generated.
func (s *Service) Synthesize(ctx context.Context, req protocol.TTSRequest) (Result, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if s.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	ctx, span := s.tracer.Start(ctx, "tts.synthesize", trace.WithAttributes(
		attribute.String("jtalk.session_id", req.SessionID),
		attribute.String("jtalk.request_id", req.RequestID),
		attribute.Int("jtalk.text_length", len(req.Text)),
	))
	defer span.End()

	if s.requests != nil {
		s.requests.Add(ctx, 1)
	}
	s.record(ctx, func(ctx context.Context, r Recorder) error {
		return r.AppendRequest(ctx, eventstore.Request{
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			TraceID:   req.TraceID,
			Text:      req.Text,
			Options:   req.Options,
		})
	})

	// the rate the engine will render at, given the same resolution rules
	rate := synth.Resolve(req.Options, s.synth.Defaults()).SamplingFrequency

	start := time.Now()
	pcm, err := s.synth.Synthesize(ctx, req.Text, req.Options)
	elapsed := time.Since(start)

	result := eventstore.Result{
		RequestID:  req.RequestID,
		Completed:  err == nil,
		Samples:    len(pcm),
		SampleRate: rate,
		Duration:   elapsed,
	}
	if err != nil {
		kind := synth.KindOf(err).String()
		result.ErrorKind = kind
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		if s.failures != nil {
			s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("error_kind", kind)))
		}
	} else {
		span.SetAttributes(attribute.Int("jtalk.samples", len(pcm)), attribute.Int("jtalk.sample_rate", rate))
		if s.samples != nil {
			s.samples.Record(ctx, int64(len(pcm)))
		}
	}
	if s.duration != nil {
		s.duration.Record(ctx, float64(elapsed.Microseconds())/1000)
	}
	s.record(ctx, func(ctx context.Context, r Recorder) error { return r.AppendResult(ctx, result) })

	if err != nil {
		return Result{RequestID: req.RequestID}, err
	}
	return Result{RequestID: req.RequestID, PCM: pcm, SampleRate: rate, Duration: elapsed}, nil
}

// record writes history even when the request context has expired.
func (s *Service) record(ctx context.Context, fn func(context.Context, Recorder) error) {
	if s.recorder == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), s.recorder); err != nil {
		s.logger.Warn("failed to record synthesis history", slogError(err))
	}
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.TTSRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode tts request", slogError(err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		result, err := s.Synthesize(s.ctx, req)
		if err != nil {
			s.logger.Warn("tts synthesis error",
				slog.String("request_id", req.RequestID),
				slog.String("error_kind", synth.KindOf(err).String()),
				slogError(err))
			s.publishStatus(req, protocol.TTSStatus{
				ErrorKind: synth.KindOf(err).String(),
				Error:     err.Error(),
			})
			return
		}
		s.publishAudio(req, result)
	}()
}

func (s *Service) publishAudio(req protocol.TTSRequest, result Result) {
	chunks := audio.Chunk(audio.PCMBytes(result.PCM), result.SampleRate, s.cfg.ChunkDurationMS)
	for i, pcm := range chunks {
		packet := protocol.AudioChunk{
			SessionID:  req.SessionID,
			RequestID:  req.RequestID,
			Target:     req.Target,
			SampleRate: result.SampleRate,
			Channels:   1,
			Sequence:   i,
			PCM:        pcm,
			Final:      i == len(chunks)-1,
		}
		if err := s.bus.PublishJSON(protocol.SubjectTTSAudio, packet); err != nil {
			s.logger.Warn("failed to publish tts chunk", slogError(err))
		}
	}
	s.publishStatus(req, protocol.TTSStatus{
		Completed:  true,
		Samples:    len(result.PCM),
		SampleRate: result.SampleRate,
	})
}

func (s *Service) publishStatus(req protocol.TTSRequest, status protocol.TTSStatus) {
	status.SessionID = req.SessionID
	status.RequestID = req.RequestID
	status.Target = req.Target
	status.Timestamp = time.Now().UTC()
	if err := s.bus.PublishJSON(protocol.SubjectTTSDone, status); err != nil {
		s.logger.Warn("failed to publish tts status", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
