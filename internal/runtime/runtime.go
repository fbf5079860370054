// Package runtime wires configuration, telemetry, the bus, the synthesis
// pool and the HTTP surface into a running daemon.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-jtalk/internal/analyzer"
	"github.com/loqalabs/loqa-jtalk/internal/bus"
	"github.com/loqalabs/loqa-jtalk/internal/config"
	"github.com/loqalabs/loqa-jtalk/internal/engine"
	"github.com/loqalabs/loqa-jtalk/internal/eventstore"
	"github.com/loqalabs/loqa-jtalk/internal/natsserver"
	"github.com/loqalabs/loqa-jtalk/internal/synth"
	"github.com/loqalabs/loqa-jtalk/internal/tts"
	"github.com/loqalabs/loqa-jtalk/internal/voices"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	metricsServer *http.Server
	ready         atomic.Bool
	checks        []func() bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Loaders builds the analyzer and engine loaders selected by cfg.
func Loaders(cfg config.SynthConfig) (synth.Loaders, error) {
	engineLoader, err := engine.Loader(cfg.EngineMode, cfg.EngineCommand)
	if err != nil {
		return synth.Loaders{}, err
	}
	analyzerLoader, err := analyzer.Loader(cfg.AnalyzerMode, cfg.AnalyzerCommand)
	if err != nil {
		return synth.Loaders{}, err
	}
	return synth.Loaders{Engine: engineLoader, Analyzer: analyzerLoader}, nil
}

// VoiceOf describes the voice served by pool.
func VoiceOf(model string, pool *synth.Pool) voices.Voice {
	d := pool.Defaults()
	v := voices.Voice{Model: model, Sessions: pool.Size()}
	if d.SamplingFrequency != nil {
		v.SamplingFrequency = *d.SamplingFrequency
	}
	if d.FramePeriod != nil {
		v.FramePeriod = *d.FramePeriod
	}
	if d.AllPassConstant != nil {
		v.AllPassConstant = *d.AllPassConstant
	}
	return v
}

// Start brings every component up and blocks until ctx is cancelled.
// Components are shut down in reverse order of startup.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	shutdownTelemetry, metricHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	closers = append(closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	})

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	closers = append(closers, embedded.Shutdown)

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		return err
	}
	closers = append(closers, busClient.Close)
	r.checks = append(r.checks, busClient.Healthy)

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			r.logger.Error("event store close error", slogError(err))
		}
	})
	r.wg.Add(1)
	go r.pruneLoop(ctx, store)

	loaders, err := Loaders(r.cfg.Synth)
	if err != nil {
		return err
	}
	pool, err := synth.NewPool(r.cfg.Synth.Sessions,
		synth.Config{Dictionary: r.cfg.Synth.Dictionary, Model: r.cfg.Synth.Model},
		loaders, r.logger.With(slog.String("component", "synth")))
	if err != nil {
		return err
	}
	closers = append(closers, func() {
		if err := pool.Close(); err != nil {
			r.logger.Error("synthesis pool close error", slogError(err))
		}
	})
	voice := VoiceOf(r.cfg.Synth.Model, pool)

	registry, err := voices.NewRegistry(ctx, r.cfg.Node, voice, busClient, r.logger)
	if err != nil {
		return err
	}
	closers = append(closers, registry.Close)

	svc := tts.NewService(ctx, r.cfg.TTS, busClient, pool, store, r.logger)
	if err := svc.Start(); err != nil {
		return fmt.Errorf("start tts service: %w", err)
	}
	closers = append(closers, svc.Close)
	r.checks = append(r.checks, svc.Healthy)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}
	(&api{svc: svc, voice: voice, registry: registry, logger: r.logger.With(slog.String("component", "http-api"))}).register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = r.serve(addr, mux)
	if metricHandler != nil && r.cfg.Telemetry.PrometheusBind != addr {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricHandler)
		r.metricsServer = r.serve(r.cfg.Telemetry.PrometheusBind, metricsMux)
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("model", voice.Model),
		slog.Int("sessions", voice.Sessions),
		slog.Int("sampling_frequency", voice.SamplingFrequency))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
	}
	r.wg.Wait()
	return nil
}

func (r *Runtime) serve(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("addr", addr), slogError(err))
		}
	}()
	return srv
}

func (r *Runtime) pruneLoop(ctx context.Context, store *eventstore.Store) {
	defer r.wg.Done()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Prune(ctx); err != nil {
				r.logger.Warn("event store prune failed", slogError(err))
			}
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.isReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	for _, check := range r.checks {
		if !check() {
			return false
		}
	}
	return true
}
