// Package voices tracks which nodes serve which voice over the bus control
// plane.
package voices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-jtalk/internal/bus"
	"github.com/loqalabs/loqa-jtalk/internal/config"
	"github.com/loqalabs/loqa-jtalk/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Voice describes the voice a node serves.
type Voice struct {
	Model             string  `json:"model"`
	Sessions          int     `json:"sessions"`
	SamplingFrequency int     `json:"sampling_frequency"`
	FramePeriod       int     `json:"frame_period"`
	AllPassConstant   float64 `json:"all_pass_constant"`
}

type NodeInfo struct {
	ID       string    `json:"id"`
	Voice    Voice     `json:"voice"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
}

type Registry struct {
	cfg       config.NodeConfig
	voice     Voice
	log       *slog.Logger
	bus       *bus.Client
	mu        sync.RWMutex
	nodes     map[string]*NodeInfo
	heartbeat *time.Ticker
	cancel    context.CancelFunc
	subs      []*nats.Subscription
	meter     metric.Meter
}

func NewRegistry(ctx context.Context, cfg config.NodeConfig, voice Voice, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:    cfg,
		voice:  voice,
		log:    log.With(slog.String("component", "voice-registry")),
		bus:    busClient,
		nodes:  make(map[string]*NodeInfo),
		meter:  otel.Meter("github.com/loqalabs/loqa-jtalk/voices"),
		cancel: cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.cancel()
		return nil, err
	}

	r.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce voice", slog.String("error", err.Error()))
	}

	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.heartbeat != nil {
		r.heartbeat.Stop()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectVoiceAnnounce, r.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.VoiceHeartbeatSubject("*"), r.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)
	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.heartbeat.C:
			if err := r.bus.PublishJSON(protocol.VoiceHeartbeatSubject(r.cfg.ID), r.message()); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth(time.Now())
		}
	}
}

func (r *Registry) message() protocol.VoiceAnnouncement {
	return protocol.VoiceAnnouncement{
		Node:              r.cfg.ID,
		Model:             r.voice.Model,
		Sessions:          r.voice.Sessions,
		SamplingFrequency: r.voice.SamplingFrequency,
		FramePeriod:       r.voice.FramePeriod,
		AllPassConstant:   r.voice.AllPassConstant,
		Timestamp:         time.Now().UTC(),
	}
}

func (r *Registry) announce() error {
	msg := r.message()
	if err := r.bus.PublishJSON(protocol.SubjectVoiceAnnounce, msg); err != nil {
		return err
	}
	r.update(msg)
	return nil
}

// Heartbeats carry the full voice so nodes that join late learn about
// existing peers without a separate sync.
func (r *Registry) handleMessage(msg *nats.Msg) {
	var announcement protocol.VoiceAnnouncement
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid voice message", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
		return
	}
	if announcement.Node == "" {
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = time.Now().UTC()
	}
	r.update(announcement)
}

func (r *Registry) update(msg protocol.VoiceAnnouncement) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[msg.Node]
	if !ok {
		node = &NodeInfo{ID: msg.Node}
		r.nodes[msg.Node] = node
	}
	node.Voice = Voice{
		Model:             msg.Model,
		Sessions:          msg.Sessions,
		SamplingFrequency: msg.SamplingFrequency,
		FramePeriod:       msg.FramePeriod,
		AllPassConstant:   msg.AllPassConstant,
	}
	node.LastSeen = msg.Timestamp
	node.Healthy = true
}

func (r *Registry) evaluateHealth(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	for _, node := range r.nodes {
		if now.Sub(node.LastSeen) > timeout {
			node.Healthy = false
		}
	}
}

// Healthy reports whether the local node has been seen within the timeout.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[r.cfg.ID]
	if !ok {
		return false
	}
	return node.Healthy
}

func (r *Registry) Query(filter func(NodeInfo) bool) []NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []NodeInfo
	for _, node := range r.nodes {
		copy := *node
		if filter == nil || filter(copy) {
			results = append(results, copy)
		}
	}
	return results
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	nodeGauge, err := r.meter.Int64ObservableGauge("jtalk.voices.nodes", metric.WithDescription("Number of known voice nodes"))
	if err != nil {
		return err
	}
	healthyGauge, err := r.meter.Int64ObservableGauge("jtalk.voices.healthy", metric.WithDescription("Number of healthy voice nodes"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		nodes, healthy := r.snapshotCounts()
		obs.ObserveInt64(nodeGauge, nodes)
		obs.ObserveInt64(healthyGauge, healthy)
		return nil
	}, nodeGauge, healthyGauge)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var nodes int64
	var healthy int64
	for _, node := range r.nodes {
		nodes++
		if node.Healthy {
			healthy++
		}
	}
	return nodes, healthy
}

func WithSampleRate(hz int) func(NodeInfo) bool {
	return func(node NodeInfo) bool {
		return node.Voice.SamplingFrequency == hz
	}
}

func WithModel(model string) func(NodeInfo) bool {
	return func(node NodeInfo) bool {
		return node.Voice.Model == model
	}
}

func Healthy(node NodeInfo) bool {
	return node.Healthy
}
