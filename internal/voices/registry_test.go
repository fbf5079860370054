package voices

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-jtalk/internal/bus"
	"github.com/loqalabs/loqa-jtalk/internal/config"
	"github.com/loqalabs/loqa-jtalk/internal/natsserver"
	"github.com/loqalabs/loqa-jtalk/internal/protocol"
	"github.com/nats-io/nats-server/v2/server"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func connect(t *testing.T) *bus.Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: server.RANDOM_PORT}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), "voices-test", config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func nodeConfig(id string) config.NodeConfig {
	return config.NodeConfig{ID: id, Role: "tts", HeartbeatInterval: 50, HeartbeatTimeout: 500}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestRegistryDiscoversPeers(t *testing.T) {
	client := connect(t)
	ctx := context.Background()

	a, err := NewRegistry(ctx, nodeConfig("node-a"), Voice{Model: "mei.htsvoice", Sessions: 2, SamplingFrequency: 48000, FramePeriod: 240, AllPassConstant: 0.55}, client, newLogger())
	if err != nil {
		t.Fatalf("registry a: %v", err)
	}
	t.Cleanup(a.Close)
	b, err := NewRegistry(ctx, nodeConfig("node-b"), Voice{Model: "takumi.htsvoice", Sessions: 1, SamplingFrequency: 22050, FramePeriod: 110, AllPassConstant: 0.42}, client, newLogger())
	if err != nil {
		t.Fatalf("registry b: %v", err)
	}
	t.Cleanup(b.Close)

	if !a.Healthy() {
		t.Fatalf("expected local node healthy after announce")
	}

	// a learns about b from its announcement, b learns about a from heartbeats
	waitFor(t, func() bool { return len(a.Query(nil)) == 2 && len(b.Query(nil)) == 2 })

	nodes := a.Query(WithSampleRate(22050))
	if len(nodes) != 1 || nodes[0].ID != "node-b" || nodes[0].Voice.FramePeriod != 110 {
		t.Fatalf("unexpected query result: %+v", nodes)
	}
	if got := b.Query(WithModel("mei.htsvoice")); len(got) != 1 || got[0].Voice.AllPassConstant != 0.55 {
		t.Fatalf("unexpected model query: %+v", got)
	}
}

func TestRegistryMarksStaleNodes(t *testing.T) {
	r := &Registry{cfg: nodeConfig("node-a"), nodes: map[string]*NodeInfo{}}
	seen := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.update(protocol.VoiceAnnouncement{Node: "node-a", Model: "mei.htsvoice", Timestamp: seen})
	r.update(protocol.VoiceAnnouncement{Node: "node-b", Model: "mei.htsvoice", Timestamp: seen.Add(time.Second)})

	r.evaluateHealth(seen.Add(800 * time.Millisecond))
	if r.Healthy() {
		t.Fatalf("expected stale local node to be unhealthy")
	}
	if got := r.Query(Healthy); len(got) != 1 || got[0].ID != "node-b" {
		t.Fatalf("expected only node-b healthy, got %+v", got)
	}
	nodes, healthy := r.snapshotCounts()
	if nodes != 2 || healthy != 1 {
		t.Fatalf("unexpected counts %d/%d", nodes, healthy)
	}
}
