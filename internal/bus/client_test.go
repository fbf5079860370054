package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-jtalk/internal/config"
	"github.com/loqalabs/loqa-jtalk/internal/natsserver"
	"github.com/nats-io/nats-server/v2/server"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(context.Background(), "test", config.BusConfig{}, newLogger()); err == nil {
		t.Fatalf("expected error without servers")
	}
}

func TestPublishJSONRoundTrip(t *testing.T) {
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: server.RANDOM_PORT}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := Connect(context.Background(), "test", config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	if !client.Healthy() {
		t.Fatalf("expected healthy client")
	}

	sub, err := client.Conn().SubscribeSync("jtalk.test")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.PublishJSON("jtalk.test", map[string]int{"samples": 42}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["samples"] != 42 {
		t.Fatalf("unexpected payload %v", got)
	}
}
