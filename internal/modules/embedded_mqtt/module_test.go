package embeddedmqtt

import (
	"context"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewModuleDefaultListen(t *testing.T) {
	mod, err := NewModule(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	if mod.config.Listen != "127.0.0.1:1883" {
		t.Fatalf("unexpected listen address %q", mod.config.Listen)
	}
}

func TestNewServerAllowAnonymous(t *testing.T) {
	server, err := newServer(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	if server == nil {
		t.Fatalf("expected server")
	}
}

func TestNewServerRequiresAuthConfig(t *testing.T) {
	_, err := newServer(zap.NewNop(), Config{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestInlinePublishSubscribe(t *testing.T) {
	server, err := newServer(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	received := make(chan packets.Packet, 1)
	handler := func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	}
	if err := server.Subscribe("aya/v1/node/+/state", 1, handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := server.Publish("aya/v1/node/aya:player:music/state", []byte("payload"), false, 0); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case pk := <-received:
		if string(pk.Payload) != "payload" {
			t.Fatalf("unexpected payload")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestBridgeSuppressesDisconnectNoise(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	bridge := bridgeLogger(zap.New(core))

	bridge.Error("client disconnected", slog.String("error", "read connection: EOF"))
	if logs.Len() != 0 {
		t.Fatalf("expected disconnect noise to be suppressed, got %d entries", logs.Len())
	}

	bridge.LogAttrs(context.Background(), slog.LevelError, "broker failure", slog.String("error", "listener closed"))
	if logs.Len() != 1 {
		t.Fatalf("expected real errors to pass through, got %d entries", logs.Len())
	}
}

func TestBrokerURL(t *testing.T) {
	if BrokerURL("127.0.0.1:1883", false) != "mqtt://127.0.0.1:1883" {
		t.Fatalf("expected mqtt scheme")
	}
	if BrokerURL("127.0.0.1:8883", true) != "mqtts://127.0.0.1:8883" {
		t.Fatalf("expected mqtts scheme")
	}
}
