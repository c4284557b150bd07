package natsserver

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

func TestTokenAuth(t *testing.T) {
	token := "test-secret-token"

	srv, err := Start(Config{
		DataDir: t.TempDir(),
		Host:    "127.0.0.1",
		Port:    -1,
		Token:   token,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Shutdown()

	url := srv.ClientURL()

	if nc, err := nats.Connect(url); err == nil {
		nc.Close()
		t.Fatal("expected connection without token to fail")
	}
	if nc, err := nats.Connect(url, nats.Token("wrong-token")); err == nil {
		nc.Close()
		t.Fatal("expected connection with wrong token to fail")
	}

	nc, err := nats.Connect(url, nats.Token(token))
	if err != nil {
		t.Fatalf("expected connection with correct token to succeed: %v", err)
	}
	nc.Close()
}

func TestInProcessConnectOptions(t *testing.T) {
	srv, err := Start(Config{DataDir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Shutdown()

	nc, err := nats.Connect(srv.ClientURL(), srv.ConnectOptions()...)
	if err != nil {
		t.Fatalf("in-process connect: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("calremind.test")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := srv.Conn().Publish("calremind.test", []byte("ping")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	srv.Conn().Flush()

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	if string(msg.Data) != "ping" {
		t.Errorf("data = %q, want ping", msg.Data)
	}
}

func TestJetStreamKeyValue(t *testing.T) {
	srv, err := Start(Config{DataDir: t.TempDir()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	kv, err := srv.JetStream().CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: "probe"})
	if err != nil {
		t.Fatalf("create kv: %v", err)
	}
	if _, err := kv.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	entry, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(entry.Value()) != "v" {
		t.Errorf("value = %q, want v", entry.Value())
	}
}
