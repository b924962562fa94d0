package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/assignhub/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
	err     error
	closed  bool
}

func (f *fakeBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	f.channel = channel
	f.data = data
	f.attrs = attrs
	return "m-1", f.err
}

func (f *fakeBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return handler(ctx, Message{ID: "m-1", Data: []byte(`{}`)})
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestPublishJSON(t *testing.T) {
	backend := &fakeBackend{}
	queue := New(backend)

	payload := map[string]string{"assignment_id": "a-1"}
	id, err := queue.PublishJSON(context.Background(), "assignment.uploaded", payload, map[string]string{"event": "uploaded"})
	if err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}
	if id != "m-1" {
		t.Errorf("id = %q, want m-1", id)
	}
	if backend.channel != "assignment.uploaded" {
		t.Errorf("channel = %q", backend.channel)
	}
	if backend.attrs["content_type"] != "application/json" || backend.attrs["event"] != "uploaded" {
		t.Errorf("attrs = %v", backend.attrs)
	}

	var decoded map[string]string
	if err := json.Unmarshal(backend.data, &decoded); err != nil {
		t.Fatalf("published data is not JSON: %v", err)
	}
	if decoded["assignment_id"] != "a-1" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestPublishJSONErrors(t *testing.T) {
	queue := New(&fakeBackend{})
	if _, err := queue.PublishJSON(context.Background(), "c", make(chan int), nil); err == nil {
		t.Error("PublishJSON() with unencodable value error = nil, want error")
	}

	sentinel := errors.New("broker down")
	queue = New(&fakeBackend{err: sentinel})
	if _, err := queue.PublishJSON(context.Background(), "c", "x", nil); !errors.Is(err, sentinel) {
		t.Errorf("PublishJSON() error = %v, want %v", err, sentinel)
	}
}

func TestOpenBackendSelection(t *testing.T) {
	queue, err := Open(context.Background(), config.MQConfig{Backend: config.BackendNone})
	if err != nil || queue != nil {
		t.Errorf("Open(none) = %v, %v, want nil, nil", queue, err)
	}
	if _, err := Open(context.Background(), config.MQConfig{Backend: "kafka"}); err == nil {
		t.Error("Open(kafka) error = nil, want error")
	}
	if _, err := Open(context.Background(), config.MQConfig{Backend: config.BackendRabbitMQ}); err == nil {
		t.Error("Open(rabbitmq) without url error = nil, want error")
	}
	if _, err := Open(context.Background(), config.MQConfig{Backend: config.BackendPubSub}); err == nil {
		t.Error("Open(pubsub) without project error = nil, want error")
	}
}

func TestHeadersToAttributes(t *testing.T) {
	if got := headersToAttributes(nil); got != nil {
		t.Errorf("headersToAttributes(nil) = %v, want nil", got)
	}

	got := headersToAttributes(amqp.Table{
		"event":   "reviewed",
		"raw":     []byte("bytes"),
		"attempt": int32(3),
	})
	want := map[string]string{"event": "reviewed", "raw": "bytes", "attempt": "3"}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("attrs[%q] = %q, want %q", key, got[key], value)
		}
	}
}
