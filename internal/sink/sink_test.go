package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/lexiqai/loopback-gateway/internal/config"
)

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	got    []Transcript
	closed bool
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Publish(ctx context.Context, t Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, t)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func (r *recordingSink) Check(ctx context.Context) (bool, error) {
	return r.err == nil, r.err
}

func TestMultiPublishesToAll(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	healthy := &recordingSink{name: "healthy"}
	m := NewMulti(failing, nil, healthy)

	if m.Len() != 2 {
		t.Fatalf("Expected 2 sinks, got %d", m.Len())
	}

	err := m.Publish(context.Background(), Transcript{SessionID: "s1", Seq: 1, Text: "hi", OK: true})
	if err == nil {
		t.Error("Expected joined error from failing sink")
	}
	if len(healthy.got) != 1 {
		t.Errorf("Healthy sink should still receive the transcript, got %d", len(healthy.got))
	}

	checks := m.Checks()
	if len(checks) != 2 {
		t.Errorf("Expected 2 checks, got %d", len(checks))
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !failing.closed || !healthy.closed {
		t.Error("Expected all sinks closed")
	}
}

func TestEmptyMultiIsNoop(t *testing.T) {
	m := NewMulti()
	if err := m.Publish(context.Background(), Transcript{}); err != nil {
		t.Errorf("Expected no error from empty fan-out, got %v", err)
	}
}

func TestFromConfigWithNoSinks(t *testing.T) {
	m, err := FromConfig(context.Background(), &config.Config{})
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Expected no sinks, got %d", m.Len())
	}
}

type fakeToken struct {
	err     error
	timeout bool
}

func (f *fakeToken) Wait() bool { return !f.timeout }

func (f *fakeToken) WaitTimeout(time.Duration) bool { return !f.timeout }

func (f *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (f *fakeToken) Error() error { return f.err }

type fakePublisher struct {
	token    *fakeToken
	open     bool
	topic    string
	qos      byte
	payload  []byte
	quiesced bool
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.topic = topic
	f.qos = qos
	f.payload, _ = payload.([]byte)
	return f.token
}

func (f *fakePublisher) IsConnectionOpen() bool { return f.open }

func (f *fakePublisher) Disconnect(uint) { f.quiesced = true }

func TestMQTTSinkPublish(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{}, open: true}
	s := newMQTTSink(pub, "/loopback/")

	tr := Transcript{SessionID: "abc", Seq: 3, Text: "hello", OK: true, ProcessingTime: 0.5}
	if err := s.Publish(context.Background(), tr); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if pub.topic != "loopback/sessions/abc/transcript" {
		t.Errorf("Unexpected topic %q", pub.topic)
	}
	if pub.qos != 1 {
		t.Errorf("Expected QoS 1, got %d", pub.qos)
	}

	var got Transcript
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	if got.Text != "hello" || got.Seq != 3 {
		t.Errorf("Unexpected payload %+v", got)
	}

	if ok, _ := s.Check(context.Background()); !ok {
		t.Error("Expected healthy check with open connection")
	}
	s.Close()
	if !pub.quiesced {
		t.Error("Expected Disconnect on Close")
	}
}

func TestMQTTSinkPublishErrors(t *testing.T) {
	pub := &fakePublisher{token: &fakeToken{err: errors.New("not connected")}}
	s := newMQTTSink(pub, "")

	err := s.Publish(context.Background(), Transcript{SessionID: "x"})
	if err == nil || !strings.Contains(err.Error(), "sessions/x/transcript") {
		t.Errorf("Expected publish error naming the topic, got %v", err)
	}

	pub.token = &fakeToken{timeout: true}
	if err := s.Publish(context.Background(), Transcript{SessionID: "x"}); err == nil {
		t.Error("Expected timeout error")
	}

	if ok, _ := s.Check(context.Background()); ok {
		t.Error("Expected unhealthy check with closed connection")
	}
}

func TestNewMQTTSinkRequiresBroker(t *testing.T) {
	if _, err := NewMQTTSink(context.Background(), MQTTConfig{}); err == nil {
		t.Error("Expected error without broker URL")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("Expected embedded migrations")
	}

	data, err := fs.ReadFile(migrations, files[0])
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "+goose Up") || !strings.Contains(string(data), "transcripts") {
		t.Error("Migration does not create the transcripts table")
	}
}
