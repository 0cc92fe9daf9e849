package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/xyzplot/internal/graph"
)

// loopback is an in-memory broker: publishing delivers to the subscribed
// handler of the same topic, and a worker may answer execute requests.
type loopback struct {
	mu            sync.Mutex
	subscriptions map[string]paho.MessageHandler
	published     []string
	worker        func(req ExecuteRequest) *ExecuteResult
}

func newLoopback() *loopback {
	return &loopback{subscriptions: make(map[string]paho.MessageHandler)}
}

func (l *loopback) Subscribe(topic string, handler paho.MessageHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscriptions[topic] = handler
	return nil
}

func (l *loopback) Publish(topic string, payload []byte) error {
	l.mu.Lock()
	l.published = append(l.published, topic)
	worker := l.worker
	l.mu.Unlock()

	if worker == nil {
		return nil
	}
	var req ExecuteRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	go func() {
		res := worker(req)
		if res == nil {
			return
		}
		b, _ := json.Marshal(res)
		l.deliver(req.ReplyTopic, b)
	}()
	return nil
}

func (l *loopback) deliver(topic string, payload []byte) {
	l.mu.Lock()
	handler, ok := l.subscriptions[topic]
	l.mu.Unlock()
	if ok {
		handler(nil, &mockMessage{topic: topic, payload: payload})
	}
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

func testPrompt() graph.Prompt {
	return graph.Prompt{"3": &graph.Node{ClassType: "KSampler", Inputs: map[string]interface{}{"cfg": "7"}}}
}

func TestExecutorRoundTrip(t *testing.T) {
	lb := newLoopback()
	lb.worker = func(req ExecuteRequest) *ExecuteResult {
		return &ExecuteResult{
			RequestID: req.RequestID,
			Images: []ExecuteImage{
				{Filename: "a.png", Type: "output", Data: []byte("one")},
				{Filename: "b.png", Type: "output", Data: []byte("two")},
			},
		}
	}
	ex := NewExecutor(lb, "studio/", "host-1", 0)

	out, err := ex.Execute(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(out))
	}
	if string(out[1].Data) != "two" {
		t.Errorf("expected second image data 'two', got %q", out[1].Data)
	}
	if ex.ReplyTopic() != "studio/result/host-1" {
		t.Errorf("unexpected reply topic %q", ex.ReplyTopic())
	}
	if len(lb.published) != 1 || lb.published[0] != "studio/execute" {
		t.Errorf("expected one publish to studio/execute, got %v", lb.published)
	}
}

func TestExecutorWorkerError(t *testing.T) {
	lb := newLoopback()
	lb.worker = func(req ExecuteRequest) *ExecuteResult {
		return &ExecuteResult{RequestID: req.RequestID, Error: "model not found"}
	}
	ex := NewExecutor(lb, "", "h", 0)

	_, err := ex.Execute(context.Background(), testPrompt())
	if err == nil || err.Error() != "model not found" {
		t.Errorf("expected worker error, got %v", err)
	}
}

func TestExecutorIgnoresForeignReplies(t *testing.T) {
	lb := newLoopback()
	ex := NewExecutor(lb, "", "h", 0)
	lb.worker = func(req ExecuteRequest) *ExecuteResult {
		lb.deliver(ex.ReplyTopic(), []byte(`not json`))
		lb.deliver(ex.ReplyTopic(), []byte(`{"request_id":"someone-else","images":[]}`))
		return &ExecuteResult{RequestID: req.RequestID, Images: []ExecuteImage{{Filename: "x.png"}}}
	}

	out, err := ex.Execute(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(out) != 1 || out[0].Filename != "x.png" {
		t.Errorf("expected only the matching reply, got %+v", out)
	}
}

func TestExecutorCancel(t *testing.T) {
	lb := newLoopback()
	lb.worker = func(ExecuteRequest) *ExecuteResult { return nil }
	ex := NewExecutor(lb, "", "h", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ex.Execute(ctx, testPrompt()); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	ex.mu.Lock()
	pending := len(ex.pending)
	ex.mu.Unlock()
	if pending != 0 {
		t.Errorf("expected no pending requests after cancel, got %d", pending)
	}
}

func TestExecutorTimesOutWithoutReply(t *testing.T) {
	lb := newLoopback()
	lb.worker = func(ExecuteRequest) *ExecuteResult { return nil }
	ex := NewExecutor(lb, "", "h", 30*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := ex.Execute(context.Background(), testPrompt())
		done <- err
	}()

	select {
	case err := <-done:
		if err != context.DeadlineExceeded {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("execute still waiting after the executor timeout")
	}

	ex.mu.Lock()
	pending := len(ex.pending)
	ex.mu.Unlock()
	if pending != 0 {
		t.Errorf("expected no pending requests after timeout, got %d", pending)
	}
}

func TestNewExecutorDefaultTimeout(t *testing.T) {
	ex := NewExecutor(newLoopback(), "", "h", 0)
	if ex.timeout != DefaultExecuteTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultExecuteTimeout, ex.timeout)
	}
}
