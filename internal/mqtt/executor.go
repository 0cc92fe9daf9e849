package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/AaronLay10/xyzplot/internal/events"
	"github.com/AaronLay10/xyzplot/internal/graph"
	"github.com/AaronLay10/xyzplot/internal/sweep"
)

// Transport is the subset of Client the executor needs.
type Transport interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Publish(topic string, payload []byte) error
}

// ExecuteRequest is published to "<prefix>/execute" for a render worker.
type ExecuteRequest struct {
	RequestID  string       `json:"request_id"`
	ReplyTopic string       `json:"reply_topic"`
	Prompt     graph.Prompt `json:"prompt"`
}

// ExecuteImage is one image in a worker reply. Data is base64 in JSON.
type ExecuteImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	Type      string `json:"type,omitempty"`
	Data      []byte `json:"data"`
}

// ExecuteResult is the worker reply on the executor's reply topic.
type ExecuteResult struct {
	RequestID string         `json:"request_id"`
	Error     string         `json:"error,omitempty"`
	Images    []ExecuteImage `json:"images"`
}

// DefaultExecuteTimeout bounds one request when no timeout is configured.
const DefaultExecuteTimeout = 10 * time.Minute

// Executor runs prompts on remote render workers over MQTT. One reply topic
// per executor carries results for every in-flight request.
type Executor struct {
	transport  Transport
	prefix     string
	replyTopic string
	timeout    time.Duration

	mu      sync.Mutex
	pending map[string]chan ExecuteResult
	started bool
}

var _ sweep.Executor = (*Executor)(nil)

// NewExecutor creates an executor publishing under topicPrefix. Each request
// waits at most timeout for a worker reply; zero means DefaultExecuteTimeout.
func NewExecutor(t Transport, topicPrefix, clientID string, timeout time.Duration) *Executor {
	prefix := strings.TrimRight(topicPrefix, "/")
	if prefix == "" {
		prefix = "xyzplot"
	}
	if timeout <= 0 {
		timeout = DefaultExecuteTimeout
	}
	return &Executor{
		transport:  t,
		prefix:     prefix,
		replyTopic: prefix + "/result/" + clientID,
		timeout:    timeout,
		pending:    make(map[string]chan ExecuteResult),
	}
}

// RequestTopic is where execution requests are published.
func (e *Executor) RequestTopic() string {
	return e.prefix + "/execute"
}

// ReplyTopic is where this executor listens for results.
func (e *Executor) ReplyTopic() string {
	return e.replyTopic
}

// Start subscribes to the reply topic. It is idempotent.
func (e *Executor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if err := e.transport.Subscribe(e.replyTopic, e.handle); err != nil {
		return err
	}
	e.started = true
	return nil
}

// Execute publishes prompt and waits for the matching result, up to the
// executor timeout.
func (e *Executor) Execute(ctx context.Context, prompt graph.Prompt) ([]sweep.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.Start(); err != nil {
		return nil, err
	}

	req := ExecuteRequest{RequestID: uuid.NewString(), ReplyTopic: e.replyTopic, Prompt: prompt}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute request: %w", err)
	}

	ch := make(chan ExecuteResult, 1)
	e.mu.Lock()
	e.pending[req.RequestID] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, req.RequestID)
		e.mu.Unlock()
	}()

	if err := e.transport.Publish(e.RequestTopic(), payload); err != nil {
		events.Emit("error", "engine.error", err.Error(), map[string]interface{}{"stage": "publish", "topic": e.RequestTopic()})
		return nil, err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			events.Emit("error", "engine.error", "no worker reply before timeout", map[string]interface{}{
				"stage":      "reply",
				"request_id": req.RequestID,
				"timeout":    e.timeout.String(),
			})
		}
		return nil, ctx.Err()
	case res := <-ch:
		if res.Error != "" {
			return nil, errors.New(res.Error)
		}
		out := make([]sweep.Output, len(res.Images))
		for i, img := range res.Images {
			out[i] = sweep.Output{Filename: img.Filename, Subfolder: img.Subfolder, Type: img.Type, Data: img.Data}
		}
		return out, nil
	}
}

func (e *Executor) handle(_ paho.Client, msg paho.Message) {
	var res ExecuteResult
	if err := json.Unmarshal(msg.Payload(), &res); err != nil {
		events.Emit("warn", "engine.error", "invalid execute result", map[string]interface{}{
			"topic": msg.Topic(),
			"error": err.Error(),
		})
		return
	}

	e.mu.Lock()
	ch, ok := e.pending[res.RequestID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- res:
	default:
	}
}
