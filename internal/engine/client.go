// Package engine talks to the image-generation server's HTTP API: queue a
// prompt, wait for its history entry, then download the produced images.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AaronLay10/xyzplot/internal/events"
	"github.com/AaronLay10/xyzplot/internal/graph"
	"github.com/AaronLay10/xyzplot/internal/sweep"
)

// Options tune the client. Zero values take the defaults below.
type Options struct {
	ClientID     string
	PollInterval time.Duration
	Timeout      time.Duration // per prompt, queue to last download
	Retries      int
	Backoff      time.Duration
	HTTPClient   *http.Client
}

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTimeout      = 10 * time.Minute
	DefaultRetries      = 3
	DefaultBackoff      = 100 * time.Millisecond
)

// Client executes prompts against one server.
type Client struct {
	base *url.URL
	opts Options
	hc   *http.Client
}

var _ sweep.Executor = (*Client)(nil)

// ExecutionError is an error reported by the server for a queued prompt.
type ExecutionError struct {
	PromptID string
	Message  string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("prompt %s failed: %s", e.PromptID, e.Message)
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid engine url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid engine url %q: scheme must be http or https", baseURL)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{base: u, opts: opts, hc: hc}, nil
}

// Execute queues prompt, waits for completion and returns the saved images
// in output-node order.
func (c *Client) Execute(ctx context.Context, prompt graph.Prompt) ([]sweep.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	id, err := c.queue(ctx, prompt)
	if err != nil {
		events.Emit("error", "engine.error", err.Error(), map[string]interface{}{"stage": "queue"})
		return nil, err
	}

	images, err := c.wait(ctx, id, prompt)
	if err != nil {
		events.Emit("error", "engine.error", err.Error(), map[string]interface{}{"stage": "history", "prompt_id": id})
		return nil, err
	}

	out := make([]sweep.Output, 0, len(images))
	for _, img := range images {
		data, err := c.fetch(ctx, img)
		if err != nil {
			events.Emit("error", "engine.error", err.Error(), map[string]interface{}{"stage": "view", "prompt_id": id})
			return nil, err
		}
		out = append(out, sweep.Output{Filename: img.Filename, Subfolder: img.Subfolder, Type: img.Type, Data: data})
	}
	return out, nil
}

type queueResponse struct {
	PromptID   string                 `json:"prompt_id"`
	Error      interface{}            `json:"error,omitempty"`
	NodeErrors map[string]interface{} `json:"node_errors,omitempty"`
}

// queue posts the prompt, retrying transport errors and 5xx responses with
// exponential backoff.
func (c *Client) queue(ctx context.Context, prompt graph.Prompt) (string, error) {
	body, err := json.Marshal(map[string]interface{}{"prompt": prompt, "client_id": c.opts.ClientID})
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.Retries; attempt++ {
		if attempt > 0 {
			delay := c.opts.Backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("prompt"), bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("queueing prompt failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("queueing prompt failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		var qr queueResponse
		if err := json.Unmarshal(data, &qr); err != nil {
			return "", fmt.Errorf("invalid queue response: %w", err)
		}
		if qr.PromptID == "" {
			return "", errors.New("queue response has no prompt_id")
		}
		return qr.PromptID, nil
	}
	return "", fmt.Errorf("queueing prompt failed after %d attempts: %w", c.opts.Retries, lastErr)
}

type imageInfo struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []imageInfo `json:"images"`
	} `json:"outputs"`
	Status struct {
		StatusStr string          `json:"status_str"`
		Completed bool            `json:"completed"`
		Messages  [][]interface{} `json:"messages"`
	} `json:"status"`
}

// wait polls the history endpoint until the prompt has finished.
func (c *Client) wait(ctx context.Context, id string, prompt graph.Prompt) ([]imageInfo, error) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		entry, err := c.history(ctx, id)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			if entry.Status.StatusStr == "error" {
				return nil, &ExecutionError{PromptID: id, Message: statusMessage(entry)}
			}
			if entry.Status.Completed || (entry.Status.StatusStr == "" && len(entry.Outputs) > 0) {
				return collectImages(entry, prompt), nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) history(ctx context.Context, id string) (*historyEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("history", id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request failed (%d)", resp.StatusCode)
	}

	var all map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, fmt.Errorf("invalid history response: %w", err)
	}
	entry, ok := all[id]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// collectImages orders images by output node, following the prompt's node
// order, and prefers saved outputs over temporary previews.
func collectImages(entry *historyEntry, prompt graph.Prompt) []imageInfo {
	var saved, other []imageInfo
	for _, nodeID := range prompt.NodeIDs() {
		out, ok := entry.Outputs[nodeID]
		if !ok {
			continue
		}
		for _, img := range out.Images {
			if img.Type == "output" {
				saved = append(saved, img)
			} else {
				other = append(other, img)
			}
		}
	}
	if len(saved) > 0 {
		return saved
	}
	return other
}

func statusMessage(entry *historyEntry) string {
	for _, m := range entry.Status.Messages {
		if len(m) == 2 && m[0] == "execution_error" {
			if detail, ok := m[1].(map[string]interface{}); ok {
				if msg, ok := detail["exception_message"].(string); ok {
					return strings.TrimSpace(msg)
				}
			}
		}
	}
	return "execution error"
}

func (c *Client) fetch(ctx context.Context, img imageInfo) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", img.Filename)
	q.Set("subfolder", img.Subfolder)
	q.Set("type", img.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("view")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s failed (%d)", img.Filename, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(parts, "/")
	return u.String()
}
