// Package webhook notifies external HTTP endpoints when the ledger server
// accepts records.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/metrics"
	"github.com/birthmark-protocol/birthmark/pkg/uuidutil"
)

// EventType names a notification.
type EventType string

const (
	EventRecordAccepted EventType = "record.accepted"
	EventBatchAccepted  EventType = "batch.accepted"
	EventBatchPartial   EventType = "batch.partial"

	// EventAll subscribes a hook to every event.
	EventAll EventType = "*"
)

// Header names set on every delivery.
const (
	HeaderEvent     = "X-Birthmark-Event"
	HeaderDelivery  = "X-Birthmark-Delivery"
	HeaderSignature = "X-Birthmark-Signature"
)

func knownEvent(e EventType) bool {
	switch e {
	case EventRecordAccepted, EventBatchAccepted, EventBatchPartial, EventAll:
		return true
	}
	return false
}

// RecordRef identifies one accepted record.
type RecordRef struct {
	Fingerprint   string `json:"fingerprint"`
	TransactionID string `json:"transaction_id"`
	SubmitterID   string `json:"submitter_id"`
}

// Event is the JSON payload POSTed to a hook.
type Event struct {
	ID        string      `json:"id"`
	Event     EventType   `json:"event"`
	Timestamp string      `json:"timestamp"`
	Records   []RecordRef `json:"records"`
	Error     string      `json:"error,omitempty"`
}

// HookConfig is one subscribed endpoint. A non-empty Secret signs every
// payload with HMAC-SHA256.
type HookConfig struct {
	URL    string      `yaml:"url" json:"url"`
	Secret string      `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events []EventType `yaml:"events" json:"events"`
}

// Validate checks the URL scheme and event names.
func (h HookConfig) Validate() error {
	u, err := url.Parse(h.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errclass.ErrInvalidConfiguration.WithMessagef("webhook url %q must be an absolute http(s) URL", h.URL)
	}
	if len(h.Events) == 0 {
		return errclass.ErrInvalidConfiguration.WithMessagef("webhook %s subscribes to no events", h.URL)
	}
	for _, e := range h.Events {
		if !knownEvent(e) {
			return errclass.ErrInvalidConfiguration.WithMessagef("webhook %s: unknown event %q", h.URL, e)
		}
	}
	return nil
}

func (h HookConfig) matches(e EventType) bool {
	for _, want := range h.Events {
		if want == e || want == EventAll {
			return true
		}
	}
	return false
}

// Config tunes delivery.
type Config struct {
	Hooks      []HookConfig
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	QueueSize  int
	Registry   *metrics.Registry
}

// Defaults for zero Config fields.
const (
	DefaultRetryDelay = 2 * time.Second
	DefaultTimeout    = 10 * time.Second
	DefaultQueueSize  = 100
)

type job struct {
	event Event
	hook  HookConfig
}

// Client delivers events. Notify queues for a single background worker;
// Send delivers synchronously.
type Client struct {
	cfg   Config
	http  *http.Client
	queue chan job
	log   *logging.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewClient starts the delivery worker.
func NewClient(cfg Config) *Client {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Registry == nil {
		cfg.Registry = metrics.Default()
	}
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		queue: make(chan job, cfg.QueueSize),
		log:   logging.WithFields(map[string]any{"component": "webhook"}),
	}
	c.wg.Add(1)
	go c.worker()
	return c
}

func (c *Client) worker() {
	defer c.wg.Done()
	for j := range c.queue {
		c.deliver(context.Background(), j)
	}
}

// Notify queues ev for every matching hook. A full queue drops the event.
func (c *Client) Notify(ev Event) {
	ev = stamp(ev)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	for _, hook := range c.cfg.Hooks {
		if !hook.matches(ev.Event) {
			continue
		}
		select {
		case c.queue <- job{event: ev, hook: hook}:
		default:
			c.cfg.Registry.ObserveWebhook(string(ev.Event), "dropped")
			c.log.Warn("webhook queue full, dropping event", map[string]any{"event": ev.Event, "url": hook.URL})
		}
	}
}

// Send delivers ev to every matching hook and returns the last failure.
func (c *Client) Send(ctx context.Context, ev Event) error {
	ev = stamp(ev)
	var lastErr error
	for _, hook := range c.cfg.Hooks {
		if !hook.matches(ev.Event) {
			continue
		}
		if err := c.deliver(ctx, job{event: ev, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close stops accepting events and waits for queued deliveries.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func stamp(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuidutil.NewV4()
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Records == nil {
		ev.Records = []RecordRef{}
	}
	return ev
}

func (c *Client) deliver(ctx context.Context, j job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
retry:
	for attempt := 0; ; attempt++ {
		if lastErr = c.post(ctx, j, payload); lastErr == nil {
			c.cfg.Registry.ObserveWebhook(string(j.event.Event), "ok")
			return nil
		}
		if attempt >= c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break retry
		case <-time.After(c.cfg.RetryDelay):
		}
	}

	c.cfg.Registry.ObserveWebhook(string(j.event.Event), "error")
	c.log.Warn("webhook delivery failed", map[string]any{
		"event": j.event.Event, "delivery": j.event.ID, "url": j.hook.URL, "error": lastErr.Error(),
	})
	return lastErr
}

func (c *Client) post(ctx context.Context, j job, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.hook.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "birthmark-webhook/1")
	req.Header.Set(HeaderEvent, string(j.event.Event))
	req.Header.Set(HeaderDelivery, j.event.ID)
	if j.hook.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, j.hook.Secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", j.hook.URL, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: http %d: %s", j.hook.URL, resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature header in constant time.
func VerifySignature(payload []byte, secret, header string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(header))
}
