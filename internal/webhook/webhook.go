// Package webhook delivers change events to an HTTP endpoint. Events are
// queued without blocking the request that produced them, batched, signed
// with HMAC-SHA256 and retried with exponential backoff.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marcus/taskflow/internal/events"
)

const (
	HeaderTimestamp = "X-Taskflow-Timestamp"
	HeaderSignature = "X-Taskflow-Signature"
	HeaderEvent     = "X-Taskflow-Event"

	userAgent    = "taskflow-webhook/1"
	maxBatchSize = 50
)

// Payload is the POST body.
type Payload struct {
	Timestamp string          `json:"timestamp"`
	Events    []EventEnvelope `json:"events"`
}

// EventEnvelope is one event with its dotted name.
type EventEnvelope struct {
	Name string `json:"name"`
	events.Event
}

// Config configures a Dispatcher.
type Config struct {
	URL        string
	Secret     string
	Filter     events.Filter
	QueueSize  int
	Timeout    time.Duration // per attempt
	MaxElapsed time.Duration // total retry budget per batch
	Logger     *slog.Logger
	Client     *http.Client
}

// Dispatcher implements events.Notifier.
type Dispatcher struct {
	cfg    Config
	queue  chan events.Event
	client *http.Client
	log    *slog.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

var _ events.Notifier = (*Dispatcher)(nil)

// New returns a Dispatcher. Call Run to start delivering.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook: url is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Dispatcher{
		cfg:    cfg,
		queue:  make(chan events.Event, cfg.QueueSize),
		client: client,
		log:    cfg.Logger.With("component", "webhook"),
	}, nil
}

// Notify enqueues e. A full queue drops the event.
func (d *Dispatcher) Notify(e events.Event) {
	if !d.cfg.Filter.Match(e) {
		return
	}
	if err := e.Validate(); err != nil {
		d.log.Warn("invalid event", "err", err)
		return
	}
	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		d.log.Warn("queue full, event dropped", "event", e.Name(), "entity_id", e.EntityID)
	}
}

// Run delivers queued events until ctx is cancelled. Events still queued at
// that point are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.log.Warn("stopping with undelivered events", "count", n)
			}
			return nil
		case e := <-d.queue:
			batch := d.collect(e)
			if err := d.deliver(ctx, batch); err != nil {
				d.failed.Add(int64(len(batch)))
				d.log.Error("delivery failed", "events", len(batch), "err", err)
				continue
			}
			d.delivered.Add(int64(len(batch)))
		}
	}
}

// collect drains whatever else is already queued, up to maxBatchSize.
func (d *Dispatcher) collect(first events.Event) []events.Event {
	batch := []events.Event{first}
	for len(batch) < maxBatchSize {
		select {
		case e := <-d.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

// BuildPayload wraps events for delivery.
func BuildPayload(evs []events.Event, now time.Time) Payload {
	p := Payload{
		Timestamp: now.UTC().Format(time.RFC3339),
		Events:    make([]EventEnvelope, len(evs)),
	}
	for i, e := range evs {
		p.Events[i] = EventEnvelope{Name: e.Name(), Event: e}
	}
	return p
}

// Sign returns the hex HMAC-SHA256 of "timestamp.body".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value of the form "sha256=<hex>".
func Verify(secret, timestamp string, body []byte, header string) bool {
	want := "sha256=" + Sign(secret, timestamp, body)
	return hmac.Equal([]byte(want), []byte(header))
}

func (d *Dispatcher) deliver(ctx context.Context, evs []events.Event) error {
	body, err := json.Marshal(BuildPayload(evs, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = d.cfg.MaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		err := d.post(ctx, body, evs[0].Name())
		if err != nil {
			d.log.Debug("delivery attempt failed", "attempt", attempt, "err", err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func (d *Dispatcher) post(ctx context.Context, body []byte, first string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderEvent, first)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(HeaderTimestamp, ts)
	if d.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(d.cfg.Secret, ts, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", d.cfg.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("POST %s: status %d", d.cfg.URL, resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("POST %s: status %d", d.cfg.URL, resp.StatusCode))
	}
}

// Stats are delivery counters since start.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
	Queued    int   `json:"queued"`
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
		Queued:    len(d.queue),
	}
}
