package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/apisguard/edge/internal/log"
)

// queueSize bounds the webhook backlog. When the portal is unreachable
// the oldest pending payload is dropped rather than blocking a sender.
const queueSize = 32

// WebhookPayload is the wire format POSTed to the configured URL.
type WebhookPayload struct {
	Event     Kind      `json:"event"`
	Priority  Priority  `json:"priority"`
	Message   string    `json:"message"`
	ClipURL   *string   `json:"clip_url"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers webhook payloads best-effort from a background
// goroutine. Delivery failures are logged and never retried; the
// webhook channel is telemetry, not a guarantee.
type Notifier struct {
	url    string
	client *http.Client
	queue  chan WebhookPayload

	// Dropped is called when a payload is discarded because the queue
	// is full. Used by the metrics registry; may be nil.
	Dropped func()
}

// NewNotifier creates a notifier. An empty URL disables delivery;
// Publish becomes a no-op so callers never need to special-case it.
func NewNotifier(url string) *Notifier {
	return &Notifier{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		queue: make(chan WebhookPayload, queueSize),
	}
}

// Publish enqueues a payload. Never blocks: if the queue is full the
// oldest pending payload is dropped to make room.
func (n *Notifier) Publish(kind Kind, prio Priority, message string, clipURL *string) {
	if n.url == "" {
		return
	}
	p := WebhookPayload{
		Event:     kind,
		Priority:  prio,
		Message:   message,
		ClipURL:   clipURL,
		Timestamp: time.Now().UTC(),
	}
	for {
		select {
		case n.queue <- p:
			return
		default:
		}
		select {
		case old := <-n.queue:
			log.Warn("webhook queue full, dropping oldest", "event", old.Event)
			if n.Dropped != nil {
				n.Dropped()
			}
		default:
		}
	}
}

// Run drains the queue until the context is canceled. Call from its own
// goroutine; network stalls suspend this goroutine only, never the
// pipeline.
func (n *Notifier) Run(ctx context.Context) {
	if n.url == "" {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-n.queue:
			n.deliver(ctx, p)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, p WebhookPayload) {
	body, err := json.Marshal(p)
	if err != nil {
		log.Error("webhook marshal failed", "err", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Error("webhook request build failed", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn("webhook delivery failed", "event", p.Event, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warn("webhook rejected", "event", p.Event, "status", resp.StatusCode)
	}
}
