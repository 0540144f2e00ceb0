package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"loom/internal/config"
)

const userAgent = "Loom/0.1.0"

// Event identifies a notification category. Each category maps to a config
// toggle so operators can mute the chatty ones.
type Event string

const (
	EventNarrationCompleted Event = "narration_completed"
	EventRenderCompleted    Event = "render_completed"
	EventPublishCompleted   Event = "publish_completed"
	EventQueueStarted       Event = "queue_started"
	EventQueueCompleted     Event = "queue_completed"
	EventReview             Event = "review"
	EventError              Event = "error"
	EventTest               Event = "test"
)

// Payload carries event-specific values into the message formatter.
type Payload map[string]any

// Service is what the workflow publishes lifecycle events through.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService returns an ntfy-backed service, or a silent one when no
// topic is configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dedup := time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		cfg:         cfg.Notifications,
		dedupWindow: dedup,
		recent:      make(map[string]time.Time),
		now:         time.Now,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	cfg         config.Notifications
	dedupWindow time.Duration

	mu     sync.Mutex
	recent map[string]time.Time
	now    func() time.Time
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg := format(event, payload)
	if msg.body == "" {
		return nil
	}
	if n.suppressed(msg) {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventNarrationCompleted:
		return n.cfg.Narration
	case EventRenderCompleted:
		return n.cfg.Render
	case EventPublishCompleted:
		return n.cfg.Publish
	case EventQueueStarted, EventQueueCompleted:
		return n.cfg.Queue
	case EventReview:
		return n.cfg.Review
	case EventError:
		return n.cfg.Errors
	case EventTest:
		return true
	default:
		return false
	}
}

// suppressed drops a repeat of an identical message inside the dedup window.
// Retried jobs fail with the same error over and over; one push is enough.
func (n *ntfyService) suppressed(msg message) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	key := msg.title + "\x00" + msg.body
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.recent[key]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	for k, at := range n.recent {
		if now.Sub(at) >= n.dedupWindow {
			delete(n.recent, k)
		}
	}
	n.recent[key] = now
	return false
}

func format(event Event, payload Payload) message {
	title := stringValue(payload, "title")
	switch event {
	case EventNarrationCompleted:
		return message{
			title: "Loom - Narration Ready",
			body:  fmt.Sprintf("Narration synthesized: %s", title),
			tags:  []string{"loom", "narration", "completed"},
		}
	case EventRenderCompleted:
		return message{
			title: "Loom - Render Complete",
			body:  fmt.Sprintf("Video rendered: %s", title),
			tags:  []string{"loom", "render", "completed"},
		}
	case EventPublishCompleted:
		body := fmt.Sprintf("Ready to watch: %s", title)
		if file := stringValue(payload, "file"); file != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, file)
		}
		return message{
			title:    "Loom - Published",
			body:     body,
			tags:     []string{"loom", "publish", "completed"},
			priority: "high",
		}
	case EventQueueStarted:
		return message{
			title: "Loom - Queue Started",
			body:  fmt.Sprintf("Started processing queue with %d items", intValue(payload, "count")),
			tags:  []string{"loom", "queue", "started"},
		}
	case EventQueueCompleted:
		processed := intValue(payload, "processed")
		failed := intValue(payload, "failed")
		duration := durationValue(payload, "duration").Round(time.Second)
		if duration < 0 {
			duration = 0
		}
		if failed == 0 {
			return message{
				title: "Loom - Queue Complete",
				body:  fmt.Sprintf("Queue processing complete: %d items processed in %s", processed, duration),
				tags:  []string{"loom", "queue", "completed"},
			}
		}
		return message{
			title: "Loom - Queue Complete (with errors)",
			body:  fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, duration),
			tags:  []string{"loom", "queue", "completed"},
		}
	case EventReview:
		body := fmt.Sprintf("Needs review: %s", title)
		if reason := stringValue(payload, "reason"); reason != "" {
			body = fmt.Sprintf("%s\nReason: %s", body, reason)
		}
		return message{
			title: "Loom - Review",
			body:  body,
			tags:  []string{"loom", "review"},
		}
	case EventError:
		var builder strings.Builder
		builder.WriteString("Error")
		if contextLabel := stringValue(payload, "context"); contextLabel != "" {
			builder.WriteString(" with ")
			builder.WriteString(contextLabel)
		}
		builder.WriteString(": ")
		if err, ok := payload["error"].(error); ok && err != nil {
			builder.WriteString(strings.TrimSpace(err.Error()))
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Loom - Error",
			body:     builder.String(),
			tags:     []string{"loom", "error", "alert"},
			priority: "high",
		}
	case EventTest:
		return message{
			title:    "Loom - Test",
			body:     "Notification system test",
			tags:     []string{"loom", "test"},
			priority: "low",
		}
	default:
		return message{}
	}
}

func stringValue(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func intValue(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	if value, ok := payload[key].(int); ok {
		return value
	}
	return 0
}

func durationValue(payload Payload, key string) time.Duration {
	if payload == nil {
		return 0
	}
	if value, ok := payload[key].(time.Duration); ok {
		return value
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
