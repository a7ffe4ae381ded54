package forward

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tickscalper/internal/observ"
)

// Webhook forwards trade events to an external automation endpoint. Delivery
// is fire-and-forget: a failed POST is logged and counted, never retried, and
// never blocks the caller.
type Webhook struct {
	url     string
	enabled bool
	client  *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:     url,
		enabled: url != "",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *Webhook) Enabled() bool { return w.enabled }

// Send posts the payload on a background goroutine.
func (w *Webhook) Send(event string, payload any) {
	if !w.enabled {
		return
	}
	body := map[string]any{
		"event": event,
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"data":  payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		observ.LogError("webhook_marshal_error", err, map[string]any{"event": event})
		return
	}
	go func() {
		if err := w.post(data); err != nil {
			observ.LogError("webhook_error", err, map[string]any{"event": event})
			observ.IncCounter("webhook_failures_total", map[string]string{"event": event})
			return
		}
		observ.IncCounter("webhook_sent_total", map[string]string{"event": event})
	}()
}

func (w *Webhook) post(data []byte) error {
	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
