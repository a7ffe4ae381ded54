package ingest

import (
	"context"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tickscalper/internal/config"
	"tickscalper/internal/observ"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

// Handler consumes normalized feed events.
type Handler interface {
	Handle(ev Event)
}

// Feed owns one websocket connection carrying a single stream kind for all
// configured symbols and keeps it alive until the context is cancelled. Trades
// and top-of-book run as separate feeds, mirroring the venue's stream split.
type Feed struct {
	cfg     config.Feed
	stream  string
	handler Handler
}

func NewFeed(cfg config.Feed, stream string, h Handler) *Feed {
	return &Feed{cfg: cfg, stream: stream, handler: h}
}

// streamURL joins the base websocket URL with the combined-stream path for
// the configured symbols.
func (f *Feed) streamURL() (string, error) {
	path := StreamPath(f.cfg.Symbols, f.stream)

	u, err := url.Parse(f.cfg.WSURL)
	if err != nil {
		return "", err
	}
	if strings.Contains(u.Path, "/stream") {
		q := u.Query()
		q.Set("streams", path)
		u.RawQuery = q.Encode()
	} else {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	}
	return u.String(), nil
}

// Run dials, pumps messages into the handler, and reconnects with capped
// exponential backoff plus jitter on any failure. Returns when ctx is done.
func (f *Feed) Run(ctx context.Context) {
	target, err := f.streamURL()
	if err != nil {
		observ.LogError("feed_bad_url", err, map[string]any{"url": f.cfg.WSURL})
		return
	}

	backoff := f.cfg.Reconnect.InitialDelayMs
	for {
		if ctx.Err() != nil {
			return
		}
		err := f.runOnce(ctx, target)
		if ctx.Err() != nil {
			return
		}
		observ.LogError("feed_disconnected", err, map[string]any{"url": target})
		observ.IncCounter("feed_reconnects_total", nil)

		jitter := 0
		if f.cfg.Reconnect.JitterMs > 0 {
			jitter = rand.Intn(f.cfg.Reconnect.JitterMs)
		}
		delay := time.Duration(backoff+jitter) * time.Millisecond

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		backoff *= 2
		if backoff > f.cfg.Reconnect.MaxDelayMs {
			backoff = f.cfg.Reconnect.MaxDelayMs
		}
	}
}

func (f *Feed) runOnce(ctx context.Context, target string) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, target, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	observ.Log("feed_connected", map[string]any{"url": target})

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Close the connection when the context ends so the blocked ReadMessage
	// returns, and keep the peer alive with pings meanwhile.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := ParseMessage(raw)
		if err != nil {
			observ.IncCounter("feed_decode_errors_total", nil)
			observ.LogError("feed_decode_error", err, nil)
			continue
		}
		if ev == nil {
			continue
		}
		f.handler.Handle(*ev)
	}
}
