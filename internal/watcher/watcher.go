// Package watcher follows the experiments table change feed over the
// Supabase realtime websocket and logs the status transitions driven by the
// downstream pricing-analysis process.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/moeltae/sci-bom/internal/logging"
)

const (
	heartbeatInterval = 30 * time.Second
	experimentsTopic  = "realtime:public:experiments"
)

// event is a Phoenix-framed realtime message.
type event struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
	JoinRef string          `json:"join_ref,omitempty"`
}

// change is the interesting part of an UPDATE payload.
type change struct {
	Record struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"record"`
	OldRecord struct {
		Status string `json:"status"`
	} `json:"old_record"`
}

// Watcher subscribes to experiment changes.
type Watcher struct {
	mu     sync.Mutex
	url    string
	conn   *websocket.Conn
	logger *logging.Logger
	done   chan struct{}
	ref    int
}

// New creates a watcher. supabaseURL is the project's HTTP URL; it is
// rewritten to the realtime websocket endpoint.
func New(supabaseURL, apiKey string, logger *logging.Logger) *Watcher {
	wsURL := supabaseURL
	if strings.HasPrefix(wsURL, "https") {
		wsURL = "wss" + wsURL[len("https"):]
	} else if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL += "/realtime/v1/websocket?apikey=" + apiKey + "&vsn=1.0.0"

	return &Watcher{
		url:    wsURL,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start connects, joins the experiments topic and begins consuming events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	w.conn = conn
	w.done = make(chan struct{})

	w.ref++
	join := event{
		Topic:   experimentsTopic,
		Event:   "phx_join",
		Payload: json.RawMessage(`{}`),
		Ref:     fmt.Sprintf("%d", w.ref),
		JoinRef: fmt.Sprintf("%d", w.ref),
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		w.conn = nil
		return fmt.Errorf("join topic: %w", err)
	}

	go w.readLoop(conn)
	go w.heartbeat(conn)

	w.logger.Info("experiment status watcher started")
	return nil
}

// Stop closes the connection.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return
	}
	close(w.done)

	_ = w.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	w.conn.Close()
	w.conn = nil
}

func (w *Watcher) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			select {
			case <-w.done:
			default:
				w.logger.WithError(err).Warn("realtime read failed; watcher stopping")
			}
			return
		}

		if ev.Topic != experimentsTopic || ev.Event != "UPDATE" {
			continue
		}

		var c change
		if err := json.Unmarshal(ev.Payload, &c); err != nil {
			continue
		}
		if c.Record.Status == c.OldRecord.Status {
			continue
		}

		w.logger.WithFields(map[string]interface{}{
			"experiment_id": c.Record.ID,
			"from":          c.OldRecord.Status,
			"to":            c.Record.Status,
		}).Info("experiment status changed")
	}
}

func (w *Watcher) heartbeat(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			w.ref++
			hb := event{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
				Ref:     fmt.Sprintf("%d", w.ref),
			}
			err := conn.WriteJSON(hb)
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
