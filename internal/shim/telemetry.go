package shim

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/frame"
	"github.com/san-kum/fluidhost/internal/logging"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

// FrameMessage is broadcast to telemetry clients after every frame.
type FrameMessage struct {
	Type               string  `json:"type"`
	Status             string  `json:"status"`
	FrameIndex         int     `json:"frame_index"`
	LastStepDurationMs float64 `json:"last_step_duration_ms"`
	Error              string  `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Telemetry fans frame states out to websocket clients. Clients that fall
// behind by more than sendBuffer messages are dropped.
type Telemetry struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewTelemetry(log *zap.Logger) *Telemetry {
	return &Telemetry{
		log:     logging.Or(log).Named("telemetry"),
		clients: make(map[*client]struct{}),
	}
}

func (t *Telemetry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.clients[c] = struct{}{}
	t.mu.Unlock()
	t.log.Debug("telemetry client connected", zap.String("remote", r.RemoteAddr))

	go t.writePump(c)
	t.readPump(c)
}

// readPump drains client messages until the connection fails.
func (t *Telemetry) readPump(c *client) {
	defer t.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Debug("telemetry client closed", zap.Error(err))
			}
			return
		}
	}
}

func (t *Telemetry) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (t *Telemetry) remove(c *client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.clients[c]; ok {
		delete(t.clients, c)
		close(c.send)
	}
}

// Broadcast sends v as JSON to every connected client.
func (t *Telemetry) Broadcast(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for c := range t.clients {
		select {
		case c.send <- msg:
		default:
			delete(t.clients, c)
			close(c.send)
			t.log.Warn("dropping slow telemetry client")
		}
	}
	return nil
}

// OnFrame makes Telemetry a frame.Observer.
func (t *Telemetry) OnFrame(st frame.State) {
	msg := FrameMessage{
		Type:               "frame",
		Status:             st.Status.String(),
		FrameIndex:         st.FrameIndex,
		LastStepDurationMs: st.LastStepDurationMs,
	}
	if st.Err != nil {
		msg.Error = st.Err.Error()
	}
	if err := t.Broadcast(msg); err != nil {
		t.log.Warn("broadcast frame", zap.Error(err))
	}
}

func (t *Telemetry) Clients() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// Close disconnects every client and refuses new ones.
func (t *Telemetry) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for c := range t.clients {
		delete(t.clients, c)
		close(c.send)
	}
}
