// Package transport streams session frames to browser front ends over
// WebSocket.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"

	"github.com/cybre/beatviz/internal/reaction"
	"github.com/cybre/beatviz/internal/session"
)

const (
	clientBuffer = 64
	writeTimeout = 2 * time.Second
)

// FrameMessage is sent to clients for every rendered frame. The static
// particle field rides along only on the first frame a client receives.
type FrameMessage struct {
	Type      string              `json:"type"`
	Seq       uint64              `json:"seq"`
	At        int64               `json:"at"`
	Beat      bool                `json:"beat"`
	Energy    float64             `json:"energy"`
	Baseline  float64             `json:"baseline"`
	Threshold float64             `json:"threshold"`
	Scale     float64             `json:"scale"`
	Color     string              `json:"color"`
	Particles []reaction.Particle `json:"particles,omitempty"`
}

// NoticeMessage carries session notices such as capture loss.
type NoticeMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func frameMessage(f session.Frame) FrameMessage {
	return FrameMessage{
		Type:      "frame",
		Seq:       f.Seq,
		At:        f.At.UnixMilli(),
		Beat:      f.State.Beat,
		Energy:    f.Result.Energy,
		Baseline:  f.Result.Baseline,
		Threshold: f.Result.Threshold,
		Scale:     f.State.Scale,
		Color:     f.State.Color.Hex(),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// primed is set once a frame carrying the particle field was queued.
	primed bool
}

// Hub is a session renderer that fans frames out to every connected
// WebSocket client. A client that cannot keep up loses messages; the frame
// loop never waits on the network.
type Hub struct {
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	particles []reaction.Particle

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewHub builds a hub that introduces particles to every new client.
func NewHub(logger *slog.Logger, particles []reaction.Particle) *Hub {
	return &Hub{
		logger:    logger,
		particles: particles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Name() string { return "websocket" }

// ServeHTTP upgrades the request and registers the client until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", slog.String("remote", r.RemoteAddr), slog.Int("clients", count))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// readLoop discards client input and unregisters the client once the
// connection fails.
func (h *Hub) readLoop(c *client) {
	defer h.wg.Done()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("websocket write failed", slog.Any("err", err))
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Debug("websocket client disconnected", slog.Int("clients", len(h.clients)))
}

// Clients reports how many clients are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Render(_ context.Context, frame session.Frame) error {
	msg := frameMessage(frame)
	payload, err := encode("frame", msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var scene []byte
	for c := range h.clients {
		out := payload
		if !c.primed && len(h.particles) > 0 {
			if scene == nil {
				msg.Particles = h.particles
				if scene, err = encode("frame", msg); err != nil {
					return err
				}
			}
			out = scene
		}
		select {
		case c.send <- out:
			c.primed = true
		default:
		}
	}
	return nil
}

func (h *Hub) Notice(_ context.Context, msg string) {
	payload, err := encode("notice", NoticeMessage{Type: "notice", Message: msg})
	if err != nil {
		h.logger.Warn("broadcast notice", slog.Any("err", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

func encode(kind string, m any) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrapf(err, "encode %s message", kind)
	}
	return payload, nil
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		// Unblocks readLoop.
		_ = c.conn.SetReadDeadline(time.Now())
	}
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

var _ session.Renderer = (*Hub)(nil)
