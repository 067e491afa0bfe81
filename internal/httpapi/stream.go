package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/queue"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const keepAliveInterval = 15 * time.Second

// writeWait bounds each websocket write so one stalled client cannot hold the hub
var writeWait = 10 * time.Second

// streamEvents relays queue events as server-sent events. Clients resume
// with ?since=<seq> or the Last-Event-ID header.
func (s *Server) streamEvents(c *gin.Context) {
	since := resumeSeq(c)
	wake, cancel := s.deps.Events.Subscribe()
	defer cancel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		for _, ev := range s.deps.Events.Since(since) {
			c.Render(-1, sse.Event{
				Id:    strconv.FormatInt(ev.Seq, 10),
				Event: string(ev.Type),
				Data:  ev,
			})
			since = ev.Seq
		}
		c.Writer.Flush()

		select {
		case <-wake:
			return true
		case <-keepAlive.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		case <-s.ctx.Done():
			return false
		}
	})
}

func resumeSeq(c *gin.Context) int64 {
	raw := c.Query("since")
	if raw == "" {
		raw = c.GetHeader("Last-Event-ID")
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// snapshotMessage is the first frame a websocket client receives
type snapshotMessage struct {
	Type     string         `json:"type"`
	Snapshot queue.Snapshot `json:"snapshot"`
}

// Hub broadcasts queue events to connected websocket clients
type Hub struct {
	events *queue.EventBus
	queue  QueueService

	wake        <-chan struct{}
	unsubscribe func()
	last        int64

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub subscribes to events immediately; anything published afterwards
// reaches clients once Run is started.
func NewHub(events *queue.EventBus, q QueueService) *Hub {
	wake, unsubscribe := events.Subscribe()
	return &Hub{
		events:      events,
		queue:       q,
		wake:        wake,
		unsubscribe: unsubscribe,
		last:        events.LastSeq(),
		clients:     make(map[*websocket.Conn]bool),
	}
}

// Run forwards bus events to clients until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer h.unsubscribe()

	last := h.last
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.wake:
			for _, ev := range h.events.Since(last) {
				h.broadcast(ev)
				last = ev.Seq
			}
		}
	}
}

// ServeWS upgrades the connection and registers the client
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	err = writeJSON(conn, snapshotMessage{Type: "snapshot", Snapshot: h.queue.Snapshot()})
	if err == nil {
		h.clients[conn] = true
	}
	h.mu.Unlock()
	if err != nil {
		conn.Close()
		return
	}

	go h.readPump(conn)
}

// readPump discards client frames and unregisters on disconnect
func (h *Hub) readPump(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) broadcast(ev queue.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := writeJSON(conn, ev); err != nil {
			log.WithError(err).Debug("Dropping websocket client")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Clients returns the number of connected websocket clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
