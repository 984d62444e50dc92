package announce

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	readDeadline = 60 * time.Second
	writeTimeout = 10 * time.Second
	clientBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub streams events to connected websocket clients. Slow clients drop
// events rather than holding up the broadcaster.
type Hub struct {
	clients *xsync.Map[uint64, chan Event]
	nextID  atomic.Uint64
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: xsync.NewMap[uint64, chan Event](),
		logger:  logger,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return h.clients.Size()
}

func (h *Hub) Announce(_ context.Context, evt Event) {
	h.clients.Range(func(id uint64, send chan Event) bool {
		select {
		case send <- evt:
		default:
			h.logger.Warn("Dropping announcement for slow websocket client",
				zap.Uint64("client", id),
				zap.String("kind", string(evt.Kind)))
		}
		return true
	})
}

// ServeHTTP upgrades the connection and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			h.logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}()

	id := h.nextID.Add(1)
	send := make(chan Event, clientBuffer)
	h.clients.Store(id, send)
	defer h.clients.Delete(id)

	h.logger.Info("WebSocket client connected",
		zap.Uint64("client", id),
		zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("Panic in websocket writer goroutine",
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", r.RemoteAddr))
				cancel()
			}
		}()
		h.writeLoop(ctx, cancel, conn, send)
	}()

	h.readLoop(conn, cancel)
	cancel()
	wg.Wait()

	h.logger.Info("WebSocket client disconnected",
		zap.Uint64("client", id),
		zap.String("remote_addr", r.RemoteAddr))
}

// writeLoop owns all writes to conn: events and keep-alive pings.
func (h *Hub) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, send <-chan Event) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout)); err != nil {
				h.logger.Debug("Failed to send ping", zap.Error(err))
				cancel()
				return
			}
		case evt := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("Failed to write WebSocket message", zap.Error(err))
				cancel()
				return
			}
		}
	}
}

// readLoop discards client frames and returns once the connection is dead.
func (h *Hub) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		h.logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return
		}
	}
}
