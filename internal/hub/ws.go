// File: internal/hub/ws.go
package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

const (
	writeWait = 10 * time.Second
	readWait  = 90 * time.Second
)

// wsTransport adapts a gorilla connection to the hub Transport. Gorilla
// permits one concurrent writer, so writes are serialized here; the hub's
// per-connection writer goroutine is the only caller in practice, with pings
// arriving on the same goroutine.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) write(messageType int, p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(messageType, p)
}

func (t *wsTransport) WriteText(p []byte) error   { return t.write(websocket.TextMessage, p) }
func (t *wsTransport) WriteBinary(p []byte) error { return t.write(websocket.BinaryMessage, p) }

func (t *wsTransport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *wsTransport) Close() error { return t.conn.Close() }

// ServeWS upgrades the request and keeps the connection registered until the
// peer goes away. The read loop only watches for close/errors; subscribers
// are listen-only.
func (h *Hub) ServeWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := h.Register(&wsTransport{conn: conn})
		defer h.Unregister(c.ID())

		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
