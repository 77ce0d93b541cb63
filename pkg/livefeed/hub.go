// Package livefeed streams meter snapshots over websocket: Hub is the
// serving side used by meter_reader, Listen the subscribing side used by
// meter_collector.
package livefeed

import (
	"net/http"
	"sync"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var _lg = logrus.WithField("module", "livefeed")

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN service, any dashboard may subscribe
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub keeps the connected websocket clients.
type Hub struct {
	latest func() *types.MeterReadings

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates a hub. latest, if set, provides the snapshot sent to a
// client right after it connects.
func NewHub(latest func() *types.MeterReadings) *Hub {
	return &Hub{latest: latest, clients: make(map[*client]bool)}
}

// ServeHTTP upgrades the request and keeps the connection until the peer
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		_lg.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	c := &client{conn: conn}
	h.add(c)

	// Send current reading immediately if available
	if h.latest != nil {
		if reading := h.latest(); reading != nil {
			if err := c.write(reading.ToJsonBytes()); err != nil {
				h.remove(c)
				return
			}
		}
	}

	// Keep connection alive, answering pings
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// Broadcast sends reading to every client. Clients that fail are dropped.
func (h *Hub) Broadcast(reading *types.MeterReadings) {
	payload := reading.ToJsonBytes()

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			_lg.Debugf("Dropping websocket client: %v", err)
			h.remove(c)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	_lg.Debugf("WebSocket client connected from %s", c.conn.RemoteAddr())
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.conn.Close()
}
