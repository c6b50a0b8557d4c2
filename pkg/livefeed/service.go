// Package livefeed keeps the latest value of every OBIS code and streams
// new readings to websocket clients.
package livefeed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/NotCoffee418/iec62056_exporter/pkg/session"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeTimeout = 5 * time.Second
	// Enough for a full snapshot plus a few bursts.
	sendQueueSize = 256
)

type Feed struct {
	upgrader websocket.Upgrader
	now      func() time.Time

	latestMu sync.RWMutex
	latest   map[string]Update
	identity *session.Identity

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client
}

var _ session.Sink = (*Feed)(nil)
var _ session.IdentitySink = (*Feed)(nil)
var _ session.SessionEndObserver = (*Feed)(nil)

func New() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Read-only feed, any dashboard may subscribe
			},
		},
		now:     time.Now,
		latest:  make(map[string]Update),
		clients: make(map[*websocket.Conn]*client),
	}
}

func (f *Feed) Observe(code, content string) {
	update := Update{
		Timestamp: f.now().Format(time.RFC3339),
		Code:      code,
		Content:   content,
	}

	f.latestMu.Lock()
	f.latest[code] = update
	f.latestMu.Unlock()

	f.broadcast(update.ToJsonBytes())
}

func (f *Feed) ObserveIdentity(id session.Identity) {
	f.latestMu.Lock()
	f.identity = &id
	f.latestMu.Unlock()
}

// ObserveSessionEnd forgets the identity; readings stay as last seen.
func (f *Feed) ObserveSessionEnd() {
	f.latestMu.Lock()
	f.identity = nil
	f.latestMu.Unlock()
}

// Latest returns a copy of the most recent update per code.
func (f *Feed) Latest() Snapshot {
	f.latestMu.RLock()
	defer f.latestMu.RUnlock()

	snap := Snapshot{Readings: make(map[string]Update, len(f.latest))}
	for code, u := range f.latest {
		snap.Readings[code] = u
	}
	if f.identity != nil {
		id := *f.identity
		snap.Identity = &id
	}
	return snap
}

// ServeLatest answers with the latest snapshot as JSON.
func (f *Feed) ServeLatest(w http.ResponseWriter, r *http.Request) {
	snap := f.Latest()
	w.Header().Set("Content-Type", "application/json")
	if len(snap.Readings) == 0 {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "No readings available yet",
		})
		return
	}
	json.NewEncoder(w).Encode(snap)
}

// ServeWS upgrades the request and streams updates until the client leaves.
func (f *Feed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	c := f.addClient(conn)

	// Send current readings immediately if available
	for _, u := range f.Latest().Readings {
		if !c.enqueue(u.ToJsonBytes()) {
			f.removeClient(c)
			return
		}
	}

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			f.removeClient(c)
			return
		}
	}
}

// ClientCount returns the number of connected websocket clients.
func (f *Feed) ClientCount() int {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	return len(f.clients)
}

// broadcast never blocks the caller. A client whose queue is full is
// dropped.
func (f *Feed) broadcast(data []byte) {
	f.clientsMu.RLock()
	clients := make([]*client, 0, len(f.clients))
	for _, c := range f.clients {
		clients = append(clients, c)
	}
	f.clientsMu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(data) {
			log.WithField("remote", c.conn.RemoteAddr().String()).Warn("Dropping slow websocket client")
			f.removeClient(c)
		}
	}
}

func (f *Feed) addClient(conn *websocket.Conn) *client {
	c := newClient(conn)
	f.clientsMu.Lock()
	f.clients[conn] = c
	f.clientsMu.Unlock()
	go f.writeLoop(c)
	return c
}

func (f *Feed) removeClient(c *client) {
	f.clientsMu.Lock()
	delete(f.clients, c.conn)
	f.clientsMu.Unlock()
	c.close()
	c.conn.Close()
}

func (f *Feed) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				f.removeClient(c)
				return
			}
		}
	}
}
