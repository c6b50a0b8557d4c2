package livefeed

import (
	"encoding/json"
	"sync"

	"github.com/NotCoffee418/iec62056_exporter/pkg/session"
	"github.com/gorilla/websocket"
)

// Update is one reading as broadcast to websocket clients.
type Update struct {
	Timestamp string `json:"timestamp"`
	Code      string `json:"obis_code"`
	Content   string `json:"content"`
}

func (u Update) ToJsonBytes() []byte {
	data, _ := json.Marshal(u)
	return data
}

func UpdateFromJsonBytes(data []byte) *Update {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil
	}
	return &u
}

// Snapshot is the body of the /latest endpoint.
type Snapshot struct {
	Identity *session.Identity `json:"identity,omitempty"`
	Readings map[string]Update `json:"readings"`
}

// client owns the write side of one websocket connection. Only its write
// loop touches conn for writing.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue queues data without blocking. It reports false when the client
// has fallen too far behind or is already closed.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}
