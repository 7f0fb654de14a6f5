// Package relay implements the real-time room transport: a websocket
// server that forwards every published data frame to every connection
// in the same room, and a client for peers to publish through. The
// relay never inspects game semantics; echo filtering and message
// interpretation belong to the peers.
package relay

import (
	"crypto/rand"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type frame struct {
	sender *conn
	data   []byte
}

type conn struct {
	ws       *websocket.Conn
	send     chan []byte
	identity string
}

// Room fans every received frame out to all connections, the sender
// included; peers drop their own echoes at the application layer.
type Room struct {
	id string

	register   chan *conn
	unregister chan *conn
	frames     chan frame

	mu         sync.RWMutex
	conns      map[*conn]bool
	createdAt  time.Time
	lastActive time.Time
}

func newRoom(id string) *Room {
	now := time.Now()
	return &Room{
		id:         id,
		register:   make(chan *conn),
		unregister: make(chan *conn),
		frames:     make(chan frame, 16),
		conns:      make(map[*conn]bool),
		createdAt:  now,
		lastActive: now,
	}
}

func (r *Room) run() {
	for {
		select {
		case c := <-r.register:
			r.mu.Lock()
			r.lastActive = time.Now()
			r.conns[c] = true
			n := len(r.conns)
			r.mu.Unlock()
			log.Printf("relay: room %s: %s connected (%d total)", r.id, c.identity, n)

		case c := <-r.unregister:
			r.mu.Lock()
			r.lastActive = time.Now()
			if _, ok := r.conns[c]; ok {
				delete(r.conns, c)
				close(c.send)
			}
			n := len(r.conns)
			r.mu.Unlock()
			log.Printf("relay: room %s: %s disconnected (%d total)", r.id, c.identity, n)

		case f := <-r.frames:
			r.mu.Lock()
			r.lastActive = time.Now()
			for c := range r.conns {
				select {
				case c.send <- f.data:
				default:
					// A client that cannot keep up gets dropped rather
					// than stalling the room.
					delete(r.conns, c)
					close(c.send)
				}
			}
			r.mu.Unlock()
		}
	}
}

func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Room) idle() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActive
}

// Manager holds the set of rooms keyed by room ID, so each /room/:id
// is its own isolated broadcast domain.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewManager() *Manager {
	return &Manager{rooms: make(map[string]*Room)}
}

func (m *Manager) room(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[id]; ok {
		return r
	}
	r := newRoom(id)
	m.rooms[id] = r
	go r.run()
	return r
}

// Reap drops rooms that have sat empty longer than timeout. Meant to
// be called periodically by the server.
func (m *Manager) Reap(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.rooms {
		if r.size() == 0 && time.Since(r.idle()) > timeout {
			delete(m.rooms, id)
			log.Printf("relay: reaped idle room %s", id)
		}
	}
}

// NewRoomID returns a random 8-character room identifier.
func NewRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const n = 8
	const max = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}

	return string(out)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades a request to a websocket and attaches it to the
// room named by the :roomid route parameter. The peer's identity comes
// from the ?identity query parameter and is used only for logging.
func ServeWS(m *Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}
		identity := r.URL.Query().Get("identity")
		if identity == "" {
			identity = "anonymous"
		}

		room := m.room(roomID)

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("relay: upgrade error: %v", err)
			return
		}

		c := &conn{
			ws:       ws,
			send:     make(chan []byte, 32),
			identity: identity,
		}

		room.register <- c

		go c.writePump()
		c.readPump(room)
	}
}

func (c *conn) readPump(r *Room) {
	defer func() {
		r.unregister <- c
		c.ws.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		r.frames <- frame{sender: c, data: data}
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()

	for data := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
