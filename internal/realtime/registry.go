package realtime

import (
	"errors"
	"sync"
)

var (
	ErrUnknownConnection    = errors.New("unknown connection")
	ErrAlreadyAuthenticated = errors.New("connection already authenticated")
	ErrInvalidUserID        = errors.New("missing or malformed user id")
	ErrNotAuthenticated     = errors.New("connection not authenticated")
)

const sendBufferSize = 256

// Connection is one live socket owned by this process. Registry state
// about it (identity, joined rooms) is only ever mutated through the
// registry, under its lock.
type Connection struct {
	ID     string
	userID string
	rooms  map[string]struct{}

	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newConnection(id string) *Connection {
	return &Connection{
		ID:     id,
		rooms:  make(map[string]struct{}),
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// Send returns the channel the write pump drains.
func (c *Connection) Send() <-chan []byte {
	return c.send
}

// Closed is closed when the connection has been dropped as a slow
// consumer; the write pump exits and the transport closes.
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

// trySend enqueues without blocking. A full buffer means the client
// cannot keep up; dropping events would break per-room ordering, so the
// connection is dropped instead and recovers via reconnect.
func (c *Connection) trySend(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.drop()
		return false
	}
}

func (c *Connection) drop() {
	c.once.Do(func() { close(c.closed) })
}

// Registry is the per-process map of live connections: socket identity,
// authenticated user, joined rooms, and per-user connection counts so
// unregister can tell when a user's last local connection went away.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Connection            // connection id -> connection
	rooms     map[string]map[string]*Connection // room id -> connection id -> connection
	userConns map[string]int                    // user id -> live connection count
}

func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*Connection),
		rooms:     make(map[string]map[string]*Connection),
		userConns: make(map[string]int),
	}
}

// Register creates registry state for a freshly accepted socket.
func (r *Registry) Register(connID string) *Connection {
	conn := newConnection(connID)
	r.mu.Lock()
	r.conns[connID] = conn
	r.mu.Unlock()
	return conn
}

// Authenticate attaches a user identity to a connection. At most once
// per connection lifetime; callers should close the transport when this
// fails.
func (r *Registry) Authenticate(connID, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if conn.userID != "" {
		return ErrAlreadyAuthenticated
	}

	conn.userID = userID
	r.userConns[userID]++
	return nil
}

// UserID returns the authenticated identity, empty until authenticated.
func (r *Registry) UserID(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conn, ok := r.conns[connID]; ok {
		return conn.userID
	}
	return ""
}

// Join adds the connection to a room. Idempotent; authentication must
// precede any join.
func (r *Registry) Join(connID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if conn.userID == "" {
		return ErrNotAuthenticated
	}
	if _, joined := conn.rooms[roomID]; joined {
		return nil
	}

	conn.rooms[roomID] = struct{}{}
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]*Connection)
	}
	r.rooms[roomID][connID] = conn
	return nil
}

// Leave removes the connection from a room; no-op if not a member.
func (r *Registry) Leave(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, roomID)
}

func (r *Registry) leaveLocked(connID, roomID string) {
	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(conn.rooms, roomID)
	if members, ok := r.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// Unregister tears down all registry state for a closed socket,
// whatever the close reason. It reports the owning user and whether
// this was that user's last live connection on this process, which is
// what decides a presence mark-offline.
func (r *Registry) Unregister(connID string) (userID string, lastConn bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return "", false
	}

	for roomID := range conn.rooms {
		r.leaveLocked(connID, roomID)
	}
	delete(r.conns, connID)
	conn.drop()

	if conn.userID == "" {
		return "", false
	}

	userID = conn.userID
	r.userConns[userID]--
	if r.userConns[userID] <= 0 {
		delete(r.userConns, userID)
		lastConn = true
	}
	return userID, lastConn
}

// Members snapshots the local connections joined to a room.
func (r *Registry) Members(roomID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(members))
	for _, conn := range members {
		out = append(out, conn)
	}
	return out
}

// ConnCount reports the user's live connection count on this process.
func (r *Registry) ConnCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userConns[userID]
}
