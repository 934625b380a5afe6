package ws

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// egressBuffer is the per-connection outbound queue depth. A peer that falls
// this many frames behind is considered stalled.
const egressBuffer = 256

// Connection represents a single WebSocket client connection with its
// authenticated user, metadata, and a buffered egress queue drained by a
// dedicated writer goroutine. One user may hold several connections
// (multiple tabs/devices).
type Connection struct {
	ID           string        // connection ID (UUID)
	UserID       int64         // authenticated user owning this connection
	Conn         net.Conn      // underlying TCP connection
	Fd           int           // file descriptor for epoll lookups
	CreatedAt    time.Time     // when the connection was established
	LastPing     time.Time     // last heartbeat received from the client
	WriteTimeout time.Duration // per-frame deadline applied by the writer
	writeMu      sync.Mutex    // serializes writes to this connection
	processing   int32         // atomic flag: 0 = idle, 1 = being read by handleConn
	egress       chan []byte   // outbound frames awaiting the writer goroutine
	done         chan struct{} // closed once, stops the writer
	closeOnce    sync.Once
}

// Send enqueues a text frame on the connection's egress queue and returns
// immediately; the writer goroutine delivers frames in enqueue order, so a
// slow peer delays only its own delivery, never the caller. A full queue
// means the peer has stalled: the frame is dropped and an error returned.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("ws: connection %s closed", c.ID)
	default:
	}
	select {
	case c.egress <- data:
		return nil
	default:
		return fmt.Errorf("ws: egress queue full for connection %s", c.ID)
	}
}

// writeLoop is the connection's single writer goroutine, started when the
// connection is registered. One queue per connection preserves per-connection
// frame order without making any caller wait on the peer's socket.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.egress:
			if c.WriteTimeout > 0 {
				_ = c.Conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
			}
			if err := c.WriteMessage(data); err != nil {
				// Peer is gone; the next epoll read or heartbeat sweep
				// removes the connection from the manager.
				c.Close()
				return
			}
			_ = c.Conn.SetWriteDeadline(time.Time{})
		case <-c.done:
			return
		}
	}
}

// WriteMessage sends a WebSocket text frame on the socket directly. The write
// mutex serializes it with the writer goroutine and heartbeat pings. Most
// callers want Send; this is the writer's and the handshake's primitive.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// Close stops the writer goroutine and closes the underlying network
// connection. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.done != nil {
			close(c.done)
		}
	})
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry that maps connection IDs and
// file descriptors to their respective Connection objects. It supports O(1)
// lookups by both connection ID and fd.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection // connection_id -> Connection
	byFd map[int]*Connection    // fd -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
		byFd: make(map[int]*Connection),
	}
}

// Add registers a new connection in both the ID and fd lookup maps and
// starts its writer goroutine.
func (cm *ConnectionManager) Add(conn *Connection) {
	if conn.egress == nil {
		conn.egress = make(chan []byte, egressBuffer)
		conn.done = make(chan struct{})
		go conn.writeLoop()
	}
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byFd[conn.Fd] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by connection ID, closes the underlying network
// connection, and removes it from both lookup maps. Returns true if the
// connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byFd, conn.Fd)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// RemoveByFd removes a connection by file descriptor, closes the underlying
// network connection, and removes it from both lookup maps. It returns the
// removed connection, or nil if no connection was registered for that fd.
func (cm *ConnectionManager) RemoveByFd(fd int) *Connection {
	cm.mu.Lock()
	conn, ok := cm.byFd[fd]
	if ok {
		delete(cm.byFd, fd)
		delete(cm.byID, conn.ID)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
		return conn
	}
	return nil
}

// Get returns the connection for the given connection ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil if
// not found.
func (cm *ConnectionManager) GetByFd(fd int) *Connection {
	cm.mu.RLock()
	conn := cm.byFd[fd]
	cm.mu.RUnlock()
	return conn
}

// GetByConn returns the connection for the given net.Conn by extracting
// its file descriptor. Returns nil if not found.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	fd := socketFD(c)
	return cm.GetByFd(fd)
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// BroadcastExcept enqueues a message for all connected clients except the one
// identified by excludeID. Used for presence announcements so a user does
// not hear about their own transition. Enqueue failures are ignored: a
// stalled connection gets cleaned up by the epoll event loop.
func (cm *ConnectionManager) BroadcastExcept(excludeID string, msg []byte) {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		if conn.ID == excludeID {
			continue
		}
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Send(msg)
	}
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
