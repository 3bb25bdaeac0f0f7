package lpxserver

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// client is one connected viewer's socket plus its identity. The
// client set is guarded by a single mutex, held only while iterating
// or mutating, never across a socket write.
type client struct {
	id   uuid.UUID
	conn net.Conn
}

// clientSet tracks connected clients under a single mutex.
type clientSet struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*client
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[uuid.UUID]*client)}
}

// add registers conn as a new client and returns its id.
func (s *clientSet) add(conn net.Conn) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.clients[id] = &client{id: id, conn: conn}
	s.mu.Unlock()
	return id
}

// remove closes and forgets the client with the given id.
func (s *clientSet) remove(id uuid.UUID) {
	s.mu.Lock()
	c, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
	}
	s.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

// snapshot returns a copy of the current client list, safe to iterate
// without holding the set's mutex during socket I/O.
func (s *clientSet) snapshot() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// count returns the number of connected clients.
func (s *clientSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// closeAll closes every client connection and clears the set.
func (s *clientSet) closeAll() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[uuid.UUID]*client)
	s.mu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}
}
