package registry

import (
	"net"
	"sync"
	"time"
)

// Session is the record kept for every peer that has completed the START_PLAY
// handshake. The registry exclusively owns Session records; the session task,
// heartbeat supervisor, and UDP registration listener hold non-owning lookups,
// so the mutable fields are guarded for cross-goroutine access.
type Session struct {
	id   uint32
	conn net.Conn

	mu            sync.Mutex
	udpAddr       *net.UDPAddr
	lastHeartbeat time.Time
}

// ID returns the session's unique identifier. IDs are positive and never
// reused within one registry's lifetime.
func (s *Session) ID() uint32 {
	return s.id
}

// Conn returns the control channel the session was registered under.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// UDPAddr returns the peer's registered datagram endpoint, or nil if the peer
// has not registered one yet.
func (s *Session) UDPAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpAddr
}

// SetUDPAddr binds the peer's datagram endpoint. The endpoint transitions
// from absent to present exactly once; later registrations are ignored and
// SetUDPAddr returns false.
//
// Parameters:
//   - addr: The datagram source address observed by the registration listener
//
// Returns:
//   - true if the endpoint was set, false if it was already bound
func (s *Session) SetUDPAddr(addr *net.UDPAddr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.udpAddr != nil {
		return false
	}

	s.udpAddr = addr
	return true
}

// TouchHeartbeat records that an inbound HEARTBEAT was observed now.
func (s *Session) TouchHeartbeat() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

// LastHeartbeat returns the time of the most recently observed inbound
// HEARTBEAT, or the session start time if none arrived yet.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}
