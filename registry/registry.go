// Package registry tracks the playing peers of a broadcast server: the
// mapping from control connection to session record, session ID allocation,
// and the datagram-endpoint view the broadcast fan-out iterates.
package registry

import (
	"net"
	"time"

	"github.com/cyberinferno/audiocast/idgenerator"
	"github.com/cyberinferno/audiocast/logger"
	"github.com/cyberinferno/audiocast/safemap"
)

// Registry is the peer registry of one server instance. A control connection
// appears at most once; IDs come from a per-registry monotonic counter seeded
// at zero, so the first session is 1 and IDs are never reused in-process.
// All methods are safe for concurrent use.
type Registry struct {
	log      logger.Logger
	sessions *safemap.SafeMap[net.Conn, *Session]
	ids      *idgenerator.IdGenerator
}

// New creates an empty Registry.
//
// Parameters:
//   - log: Logger for registry anomalies (duplicate add, repeat remove)
//
// Returns:
//   - A new Registry instance
func New(log logger.Logger) *Registry {
	return &Registry{
		log:      log.With(logger.Field{Key: "component", Value: "registry"}),
		sessions: safemap.NewSafeMap[net.Conn, *Session](),
		ids:      idgenerator.NewIdGenerator(0),
	}
}

// Add registers conn as a playing peer and allocates its session ID. Adding a
// connection that is already registered fails and leaves the existing record
// intact.
//
// Parameters:
//   - conn: The control channel to register
//
// Returns:
//   - The allocated session ID, or 0 if conn was already registered
func (r *Registry) Add(conn net.Conn) uint32 {
	if r.sessions.Has(conn) {
		r.log.Error("repeat add", logger.Field{Key: "remote", Value: remoteAddr(conn)})
		return 0
	}

	sess := &Session{
		id:            r.ids.Id(),
		conn:          conn,
		lastHeartbeat: time.Now(),
	}
	r.sessions.Store(conn, sess)

	r.log.Debug("add", logger.Field{Key: "id", Value: sess.id}, logger.Field{Key: "remote", Value: remoteAddr(conn)})
	return sess.id
}

// Remove deletes the session registered under conn. Removing a connection
// that is not registered is a logged anomaly but not fatal; the session task
// and the heartbeat supervisor may both attempt the removal.
//
// Parameters:
//   - conn: The control channel to deregister
//
// Returns:
//   - true if a session was removed, false if none was registered
func (r *Registry) Remove(conn net.Conn) bool {
	sess, found := r.sessions.LoadAndDelete(conn)
	if !found {
		r.log.Debug("repeat remove", logger.Field{Key: "remote", Value: remoteAddr(conn)})
		return false
	}

	r.log.Debug("remove", logger.Field{Key: "id", Value: sess.id}, logger.Field{Key: "remote", Value: remoteAddr(conn)})
	return true
}

// Get returns the session registered under conn, if any.
func (r *Registry) Get(conn net.Conn) (*Session, bool) {
	return r.sessions.Load(conn)
}

// FindByID returns the session with the given ID. Session counts are small,
// so a scan over the registry is fine here.
//
// Parameters:
//   - id: The session ID to look up
//
// Returns:
//   - The session and true if found, or nil and false otherwise
func (r *Registry) FindByID(id uint32) (*Session, bool) {
	var found *Session
	r.sessions.Range(func(_ net.Conn, sess *Session) bool {
		if sess.id == id {
			found = sess
			return false
		}

		return true
	})

	return found, found != nil
}

// ForEach calls fn for every registered session.
func (r *Registry) ForEach(fn func(*Session)) {
	r.sessions.Range(func(_ net.Conn, sess *Session) bool {
		fn(sess)
		return true
	})
}

// ForEachWithDatagram calls fn for every session whose datagram endpoint has
// been registered. Peers that never sent a registration datagram are skipped;
// they remain subject to heartbeat eviction.
func (r *Registry) ForEachWithDatagram(fn func(*Session)) {
	r.sessions.Range(func(_ net.Conn, sess *Session) bool {
		if sess.UDPAddr() != nil {
			fn(sess)
		}

		return true
	})
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// remoteAddr formats conn's remote address for logs.
func remoteAddr(conn net.Conn) string {
	if conn == nil {
		return "<nil>"
	}
	if ra := conn.RemoteAddr(); ra != nil {
		return ra.String()
	}

	return "unknown"
}
