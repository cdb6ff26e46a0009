package audioserver

import (
	"net"
	"sync"
)

// controlConn wraps an accepted control channel. Writes are serialized so the
// session task's packed responses and the heartbeat supervisor's probes never
// interleave on the wire, and shutdown is idempotent so the session task and
// the supervisor can race to terminate.
type controlConn struct {
	net.Conn
	wmu       sync.Mutex
	closeOnce sync.Once
}

// Write implements io.Writer with per-connection write serialization.
func (c *controlConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.Conn.Write(p)
}

// shutdown closes the control channel in both directions. Safe to call
// repeatedly and from multiple goroutines.
func (c *controlConn) shutdown() {
	c.closeOnce.Do(func() {
		if tc, ok := c.Conn.(*net.TCPConn); ok {
			_ = tc.CloseRead()
			_ = tc.CloseWrite()
		}

		_ = c.Conn.Close()
	})
}

// remote formats the peer address for logs.
func (c *controlConn) remote() string {
	if ra := c.RemoteAddr(); ra != nil {
		return ra.String()
	}

	return "unknown"
}
