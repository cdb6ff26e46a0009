package audioserver

import "time"

// Config holds the broadcast server settings.
type Config struct {
	// Host is the IPv4 address to bind both the TCP acceptor and the UDP
	// socket to.
	Host string
	// Port is the shared TCP/UDP listen port.
	Port int
	// HeartbeatInterval is how often the per-session supervisor probes the
	// peer and checks its liveness deadline.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout is how long a session may go without an inbound
	// HEARTBEAT before it is evicted.
	HeartbeatTimeout time.Duration
	// FormatCacheTTL bounds how long the serialized format descriptor is
	// served from cache before the capture engine is asked again.
	FormatCacheTTL time.Duration
	// BroadcastQueueSize is the capacity of the queue between audio
	// producers and the datagram sender. A full queue drops the batch;
	// stale audio is worse than lost audio here.
	BroadcastQueueSize int
	// Capture is handed to the capture engine unchanged.
	Capture CaptureConfig
}

// DefaultConfig returns a Config with the default heartbeat cadence
// (3 second probes, 10 second timeout) for the given listen address.
//
// Parameters:
//   - host: IPv4 address to bind
//   - port: Shared TCP/UDP port
//
// Returns:
//   - A Config ready to pass to New; override fields as needed
func DefaultConfig(host string, port int) Config {
	return Config{
		Host:               host,
		Port:               port,
		HeartbeatInterval:  3 * time.Second,
		HeartbeatTimeout:   10 * time.Second,
		FormatCacheTTL:     time.Minute,
		BroadcastQueueSize: 64,
	}
}
