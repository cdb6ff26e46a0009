package audioclient

import "time"

// Config holds the playback client settings.
type Config struct {
	// Host is the server address to connect to.
	Host string
	// Port is the shared TCP/UDP server port.
	Port int
	// DialTimeout bounds the control channel connect.
	DialTimeout time.Duration
	// HeartbeatInterval is how often the client sends a HEARTBEAT on the
	// control channel. It should be comfortably under the server's
	// eviction timeout.
	HeartbeatInterval time.Duration
	// ReceiveBufferSize is the datagram receive buffer. It must exceed the
	// largest audio segment the server sends.
	ReceiveBufferSize int
	// MaxConsecutiveReceiveErrors bounds datagram receive failures before
	// the client gives up and disconnects.
	MaxConsecutiveReceiveErrors int
}

// DefaultConfig returns a Config with sane timeouts for the given server
// address.
//
// Parameters:
//   - host: Server address
//   - port: Shared TCP/UDP server port
//
// Returns:
//   - A Config ready to pass to New; override fields as needed
func DefaultConfig(host string, port int) Config {
	return Config{
		Host:                        host,
		Port:                        port,
		DialTimeout:                 10 * time.Second,
		HeartbeatInterval:           3 * time.Second,
		ReceiveBufferSize:           4096,
		MaxConsecutiveReceiveErrors: 32,
	}
}
