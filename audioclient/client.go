package audioclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/audiocast/logger"
	"github.com/cyberinferno/audiocast/protocol"
)

// ErrAlreadyRunning reports a Start call on a client that is connected.
var ErrAlreadyRunning = errors.New("audioclient: already running")

// Client connects to a broadcast server, negotiates the audio format over the
// control channel and plays the datagram stream through a PlaybackEngine.
type Client struct {
	cfg    Config
	log    logger.Logger
	engine PlaybackEngine

	mu      sync.Mutex
	running atomic.Bool

	conn    net.Conn
	udpConn *net.UDPConn
	id      uint32

	stopCh   chan struct{}
	stopOnce *sync.Once
	wg       sync.WaitGroup
	done     chan struct{}
}

// New creates a playback client.
//
// Parameters:
//   - cfg: Client settings; see DefaultConfig
//   - engine: Playback collaborator the received audio is handed to
//   - log: Logger used by the client and its tasks
//
// Returns:
//   - A new Client instance; call Start to connect
func New(cfg Config, engine PlaybackEngine, log logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		log:    log,
		engine: engine,
	}
}

// IsRunning reports whether the client is currently connected.
func (c *Client) IsRunning() bool {
	return c.running.Load()
}

// SessionID returns the id the server assigned, or zero before Start.
func (c *Client) SessionID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Start connects the control channel, performs the GET_FORMAT and START_PLAY
// handshake, registers the datagram return address and begins playback. It
// returns an error if any handshake step fails; on error nothing is left
// running.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return fmt.Errorf("%w: connected to %s:%d", ErrAlreadyRunning, c.cfg.Host, c.cfg.Port)
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	conn, err := net.DialTimeout("tcp4", addr, c.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			c.log.Warn("set nodelay failed", logger.Field{Key: "error", Value: err.Error()})
		}
	}

	if err := c.negotiateFormat(conn); err != nil {
		conn.Close()
		return err
	}

	id, err := c.requestPlay(conn)
	if err != nil {
		conn.Close()
		return err
	}

	udpConn, err := c.registerDatagram(id)
	if err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.udpConn = udpConn
	c.id = id
	c.stopCh = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.done = make(chan struct{})
	c.running.Store(true)

	c.wg.Add(3)
	go c.heartbeatLoop()
	go c.controlLoop()
	go c.receiveLoop()

	done := c.done
	go func() {
		c.wg.Wait()
		close(done)
	}()

	c.log.Info("client connected",
		logger.Field{Key: "server", Value: addr},
		logger.Field{Key: "id", Value: id})

	return nil
}

// Stop disconnects and waits for every client task to exit. It is idempotent
// and safe to call concurrently with a self-initiated shutdown.
func (c *Client) Stop() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return
	}

	c.shutdown()
	<-done
}

// Wait blocks until the connection has wound down, whether by Stop or by the
// server going away. It returns immediately if Start was never called.
func (c *Client) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// negotiateFormat runs the GET_FORMAT exchange and hands the descriptor to
// the playback engine.
func (c *Client) negotiateFormat(conn net.Conn) error {
	if err := protocol.WriteCmd(conn, protocol.CmdGetFormat); err != nil {
		return fmt.Errorf("send get format: %w", err)
	}

	cmd, err := protocol.ReadCmd(conn)
	if err != nil {
		return fmt.Errorf("read format response: %w", err)
	}
	if cmd != protocol.CmdGetFormat {
		return fmt.Errorf("format response echoed %s, want %s", cmd, protocol.CmdGetFormat)
	}

	size, err := protocol.ReadUint32(conn)
	if err != nil {
		return fmt.Errorf("read format size: %w", err)
	}
	if size == 0 {
		return errors.New("server sent empty format descriptor")
	}

	blob := make([]byte, size)
	if _, err := io.ReadFull(conn, blob); err != nil {
		return fmt.Errorf("read format blob: %w", err)
	}

	if err := c.engine.Init(blob); err != nil {
		return fmt.Errorf("init playback: %w", err)
	}
	if err := c.engine.Start(); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}

	return nil
}

// requestPlay runs the START_PLAY exchange and returns the assigned session
// id.
func (c *Client) requestPlay(conn net.Conn) (uint32, error) {
	if err := protocol.WriteCmd(conn, protocol.CmdStartPlay); err != nil {
		return 0, fmt.Errorf("send start play: %w", err)
	}

	cmd, err := protocol.ReadCmd(conn)
	if err != nil {
		return 0, fmt.Errorf("read start play response: %w", err)
	}
	if cmd != protocol.CmdStartPlay {
		return 0, fmt.Errorf("start play response echoed %s, want %s", cmd, protocol.CmdStartPlay)
	}

	id, err := protocol.ReadUint32(conn)
	if err != nil {
		return 0, fmt.Errorf("read session id: %w", err)
	}
	if id == 0 {
		return 0, errors.New("server assigned zero session id")
	}

	return id, nil
}

// registerDatagram opens the datagram socket and announces the return address
// by sending the bare session id to the server's port.
func (c *Client) registerDatagram(id uint32) (*net.UDPConn, error) {
	raddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("resolve udp: %w", err)
	}

	udpConn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	if _, err := udpConn.Write(protocol.EncodeSessionID(id)); err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("send registration: %w", err)
	}

	return udpConn, nil
}

// shutdown tears the connection down exactly once. Every client task calls it
// on its own failure path, so the first caller wins and the rest observe the
// closed sockets and exit.
func (c *Client) shutdown() {
	c.stopOnce.Do(func() {
		c.running.Store(false)
		close(c.stopCh)
		c.conn.Close()
		c.udpConn.Close()
	})
}

// heartbeatLoop announces liveness on the control channel on a fixed cadence.
func (c *Client) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := protocol.WriteCmd(c.conn, protocol.CmdHeartbeat); err != nil {
				c.log.Warn("heartbeat send failed", logger.Field{Key: "error", Value: err.Error()})
				c.shutdown()
				return
			}
		}
	}
}

// controlLoop consumes the server's control channel traffic. After the
// handshake the only expected words are the server's heartbeat probe and
// NONE; anything else means the stream is out of step, so the connection is
// dropped.
func (c *Client) controlLoop() {
	defer c.wg.Done()
	defer c.shutdown()

	for {
		cmd, err := protocol.ReadCmd(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.log.Warn("control read failed", logger.Field{Key: "error", Value: err.Error()})
			}
			return
		}

		switch cmd {
		case protocol.CmdHeartbeat, protocol.CmdNone:
		default:
			c.log.Warn("unexpected control command; disconnecting",
				logger.Field{Key: "cmd", Value: uint32(cmd)})
			return
		}
	}
}

// receiveLoop pulls audio datagrams and hands them to the playback engine.
// Receive failures are tolerated up to a bound; datagram loss is expected,
// a persistently failing socket is not.
func (c *Client) receiveLoop() {
	defer c.wg.Done()
	defer c.shutdown()

	buf := make([]byte, c.cfg.ReceiveBufferSize)
	failures := 0

	for {
		n, err := c.udpConn.Read(buf)
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}

			failures++
			if failures >= c.cfg.MaxConsecutiveReceiveErrors {
				c.log.Error("datagram receive failing persistently; disconnecting",
					logger.Field{Key: "failures", Value: failures},
					logger.Field{Key: "error", Value: err.Error()})
				return
			}
			continue
		}

		failures = 0
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		c.engine.Play(data)
	}
}
