package audioserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/audiocast/formatcache"
	"github.com/cyberinferno/audiocast/logger"
	"github.com/cyberinferno/audiocast/protocol"
	"github.com/cyberinferno/audiocast/registry"
	"github.com/cyberinferno/audiocast/safemap"
	"github.com/cyberinferno/audiocast/segmenter"
)

const formatCacheKey = "audiocast:format"

// ErrAlreadyRunning reports a Start call on a server that is serving.
var ErrAlreadyRunning = errors.New("audioserver: already running")

// Server accepts control channel connections over TCP, registers datagram
// return addresses over UDP on the same port, and fans captured audio out to
// every playing session. It implements AudioSink so a capture engine can hand
// it raw frames directly.
type Server struct {
	cfg     Config
	log     logger.Logger
	engine  CaptureEngine
	formats formatcache.Cache

	mu      sync.Mutex
	running atomic.Bool

	reg      *registry.Registry
	listener *net.TCPListener
	udpConn  *net.UDPConn
	conns    *safemap.SafeMap[*controlConn, struct{}]

	broadcastCh chan [][]byte
	stopCh      chan struct{}
	group       *errgroup.Group
	sessWG      sync.WaitGroup
	done        chan struct{}
}

// New creates a broadcast server.
//
// Parameters:
//   - cfg: Server settings; see DefaultConfig
//   - engine: Capture collaborator that produces audio and the format blob
//   - formats: Cache the serialized format descriptor is served through
//   - log: Logger used by the server and its session tasks
//
// Returns:
//   - A new Server instance; call Start to begin serving
func New(cfg Config, engine CaptureEngine, formats formatcache.Cache, log logger.Logger) *Server {
	return &Server{
		cfg:     cfg,
		log:     log,
		engine:  engine,
		formats: formats,
	}
}

// IsRunning reports whether the server is currently serving.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Port returns the bound TCP/UDP port, or 0 if the server is not running.
// Useful when the configuration requested an ephemeral port.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return 0
	}

	return s.listener.Addr().(*net.TCPAddr).Port
}

// Start binds the TCP and UDP sockets, starts loopback capture and begins
// accepting sessions. It returns an error if the server is already running or
// any socket cannot be bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("%w on %s:%d", ErrAlreadyRunning, s.cfg.Host, s.cfg.Port)
	}

	addr := &net.TCPAddr{IP: net.ParseIP(s.cfg.Host), Port: s.cfg.Port}
	listener, err := net.ListenTCP("tcp4", addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}

	// The datagram socket shares the control channel's port. With an
	// ephemeral request (port 0) the TCP bind decides the port for both.
	port := listener.Addr().(*net.TCPAddr).Port
	udpConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: addr.IP, Port: port})
	if err != nil {
		listener.Close()
		return fmt.Errorf("listen udp %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}

	if err := s.engine.StartLoopbackRecording(s, s.cfg.Capture); err != nil {
		listener.Close()
		udpConn.Close()
		return fmt.Errorf("start capture: %w", err)
	}

	s.listener = listener
	s.udpConn = udpConn
	s.reg = registry.New(s.log)
	s.conns = safemap.NewSafeMap[*controlConn, struct{}]()
	s.broadcastCh = make(chan [][]byte, s.cfg.BroadcastQueueSize)
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	group, _ := errgroup.WithContext(context.Background())
	s.group = group
	group.Go(s.acceptLoop)
	group.Go(s.registrationLoop)
	group.Go(s.broadcastLoop)

	s.running.Store(true)
	s.log.Info("server started", logger.Field{Key: "host", Value: s.cfg.Host}, logger.Field{Key: "port", Value: s.cfg.Port})

	done := s.done
	go func() {
		if err := group.Wait(); err != nil {
			s.log.Error("server task failed", logger.Field{Key: "error", Value: err.Error()})
		}

		s.sessWG.Wait()
		close(done)
	}()

	return nil
}

// Stop halts capture, evicts every session and releases both sockets. It is
// idempotent and returns once every server task and session task has exited.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return
	}
	s.running.Store(false)

	s.engine.Stop()
	close(s.stopCh)
	s.listener.Close()
	s.udpConn.Close()

	s.conns.Range(func(c *controlConn, _ struct{}) bool {
		c.shutdown()
		return true
	})

	<-s.done

	if err := s.formats.Delete(context.Background(), formatCacheKey); err != nil {
		s.log.Warn("format cache delete failed", logger.Field{Key: "error", Value: err.Error()})
	}

	s.listener = nil
	s.udpConn = nil
	s.reg = nil
	s.conns = nil
	s.log.Info("server stopped")
}

// Wait blocks until the current serve cycle has fully wound down. It returns
// immediately if the server was never started.
func (s *Server) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// BroadcastAudioData implements AudioSink. The capture engine calls it from
// its own thread; the data is segmented for the datagram path and queued for
// the sender task. A full queue drops the batch since stale audio is worse
// than lost audio.
func (s *Server) BroadcastAudioData(data []byte, blockAlign int) {
	if len(data) == 0 || !s.running.Load() {
		return
	}

	segments, err := segmenter.Split(data, blockAlign)
	if err != nil {
		s.log.Warn("audio batch rejected",
			logger.Field{Key: "size", Value: len(data)},
			logger.Field{Key: "block_align", Value: blockAlign},
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	select {
	case s.broadcastCh <- segments:
	default:
		s.log.Debug("broadcast queue full; dropping batch", logger.Field{Key: "segments", Value: len(segments)})
	}
}

// acceptLoop admits control channel connections until the listener is closed.
func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		if err := conn.SetNoDelay(true); err != nil {
			s.log.Warn("set nodelay failed", logger.Field{Key: "error", Value: err.Error()})
		}

		cc := &controlConn{Conn: conn}
		s.conns.Store(cc, struct{}{})
		s.log.Info("session connected", logger.Field{Key: "remote", Value: cc.remote()})

		s.sessWG.Add(1)
		go func() {
			defer s.sessWG.Done()
			defer s.conns.Delete(cc)
			s.handleSession(cc)
		}()
	}
}

// registrationLoop binds datagram return addresses to sessions. A valid
// registration datagram is exactly the 4 byte session id; anything else is
// dropped. The receive buffer is larger than the id on purpose so oversized
// datagrams are detected instead of silently truncated.
func (s *Server) registrationLoop() error {
	buf := make([]byte, 16)
	for {
		n, addr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
				return fmt.Errorf("udp read: %w", err)
			}
		}

		id, err := protocol.DecodeSessionID(buf[:n])
		if err != nil {
			s.log.Warn("malformed registration datagram",
				logger.Field{Key: "remote", Value: addr.String()},
				logger.Field{Key: "size", Value: n})
			continue
		}

		sess, found := s.reg.FindByID(id)
		if !found {
			s.log.Warn("registration for unknown session",
				logger.Field{Key: "id", Value: id},
				logger.Field{Key: "remote", Value: addr.String()})
			continue
		}

		if !sess.SetUDPAddr(addr) {
			s.log.Debug("repeat registration ignored", logger.Field{Key: "id", Value: id})
			continue
		}

		s.log.Info("session registered datagram address",
			logger.Field{Key: "id", Value: id},
			logger.Field{Key: "remote", Value: addr.String()})
	}
}

// broadcastLoop is the single sender task. Segment order within a batch and
// batch order within the queue are preserved because only this task writes
// audio datagrams.
func (s *Server) broadcastLoop() error {
	for {
		select {
		case <-s.stopCh:
			return nil
		case segments := <-s.broadcastCh:
			for _, seg := range segments {
				s.reg.ForEachWithDatagram(func(sess *registry.Session) {
					if _, err := s.udpConn.WriteToUDP(seg, sess.UDPAddr()); err != nil {
						s.log.Debug("datagram send failed",
							logger.Field{Key: "id", Value: sess.ID()},
							logger.Field{Key: "error", Value: err.Error()})
					}
				})
			}
		}
	}
}

// fetchFormat asks the capture engine for the serialized format descriptor.
func (s *Server) fetchFormat(_ context.Context) ([]byte, error) {
	return s.engine.GetFormatBinary()
}

var _ AudioSink = (*Server)(nil)

// heartbeatExpired reports whether a session has been silent past the
// configured timeout as of now.
func (s *Server) heartbeatExpired(sess *registry.Session, now time.Time) bool {
	return now.Sub(sess.LastHeartbeat()) > s.cfg.HeartbeatTimeout
}
