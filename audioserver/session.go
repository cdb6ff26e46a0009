package audioserver

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cyberinferno/audiocast/logger"
	"github.com/cyberinferno/audiocast/protocol"
)

// handleSession runs the control channel state machine for one connection.
// Commands arrive as 4 byte little endian words; an unknown word poisons the
// stream, so the session is terminated rather than resynchronized.
func (s *Server) handleSession(c *controlConn) {
	defer s.terminate(c)

	for {
		cmd, err := protocol.ReadCmd(c)
		if err != nil {
			if !errors.Is(err, io.EOF) && !isClosedErr(err) {
				s.log.Warn("control read failed",
					logger.Field{Key: "remote", Value: c.remote()},
					logger.Field{Key: "error", Value: err.Error()})
			}
			return
		}

		switch cmd {
		case protocol.CmdGetFormat:
			if !s.sendFormat(c) {
				return
			}
		case protocol.CmdStartPlay:
			if !s.startPlay(c) {
				return
			}
		case protocol.CmdHeartbeat:
			if sess, found := s.reg.Get(c); found {
				sess.TouchHeartbeat()
			}
		case protocol.CmdNone:
			// Keepalive probe from a peer that has nothing to say.
		default:
			s.log.Warn("unknown command; terminating session",
				logger.Field{Key: "remote", Value: c.remote()},
				logger.Field{Key: "cmd", Value: uint32(cmd)})
			return
		}
	}
}

// sendFormat serves the GET_FORMAT response. The descriptor comes from the
// format cache so a burst of connecting clients costs a single engine fetch.
func (s *Server) sendFormat(c *controlConn) bool {
	blob, err := s.formats.GetOrFetch(context.Background(), formatCacheKey, s.cfg.FormatCacheTTL, s.fetchFormat)
	if err != nil {
		s.log.Error("format fetch failed",
			logger.Field{Key: "remote", Value: c.remote()},
			logger.Field{Key: "error", Value: err.Error()})
		return false
	}

	if err := protocol.WriteFormatResponse(c, blob); err != nil {
		s.log.Warn("format response write failed",
			logger.Field{Key: "remote", Value: c.remote()},
			logger.Field{Key: "error", Value: err.Error()})
		return false
	}

	return true
}

// startPlay admits the connection into the playing set, acknowledges with the
// assigned session id and spawns the heartbeat supervisor.
func (s *Server) startPlay(c *controlConn) bool {
	id := s.reg.Add(c)
	if id == 0 {
		return false
	}

	if err := protocol.WriteStartPlayResponse(c, id); err != nil {
		s.log.Warn("start play response write failed",
			logger.Field{Key: "id", Value: id},
			logger.Field{Key: "error", Value: err.Error()})
		return false
	}

	s.log.Info("session playing",
		logger.Field{Key: "id", Value: id},
		logger.Field{Key: "remote", Value: c.remote()})

	s.sessWG.Add(1)
	go func() {
		defer s.sessWG.Done()
		s.superviseHeartbeat(c, id)
	}()

	return true
}

// terminate tears down a session's control channel and registry entry. Both
// the session task and the heartbeat supervisor call it; the work happens
// once.
func (s *Server) terminate(c *controlConn) {
	c.shutdown()
	if s.reg.Remove(c) {
		s.log.Info("session terminated", logger.Field{Key: "remote", Value: c.remote()})
	}
}

// superviseHeartbeat probes the peer on the configured cadence and evicts the
// session once it has been silent past the timeout. The probe is a HEARTBEAT
// command word on the control channel. Liveness is judged only by the
// HEARTBEAT words the peer sends, which the session task records.
func (s *Server) superviseHeartbeat(c *controlConn, id uint32) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			sess, found := s.reg.FindByID(id)
			if !found {
				c.shutdown()
				return
			}

			if s.heartbeatExpired(sess, now) {
				s.log.Info("session heartbeat timed out",
					logger.Field{Key: "id", Value: id},
					logger.Field{Key: "silent_for", Value: now.Sub(sess.LastHeartbeat()).String()})
				s.terminate(c)
				return
			}

			if err := protocol.WriteCmd(c, protocol.CmdHeartbeat); err != nil {
				s.terminate(c)
				return
			}
		}
	}
}

// isClosedErr reports whether err is the local side closing the socket.
func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
