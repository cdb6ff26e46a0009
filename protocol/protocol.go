// Package protocol defines the wire protocol shared by the broadcast server
// and client: the command words exchanged on the reliable control channel and
// the single registration datagram sent on the UDP channel.
//
// All integers on the wire are unsigned 32-bit little-endian. Multi-field
// responses are packed into a single Write call so the peer observes atomic
// framing at the stream level.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Cmd is the 32-bit command word carried on the control channel.
type Cmd uint32

// Control channel command words. Values outside this set are a protocol error.
const (
	CmdNone Cmd = iota
	CmdGetFormat
	CmdStartPlay
	CmdHeartbeat
)

const (
	// MTU is the assumed path MTU for the audio datagram channel.
	MTU = 1492

	// MaxDatagramPayload is the largest audio payload that fits a single
	// datagram after the IPv4 (20 byte) and UDP (8 byte) headers.
	MaxDatagramPayload = MTU - 20 - 8

	// SessionIDSize is the exact size of a UDP registration datagram.
	SessionIDSize = 4
)

// ErrUnknownCommand reports a command word outside the defined namespace.
var ErrUnknownCommand = errors.New("protocol: unknown command")

// ErrBadRegistration reports a UDP registration datagram of the wrong size.
var ErrBadRegistration = errors.New("protocol: registration datagram must be exactly 4 bytes")

// String returns a human-readable name for the command word.
func (c Cmd) String() string {
	switch c {
	case CmdNone:
		return "NONE"
	case CmdGetFormat:
		return "GET_FORMAT"
	case CmdStartPlay:
		return "START_PLAY"
	case CmdHeartbeat:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(c))
	}
}

// Known reports whether c is one of the defined command words.
func (c Cmd) Known() bool {
	return c <= CmdHeartbeat
}

// ReadCmd reads one command word from r. The read either fully completes or
// fails; a short read is an error.
//
// Parameters:
//   - r: The stream to read from
//
// Returns:
//   - The command word, or an error if the read failed
func ReadCmd(r io.Reader) (Cmd, error) {
	v, err := ReadUint32(r)
	if err != nil {
		return CmdNone, err
	}

	return Cmd(v), nil
}

// WriteCmd writes a single command word to w as one 4-byte write.
//
// Parameters:
//   - w: The stream to write to
//   - c: The command word to send
//
// Returns:
//   - An error if the write failed
func WriteCmd(w io.Writer, c Cmd) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(c))
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads one little-endian uint32 from r, fully or not at all.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteFormatResponse writes the GET_FORMAT response (cmd, size, blob) to w
// as a single write so the three fields cannot interleave with other traffic
// on a shared connection.
//
// Parameters:
//   - w: The stream to write to
//   - blob: The opaque audio format descriptor
//
// Returns:
//   - An error if the write failed
func WriteFormatResponse(w io.Writer, blob []byte) error {
	buf := make([]byte, 8+len(blob))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(CmdGetFormat))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(blob)))
	copy(buf[8:], blob)
	_, err := w.Write(buf)
	return err
}

// WriteStartPlayResponse writes the START_PLAY response (cmd, id) to w as a
// single write.
//
// Parameters:
//   - w: The stream to write to
//   - id: The session ID assigned to the peer
//
// Returns:
//   - An error if the write failed
func WriteStartPlayResponse(w io.Writer, id uint32) error {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(CmdStartPlay))
	binary.LittleEndian.PutUint32(buf[4:8], id)
	_, err := w.Write(buf[:])
	return err
}

// EncodeSessionID encodes a session ID as the 4-byte UDP registration payload.
func EncodeSessionID(id uint32) []byte {
	buf := make([]byte, SessionIDSize)
	binary.LittleEndian.PutUint32(buf, id)
	return buf
}

// DecodeSessionID decodes a UDP registration datagram. The payload must be
// exactly 4 bytes; anything else returns ErrBadRegistration.
func DecodeSessionID(b []byte) (uint32, error) {
	if len(b) != SessionIDSize {
		return 0, ErrBadRegistration
	}

	return binary.LittleEndian.Uint32(b), nil
}
