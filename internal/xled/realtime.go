package xled

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// RealtimePort is the fixed UDP port the device listens on for frames.
const RealtimePort = 7777

// realtimeHeader marks the datagram protocol version.
const realtimeHeader = 0x01

// maxRealtimeLEDs is a wire-format ceiling: the datagram carries the LED
// count in a single byte, so installations beyond 255 LEDs cannot be
// driven over this path and must use movie upload instead.
const maxRealtimeLEDs = 255

// Streamer transmits single visual frames to the device over UDP.
// Delivery is fire-and-forget: no acknowledgment, no retry, frames may
// be dropped or reordered by the network. Frame pacing is left to the
// caller.
type Streamer struct {
	client *Client
	conn   net.Conn

	// writeDeadline bounds a single datagram send so an animation loop
	// cannot block indefinitely on a stalled socket. Zero disables it.
	writeDeadline time.Duration
}

// StreamerOption customizes a Streamer.
type StreamerOption func(*streamerConfig)

type streamerConfig struct {
	addr          string
	writeDeadline time.Duration
}

// WithRealtimeAddress overrides the destination address, used by tests.
func WithRealtimeAddress(addr string) StreamerOption {
	return func(c *streamerConfig) { c.addr = addr }
}

// WithWriteDeadline bounds each datagram send.
func WithWriteDeadline(d time.Duration) StreamerOption {
	return func(c *streamerConfig) { c.writeDeadline = d }
}

// NewStreamer opens a UDP socket towards the device realtime endpoint.
func NewStreamer(client *Client, opts ...StreamerOption) (*Streamer, error) {
	cfg := streamerConfig{
		addr: net.JoinHostPort(client.Host(), strconv.Itoa(RealtimePort)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := net.Dial("udp", cfg.addr)
	if err != nil {
		return nil, &TransportError{Op: "dial realtime", Err: err}
	}
	client.logger.Debug().Str("addr", cfg.addr).Msg("Realtime stream ready")

	return &Streamer{
		client:        client,
		conn:          conn,
		writeDeadline: cfg.writeDeadline,
	}, nil
}

// SendFrame encodes the frame into a single datagram and sends it. The
// frame length must match the device LED count exactly, checked before
// any network I/O.
func (s *Streamer) SendFrame(ctx context.Context, frame Frame) error {
	n, err := s.client.Length(ctx)
	if err != nil {
		return err
	}
	if n > maxRealtimeLEDs {
		return fmt.Errorf("device has %d leds, realtime datagrams address at most %d", n, maxRealtimeLEDs)
	}
	if len(frame) != n {
		return &FrameLengthError{Got: len(frame), Want: n}
	}

	token, err := s.client.Session().DecodedToken(ctx)
	if err != nil {
		return err
	}

	if s.writeDeadline > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeDeadline)); err != nil {
			return &TransportError{Op: "send frame", Err: err}
		}
	}
	if _, err := s.conn.Write(encodeDatagram(token, n, frame)); err != nil {
		return &TransportError{Op: "send frame", Err: err}
	}
	return nil
}

// Close closes the UDP socket.
func (s *Streamer) Close() error {
	return s.conn.Close()
}

// encodeDatagram builds the realtime wire format: a version byte, the
// raw (base64-decoded) token, the LED count as one byte, then the RGB
// payload in LED order.
func encodeDatagram(token []byte, ledCount int, frame Frame) []byte {
	buf := make([]byte, 0, 2+len(token)+3*len(frame))
	buf = append(buf, realtimeHeader)
	buf = append(buf, token...)
	buf = append(buf, byte(ledCount))
	buf = append(buf, frame.Encode()...)
	return buf
}
