package ingest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/violation.report/internal/traffic"
)

// UDPSourceConfig configures the UDP frame listener.
type UDPSourceConfig struct {
	Address     string        // listen address, e.g. ":9101"
	RcvBuf      int           // socket receive buffer; 0 keeps the OS default
	LogInterval time.Duration // stats log cadence; 0 means one minute
}

// UDPSource receives frame envelopes as JSON datagrams, one frame per
// datagram. This mirrors the edge detector's push feed: datagrams from one
// camera arrive in capture order, and a dropped datagram is a skipped frame,
// not a reordering.
type UDPSource struct {
	config  UDPSourceConfig
	handler FrameHandler

	mu   sync.Mutex
	conn *net.UDPConn

	packets   atomic.Int64
	malformed atomic.Int64
	rejected  atomic.Int64
}

// NewUDPSource builds a listener delivering frames to handler.
func NewUDPSource(config UDPSourceConfig, handler FrameHandler) *UDPSource {
	if config.LogInterval == 0 {
		config.LogInterval = time.Minute
	}
	return &UDPSource{config: config, handler: handler}
}

// Addr returns the bound address once Start has opened the socket, nil
// before then. Tests use it to find the ephemeral port.
func (s *UDPSource) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Start listens until ctx is cancelled. Malformed datagrams and handler
// rejections are counted and logged, never fatal.
func (s *UDPSource) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %q: %w", s.config.Address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", s.config.Address, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	if s.config.RcvBuf > 0 {
		if err := conn.SetReadBuffer(s.config.RcvBuf); err != nil {
			traffic.Opsf("failed to set UDP receive buffer to %d: %v", s.config.RcvBuf, err)
		}
	}
	traffic.Opsf("UDP frame listener started on %s", conn.LocalAddr())

	go s.logStats(ctx)

	buffer := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			traffic.Opsf("UDP frame listener stopping")
			return ctx.Err()
		default:
			// Short read deadline so cancellation is noticed promptly.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				traffic.Opsf("UDP read error: %v", err)
				continue
			}
			s.packets.Add(1)
			s.handleDatagram(buffer[:n])
		}
	}
}

func (s *UDPSource) handleDatagram(data []byte) {
	env, err := DecodeFrame(data)
	if err != nil {
		s.malformed.Add(1)
		traffic.Diagf("dropping malformed datagram: %v", err)
		return
	}
	if err := s.handler.Process(env.StreamID, env.FrameRate, env.Frame()); err != nil {
		s.rejected.Add(1)
		traffic.Diagf("frame %d on stream %s rejected: %v", env.FrameIndex, env.StreamID, err)
	}
}

func (s *UDPSource) logStats(ctx context.Context) {
	ticker := time.NewTicker(s.config.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			traffic.Diagf("udp ingest: packets=%d malformed=%d rejected=%d",
				s.packets.Load(), s.malformed.Load(), s.rejected.Load())
		}
	}
}
