package lrcp

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/m-lab/protocol-challenges/internal/netutil"
)

// Server owns the UDP socket and the session registry. Per spec §5, all
// inbound datagrams are serialized into per-session handling in the
// order received: Serve runs a single read loop, not one goroutine per
// datagram.
type Server struct {
	conn     net.PacketConn
	Registry *Registry
}

// Listen opens a UDP socket on addr (host:port) and returns a
// ready-to-run Server.
func Listen(ctx context.Context, addr string) (*Server, error) {
	conn, err := netutil.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{conn: conn}
	s.Registry = NewRegistry(s.sendTo)
	return s, nil
}

func (s *Server) sendTo(addr net.Addr, raw []byte) {
	if _, err := s.conn.WriteTo(raw, addr); err != nil {
		log.Println("lrcp: write error:", err)
	}
}

// Addr returns the socket's local address.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Close closes the underlying socket, unblocking Serve.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Serve runs the read loop and the session sweeper until ctx is
// canceled or the socket is closed. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()
	go s.sweepLoop(ctx)

	// One byte of headroom over MaxDatagram so a true oversize datagram
	// reads back with n > MaxDatagram instead of being silently
	// truncated by ReadFrom and decoded as a shorter, corrupted frame.
	buf := make([]byte, MaxDatagram+1)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		s.Registry.Dispatch(raw, addr)
	}
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Registry.Sweep()
		}
	}
}
