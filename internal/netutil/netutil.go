// Package netutil holds small socket-tuning helpers shared by the LRCP
// and Speed Daemon listeners. It plays the same role the unsafe/unix
// plumbing in netlink/netlink_linux.go plays for netlink sockets,
// narrowed down to the handful of setsockopt calls a plain listening
// socket actually needs.
package netutil

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenConfig returns a net.ListenConfig whose Control callback sets
// SO_REUSEADDR, so a restarted server can rebind the same port while
// a previous connection's sockets are still draining in TIME_WAIT.
func ListenConfig() *net.ListenConfig {
	return &net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
}

// ListenPacket opens a UDP socket on addr with SO_REUSEADDR and a widened
// receive buffer, matching the tuning LRCP needs under bursty retransmits.
func ListenPacket(ctx context.Context, network, addr string) (net.PacketConn, error) {
	lc := ListenConfig()
	pc, err := lc.ListenPacket(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if uc, ok := pc.(*net.UDPConn); ok {
		// Ignore failures: the default buffer size still works, just
		// with a higher chance of drops under load, which LRCP already
		// tolerates by design.
		_ = uc.SetReadBuffer(4 << 20)
	}
	return pc, nil
}

// Listen opens a TCP listener on addr with SO_REUSEADDR set.
func Listen(ctx context.Context, network, addr string) (net.Listener, error) {
	lc := ListenConfig()
	return lc.Listen(ctx, network, addr)
}
