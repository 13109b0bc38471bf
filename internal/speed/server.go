package speed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/m-lab/protocol-challenges/internal/config"
	"github.com/m-lab/protocol-challenges/internal/metrics"
	"github.com/m-lab/protocol-challenges/internal/netutil"
)

// Server accepts Speed Daemon connections, dispatches their messages
// through a shared Router and Engine, and tears down cleanly on
// protocol violations.
type Server struct {
	listener net.Listener
	router   *Router
	engine   *Engine
	nextID   uint64
}

// Listen opens a TCP listener on addr (host:port) and returns a
// ready-to-run Server. sink, if non-nil, receives every issued ticket
// for audit logging.
func Listen(ctx context.Context, addr string, sink TicketSink) (*Server, error) {
	ln, err := netutil.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	router := NewRouter()
	return &Server{
		listener: ln,
		router:   router,
		engine:   NewEngine(router, sink),
	}, nil
}

// Addr returns the listener's local address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close closes the listening socket, unblocking Serve.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts connections until ctx is canceled or the listener is
// closed, handling each on its own goroutine. It returns nil on a
// clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		id := strconv.FormatUint(atomic.AddUint64(&s.nextID, 1), 10)
		metrics.SpeedConnectionsActive.WithLabelValues("unbound").Inc()
		config.Debugf("speed: connection %s accepted from %s", id, conn.RemoteAddr())
		go s.handle(newConnection(id, conn))
	}
}

// handle runs a connection's entire lifetime: reading messages until
// a protocol error or disconnect, dispatching each to the role-specific
// handler, and cleaning up on exit.
func (s *Server) handle(c *connection) {
	defer s.teardown(c)

	dec := NewDecoder(c.out.conn)
	for {
		msg, err := dec.ReadClientMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				metrics.SpeedFrameErrors.WithLabelValues("decode").Inc()
				c.write(EncodeError(err.Error()))
			}
			return
		}
		if err := s.dispatch(c, msg); err != nil {
			metrics.SpeedFrameErrors.WithLabelValues("protocol").Inc()
			c.write(EncodeError(err.Error()))
			return
		}
	}
}

func (s *Server) dispatch(c *connection, msg interface{}) error {
	switch m := msg.(type) {
	case IAmCamera:
		if err := c.bindCamera(m); err != nil {
			return err
		}
		metrics.SpeedConnectionsActive.WithLabelValues("unbound").Dec()
		metrics.SpeedConnectionsActive.WithLabelValues("camera").Inc()
		config.Debugf("speed: connection %s bound as camera road=%d mile=%d limit=%d", c.id, m.Road, m.Mile, m.Limit)
		return nil

	case IAmDispatcher:
		if err := c.bindDispatcher(m.Roads); err != nil {
			return err
		}
		metrics.SpeedConnectionsActive.WithLabelValues("unbound").Dec()
		metrics.SpeedConnectionsActive.WithLabelValues("dispatcher").Inc()
		config.Debugf("speed: connection %s bound as dispatcher for roads=%v", c.id, m.Roads)
		s.router.RegisterDispatcher(c, m.Roads)
		return nil

	case WantHeartbeat:
		config.Debugf("speed: connection %s requested heartbeat every %d deciseconds", c.id, m.Deciseconds)
		return c.setHeartbeat(m.Deciseconds)

	case Plate:
		role, camera := c.roleAndCamera()
		if role != RoleCamera {
			return fmt.Errorf("%w", ErrNotCamera)
		}
		config.Debugf("speed: connection %s reported plate %s at mile=%d ts=%d", c.id, m.Plate, camera.Mile, m.Timestamp)
		s.engine.Observe(Observation{
			Plate:     m.Plate,
			Road:      camera.Road,
			Mile:      camera.Mile,
			Limit:     camera.Limit,
			Timestamp: m.Timestamp,
		})
		return nil

	default:
		return fmt.Errorf("speed: unhandled message %T", msg)
	}
}

func (s *Server) teardown(c *connection) {
	role, roads := c.roleAndRoads()
	switch role {
	case RoleUnbound:
		metrics.SpeedConnectionsActive.WithLabelValues("unbound").Dec()
	case RoleCamera:
		metrics.SpeedConnectionsActive.WithLabelValues("camera").Dec()
	case RoleDispatcher:
		metrics.SpeedConnectionsActive.WithLabelValues("dispatcher").Dec()
		s.router.Unregister(c, roads)
	}
	c.close()
	log.Println("speed: connection closed:", c.id)
}
