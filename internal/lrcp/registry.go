package lrcp

import (
	"net"
	"sync"
	"time"

	"github.com/m-lab/protocol-challenges/internal/config"
	"github.com/m-lab/protocol-challenges/internal/metrics"
)

// sweepInterval is how often Registry.Sweep should be called by the
// owning server; declared as a var so tests can shrink it.
var sweepInterval = 5 * time.Second

// Registry indexes live sessions by session id, creates sessions on the
// first connect, and reaps expired or closed ones. It is the single
// owner of session lifecycle, guarded by one mutex held only for the
// short lookups/inserts described in spec §5.
type Registry struct {
	send SendFunc

	mu       sync.Mutex
	sessions map[uint32]*Session
}

// NewRegistry returns an empty registry that transmits outbound
// datagrams through send.
func NewRegistry(send SendFunc) *Registry {
	return &Registry{
		send:     send,
		sessions: make(map[uint32]*Session),
	}
}

// Dispatch decodes raw and routes it to the appropriate session,
// creating one on a valid connect for an unseen sid. Malformed datagrams
// are dropped silently, per spec §4.1/§7.
func (r *Registry) Dispatch(raw []byte, addr net.Addr) {
	f, err := Decode(raw)
	if err != nil {
		metrics.LRCPFramesDropped.WithLabelValues(dropReason(err)).Inc()
		config.Debugf("lrcp: dropped datagram from %s: %v", addr, err)
		return
	}
	metrics.LRCPFrames.WithLabelValues(f.Kind.String(), "rx").Inc()

	if f.Kind == Connect {
		r.handleConnect(f.SID, addr)
		return
	}

	s := r.lookup(f.SID)
	if s == nil {
		// Unknown sid whose type is not connect: reply close without
		// creating a session.
		r.send(addr, Encode(Frame{Kind: Close, SID: f.SID}))
		metrics.LRCPFrames.WithLabelValues(Close.String(), "tx").Inc()
		return
	}

	switch f.Kind {
	case Data:
		s.HandleData(addr, f.Pos, f.Data)
	case Ack:
		s.HandleAck(addr, f.Pos)
	case Close:
		s.HandleClose(addr)
	}
}

func (r *Registry) lookup(sid uint32) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sid]
}

func (r *Registry) handleConnect(sid uint32, addr net.Addr) {
	r.mu.Lock()
	s, ok := r.sessions[sid]
	if !ok {
		s = newSession(sid, addr, r.send)
		r.sessions[sid] = s
		config.Debugf("lrcp: session %s (sid=%d) opened from %s", s.name, sid, addr)
	}
	r.mu.Unlock()
	s.HandleConnect(addr)
}

// Sweep removes sessions that are closed, and force-closes (silently)
// any session that has been idle past idleTimeout. Intended to be
// called periodically (every sweepInterval) by the owning server.
func (r *Registry) Sweep() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, s := range r.sessions {
		if s.IsClosed() {
			delete(r.sessions, sid)
			continue
		}
		if s.IdleFor(now) > idleTimeout {
			s.ForceClose("idle")
			delete(r.sessions, sid)
		}
	}
}

// Len reports the number of sessions currently tracked, for tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func dropReason(err error) string {
	switch err {
	case ErrTooLarge:
		return "too_large"
	case ErrBadDelimiters:
		return "bad_delimiters"
	case ErrUnknownType:
		return "unknown_type"
	case ErrFieldCount:
		return "field_count"
	case ErrBadInteger:
		return "bad_integer"
	case ErrBadEscape:
		return "bad_escape"
	case ErrUnescapedSlash:
		return "unescaped_slash"
	default:
		return "other"
	}
}
