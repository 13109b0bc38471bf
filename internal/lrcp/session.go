package lrcp

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/m-lab/protocol-challenges/internal/config"
	"github.com/m-lab/protocol-challenges/internal/metrics"
	"github.com/m-lab/protocol-challenges/internal/streamid"
)

// Timing constants from the spec. Declared as vars, not consts, so tests
// can shrink them rather than sleeping for the real durations.
var (
	retransmitInterval = 3 * time.Second
	idleTimeout        = 60 * time.Second
)

// SendFunc transmits an already-encoded datagram to addr. It must not
// block for long: the registry's read loop and every session's
// retransmit goroutine call through it.
type SendFunc func(addr net.Addr, raw []byte)

type sessionState int

const (
	stateOpen sessionState = iota
	stateClosed
)

// Session is the per-SID reliability state machine described in spec
// §3.1/§4.2: inbound sequence acknowledgement, outbound transmit buffer,
// retransmission timer, and idle expiry. A session's id is immutable for
// its lifetime; its peer address may change across calls (roaming), so
// it is guarded by the same mutex as the rest of the session's state.
type Session struct {
	sid  uint32
	name string // for log lines only, see internal/streamid

	send SendFunc

	mu         sync.Mutex
	addr       net.Addr
	state      sessionState
	rcvAcked   uint32
	sendBuffer []byte
	sendAcked  uint32
	lastRx     time.Time

	app *Reverser

	closeOnce      sync.Once
	stopRetransmit chan struct{}
}

// newSession creates a session already in the Open state: per spec, a
// session is born from the first connect frame bearing a previously
// unseen sid, with rcv_acked=0 and send_acked=0.
func newSession(sid uint32, addr net.Addr, send SendFunc) *Session {
	s := &Session{
		sid:            sid,
		name:           streamid.ForCookie(uint64(sid)),
		send:           send,
		addr:           addr,
		state:          stateOpen,
		lastRx:         time.Now(),
		app:            NewReverser(),
		stopRetransmit: make(chan struct{}),
	}
	metrics.LRCPSessionsActive.Inc()
	metrics.LRCPSessionsCreated.Inc()
	go s.retransmitLoop()
	return s
}

func (s *Session) sendFrame(f Frame) {
	metrics.LRCPFrames.WithLabelValues(f.Kind.String(), "tx").Inc()
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()
	s.send(addr, Encode(f))
}

// HandleConnect processes a connect frame, whether it created this
// session or arrived on an already-open one. Per spec, the reply is
// always ack/SID/0, even on a repeated connect after data has already
// flowed.
func (s *Session) HandleConnect(addr net.Addr) {
	s.mu.Lock()
	closed := s.state == stateClosed
	if !closed {
		s.addr = addr
		s.lastRx = time.Now()
	}
	s.mu.Unlock()
	if closed {
		return
	}
	s.sendFrame(Frame{Kind: Ack, SID: s.sid, Pos: 0})
}

// HandleData processes an inbound data frame per spec §4.2.
func (s *Session) HandleData(addr net.Addr, pos uint32, payload []byte) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.addr = addr
	s.lastRx = time.Now()

	switch {
	case pos > s.rcvAcked:
		// A gap: the peer is ahead of what we've accepted contiguously.
		// Two identical acks signal loss to the peer; nothing is buffered.
		ack := s.rcvAcked
		s.mu.Unlock()
		config.Debugf("lrcp: session %s (sid=%d) gap: got pos=%d, rcv_acked=%d", s.name, s.sid, pos, ack)
		dup := Frame{Kind: Ack, SID: s.sid, Pos: ack}
		s.sendFrame(dup)
		s.sendFrame(dup)

	case pos < s.rcvAcked:
		// Fully duplicate or overlapping-past data: re-ack our real
		// position and resend whatever of our own outbound stream is
		// still unacknowledged, in case the peer's view of it was lost.
		ack := s.rcvAcked
		s.mu.Unlock()
		config.Debugf("lrcp: session %s (sid=%d) duplicate data: got pos=%d, rcv_acked=%d", s.name, s.sid, pos, ack)
		s.sendFrame(Frame{Kind: Ack, SID: s.sid, Pos: ack})
		s.resendUnacked()

	default: // pos == s.rcvAcked
		s.rcvAcked += uint32(len(payload))
		newAck := s.rcvAcked
		produced := s.app.Write(payload)
		var startPos uint32
		var toSend []byte
		if len(produced) > 0 {
			startPos = uint32(len(s.sendBuffer))
			s.sendBuffer = append(s.sendBuffer, produced...)
			toSend = append([]byte(nil), produced...)
		}
		s.mu.Unlock()

		s.sendFrame(Frame{Kind: Ack, SID: s.sid, Pos: newAck})
		if len(toSend) > 0 {
			s.transmitChunks(startPos, toSend)
		}
	}
}

// HandleAck processes an inbound ack frame per spec §4.2.
func (s *Session) HandleAck(addr net.Addr, pos uint32) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.addr = addr
	s.lastRx = time.Now()

	if pos > uint32(len(s.sendBuffer)) {
		s.state = stateClosed
		s.mu.Unlock()
		s.sendFrame(Frame{Kind: Close, SID: s.sid})
		s.teardown("misbehaving")
		return
	}
	if pos > s.sendAcked {
		s.sendAcked = pos
	}
	s.mu.Unlock()
}

// HandleClose processes an inbound close frame per spec §4.2.
func (s *Session) HandleClose(addr net.Addr) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.addr = addr
	s.lastRx = time.Now()
	s.state = stateClosed
	s.mu.Unlock()

	s.sendFrame(Frame{Kind: Close, SID: s.sid})
	s.teardown("closed_by_peer")
}

// ForceClose tears the session down without sending a farewell frame,
// for the idle-timeout path, which is specified as silent.
func (s *Session) ForceClose(reason string) {
	s.mu.Lock()
	already := s.state == stateClosed
	s.state = stateClosed
	s.mu.Unlock()
	if already {
		return
	}
	s.teardown(reason)
}

// IsClosed reports whether the session has entered its terminal state.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateClosed
}

// IdleFor reports how long it has been since the last inbound frame.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastRx)
}

func (s *Session) teardown(reason string) {
	s.closeOnce.Do(func() {
		close(s.stopRetransmit)
		metrics.LRCPSessionsActive.Dec()
		metrics.LRCPSessionsExpired.WithLabelValues(reason).Inc()
		log.Printf("lrcp: session %s (sid=%d) closed: %s", s.name, s.sid, reason)
	})
}

// resendUnacked resends the unacknowledged suffix of the outbound
// stream, used both by the retransmit timer and by the
// overlapping-data-frame path.
func (s *Session) resendUnacked() bool {
	s.mu.Lock()
	if s.state == stateClosed || s.sendAcked >= uint32(len(s.sendBuffer)) {
		s.mu.Unlock()
		return false
	}
	startPos := s.sendAcked
	suffix := append([]byte(nil), s.sendBuffer[startPos:]...)
	s.mu.Unlock()
	s.transmitChunks(startPos, suffix)
	return true
}

// transmitChunks splits data into pieces of at most MaxPayload bytes,
// shortened further where escaping would grow them past the room left
// by the framing, and sends each as its own Data frame, so every
// outbound datagram stays within MaxDatagram once framed and escaped.
func (s *Session) transmitChunks(startPos uint32, data []byte) {
	const room = MaxDatagram - len("/data/2147483648/4294967295//")
	for len(data) > 0 {
		n, size := 0, 0
		for n < len(data) && n < MaxPayload {
			w := 1
			if data[n] == '/' || data[n] == '\\' {
				w = 2
			}
			if size+w > room {
				break
			}
			size += w
			n++
		}
		s.sendFrame(Frame{Kind: Data, SID: s.sid, Pos: startPos, Data: data[:n]})
		startPos += uint32(n)
		data = data[n:]
	}
}

// retransmitLoop resends the unacknowledged suffix of the send buffer
// every retransmitInterval while the session is open, and observes the
// close flag on every wake so it terminates promptly once the session
// is torn down.
func (s *Session) retransmitLoop() {
	ticker := time.NewTicker(retransmitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopRetransmit:
			return
		case <-ticker.C:
			if s.IsClosed() {
				return
			}
			if s.resendUnacked() {
				metrics.LRCPRetransmits.Inc()
				config.Debugf("lrcp: session %s (sid=%d) retransmitted unacked data", s.name, s.sid)
			}
		}
	}
}
