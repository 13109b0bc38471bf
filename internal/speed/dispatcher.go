package speed

import (
	"log"
	"sync"

	"github.com/m-lab/protocol-challenges/internal/metrics"
)

// Router maps roads to the dispatcher connection currently responsible
// for them, and queues tickets for roads that have no dispatcher yet.
// A road's dispatcher may be replaced at any time by a later
// registration; replacement does not redeliver tickets already sent to
// the road's previous dispatcher.
type Router struct {
	mu          sync.Mutex
	dispatchers map[uint16]*connection
	pending     map[uint16][]Ticket
	pendingLen  int
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{
		dispatchers: make(map[uint16]*connection),
		pending:     make(map[uint16][]Ticket),
	}
}

// RegisterDispatcher binds c as the dispatcher for roads, replacing any
// prior dispatcher for those roads, and flushes each road's pending
// queue to c in FIFO order.
func (r *Router) RegisterDispatcher(c *connection, roads []uint16) {
	r.mu.Lock()
	toFlush := make(map[uint16][]Ticket, len(roads))
	for _, road := range roads {
		r.dispatchers[road] = c
		if q := r.pending[road]; len(q) > 0 {
			toFlush[road] = q
			delete(r.pending, road)
			r.pendingLen -= len(q)
		}
	}
	r.setPendingGauge()
	r.mu.Unlock()

	metrics.SpeedDispatcherRegistrations.Inc()
	for _, road := range roads {
		for _, t := range toFlush[road] {
			r.deliver(c, t)
		}
	}
}

// Unregister removes c as the dispatcher for roads, if it's still the
// current one. Called when a dispatcher connection closes.
func (r *Router) Unregister(c *connection, roads []uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, road := range roads {
		if r.dispatchers[road] == c {
			delete(r.dispatchers, road)
		}
	}
}

// Enqueue routes t to its road's current dispatcher, or holds it on the
// road's pending queue if no dispatcher is registered yet.
func (r *Router) Enqueue(t Ticket) {
	r.mu.Lock()
	d, ok := r.dispatchers[t.Road]
	if !ok {
		r.pending[t.Road] = append(r.pending[t.Road], t)
		r.pendingLen++
		r.setPendingGauge()
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.deliver(d, t)
}

// deliver writes t to c. A failed write means c's connection is dead:
// the dispatcher is dropped from every road it covers and t is put
// back at the front of its road's pending queue for the next
// dispatcher to pick up.
func (r *Router) deliver(c *connection, t Ticket) {
	if err := c.write(EncodeTicket(t)); err != nil {
		log.Println("speed: ticket delivery failed, requeuing:", err)
		r.mu.Lock()
		for road, d := range r.dispatchers {
			if d == c {
				delete(r.dispatchers, road)
			}
		}
		r.pending[t.Road] = append([]Ticket{t}, r.pending[t.Road]...)
		r.pendingLen++
		r.setPendingGauge()
		r.mu.Unlock()
		return
	}
	metrics.SpeedTicketsIssued.Inc()
}

// setPendingGauge must be called with r.mu held.
func (r *Router) setPendingGauge() {
	metrics.SpeedTicketsPending.Set(float64(r.pendingLen))
}
