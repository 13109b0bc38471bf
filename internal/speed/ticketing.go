package speed

import (
	"math"
	"sort"
	"sync"

	"github.com/m-lab/protocol-challenges/internal/metrics"
)

// speedToleranceMPH is added to a road's posted limit before a pair of
// observations is considered a violation, to absorb floating rounding
// noise in the distance/time computation.
const speedToleranceMPH = 0.3

const secondsPerDay = 86400

// sighting is one observation of a plate at a mile marker, timestamped
// in seconds.
type sighting struct {
	Mile      uint16
	Timestamp uint32
}

type obsKey struct {
	Plate string
	Road  uint16
}

// Observation is a single camera report, carrying the camera's fixed
// road/mile/limit alongside the plate and timestamp.
type Observation struct {
	Plate     string
	Road      uint16
	Mile      uint16
	Limit     uint16
	Timestamp uint32
}

// TicketSink receives every ticket this Engine decides to issue, in
// addition to routing it to a dispatcher. It's used to feed an optional
// audit log.
type TicketSink func(Ticket)

// Engine holds the per-plate/per-road observation history and the set
// of UTC days already ticketed per plate, and decides when a new
// observation produces a ticket. It is guarded by a single mutex in the
// style of a small in-memory cache: correctness over cleverness, since
// ticket decisions must be linearized per plate.
type Engine struct {
	mu           sync.Mutex
	observations map[obsKey][]sighting
	ticketDays   map[string]map[int64]bool

	router *Router
	sink   TicketSink
}

// NewEngine returns an Engine that routes issued tickets through
// router. sink may be nil.
func NewEngine(router *Router, sink TicketSink) *Engine {
	return &Engine{
		observations: make(map[obsKey][]sighting),
		ticketDays:   make(map[string]map[int64]bool),
		router:       router,
		sink:         sink,
	}
}

// Observe records a new camera sighting and issues any tickets it
// triggers. Per the day-bucketed re-scan rule, every adjacent pair in
// the plate/road's sorted sighting history is re-examined on each call,
// not just the newly-appended pair: a sighting can arrive out of
// timestamp order relative to ones already on file.
func (e *Engine) Observe(obs Observation) {
	var issued []Ticket

	e.mu.Lock()
	key := obsKey{Plate: obs.Plate, Road: obs.Road}
	list := append(e.observations[key], sighting{Mile: obs.Mile, Timestamp: obs.Timestamp})
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp < list[j].Timestamp })
	e.observations[key] = list

	for i := 0; i+1 < len(list); i++ {
		a, b := list[i], list[i+1]
		dt := int64(b.Timestamp) - int64(a.Timestamp)
		if dt <= 0 {
			continue
		}
		dist := math.Abs(float64(int(b.Mile) - int(a.Mile)))
		speedMPH := dist * 3600 / float64(dt)
		if speedMPH <= float64(obs.Limit)+speedToleranceMPH {
			continue
		}
		t := Ticket{
			Plate:           obs.Plate,
			Road:            obs.Road,
			Mile1:           a.Mile,
			Timestamp1:      a.Timestamp,
			Mile2:           b.Mile,
			Timestamp2:      b.Timestamp,
			SpeedHundredths: uint16(math.Floor(speedMPH * 100)),
		}
		if e.tryClaimDays(t) {
			issued = append(issued, t)
		} else {
			metrics.SpeedTicketsSuppressed.Inc()
		}
	}
	e.mu.Unlock()

	for _, t := range issued {
		e.router.Enqueue(t)
		if e.sink != nil {
			e.sink(t)
		}
	}
}

// tryClaimDays reports whether every UTC day spanned by t is currently
// unticketed for t.Plate; if so, it claims them all and returns true.
// Must be called with e.mu held.
func (e *Engine) tryClaimDays(t Ticket) bool {
	day1 := int64(t.Timestamp1) / secondsPerDay
	day2 := int64(t.Timestamp2) / secondsPerDay
	if day2 < day1 {
		day1, day2 = day2, day1
	}
	days := e.ticketDays[t.Plate]
	if days == nil {
		days = make(map[int64]bool)
		e.ticketDays[t.Plate] = days
	}
	for d := day1; d <= day2; d++ {
		if days[d] {
			return false
		}
	}
	for d := day1; d <= day2; d++ {
		days[d] = true
	}
	return true
}
