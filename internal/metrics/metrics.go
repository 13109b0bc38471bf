// Package metrics defines the prometheus metrics exported by both the
// LRCP and Speed Daemon servers.
//
// When defining new operations or metrics, these are helpful values to
// track:
//   - things coming into or going out of the system: frames, connections,
//     tickets.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LRCPSessionsActive tracks the number of currently open LRCP sessions.
	LRCPSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lrcp_sessions_active",
			Help: "Number of LRCP sessions currently open.",
		},
	)

	// LRCPSessionsCreated counts sessions created since startup.
	LRCPSessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lrcp_sessions_created_total",
			Help: "Total number of LRCP sessions created.",
		},
	)

	// LRCPSessionsExpired counts session teardowns, labeled by reason.
	LRCPSessionsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lrcp_sessions_expired_total",
			Help: "Total number of LRCP sessions torn down, by reason.",
		}, []string{"reason"})

	// LRCPFrames counts frames processed, by type and direction.
	LRCPFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lrcp_frames_total",
			Help: "Total number of LRCP frames processed, by type and direction.",
		}, []string{"type", "dir"})

	// LRCPFramesDropped counts frames dropped during decode, by reason.
	LRCPFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lrcp_frames_dropped_total",
			Help: "Total number of inbound LRCP datagrams dropped, by reason.",
		}, []string{"reason"})

	// LRCPRetransmits counts retransmit-timer wakes that resent
	// unacknowledged data (one per wake, however many frames it sent).
	LRCPRetransmits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lrcp_retransmits_total",
			Help: "Total number of LRCP retransmit-timer resends of unacknowledged data.",
		},
	)

	// SpeedConnectionsActive tracks live Speed Daemon connections, by role.
	SpeedConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "speedd_connections_active",
			Help: "Number of Speed Daemon connections currently open, by role.",
		}, []string{"role"})

	// SpeedTicketsIssued counts tickets successfully written to a
	// dispatcher.
	SpeedTicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speedd_tickets_issued_total",
			Help: "Total number of speeding tickets issued.",
		},
	)

	// SpeedTicketsSuppressed counts candidate tickets discarded by the
	// one-ticket-per-day rule.
	SpeedTicketsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speedd_tickets_suppressed_total",
			Help: "Total number of candidate tickets discarded due to an already-covered day.",
		},
	)

	// SpeedTicketsPending tracks the number of tickets waiting for a dispatcher.
	SpeedTicketsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "speedd_tickets_pending",
			Help: "Number of tickets currently queued awaiting a dispatcher.",
		},
	)

	// SpeedDispatcherRegistrations counts IAmDispatcher registrations received.
	SpeedDispatcherRegistrations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speedd_dispatcher_registrations_total",
			Help: "Total number of IAmDispatcher registrations received.",
		},
	)

	// SpeedFrameErrors counts frame-level protocol errors, by reason.
	SpeedFrameErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedd_frame_errors_total",
			Help: "Total number of Speed Daemon protocol errors, by reason.",
		}, []string{"reason"})
)

func init() {
	log.Println("Prometheus metrics in protocol-challenges/metrics are registered.")
}
