// Package streamid assigns short correlation ids to LRCP sessions, for
// use in log lines only. Speed Daemon connections do not use it; they
// are labeled with a plain sequence number. It plays the same
// role eventsocket.FlowEvent.UUID plays for kernel flows: a stable label
// an operator can grep for across the lifetime of one logical stream,
// without dragging the raw socket address or session id through every
// log call.
package streamid

import (
	"fmt"
	"log"

	"github.com/m-lab/uuid"
)

// ForCookie derives a correlation id from an arbitrary 64-bit cookie
// (here, an LRCP session id). It never fails the
// caller: if the underlying uuid library can't synthesize one (e.g. no
// /proc/sys/kernel/random/boot_id on this platform), a fallback id
// derived from the cookie alone is used instead, since this id is for
// humans reading logs, not a protocol value.
func ForCookie(cookie uint64) string {
	id, err := uuid.FromCookie(cookie)
	if err != nil {
		log.Println("streamid: falling back to a bare cookie id:", err)
		return fmt.Sprintf("cookie-%d", cookie)
	}
	return id
}
