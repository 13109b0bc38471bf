// Package ticketlog provides an optional CSV audit trail of every
// ticket the Speed Daemon issues, independent of dispatcher delivery.
package ticketlog

import (
	"log"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/m-lab/protocol-challenges/internal/speed"
)

// record is the CSV row shape, kept separate from speed.Ticket so the
// wire type and the audit-log schema can evolve independently.
type record struct {
	Plate           string `csv:"plate"`
	Road            uint16 `csv:"road"`
	Mile1           uint16 `csv:"mile1"`
	Timestamp1      uint32 `csv:"timestamp1"`
	Mile2           uint16 `csv:"mile2"`
	Timestamp2      uint32 `csv:"timestamp2"`
	SpeedHundredths uint16 `csv:"speed_hundredths"`
}

func toRecord(t speed.Ticket) record {
	return record{
		Plate:           t.Plate,
		Road:            t.Road,
		Mile1:           t.Mile1,
		Timestamp1:      t.Timestamp1,
		Mile2:           t.Mile2,
		Timestamp2:      t.Timestamp2,
		SpeedHundredths: t.SpeedHundredths,
	}
}

// Logger appends issued tickets to a CSV file. Writes happen on a
// single background goroutine fed by a buffered channel, so Sink can be
// called concurrently from every connection's handling goroutine
// without serializing them on file I/O.
type Logger struct {
	f           *os.File
	ch          chan speed.Ticket
	done        chan struct{}
	wroteHeader bool
}

// Open appends to (or creates) the CSV file at path and starts the
// writer goroutine. A header row is written only if the file was
// empty, so restarting against an existing log doesn't repeat it.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	l := &Logger{
		f:           f,
		ch:          make(chan speed.Ticket, 256),
		done:        make(chan struct{}),
		wroteHeader: info.Size() > 0,
	}
	go l.run()
	return l, nil
}

// Sink implements speed.TicketSink. It never blocks the caller: a full
// buffer drops the ticket and logs a warning rather than stalling the
// connection goroutine that's delivering it to a dispatcher.
func (l *Logger) Sink(t speed.Ticket) {
	select {
	case l.ch <- t:
	default:
		log.Println("ticketlog: buffer full, dropping audit record for plate", t.Plate)
	}
}

// Close stops accepting new tickets and waits for the writer goroutine
// to flush the ones already queued.
func (l *Logger) Close() error {
	close(l.ch)
	<-l.done
	return l.f.Close()
}

func (l *Logger) run() {
	defer close(l.done)
	for t := range l.ch {
		rec := []record{toRecord(t)}
		var err error
		if !l.wroteHeader {
			err = gocsv.Marshal(rec, l.f)
			l.wroteHeader = true
		} else {
			err = gocsv.MarshalWithoutHeaders(rec, l.f)
		}
		if err != nil {
			log.Println("ticketlog: write failed:", err)
		}
	}
}
