package ticketlog_test

import (
	"os"
	"strings"
	"testing"

	"github.com/m-lab/protocol-challenges/internal/speed"
	"github.com/m-lab/protocol-challenges/internal/ticketlog"
)

func TestLoggerWritesHeaderAndRows(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "tickets-*.csv")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	path := f.Name()
	f.Close()

	l, err := ticketlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.Sink(speed.Ticket{Plate: "UN1X", Road: 66, Mile1: 100, Timestamp1: 0, Mile2: 110, Timestamp2: 45, SpeedHundredths: 8000})
	l.Sink(speed.Ticket{Plate: "AB12CD", Road: 1, Mile1: 0, Timestamp1: 10, Mile2: 1, Timestamp2: 70, SpeedHundredths: 6000})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 rows): %q", len(lines), string(data))
	}
	if !strings.Contains(lines[0], "plate") {
		t.Errorf("header line = %q, want it to mention plate", lines[0])
	}
	if !strings.Contains(lines[1], "UN1X") || !strings.Contains(lines[2], "AB12CD") {
		t.Errorf("rows = %q, %q, want UN1X then AB12CD", lines[1], lines[2])
	}
}

func TestLoggerAppendsWithoutRepeatingHeader(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "tickets-*.csv")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	path := f.Name()
	f.Close()

	l1, err := ticketlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l1.Sink(speed.Ticket{Plate: "FIRST", Road: 1, Mile1: 0, Timestamp1: 0, Mile2: 1, Timestamp2: 1, SpeedHundredths: 1})
	if err := l1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, err := ticketlog.Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	l2.Sink(speed.Ticket{Plate: "SECOND", Road: 1, Mile1: 0, Timestamp1: 0, Mile2: 1, Timestamp2: 1, SpeedHundredths: 1})
	if err := l2.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	headerCount := strings.Count(string(data), "plate")
	if headerCount != 1 {
		t.Errorf("header appears %d times, want exactly 1: %q", headerCount, string(data))
	}
}
