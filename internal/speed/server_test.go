package speed_test

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/m-lab/protocol-challenges/internal/speed"
)

func startTestServer(t *testing.T) (*speed.Server, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := speed.Listen(ctx, "127.0.0.1:0", nil)
	if err != nil {
		cancel()
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve(ctx)
	return srv, func() {
		cancel()
		srv.Close()
	}
}

func dialPlate(t *testing.T, addr string, road, mile, limit uint16) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	var msg [7]byte
	msg[0] = byte(speed.TypeIAmCamera)
	binary.BigEndian.PutUint16(msg[1:3], road)
	binary.BigEndian.PutUint16(msg[3:5], mile)
	binary.BigEndian.PutUint16(msg[5:7], limit)
	if _, err := conn.Write(msg[:]); err != nil {
		t.Fatalf("write IAmCamera: %v", err)
	}
	return conn
}

func sendPlate(t *testing.T, conn net.Conn, plate string, ts uint32) {
	t.Helper()
	msg := make([]byte, 0, 6+len(plate))
	msg = append(msg, byte(speed.TypePlate), byte(len(plate)))
	msg = append(msg, plate...)
	var tsBuf [4]byte
	binary.BigEndian.PutUint32(tsBuf[:], ts)
	msg = append(msg, tsBuf[:]...)
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("write Plate: %v", err)
	}
}

func TestDuplicateRoleDeclarationErrorsAndCloses(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	conn := dialPlate(t, srv.Addr().String(), 1, 1, 60)
	defer conn.Close()
	// A second role declaration is a protocol error.
	if _, err := conn.Write([]byte{byte(speed.TypeIAmDispatcher), 0x00}); err != nil {
		t.Fatalf("write second IAmDispatcher: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	r := bufio.NewReader(conn)
	typ, err := r.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if speed.MsgType(typ) != speed.TypeError {
		t.Fatalf("got message type 0x%02x, want Error", typ)
	}

	n, err := r.ReadByte()
	if err != nil {
		t.Fatalf("read error length: %v", err)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read error body: %v", err)
	}

	// The server should then close the connection.
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := r.Read(buf); err != io.EOF {
		t.Errorf("expected EOF after Error, got %v", err)
	}
}

func TestPlateBeforeCameraErrors(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	sendPlate(t, conn, "UN1X", 0)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	r := bufio.NewReader(conn)
	typ, err := r.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if speed.MsgType(typ) != speed.TypeError {
		t.Fatalf("got message type 0x%02x, want Error", typ)
	}
}

func TestEndToEndSpeedingTicket(t *testing.T) {
	srv, stop := startTestServer(t)
	defer stop()
	addr := srv.Addr().String()

	camA := dialPlate(t, addr, 66, 100, 60)
	defer camA.Close()
	camB := dialPlate(t, addr, 66, 110, 60)
	defer camB.Close()

	sendPlate(t, camA, "RE05BKG", 0)
	sendPlate(t, camB, "RE05BKG", 45)

	dispConn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer dispConn.Close()
	if _, err := dispConn.Write([]byte{byte(speed.TypeIAmDispatcher), 0x01, 0x00, 0x42}); err != nil {
		t.Fatalf("write IAmDispatcher: %v", err)
	}

	dispConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(dispConn)
	typ, err := r.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if speed.MsgType(typ) != speed.TypeTicket {
		t.Fatalf("got message type 0x%02x, want Ticket", typ)
	}
	n, err := r.ReadByte()
	if err != nil {
		t.Fatalf("plate length: %v", err)
	}
	plateBuf := make([]byte, n)
	if _, err := io.ReadFull(r, plateBuf); err != nil {
		t.Fatalf("plate bytes: %v", err)
	}
	if string(plateBuf) != "RE05BKG" {
		t.Errorf("plate = %q, want RE05BKG", plateBuf)
	}
}
