package speed_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/m-lab/protocol-challenges/internal/speed"
)

func TestRoleBindingIsOnceOnly(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := speed.NewTestConnection("1", server)
	if err := c.BindCameraForTest(speed.IAmCamera{Road: 1, Mile: 1, Limit: 60}); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if err := c.BindDispatcherForTest([]uint16{1}); !errors.Is(err, speed.ErrAlreadyBound) {
		t.Errorf("second bind err = %v, want ErrAlreadyBound", err)
	}
}

func TestHeartbeatRequestedTwiceErrors(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := speed.NewTestConnection("1", server)
	if err := c.SetHeartbeatForTest(0); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := c.SetHeartbeatForTest(5); !errors.Is(err, speed.ErrDuplicateHeartbeat) {
		t.Errorf("second request err = %v, want ErrDuplicateHeartbeat", err)
	}
}

func TestZeroIntervalHeartbeatSendsNothing(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := speed.NewTestConnection("1", server)
	if err := c.SetHeartbeatForTest(0); err != nil {
		t.Fatalf("SetHeartbeatForTest: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(30 * time.Millisecond))
	buf := make([]byte, 1)
	if _, err := client.Read(buf); err == nil {
		t.Error("expected no heartbeat bytes with interval 0")
	}
}

func TestNonzeroIntervalHeartbeatSends(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := speed.NewTestConnection("1", server)
	// 1 decisecond = 100ms.
	if err := c.SetHeartbeatForTest(1); err != nil {
		t.Fatalf("SetHeartbeatForTest: %v", err)
	}
	defer c.CloseForTest()

	client.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 1)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 1 || buf[0] != byte(speed.TypeHeartbeat) {
		t.Errorf("got byte %v, want heartbeat type byte", buf[:n])
	}
}
