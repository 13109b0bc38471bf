package speed

import "net"

// NewTestConnection exposes newConnection to external tests.
func NewTestConnection(id string, conn net.Conn) *connection {
	return newConnection(id, conn)
}

// BindCameraForTest exposes bindCamera to external tests.
func (c *connection) BindCameraForTest(m IAmCamera) error {
	return c.bindCamera(m)
}

// BindDispatcherForTest exposes bindDispatcher to external tests.
func (c *connection) BindDispatcherForTest(roads []uint16) error {
	return c.bindDispatcher(roads)
}

// SetHeartbeatForTest exposes setHeartbeat to external tests.
func (c *connection) SetHeartbeatForTest(deciseconds uint32) error {
	return c.setHeartbeat(deciseconds)
}

// CloseForTest exposes close to external tests.
func (c *connection) CloseForTest() {
	c.close()
}

// WriteForTest exposes write to external tests.
func (c *connection) WriteForTest(b []byte) error {
	return c.write(b)
}
