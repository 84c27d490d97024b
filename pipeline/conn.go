package pipeline

import (
	"net"
	"time"
)

// Adapter which exposes a node as a net.Conn so that stream oriented libraries (crypto/tls) can
// run on top of any lower node.
//
// Deadlines are not supported: read timeouts are expressed through the NodeArgs set with
// SetArgs. Errors returned by the node are returned as is: *NodeError implements net.Error.
type Conn struct {
	// Adapted node
	node NodeInterface
	// Arguments forwarded to the node on Read
	args *NodeArgs
}

// NewConn returns a net.Conn which reads from and writes to node.
func NewConn(node NodeInterface) *Conn {
	return &Conn{node: node}
}

// SetArgs sets the arguments forwarded to the node by the following Read calls.
func (c *Conn) SetArgs(args *NodeArgs) {
	c.args = args
}

// Read reads available bytes from the node into p.
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := NewBuffer(p)
	if err := c.node.Read(buf, c.args); err != nil {
		return buf.Size(), err
	}
	return buf.Size(), nil
}

// Write forwards p to the node until all bytes are consumed or an error occurs.
func (c *Conn) Write(p []byte) (int, error) {
	buf := NewBuffer(p)
	buf.Obtain(len(p))
	err := WriteAll(c.node, buf, nil)
	return len(p) - buf.Size(), err
}

// Close closes the adapted node.
func (c *Conn) Close() error {
	c.node.Close()
	return nil
}

func (c *Conn) LocalAddr() net.Addr {
	return nodeAddr(c.node.Name())
}

func (c *Conn) RemoteAddr() net.Addr {
	return nodeAddr(c.node.Name())
}

func (c *Conn) SetDeadline(t time.Time) error {
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return nil
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return nil
}

// Address of a node adapted as a net.Conn
type nodeAddr string

func (addr nodeAddr) Network() string {
	return "node"
}

func (addr nodeAddr) String() string {
	return string(addr)
}
