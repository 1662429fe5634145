package protocol

import (
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// Conn wraps a raw socket file descriptor owned by the server.
//
// Reads retry on EINTR and loop until the requested frame is complete
// (io.ReadFull drives the looping). Writes retry on EINTR and loop on
// short writes. All outbound frames to a connection go through Send /
// SendHeader / SendReply, which serialize on a per-connection lock: a
// worker replying to its client and another worker direct-delivering a
// message to the same client must never interleave frame bytes.
type Conn struct {
	fd int

	wmu sync.Mutex
}

// NewConn wraps an already-connected socket fd.
func NewConn(fd int) *Conn {
	return &Conn{fd: fd}
}

// FD returns the underlying descriptor.
func (c *Conn) FD() int { return c.fd }

// Read implements io.Reader over the raw fd. A zero-byte read is
// reported as io.EOF (orderly close by the peer).
func (c *Conn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write implements io.Writer over the raw fd.
func (c *Conn) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := unix.Write(c.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

// Send writes one full frame under the connection's write lock.
func (c *Conn) Send(m Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteMsg(c, m)
}

// SendHeader writes a bare reply header under the write lock.
func (c *Conn) SendHeader(h Header) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteHeader(c, h)
}

// SendReply writes a header immediately followed by a data block as
// one locked unit.
func (c *Conn) SendReply(h Header, d Data) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := WriteHeader(c, h); err != nil {
		return err
	}
	return WriteData(c, d)
}

// Lock takes the connection write lock directly. Used by multi-frame
// replies (GETPREVMSGS) that must not interleave with direct deliveries.
func (c *Conn) Lock() { c.wmu.Lock() }

// Unlock releases the connection write lock.
func (c *Conn) Unlock() { c.wmu.Unlock() }

// Close closes the descriptor.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}
