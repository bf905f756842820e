// Package bytechan provides a fixed-capacity circular byte queue with
// blocking reads and writes, used as the per-channel receive buffer of the
// demultiplexer.
package bytechan

import (
	"fmt"
	"io"
	"sync"
)

// Channel is a single-producer, single-consumer byte queue. Writers block
// while there is not enough free space, readers block while there is not
// enough data. CloseForWrites wakes every waiter; buffered data can still be
// drained after close.
type Channel struct {
	mu   sync.Mutex
	cond *sync.Cond

	data          []byte
	capacity      int
	readPosition  int
	writePosition int
	free          int
	closed        bool
}

// New creates a channel holding at most capacity bytes.
func New(capacity int) *Channel {
	if capacity <= 0 {
		panic(fmt.Sprintf("bytechan: capacity must be positive, got %d", capacity))
	}
	c := &Channel{
		data:     make([]byte, capacity),
		capacity: capacity,
		free:     capacity,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Capacity returns the fixed size of the buffer.
func (c *Channel) Capacity() int {
	return c.capacity
}

// Available returns the number of buffered bytes.
func (c *Channel) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity - c.free
}

// Closed reports whether CloseForWrites has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Write blocks until p fits into the free space and copies it in. It returns
// false without writing anything if the channel is, or becomes, closed.
// len(p) must not exceed Capacity.
func (c *Channel) Write(p []byte) bool {
	c.checkCount(len(p))

	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.closed && c.free < len(p) {
		c.cond.Wait()
	}
	if c.closed {
		return false
	}

	for offset := 0; offset < len(p); {
		n := copy(c.data[c.writePosition:], p[offset:])
		c.writePosition = (c.writePosition + n) % c.capacity
		offset += n
	}
	c.free -= len(p)
	c.cond.Broadcast()
	return true
}

// ReadExactly blocks until len(p) bytes are buffered and moves them into p.
// If the channel is closed while fewer than len(p) bytes remain, it returns
// false and consumes nothing. len(p) must not exceed Capacity.
func (c *Channel) ReadExactly(p []byte) bool {
	c.checkCount(len(p))

	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.closed && c.capacity-c.free < len(p) {
		c.cond.Wait()
	}
	if c.capacity-c.free < len(p) {
		return false
	}

	c.take(p)
	return true
}

// Read implements io.Reader. It blocks until at least one byte is buffered
// and returns as many as fit into p. Once the channel is closed and drained
// it returns io.EOF.
func (c *Channel) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.closed && c.free == c.capacity {
		c.cond.Wait()
	}
	buffered := c.capacity - c.free
	if buffered == 0 {
		return 0, io.EOF
	}

	n := len(p)
	if n > buffered {
		n = buffered
	}
	c.take(p[:n])
	return n, nil
}

// CloseForWrites marks the channel closed and wakes all blocked callers.
// It is safe to call more than once.
func (c *Channel) CloseForWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

// take copies len(p) buffered bytes out; the caller holds mu and has checked
// that enough bytes are buffered.
func (c *Channel) take(p []byte) {
	for offset := 0; offset < len(p); {
		end := c.readPosition + len(p) - offset
		if end > c.capacity {
			end = c.capacity
		}
		n := copy(p[offset:], c.data[c.readPosition:end])
		c.readPosition = (c.readPosition + n) % c.capacity
		offset += n
	}
	c.free += len(p)
	c.cond.Broadcast()
}

func (c *Channel) checkCount(n int) {
	if n > c.capacity {
		panic(fmt.Sprintf("bytechan: request of %d bytes exceeds capacity %d", n, c.capacity))
	}
}
