package amtcp

import (
	"fmt"
	"io"
	"sync"

	"github.com/codefionn/amchat/internal/consts"
)

// Muxer is the framing side of a connection. Writes to Main and Event are
// framed; Read returns raw bytes from the peer.
type Muxer struct {
	rw       io.ReadWriter
	capacity int

	// writeMu is held across a header and its payload
	writeMu sync.Mutex

	main  *channelWriter
	event *channelWriter
}

// NewMuxer wraps rw. capacity is the largest payload per frame and must match
// the peer's channel capacity; zero selects consts.ChannelCapacity.
func NewMuxer(rw io.ReadWriter, capacity int) *Muxer {
	if capacity <= 0 {
		capacity = consts.ChannelCapacity
	}
	m := &Muxer{rw: rw, capacity: capacity}
	m.main = &channelWriter{mux: m, tag: TagMain}
	m.event = &channelWriter{mux: m, tag: TagEvent}
	return m
}

// Main returns the writer for the MAIN channel.
func (m *Muxer) Main() io.Writer {
	return m.main
}

// Event returns the writer for the EVENT channel.
func (m *Muxer) Event() io.Writer {
	return m.event
}

// Writer returns the writer for tag.
func (m *Muxer) Writer(tag Tag) io.Writer {
	if tag == TagEvent {
		return m.event
	}
	return m.main
}

// Read reads raw, unframed bytes sent by the peer.
func (m *Muxer) Read(p []byte) (int, error) {
	return m.rw.Read(p)
}

// WriteFrame writes p as a single frame.
func (m *Muxer) WriteFrame(tag Tag, p []byte) error {
	if len(p) > m.capacity {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(p), m.capacity)
	}
	header := EncodeHeader(Header{
		Version: consts.ProtocolVersion,
		Tag:     tag,
		Length:  int32(len(p)),
	})

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if _, err := m.rw.Write(header[:]); err != nil {
		return fmt.Errorf("write %s frame header: %w", tag, err)
	}
	if len(p) == 0 {
		return nil
	}
	if _, err := m.rw.Write(p); err != nil {
		return fmt.Errorf("write %s frame payload: %w", tag, err)
	}
	return nil
}

// channelWriter splits a logical write into capacity-sized frames. Its own
// lock keeps the frames of one Write contiguous within the channel, while
// frames of the other channel may still be interleaved between them.
type channelWriter struct {
	mux *Muxer
	tag Tag
	mu  sync.Mutex
}

func (w *channelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	written := 0
	for written < len(p) {
		n := len(p) - written
		if n > w.mux.capacity {
			n = w.mux.capacity
		}
		if err := w.mux.WriteFrame(w.tag, p[written:written+n]); err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}
