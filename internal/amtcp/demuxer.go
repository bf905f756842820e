package amtcp

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/codefionn/amchat/internal/bytechan"
	"github.com/codefionn/amchat/internal/consts"
	"github.com/codefionn/amchat/internal/logger"
)

// ErrNegativeLength is reported when a frame header declares a negative
// payload length; the stream cannot be resynchronized after that.
var ErrNegativeLength = errors.New("frame header declares negative length")

// Demuxer is the reading side of a connection. A background loop routes
// frame payloads into one bounded channel per tag; Write sends raw bytes.
type Demuxer struct {
	rw       io.ReadWriter
	capacity int
	log      *logger.Logger

	main  *bytechan.Channel
	event *bytechan.Channel

	startOnce sync.Once
	done      chan struct{}
	err       error
}

// NewDemuxer wraps rw. capacity sizes both channel buffers; zero selects
// consts.ChannelCapacity. The read loop does not run until Start.
func NewDemuxer(rw io.ReadWriter, capacity int, log *logger.Logger) *Demuxer {
	if capacity <= 0 {
		capacity = consts.ChannelCapacity
	}
	return &Demuxer{
		rw:       rw,
		capacity: capacity,
		log:      logger.OrGlobal(log).WithPrefix("demux"),
		main:     bytechan.New(capacity),
		event:    bytechan.New(capacity),
		done:     make(chan struct{}),
	}
}

// Start launches the read loop once.
func (d *Demuxer) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Main returns the reader for MAIN channel payloads.
func (d *Demuxer) Main() io.Reader {
	return d.main
}

// Event returns the reader for EVENT channel payloads.
func (d *Demuxer) Event() io.Reader {
	return d.event
}

// Channel returns the buffer backing tag, or nil for an unknown tag.
func (d *Demuxer) Channel(tag Tag) *bytechan.Channel {
	switch tag {
	case TagMain:
		return d.main
	case TagEvent:
		return d.event
	default:
		return nil
	}
}

// Write sends raw bytes to the peer.
func (d *Demuxer) Write(p []byte) (int, error) {
	return d.rw.Write(p)
}

// Done is closed when the read loop has exited and both channels are closed.
func (d *Demuxer) Done() <-chan struct{} {
	return d.done
}

// Err returns the error that ended the read loop. It is only meaningful
// after Done is closed.
func (d *Demuxer) Err() error {
	<-d.done
	return d.err
}

func (d *Demuxer) run() {
	defer close(d.done)
	defer d.event.CloseForWrites()
	defer d.main.CloseForWrites()

	buf := make([]byte, d.capacity)
	for {
		if err := d.readFrame(buf); err != nil {
			d.err = err
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.log.Debug("stream closed: %v", err)
			} else {
				d.log.Info("read loop stopped: %v", err)
			}
			return
		}
	}
}

// readFrame reads and routes exactly one frame.
func (d *Demuxer) readFrame(buf []byte) error {
	header, err := ReadHeader(d.rw)
	if err != nil {
		return err
	}
	if header.Version != consts.ProtocolVersion {
		d.log.Warn("frame with unexpected version %d", header.Version)
	}
	if header.Length < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLength, header.Length)
	}

	length := int64(header.Length)
	if !header.Tag.Valid() {
		d.log.Warn("discarding %d bytes of frame with unknown tag %d", length, int32(header.Tag))
		return d.discard(length)
	}

	var overflow int64
	if length > int64(d.capacity) {
		overflow = length - int64(d.capacity)
		length = int64(d.capacity)
		d.log.Warn("%s frame of %d bytes exceeds capacity %d, truncating", header.Tag, header.Length, d.capacity)
	}

	payload := buf[:length]
	if _, err := io.ReadFull(d.rw, payload); err != nil {
		return fmt.Errorf("read %s frame payload: %w", header.Tag, err)
	}
	if len(payload) > 0 && !d.Channel(header.Tag).Write(payload) {
		return fmt.Errorf("%s channel closed", header.Tag)
	}

	if overflow > 0 {
		return d.discard(overflow)
	}
	return nil
}

func (d *Demuxer) discard(n int64) error {
	if _, err := io.CopyN(io.Discard, d.rw, n); err != nil {
		return fmt.Errorf("discard %d frame bytes: %w", n, err)
	}
	return nil
}
