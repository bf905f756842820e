package amtcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/codefionn/amchat/internal/consts"
)

// Tag identifies the logical channel a frame belongs to.
type Tag int32

const (
	// TagMain carries command replies
	TagMain Tag = 0
	// TagEvent carries unsolicited server pushes
	TagEvent Tag = 1
)

func (t Tag) String() string {
	switch t {
	case TagMain:
		return "MAIN"
	case TagEvent:
		return "EVENT"
	default:
		return fmt.Sprintf("Tag(%d)", int32(t))
	}
}

// Valid reports whether t is a known channel.
func (t Tag) Valid() bool {
	return t == TagMain || t == TagEvent
}

// ErrFrameTooLarge is returned when a single frame would exceed the channel capacity.
var ErrFrameTooLarge = errors.New("frame payload exceeds channel capacity")

// Header is the fixed-size prefix of every frame.
type Header struct {
	Version int32
	Tag     Tag
	Length  int32
}

// EncodeHeader serializes h.
func EncodeHeader(h Header) [consts.FrameHeaderSize]byte {
	var buf [consts.FrameHeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.Version))
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Tag))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.Length))
	return buf
}

// DecodeHeader parses a serialized header.
func DecodeHeader(buf [consts.FrameHeaderSize]byte) Header {
	return Header{
		Version: int32(binary.BigEndian.Uint32(buf[0:4])),
		Tag:     Tag(int32(binary.BigEndian.Uint32(buf[4:8]))),
		Length:  int32(binary.BigEndian.Uint32(buf[8:12])),
	}
}

// ReadHeader reads one header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [consts.FrameHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("read frame header: %w", err)
	}
	return DecodeHeader(buf), nil
}
