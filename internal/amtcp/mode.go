package amtcp

import (
	"errors"
	"fmt"
	"io"
)

// Mode is the first byte a client sends on a fresh connection.
type Mode byte

const (
	// ModeChat selects the multiplexed chat protocol
	ModeChat Mode = 0
	// ModeFileTransfer selects the single-command file transfer protocol
	ModeFileTransfer Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeChat:
		return "chat"
	case ModeFileTransfer:
		return "file-transfer"
	default:
		return fmt.Sprintf("Mode(%d)", byte(m))
	}
}

// ErrUnknownMode is returned by ReadMode for an unrecognized selector byte.
var ErrUnknownMode = errors.New("unknown connection mode")

// WriteMode sends the mode selector byte.
func WriteMode(w io.Writer, m Mode) error {
	if _, err := w.Write([]byte{byte(m)}); err != nil {
		return fmt.Errorf("write mode byte: %w", err)
	}
	return nil
}

// ReadMode reads and validates the mode selector byte.
func ReadMode(r io.Reader) (Mode, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read mode byte: %w", err)
	}
	m := Mode(buf[0])
	switch m {
	case ModeChat, ModeFileTransfer:
		return m, nil
	default:
		return m, fmt.Errorf("%w: %d", ErrUnknownMode, buf[0])
	}
}
