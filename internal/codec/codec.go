// Package codec encodes the two value types exchanged over a logical
// channel: big-endian int32 and length-prefixed ASCII strings.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/codefionn/amchat/internal/consts"
)

var (
	// ErrStringLength is returned when a received string length is outside [0, MaxStringLength].
	ErrStringLength = errors.New("string length out of range")
	// ErrNotASCII is returned when a received string contains non-ASCII bytes.
	ErrNotASCII = errors.New("string payload is not ASCII")
)

// WriteInt32 writes v as 4 big-endian bytes.
func WriteInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write int32: %w", err)
	}
	return nil
}

// ReadInt32 reads 4 big-endian bytes.
func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read int32: %w", err)
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// EncodeString returns the wire form of s: a 4-byte length and the ASCII
// bytes. Non-ASCII characters become '?' and the result is truncated to
// MaxStringLength bytes.
func EncodeString(s string) []byte {
	payload := ToASCII(s)
	if len(payload) > consts.MaxStringLength {
		payload = payload[:consts.MaxStringLength]
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

// WriteString writes s with a single Write call, so the length prefix and
// payload are never separated by another writer on the same channel.
func WriteString(w io.Writer, s string) error {
	if _, err := w.Write(EncodeString(s)); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

// ReadString reads a length-prefixed ASCII string. Any error means the
// stream can no longer be trusted and the peer should be treated as gone.
func ReadString(r io.Reader) (string, error) {
	length, err := ReadInt32(r)
	if err != nil {
		return "", err
	}
	if length < 0 || length > consts.MaxStringLength {
		return "", fmt.Errorf("%w: %d", ErrStringLength, length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read string payload: %w", err)
	}
	for _, b := range buf {
		if b >= utf8.RuneSelf {
			return "", ErrNotASCII
		}
	}
	return string(buf), nil
}

// ToASCII replaces every non-ASCII character in s with '?'.
func ToASCII(s string) []byte {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s)
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= utf8.RuneSelf {
			b.WriteByte('?')
		} else {
			b.WriteRune(r)
		}
	}
	return []byte(b.String())
}
