// Package filetransfer implements the file transfer connection mode: a single
// file_up or file_down command per connection, answered with ack/nack and
// followed by a size-prefixed byte stream.
package filetransfer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/codefionn/amchat/internal/codec"
	"github.com/codefionn/amchat/internal/consts"
)

var (
	// ErrInvalidName is returned for names that would escape the store root.
	ErrInvalidName = errors.New("invalid file name")
	// ErrEmptyFile is returned when a transfer announces a size of zero or less.
	ErrEmptyFile = errors.New("File size must be greater than zero.")
	// ErrFileTooLarge is returned when a file size does not fit the int32 prefix.
	ErrFileTooLarge = errors.New("file too large")
	// ErrWriteFailed wraps local write errors during a receive.
	ErrWriteFailed = errors.New("File write failed")
)

// Store maps transfer names onto files in one directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for name.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Create opens a new file for writing. It refuses to overwrite.
func (s *Store) Create(name string) (*os.File, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", s.dir, err)
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

// Open opens an existing file and reports its size.
func (s *Store) Open(name string) (*os.File, int64, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is a directory", path)
	}
	return f, info.Size(), nil
}

// Remove deletes name, ignoring a missing file.
func (s *Store) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Send writes size as an int32 prefix, then size bytes from r in 1 MiB
// chunks.
func Send(w io.Writer, r io.Reader, size int64) error {
	if size > math.MaxInt32 {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}
	if err := codec.WriteInt32(w, int32(size)); err != nil {
		return err
	}
	buf := make([]byte, consts.BufferSize1MB)
	n, err := io.CopyBuffer(onlyWriter{w}, io.LimitReader(r, size), buf)
	if err != nil {
		return fmt.Errorf("send file: %w", err)
	}
	if n != size {
		return fmt.Errorf("send file: short read, %d of %d bytes", n, size)
	}
	return nil
}

// ReadSize reads the int32 size prefix of a transfer.
func ReadSize(r io.Reader) (int64, error) {
	size, err := codec.ReadInt32(r)
	if err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, ErrEmptyFile
	}
	return int64(size), nil
}

// Receive copies exactly size bytes from r to w. A failure on w is wrapped in
// ErrWriteFailed; any other error means r is gone.
func Receive(w io.Writer, r io.Reader, size int64) error {
	buf := make([]byte, min(size, consts.BufferSize1MB))
	remaining := size
	for remaining > 0 {
		n, err := r.Read(buf[:min(remaining, int64(len(buf)))])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: %v", ErrWriteFailed, werr)
			}
			remaining -= int64(n)
		}
		if err != nil {
			if remaining == 0 {
				return nil
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("receive file after %d of %d bytes: %w", size-remaining, size, err)
		}
	}
	return nil
}

// onlyWriter hides ReadFrom so io.CopyBuffer uses the chunk buffer.
type onlyWriter struct {
	io.Writer
}
