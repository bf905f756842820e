package filetransfer

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/codefionn/amchat/internal/codec"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
)

// Upload runs the client half of file_up on rw, which must already be in
// transfer mode. A nil error with an unsuccessful response means the server
// refused.
func Upload(rw io.ReadWriter, name string, r io.Reader, size int64) (protocol.Response, error) {
	if size <= 0 {
		return protocol.Response{}, ErrEmptyFile
	}
	if size > math.MaxInt32 {
		return protocol.Response{}, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}

	if err := codec.WriteString(rw, protocol.FileUpCommand(name)); err != nil {
		return protocol.Response{}, err
	}
	resp, err := readReply(rw)
	if err != nil || !resp.Success {
		return resp, err
	}
	if err := Send(rw, r, size); err != nil {
		return protocol.Response{}, err
	}
	return readReply(rw)
}

// Download runs the client half of file_down on rw, writing the file to w.
// It returns the number of bytes received.
func Download(rw io.ReadWriter, name string, w io.Writer) (protocol.Response, int64, error) {
	if err := codec.WriteString(rw, protocol.FileDownCommand(name)); err != nil {
		return protocol.Response{}, 0, err
	}
	resp, err := readReply(rw)
	if err != nil || !resp.Success {
		return resp, 0, err
	}

	size, err := ReadSize(rw)
	if err != nil {
		return protocol.Response{}, 0, err
	}
	if err := Receive(w, rw, size); err != nil {
		return protocol.Response{}, 0, err
	}
	resp, err = readReply(rw)
	return resp, size, err
}

// Client transfers files between a local Store and a server.
type Client struct {
	store *Store
	log   *logger.Logger
}

// NewClient creates a client that saves downloads into store.
func NewClient(store *Store, log *logger.Logger) *Client {
	return &Client{store: store, log: logger.OrGlobal(log).WithPrefix("files")}
}

// UploadFile sends the file at path under its base name.
func (c *Client) UploadFile(rw io.ReadWriter, path string) (protocol.Response, error) {
	f, err := os.Open(path)
	if err != nil {
		return protocol.Response{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return protocol.Response{}, err
	}
	name := filepath.Base(path)
	resp, err := Upload(rw, name, f, info.Size())
	if err == nil && resp.Success {
		c.log.Info("uploaded %q (%d bytes)", name, info.Size())
	}
	return resp, err
}

// DownloadFile fetches name into the local store and returns the saved path.
// Nothing is left behind on failure.
func (c *Client) DownloadFile(rw io.ReadWriter, name string) (protocol.Response, string, error) {
	path, err := c.store.Path(name)
	if err != nil {
		return protocol.Response{}, "", err
	}
	f, err := c.store.Create(name)
	if err != nil {
		return protocol.Response{}, "", fmt.Errorf("create %s: %w", path, err)
	}

	resp, size, err := Download(rw, name, f)
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil || !resp.Success {
		if rmErr := c.store.Remove(name); rmErr != nil {
			c.log.Warn("failed to remove partial download %q: %v", name, rmErr)
		}
		return resp, "", err
	}

	c.log.Info("downloaded %q (%d bytes)", name, size)
	return resp, path, nil
}
