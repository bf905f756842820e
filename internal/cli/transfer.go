package cli

import (
	"context"
	"io"

	"github.com/codefionn/amchat/internal/filetransfer"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
)

// Transfers implements FileTransfer by opening one connection per transfer.
type Transfers struct {
	dial   func(ctx context.Context) (io.ReadWriteCloser, error)
	client *filetransfer.Client
}

// NewTransfers creates a FileTransfer. dial must return a connection that is
// already in file-transfer mode; downloads are stored in downloadDir.
func NewTransfers(dial func(ctx context.Context) (io.ReadWriteCloser, error), downloadDir string, log *logger.Logger) *Transfers {
	return &Transfers{
		dial:   dial,
		client: filetransfer.NewClient(filetransfer.NewStore(downloadDir), log),
	}
}

// Upload sends the local file at path under its base name.
func (t *Transfers) Upload(ctx context.Context, path string) (protocol.Response, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return protocol.Response{}, err
	}
	defer conn.Close()
	return t.client.UploadFile(conn, path)
}

// Download fetches name into the download directory and returns the local
// path.
func (t *Transfers) Download(ctx context.Context, name string) (protocol.Response, string, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return protocol.Response{}, "", err
	}
	defer conn.Close()
	return t.client.DownloadFile(conn, name)
}
