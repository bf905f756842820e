package filetransfer

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/amchat/internal/codec"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
)

// startServer runs one Serve call on a pipe and returns the client end and
// a channel with Serve's result.
func startServer(t *testing.T, store *Store) (net.Conn, <-chan error) {
	t.Helper()
	client, server := net.Pipe()
	srv := NewServer(store, logger.Discard())
	done := make(chan error, 1)
	go func() {
		defer server.Close()
		done <- srv.Serve(server)
	}()
	t.Cleanup(func() { client.Close() })
	return client, done
}

func TestStorePathRejectsEscapes(t *testing.T) {
	store := NewStore(t.TempDir())
	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b", `a\b`} {
		_, err := store.Path(name)
		assert.True(t, errors.Is(err, ErrInvalidName), "name %q", name)
	}

	path, err := store.Path("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "notes.txt"), path)
}

func TestStoreCreateRefusesOverwrite(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested"))
	f, err := store.Create("a.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = store.Create("a.txt")
	assert.True(t, errors.Is(err, os.ErrExist))
}

func TestUploadThenDownload(t *testing.T) {
	serverStore := NewStore(t.TempDir())
	payload := bytes.Repeat([]byte("0123456789"), 250_000)

	conn, done := startServer(t, serverStore)
	resp, err := Upload(conn, "big.bin", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)
	require.NoError(t, <-done)

	stored, err := os.ReadFile(filepath.Join(serverStore.Dir(), "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	clientStore := NewStore(t.TempDir())
	client := NewClient(clientStore, logger.Discard())
	conn, done = startServer(t, serverStore)
	resp, path, err := client.DownloadFile(conn, "big.bin")
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)
	require.NoError(t, <-done)

	downloaded, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, downloaded)
}

func TestUploadFileUsesBaseName(t *testing.T) {
	serverStore := NewStore(t.TempDir())
	local := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(local, []byte("quarterly numbers"), 0644))

	conn, done := startServer(t, serverStore)
	resp, err := NewClient(NewStore(t.TempDir()), logger.Discard()).UploadFile(conn, local)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NoError(t, <-done)

	assert.FileExists(t, filepath.Join(serverStore.Dir(), "report.txt"))
}

func TestUploadExistingFileIsRefused(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "taken.txt"), []byte("x"), 0644))

	conn, done := startServer(t, store)
	resp, err := Upload(conn, "taken.txt", strings.NewReader("new"), 3)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Unable to create file 'taken.txt'")
	require.NoError(t, <-done)

	content, err := os.ReadFile(filepath.Join(store.Dir(), "taken.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(content))
}

func TestDownloadMissingFile(t *testing.T) {
	conn, done := startServer(t, NewStore(t.TempDir()))

	resp, n, err := Download(conn, "absent.txt", &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Unable to open file 'absent.txt'")
	assert.Zero(t, n)
	require.NoError(t, <-done)
}

func TestDownloadFileRemovesPartialOnRefusal(t *testing.T) {
	clientStore := NewStore(t.TempDir())
	conn, done := startServer(t, NewStore(t.TempDir()))

	resp, _, err := NewClient(clientStore, logger.Discard()).DownloadFile(conn, "absent.txt")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.NoError(t, <-done)
	assert.NoFileExists(t, filepath.Join(clientStore.Dir(), "absent.txt"))
}

func TestZeroSizeUploadIsRefused(t *testing.T) {
	store := NewStore(t.TempDir())
	conn, done := startServer(t, store)

	require.NoError(t, codec.WriteString(conn, protocol.FileUpCommand("empty.txt")))
	resp, err := readReply(conn)
	require.NoError(t, err)
	require.True(t, resp.Success)

	require.NoError(t, codec.WriteInt32(conn, 0))
	resp, err = readReply(conn)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "File size must be greater than zero.", resp.Message)
	require.NoError(t, <-done)

	assert.NoFileExists(t, filepath.Join(store.Dir(), "empty.txt"))
}

func TestInterruptedUploadLeavesNothing(t *testing.T) {
	store := NewStore(t.TempDir())
	conn, done := startServer(t, store)

	require.NoError(t, codec.WriteString(conn, protocol.FileUpCommand("cut.bin")))
	resp, err := readReply(conn)
	require.NoError(t, err)
	require.True(t, resp.Success)

	require.NoError(t, codec.WriteInt32(conn, 100))
	_, err = conn.Write([]byte("only a few bytes"))
	require.NoError(t, err)
	conn.Close()

	assert.Error(t, <-done)
	assert.NoFileExists(t, filepath.Join(store.Dir(), "cut.bin"))
}

func TestTransferConnectionRejectsOtherCommands(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"list_rooms", "Unknown command."},
		{"bogus", "Unknown command."},
		{"file_up", "Command expects at least 2 arguments."},
		{"file_down:a:b", "Command expects no more than 2 arguments."},
		{"file_up:..", "Unable to create file '..'"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			conn, done := startServer(t, NewStore(t.TempDir()))
			require.NoError(t, codec.WriteString(conn, tt.command))
			resp, err := readReply(conn)
			require.NoError(t, err)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Message, tt.want)
			require.NoError(t, <-done)
		})
	}
}

func TestUploadRejectsEmptySource(t *testing.T) {
	_, err := Upload(&bytes.Buffer{}, "x", strings.NewReader(""), 0)
	assert.True(t, errors.Is(err, ErrEmptyFile))
}
