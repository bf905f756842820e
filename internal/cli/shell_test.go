package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/amchat/internal/chatclient"
	"github.com/codefionn/amchat/internal/chatserver"
	"github.com/codefionn/amchat/internal/config"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
)

// fakeClient records every call as a line and answers from a table of
// errors keyed by call.
type fakeClient struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
	lists map[string][]string
	done  chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		errs:  map[string]error{},
		lists: map[string][]string{},
		done:  make(chan struct{}),
	}
}

func (f *fakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) Disconnect() error {
	err := f.record("disconnect")
	if err == nil {
		close(f.done)
	}
	return err
}

func (f *fakeClient) CreateRoom(room string) error { return f.record("create " + room) }
func (f *fakeClient) DeleteRoom(room string) error { return f.record("delete " + room) }

func (f *fakeClient) ListRooms() ([]string, error) {
	return f.lists["rooms"], f.record("rooms")
}

func (f *fakeClient) SubscribeRoom(room string) error   { return f.record("sub " + room) }
func (f *fakeClient) UnsubscribeRoom(room string) error { return f.record("unsub " + room) }

func (f *fakeClient) ListRoomMembers(room string) ([]string, error) {
	return f.lists[room], f.record("members " + room)
}

func (f *fakeClient) SendRoomMessage(room, text string) error {
	return f.record("say " + room + " " + text)
}

func (f *fakeClient) SendPersonalMessage(to, text string) error {
	return f.record("pm " + to + " " + text)
}

func (f *fakeClient) Done() <-chan struct{} { return f.done }

type fakeFiles struct {
	uploads   []string
	downloads []string
}

func (f *fakeFiles) Upload(_ context.Context, path string) (protocol.Response, error) {
	f.uploads = append(f.uploads, path)
	if strings.Contains(path, "taken") {
		return protocol.Nack("Unable to create file 'taken': exists"), nil
	}
	return protocol.Ack(""), nil
}

func (f *fakeFiles) Download(_ context.Context, name string) (protocol.Response, string, error) {
	f.downloads = append(f.downloads, name)
	return protocol.Ack(""), filepath.Join("downloads", name), nil
}

func newTestShell(client ChatClient, files FileTransfer) (*Shell, *Display, *strings.Builder) {
	var out strings.Builder
	d := NewDisplay(&out, 0, false)
	d.now = fixedNow
	return NewShell(client, d, files, logger.Discard()), d, &out
}

func TestShellCommands(t *testing.T) {
	tests := []struct {
		line   string
		call   string
		output string
	}{
		{"/create lobby", "create lobby", "Created room 'lobby'."},
		{"/delete lobby", "delete lobby", "Deleted room 'lobby'."},
		{"/rooms", "rooms", "Room List:"},
		{"/r", "rooms", "Room List:"},
		{"/members lobby", "members lobby", "Room 'lobby' Members:"},
		{"/m lobby", "members lobby", "Room 'lobby' Members:"},
		{"/subscribe lobby", "sub lobby", "Subscribed to room 'lobby'."},
		{"/sub lobby", "sub lobby", "Subscribed to room 'lobby'."},
		{"/unsubscribe lobby", "unsub lobby", "Unsubscribed from room 'lobby'."},
		{"/unsub lobby", "unsub lobby", "Unsubscribed from room 'lobby'."},
		{"/private bob see you at 5", "pm bob see you at 5", ""},
		{"/P bob hi", "pm bob hi", ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			client := newFakeClient()
			sh, _, out := newTestShell(client, nil)

			assert.True(t, sh.Execute(context.Background(), tt.line))
			assert.Equal(t, []string{tt.call}, client.Calls())
			assert.Contains(t, out.String(), tt.output)
		})
	}
}

func TestShellUsage(t *testing.T) {
	tests := []struct {
		line  string
		usage string
	}{
		{"/create", "Usage: /create roomname"},
		{"/create a b", "Usage: /create roomname"},
		{"/rooms extra", "Usage: /rooms"},
		{"/members", "Usage: /members roomname"},
		{"/select", "Usage: /select roomname"},
		{"/cast", "Usage: /cast roomname"},
		{"/private bob", "Usage: /private username message"},
		{"/quit now", "Usage: /quit"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			client := newFakeClient()
			sh, _, out := newTestShell(client, nil)

			assert.True(t, sh.Execute(context.Background(), tt.line))
			assert.Empty(t, client.Calls())
			assert.Contains(t, out.String(), tt.usage)
		})
	}
}

func TestShellUnknownCommand(t *testing.T) {
	client := newFakeClient()
	sh, _, out := newTestShell(client, nil)

	assert.True(t, sh.Execute(context.Background(), "/dance now"))
	assert.Contains(t, out.String(), "Unknown command: /dance")
	assert.Empty(t, client.Calls())
}

func TestShellNackKeepsSession(t *testing.T) {
	client := newFakeClient()
	client.errs["sub nowhere"] = &chatclient.CommandError{
		Verb:    protocol.VerbSubscribeRoom,
		Message: "No room with the name 'nowhere' exists.",
	}
	sh, d, out := newTestShell(client, nil)

	assert.True(t, sh.Execute(context.Background(), "/sub nowhere"))
	assert.Contains(t, out.String(), "No room with the name 'nowhere' exists.")
	assert.Empty(t, d.SubscribedRooms())
}

func TestShellTransportFailureEnds(t *testing.T) {
	client := newFakeClient()
	client.errs["create lobby"] = fmt.Errorf("%w: broken pipe", chatclient.ErrDisconnected)
	sh, _, out := newTestShell(client, nil)

	assert.False(t, sh.Execute(context.Background(), "/create lobby"))
	assert.Contains(t, out.String(), "Server disconnected")
}

func TestShellSelectAndBroadcast(t *testing.T) {
	client := newFakeClient()
	sh, d, out := newTestShell(client, nil)
	ctx := context.Background()

	assert.True(t, sh.Execute(ctx, "hello?"))
	assert.Contains(t, out.String(), "No rooms selected for casting.")

	assert.True(t, sh.Execute(ctx, "/join lobby"))
	assert.Equal(t, []string{"lobby"}, d.CastRooms())

	// Already subscribed: no second subscribe.
	assert.True(t, sh.Execute(ctx, "/s lobby"))

	assert.True(t, sh.Execute(ctx, "/sub dev"))
	assert.True(t, sh.Execute(ctx, "/show dev"))
	assert.True(t, sh.Execute(ctx, "/cast lobby dev"))
	assert.True(t, sh.Execute(ctx, "  ratio 1:2  "))

	assert.Equal(t, []string{
		"sub lobby",
		"sub dev",
		"say dev ratio 1:2",
		"say lobby ratio 1:2",
	}, client.Calls())
	assert.Contains(t, out.String(), "Now casting exclusively to: lobby, dev")
}

func TestShellHideStopsCasting(t *testing.T) {
	client := newFakeClient()
	sh, d, _ := newTestShell(client, nil)
	ctx := context.Background()

	require.True(t, sh.Execute(ctx, "/select lobby"))
	require.True(t, sh.Execute(ctx, "/hide lobby"))
	assert.Empty(t, d.CastRooms())
	assert.Empty(t, d.ShownRooms())

	require.True(t, sh.Execute(ctx, "/unsub lobby"))
	assert.Empty(t, d.SubscribedRooms())
}

func TestShellQuit(t *testing.T) {
	client := newFakeClient()
	sh, _, out := newTestShell(client, nil)

	assert.False(t, sh.Execute(context.Background(), "/exit"))
	assert.Equal(t, []string{"disconnect"}, client.Calls())
	assert.Contains(t, out.String(), "Successfully disconnected.")
}

func TestShellFileTransfer(t *testing.T) {
	client := newFakeClient()
	files := &fakeFiles{}
	sh, _, out := newTestShell(client, files)
	ctx := context.Background()

	assert.True(t, sh.Execute(ctx, "/upload notes.txt"))
	assert.True(t, sh.Execute(ctx, "/upload taken"))
	assert.True(t, sh.Execute(ctx, "/download notes.txt"))

	assert.Equal(t, []string{"notes.txt", "taken"}, files.uploads)
	assert.Equal(t, []string{"notes.txt"}, files.downloads)
	assert.Contains(t, out.String(), "Upload successful.")
	assert.Contains(t, out.String(), "Unable to create file 'taken': exists")
	assert.Contains(t, out.String(), "Download successful: "+filepath.Join("downloads", "notes.txt"))
	assert.Empty(t, client.Calls())
}

func TestShellFileTransferDisabled(t *testing.T) {
	sh, _, out := newTestShell(newFakeClient(), nil)
	assert.True(t, sh.Execute(context.Background(), "/upload notes.txt"))
	assert.Contains(t, out.String(), "File transfer is not available.")
}

func TestHelpListsAliases(t *testing.T) {
	help := HelpText()
	assert.Contains(t, help, "/select (/j, /join, /s, /sel)")
	assert.Contains(t, help, "/exit (/quit)")
	assert.Contains(t, help, "/upload")
}

func TestRunDisconnectsAtEndOfInput(t *testing.T) {
	client := newFakeClient()
	sh, _, _ := newTestShell(client, nil)

	err := sh.Run(context.Background(), strings.NewReader("/create lobby\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"create lobby", "disconnect"}, client.Calls())
}

func TestRunStopsWhenSessionEnds(t *testing.T) {
	client := newFakeClient()
	sh, _, _ := newTestShell(client, nil)
	close(client.done)

	pr, pw := net.Pipe()
	defer pw.Close()
	defer pr.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- sh.Run(context.Background(), pr) }()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the session ended")
	}
}

// TestShellAgainstServer drives two shells through an in-process server.
func TestShellAgainstServer(t *testing.T) {
	srv, err := chatserver.NewServer(&config.ServerConfig{FileDir: t.TempDir()}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop() })

	cfg := &chatclient.Config{
		Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			client, server := net.Pipe()
			go srv.ServeConn(context.Background(), server, "pipe")
			return client, nil
		},
	}

	newUser := func(name string) (*Shell, *syncBuffer) {
		out := &syncBuffer{}
		d := NewDisplay(out, 0, false)
		c := chatclient.New(cfg, d, logger.Discard())
		require.NoError(t, c.Connect(context.Background(), name))
		t.Cleanup(func() { _ = c.Close() })
		downloads := t.TempDir()
		return NewShell(c, d, NewTransfers(cfg.DialFileTransfer, downloads, logger.Discard()), logger.Discard()), out
	}

	alice, aliceOut := newUser("alice")
	bob, bobOut := newUser("bob")
	ctx := context.Background()

	require.True(t, alice.Execute(ctx, "/create lobby"))
	require.True(t, alice.Execute(ctx, "/select lobby"))
	require.True(t, bob.Execute(ctx, "/select lobby"))
	require.True(t, bob.Execute(ctx, "hi alice:it's bob"))

	require.Eventually(t, func() bool {
		return strings.Contains(aliceOut.String(), "(lobby) bob: hi alice:it's bob")
	}, 2*time.Second, 10*time.Millisecond)

	local := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(local, []byte("shared notes"), 0644))
	require.True(t, bob.Execute(ctx, "/upload "+local))
	require.True(t, alice.Execute(ctx, "/download notes.txt"))
	assert.Contains(t, bobOut.String(), "Upload successful.")
	assert.Contains(t, aliceOut.String(), "Download successful:")

	require.True(t, bob.Execute(ctx, "/delete lobby"))
	require.Eventually(t, func() bool {
		return strings.Contains(aliceOut.String(), "Room 'lobby' was deleted.")
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, alice.Execute(ctx, "/quit"))
	assert.Equal(t, []string{"bob"}, srv.Hub().Names())
}

type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
