package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/codefionn/amchat/internal/chatclient"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
)

// ChatClient is the part of *chatclient.Client the shell drives.
type ChatClient interface {
	Disconnect() error
	CreateRoom(room string) error
	DeleteRoom(room string) error
	ListRooms() ([]string, error)
	SubscribeRoom(room string) error
	UnsubscribeRoom(room string) error
	ListRoomMembers(room string) ([]string, error)
	SendRoomMessage(room, text string) error
	SendPersonalMessage(to, text string) error
	Done() <-chan struct{}
}

// FileTransfer runs uploads and downloads on connections of their own.
type FileTransfer interface {
	Upload(ctx context.Context, localPath string) (protocol.Response, error)
	Download(ctx context.Context, name string) (protocol.Response, string, error)
}

type command struct {
	names []string
	usage string
	run   func(s *Shell, ctx context.Context, args []string) bool
}

var (
	commands     []command
	commandIndex map[string]*command
)

func init() {
	commands = []command{
		{[]string{"/create"}, "Create a room. Usage: /create roomname", (*Shell).create},
		{[]string{"/delete"}, "Delete a room. Usage: /delete roomname", (*Shell).deleteRoom},
		{[]string{"/rooms", "/r"}, "List all rooms. Usage: /rooms", (*Shell).rooms},
		{[]string{"/members", "/m"}, "List the members of the specified room. Usage: /members roomname", (*Shell).members},
		{[]string{"/subscribe", "/sub"}, "Begin receiving room broadcasts (use /select or /show to see them). Usage: /subscribe roomname", (*Shell).subscribe},
		{[]string{"/unsubscribe", "/unsub"}, "Stop receiving room broadcasts. Usage: /unsubscribe roomname", (*Shell).unsubscribe},
		{[]string{"/select", "/sel", "/s", "/join", "/j"}, "Show and cast to the specified room, subscribing to the room if needed. Usage: /select roomname", (*Shell).selectRoom},
		{[]string{"/show"}, "Begin displaying messages from the specified room. Usage: /show roomname", (*Shell).show},
		{[]string{"/hide"}, "Stop displaying messages from the specified room. Usage: /hide roomname", (*Shell).hide},
		{[]string{"/cast", "/c"}, "Specify which room(s) will be sent your messages. Usage: /cast roomname [roomname2...]", (*Shell).castRooms},
		{[]string{"/private", "/p"}, "Send a private message. Usage: /private username message", (*Shell).private},
		{[]string{"/upload"}, "Upload a file. Usage: /upload localpath", (*Shell).upload},
		{[]string{"/download"}, "Download a file. Usage: /download remotename", (*Shell).download},
		{[]string{"/help", "/h"}, "Show this help. Usage: /help", (*Shell).help},
		{[]string{"/exit", "/quit"}, "Disconnect from the server. Usage: /quit", (*Shell).quit},
	}

	commandIndex = make(map[string]*command)
	for i := range commands {
		for _, name := range commands[i].names {
			commandIndex[name] = &commands[i]
		}
	}
}

// Shell is the interactive front end: it turns input lines into chat
// commands and reports the outcome on the display.
type Shell struct {
	client  ChatClient
	display *Display
	files   FileTransfer
	log     *logger.Logger
}

// NewShell creates a shell. files may be nil to disable /upload and
// /download.
func NewShell(client ChatClient, display *Display, files FileTransfer, log *logger.Logger) *Shell {
	return &Shell{
		client:  client,
		display: display,
		files:   files,
		log:     logger.OrGlobal(log).WithPrefix("shell"),
	}
}

// Run reads lines from in until /exit, end of input, ctx cancellation or the
// end of the session. End of input disconnects gracefully.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.client.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			s.quit(ctx, nil)
			return nil
		case line := <-lines:
			if !s.Execute(ctx, line) {
				return nil
			}
		}
	}
}

// Execute handles one input line and reports whether the session continues.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		return s.broadcast(line)
	}

	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	cmd, ok := commandIndex[name]
	if !ok {
		s.display.Error("Unknown command: %s", name)
		return true
	}
	s.log.Debug("running %s", name)
	return cmd.run(s, ctx, fields)
}

// report prints err and reports whether the session continues.
func (s *Shell) report(err error) bool {
	var nack *chatclient.CommandError
	switch {
	case errors.As(err, &nack):
		s.display.Error("%s", nack.Message)
		return true
	case errors.Is(err, chatclient.ErrDisconnected), errors.Is(err, chatclient.ErrNotActive):
		s.display.Error("Server disconnected without replying.")
		s.display.Reset()
		return false
	default:
		s.display.Error("%v", err)
		return true
	}
}

func (s *Shell) usage(args []string) {
	if cmd, ok := commandIndex[strings.ToLower(args[0])]; ok {
		s.display.Info("%s", cmd.usage)
	}
}

func (s *Shell) broadcast(text string) bool {
	rooms := s.display.CastRooms()
	if len(rooms) == 0 {
		s.display.Error("No rooms selected for casting. Use /select or /cast")
		return true
	}
	for _, room := range rooms {
		if err := s.client.SendRoomMessage(room, text); err != nil {
			if !s.report(err) {
				return false
			}
		}
	}
	return true
}

func (s *Shell) create(_ context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	if err := s.client.CreateRoom(args[1]); err != nil {
		return s.report(err)
	}
	s.display.Info("Created room '%s'.", args[1])
	return true
}

func (s *Shell) deleteRoom(_ context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	if err := s.client.DeleteRoom(args[1]); err != nil {
		return s.report(err)
	}
	s.display.Info("Deleted room '%s'.", args[1])
	return true
}

func (s *Shell) rooms(_ context.Context, args []string) bool {
	if len(args) != 1 {
		s.usage(args)
		return true
	}
	rooms, err := s.client.ListRooms()
	if err != nil {
		return s.report(err)
	}
	s.display.List("Room List:", rooms)
	return true
}

func (s *Shell) members(_ context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	members, err := s.client.ListRoomMembers(args[1])
	if err != nil {
		return s.report(err)
	}
	s.display.List(fmt.Sprintf("Room '%s' Members:", args[1]), members)
	return true
}

func (s *Shell) subscribe(_ context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	if err := s.client.SubscribeRoom(args[1]); err != nil {
		return s.report(err)
	}
	s.display.Subscribed(args[1])
	s.display.Info("Subscribed to room '%s'.", args[1])
	return true
}

func (s *Shell) unsubscribe(_ context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	if err := s.client.UnsubscribeRoom(args[1]); err != nil {
		return s.report(err)
	}
	s.display.Unsubscribed(args[1])
	s.display.Info("Unsubscribed from room '%s'.", args[1])
	return true
}

func (s *Shell) selectRoom(_ context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	room := args[1]
	if !s.display.IsSubscribed(room) {
		if err := s.client.SubscribeRoom(room); err != nil {
			return s.report(err)
		}
		s.display.Subscribed(room)
		s.display.Info("Subscribed to room '%s'.", room)
	}
	s.display.Select(room)
	s.display.Info("Now showing and casting room '%s' exclusively.", room)
	return true
}

func (s *Shell) show(_ context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	if err := s.display.Show(args[1]); err != nil {
		s.display.Error("%v", err)
		return true
	}
	s.display.Info("Now showing room '%s'.", args[1])
	return true
}

func (s *Shell) hide(_ context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	if err := s.display.Hide(args[1]); err != nil {
		s.display.Error("%v", err)
		return true
	}
	s.display.Info("Now hiding room '%s'.", args[1])
	return true
}

func (s *Shell) castRooms(_ context.Context, args []string) bool {
	if len(args) < 2 {
		s.usage(args)
		return true
	}
	rooms := args[1:]
	if errs := s.display.Cast(rooms); len(errs) > 0 {
		for _, err := range errs {
			s.display.Error("%v", err)
		}
		return true
	}
	s.display.Info("Now casting exclusively to: %s", strings.Join(rooms, ", "))
	return true
}

func (s *Shell) private(_ context.Context, args []string) bool {
	if len(args) < 3 {
		s.usage(args)
		return true
	}
	if err := s.client.SendPersonalMessage(args[1], strings.Join(args[2:], " ")); err != nil {
		return s.report(err)
	}
	return true
}

func (s *Shell) upload(ctx context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	if s.files == nil {
		s.display.Error("File transfer is not available.")
		return true
	}
	resp, err := s.files.Upload(ctx, args[1])
	switch {
	case err != nil:
		s.display.Error("Upload failed: %v", err)
	case !resp.Success:
		s.display.Error("%s", resp.Message)
	default:
		s.display.Info("Upload successful.")
	}
	return true
}

func (s *Shell) download(ctx context.Context, args []string) bool {
	if len(args) != 2 {
		s.usage(args)
		return true
	}
	if s.files == nil {
		s.display.Error("File transfer is not available.")
		return true
	}
	resp, path, err := s.files.Download(ctx, args[1])
	switch {
	case err != nil:
		s.display.Error("Download failed: %v", err)
	case !resp.Success:
		s.display.Error("%s", resp.Message)
	default:
		s.display.Info("Download successful: %s", path)
	}
	return true
}

func (s *Shell) help(_ context.Context, _ []string) bool {
	s.display.Info("%s", HelpText())
	return true
}

func (s *Shell) quit(_ context.Context, args []string) bool {
	if len(args) > 1 {
		s.usage(args)
		return true
	}
	if err := s.client.Disconnect(); err != nil {
		return s.report(err)
	}
	s.display.Reset()
	s.display.Info("Successfully disconnected.")
	return false
}

// HelpText lists every command with its aliases.
func HelpText() string {
	lines := make([]string, 0, len(commands)+2)
	lines = append(lines, "Commands:")
	for _, cmd := range commands {
		aliases := append([]string(nil), cmd.names[1:]...)
		sort.Strings(aliases)
		name := cmd.names[0]
		if len(aliases) > 0 {
			name += " (" + strings.Join(aliases, ", ") + ")"
		}
		lines = append(lines, "  "+name+"\n      "+cmd.usage)
	}
	lines = append(lines, "Anything else is sent to every room you cast to.")
	return strings.Join(lines, "\n")
}
