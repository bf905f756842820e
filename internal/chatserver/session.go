package chatserver

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/codefionn/amchat/internal/amtcp"
	"github.com/codefionn/amchat/internal/codec"
	"github.com/codefionn/amchat/internal/consts"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
)

// Session is the server-side handle of one chat connection. Replies and
// events go out through its Muxer; commands are read raw.
type Session struct {
	id     string
	remote string
	conn   io.ReadWriteCloser
	mux    *amtcp.Muxer
	log    *logger.Logger

	mu   sync.Mutex
	name string

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newSession(id, remote string, conn io.ReadWriteCloser, log *logger.Logger) *Session {
	return &Session{
		id:     id,
		remote: remote,
		conn:   conn,
		mux:    amtcp.NewMuxer(conn, 0),
		log:    log,
		done:   make(chan struct{}),
	}
}

// ID returns the connection id.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer address as reported by the transport.
func (s *Session) RemoteAddr() string {
	return s.remote
}

// Name returns the registered user name, or "" before registration.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// Push sends an event string on the EVENT channel.
func (s *Session) Push(event string) error {
	return codec.WriteString(s.mux.Event(), event)
}

func (s *Session) reply(resp protocol.Response) error {
	return codec.WriteString(s.mux.Main(), protocol.EncodeReply(resp))
}

func (s *Session) readCommand() (string, error) {
	return codec.ReadString(s.mux)
}

// kickTimeout bounds how long Kick waits for event_disconnect to be written
// to a peer that has stopped reading.
var kickTimeout = consts.Timeout1Second

// Kick tells the client it is being disconnected and closes the transport.
// The session's own loop notices the closed stream and cleans up.
func (s *Session) Kick() error {
	pushed := make(chan error, 1)
	go func() {
		pushed <- s.Push(protocol.DisconnectEvent())
	}()

	var result error
	select {
	case err := <-pushed:
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("notify %s: %w", s.id, err))
		}
	case <-time.After(kickTimeout):
		result = multierror.Append(result, fmt.Errorf("notify %s: timed out after %s", s.id, kickTimeout))
	}
	if err := s.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close %s: %w", s.id, err))
	}
	return result
}

// Close closes the transport. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
		close(s.done)
	})
	return s.closeErr
}

// Done is closed once the transport has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// serveChat runs the chat protocol on s until the client disconnects or the
// transport fails.
func (srv *Server) serveChat(s *Session) {
	defer s.Close()

	name, ok := srv.register(s)
	if !ok {
		return
	}
	log := s.log.WithPrefix(name)

	registered := true
	defer func() {
		if registered {
			if resp := srv.handler.Disconnect(name, s); !resp.Success {
				log.Warn("cleanup after disconnect: %s", resp.Message)
			}
			log.Info("client disconnected")
		}
	}()

	for {
		command, err := s.readCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("read command: %v", err)
			}
			return
		}

		msg, err := protocol.ParseCommand(command)
		var resp protocol.Response
		if err != nil {
			resp = protocol.Nack(err.Error())
			if errors.Is(err, protocol.ErrUnknownCommand) {
				log.Debug("unknown command %q", command)
			}
		} else {
			resp = srv.dispatch(name, s, msg)
		}

		if msg.Verb == protocol.VerbDisconnect && resp.Success {
			registered = false
		}

		srv.metrics.commandAnswered(metricVerb(msg.Verb), resp.Success)
		if err := s.reply(resp); err != nil {
			log.Debug("send reply: %v", err)
			return
		}

		if !registered {
			log.Info("client disconnected gracefully")
			return
		}
	}
}

// register handles the AwaitingRegistration state: exactly one connect
// command, answered with ack or nack.
func (srv *Server) register(s *Session) (string, bool) {
	command, err := s.readCommand()
	if err != nil {
		s.log.Debug("client disconnected before trying to register: %v", err)
		return "", false
	}

	fields := protocol.SplitN(command, 2)
	name := ""
	var resp protocol.Response
	switch {
	case strings.ToLower(fields[0]) != protocol.VerbConnect:
		resp = protocol.Nack("Expected connection request.")
	case protocol.CheckArgCount(fields, 2, 2) != nil:
		resp = protocol.Nack(protocol.CheckArgCount(fields, 2, 2).Error())
	case protocol.ContainsDelimiter(fields[1]):
		resp = protocol.Nackf("Name shall not contain the delimiter character '%s'.", protocol.Delimiter)
	case fields[1] == "":
		resp = protocol.Nack("Name shall not be empty.")
	default:
		name = fields[1]
		resp = srv.handler.Connect(name, s)
	}

	srv.metrics.commandAnswered(protocol.VerbConnect, resp.Success)
	if err := s.reply(resp); err != nil {
		s.log.Debug("send registration reply: %v", err)
		if resp.Success {
			srv.handler.Disconnect(name, s)
		}
		return "", false
	}
	if !resp.Success {
		s.log.Debug("unable to register client %q: %s", name, resp.Message)
		return "", false
	}

	s.setName(name)
	s.log.Info("client %q connected from %s", name, s.remote)
	return name, true
}

// dispatch routes a parsed command to the handler and performs any event
// pushes it asks for before the reply is sent.
func (srv *Server) dispatch(user string, s *Session, msg protocol.Message) protocol.Response {
	h := srv.handler

	switch msg.Verb {
	case protocol.VerbDisconnect:
		return h.Disconnect(user, s)
	case protocol.VerbCreateRoom:
		return h.CreateRoom(user, msg.Arg(0))
	case protocol.VerbDeleteRoom:
		return srv.deliver(h.DeleteRoom(user, msg.Arg(0)))
	case protocol.VerbListRooms:
		return h.ListRooms(user)
	case protocol.VerbSubscribeRoom:
		return h.SubscribeRoom(user, msg.Arg(0))
	case protocol.VerbUnsubscribeRoom:
		return h.UnsubscribeRoom(user, msg.Arg(0))
	case protocol.VerbListRoomMembers:
		return h.ListRoomMembers(user, msg.Arg(0))
	case protocol.VerbSendMessageRoom:
		return srv.deliver(h.SendMessageRoom(user, msg.Arg(0), msg.Arg(1)))
	case protocol.VerbSendMessagePersonal:
		return srv.deliver(h.SendMessagePersonal(user, msg.Arg(0), msg.Arg(1)))
	default:
		return protocol.Nack(protocol.ErrUnknownCommand.Error())
	}
}

// deliver pushes f's event to every recipient concurrently and waits for all
// of them. Failed pushes are logged; they change the reply only when f says
// so.
func (srv *Server) deliver(resp protocol.Response, f *Fanout) protocol.Response {
	if f == nil || len(f.Recipients) == 0 {
		return resp
	}
	verb := protocol.Verb(f.Event)

	var missing error
	var g multierror.Group
	for _, name := range f.Recipients {
		target, ok := srv.hub.Lookup(name)
		if !ok {
			err := fmt.Errorf("user %q has no live connection", name)
			srv.metrics.eventPushed(verb, err)
			missing = multierror.Append(missing, err)
			continue
		}
		g.Go(func() error {
			err := target.Push(f.Event)
			srv.metrics.eventPushed(verb, err)
			if err != nil {
				return fmt.Errorf("push %s to %q: %w", verb, name, err)
			}
			return nil
		})
	}

	result := multierror.Append(g.Wait(), missing)
	if err := result.ErrorOrNil(); err != nil {
		srv.log.Warn("event delivery incomplete: %v", err)
		if f.OnFailure != nil {
			return *f.OnFailure
		}
	}
	return resp
}

func metricVerb(verb string) string {
	switch verb {
	case protocol.VerbConnect, protocol.VerbDisconnect, protocol.VerbCreateRoom,
		protocol.VerbDeleteRoom, protocol.VerbListRooms, protocol.VerbSubscribeRoom,
		protocol.VerbUnsubscribeRoom, protocol.VerbListRoomMembers,
		protocol.VerbSendMessageRoom, protocol.VerbSendMessagePersonal:
		return verb
	default:
		return "unknown"
	}
}
