package filetransfer

import (
	"errors"
	"fmt"
	"io"

	"github.com/codefionn/amchat/internal/codec"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
)

// Server answers one transfer command per connection. All traffic is raw,
// without framing.
type Server struct {
	store *Store
	log   *logger.Logger
}

// NewServer creates a transfer server backed by store.
func NewServer(store *Store, log *logger.Logger) *Server {
	return &Server{store: store, log: logger.OrGlobal(log).WithPrefix("files")}
}

// Store returns the server's file store.
func (s *Server) Store() *Store {
	return s.store
}

// Serve reads a file_up or file_down command from rw and carries it out.
// The returned error is a transport failure; refused requests are answered
// with nack and return nil.
func (s *Server) Serve(rw io.ReadWriter) error {
	command, err := codec.ReadString(rw)
	if err != nil {
		return fmt.Errorf("read transfer command: %w", err)
	}

	msg, err := protocol.ParseCommand(command)
	if err != nil {
		return reply(rw, protocol.Nack(err.Error()))
	}

	switch msg.Verb {
	case protocol.VerbFileUp:
		return s.receive(rw, msg.Arg(0))
	case protocol.VerbFileDown:
		return s.send(rw, msg.Arg(0))
	default:
		s.log.Debug("unexpected command on transfer connection: %q", command)
		return reply(rw, protocol.Nack(protocol.ErrUnknownCommand.Error()))
	}
}

func (s *Server) receive(rw io.ReadWriter, name string) error {
	f, err := s.store.Create(name)
	if err != nil {
		return reply(rw, protocol.Nackf("Unable to create file '%s': %v", name, err))
	}
	complete := false
	defer func() {
		f.Close()
		if !complete {
			if err := s.store.Remove(name); err != nil {
				s.log.Warn("failed to remove partial upload %q: %v", name, err)
			}
		}
	}()

	if err := reply(rw, protocol.Ack("")); err != nil {
		return err
	}

	size, err := ReadSize(rw)
	if errors.Is(err, ErrEmptyFile) {
		return reply(rw, protocol.Nack(err.Error()))
	}
	if err != nil {
		return err
	}

	if err := Receive(f, rw, size); err != nil {
		if errors.Is(err, ErrWriteFailed) {
			s.log.Error("upload %q: %v", name, err)
			return reply(rw, protocol.Nack(err.Error()))
		}
		s.log.Info("client disconnected before upload of %q completed", name)
		return err
	}
	if err := f.Close(); err != nil {
		return reply(rw, protocol.Nackf("%s: %v", ErrWriteFailed, err))
	}

	complete = true
	s.log.Info("received %q (%d bytes)", name, size)
	return reply(rw, protocol.Ack(""))
}

func (s *Server) send(rw io.ReadWriter, name string) error {
	f, size, err := s.store.Open(name)
	if err != nil {
		return reply(rw, protocol.Nackf("Unable to open file '%s': %v", name, err))
	}
	defer f.Close()

	if size <= 0 {
		return reply(rw, protocol.Nack(ErrEmptyFile.Error()))
	}
	if err := reply(rw, protocol.Ack("")); err != nil {
		return err
	}
	if err := Send(rw, f, size); err != nil {
		return err
	}

	s.log.Info("sent %q (%d bytes)", name, size)
	return reply(rw, protocol.Ack(""))
}

func reply(w io.Writer, resp protocol.Response) error {
	return codec.WriteString(w, protocol.EncodeReply(resp))
}

func readReply(r io.Reader) (protocol.Response, error) {
	s, err := codec.ReadString(r)
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.ParseReply(s), nil
}
