package chatclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/codefionn/amchat/internal/amtcp"
	"github.com/codefionn/amchat/internal/codec"
	"github.com/codefionn/amchat/internal/config"
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
	"github.com/codefionn/amchat/internal/transport"
)

// State represents the current state of the chat session
type State int32

const (
	// StateDisconnected indicates there is no open transport
	StateDisconnected State = iota
	// StateConnected indicates the transport is open and registration is pending
	StateConnected
	// StateActive indicates the server accepted the username
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

var (
	// ErrDisconnected is returned when the transport fails mid-command. The
	// session is torn down before it is returned.
	ErrDisconnected = errors.New("disconnected from server")
	// ErrNotActive is returned by commands issued outside an active session.
	ErrNotActive = errors.New("not connected to server")
	// ErrAlreadyConnected is returned by Connect while a session is open.
	ErrAlreadyConnected = errors.New("already connected")
)

// CommandError is a nack from the server.
type CommandError struct {
	Verb    string
	Message string
}

func (e *CommandError) Error() string {
	return e.Message
}

// Config holds client configuration
type Config struct {
	// Dial opens the byte stream to the server
	Dial func(ctx context.Context) (io.ReadWriteCloser, error)
	// Capacity sizes the demuxer's channel buffers; zero selects the default
	Capacity int
	// OnStateChange is called after every state transition
	OnStateChange func(State)
}

// NewConfig builds a Config that dials the server described by cc: through
// the WebSocket gateway when WebSocketURL is set, otherwise over TCP with
// optional TLS.
func NewConfig(cc config.ClientConfig) (*Config, error) {
	if cc.WebSocketURL != "" {
		var tlsCfg *tls.Config
		if strings.HasPrefix(strings.ToLower(cc.WebSocketURL), "wss://") {
			cfg, err := transport.ClientTLSConfig(cc.ServerName, cc.CAFile, cc.InsecureSkipVerify)
			if err != nil {
				return nil, err
			}
			tlsCfg = cfg
		}
		url := cc.WebSocketURL
		return &Config{
			Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
				conn, err := transport.DialWebSocket(ctx, url, tlsCfg)
				if err != nil {
					return nil, err
				}
				return conn, nil
			},
		}, nil
	}

	addr := net.JoinHostPort(cc.Host, strconv.Itoa(cc.Port))
	var tlsCfg *tls.Config
	if cc.TLS {
		serverName := cc.ServerName
		if serverName == "" {
			serverName = cc.Host
		}
		cfg, err := transport.ClientTLSConfig(serverName, cc.CAFile, cc.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
		tlsCfg = cfg
	}
	return &Config{
		Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
			conn, err := transport.Dial(ctx, addr, tlsCfg)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	}, nil
}

// DialFileTransfer opens a separate connection to the same server and
// switches it to file-transfer mode.
func (c *Config) DialFileTransfer(ctx context.Context) (io.ReadWriteCloser, error) {
	if c.Dial == nil {
		return nil, errors.New("no dialer configured")
	}
	conn, err := c.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if err := amtcp.WriteMode(conn, amtcp.ModeFileTransfer); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// session is one registered connection. A Client opens a new session for
// every successful Connect.
type session struct {
	conn  io.ReadWriteCloser
	demux *amtcp.Demuxer
	done  chan struct{}

	// leaving is set once the local side asked to end the session, so the
	// event loop does not report the resulting EOF as a forced disconnect
	leaving atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Client speaks the chat protocol to one server. Commands are serialized;
// events are delivered to the sink from a background goroutine.
type Client struct {
	cfg  *Config
	sink ChatEventSink
	log  *logger.Logger

	state atomic.Int32

	// cmdMu keeps exactly one command in flight
	cmdMu sync.Mutex

	mu       sync.Mutex
	sess     *session
	username string
}

// New creates a client. A nil sink discards events.
func New(cfg *Config, sink ChatEventSink, log *logger.Logger) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Client{
		cfg:  cfg,
		sink: sink,
		log:  logger.OrGlobal(log).WithPrefix("chatclient"),
	}
}

// State returns the current session state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsActive reports whether the server accepted the username and the session
// is still open.
func (c *Client) IsActive() bool {
	return c.State() == StateActive
}

// Username returns the registered name, or "" outside an active session.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Done is closed when the current session ends. Outside a session it returns
// a closed channel.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return closedChan
	}
	return c.sess.done
}

// Connect dials the server and registers username. On any failure the
// transport is closed and the client stays disconnected; a rejected name is
// returned as a *CommandError.
func (c *Client) Connect(ctx context.Context, username string) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.State() != StateDisconnected {
		return ErrAlreadyConnected
	}
	if c.cfg.Dial == nil {
		return errors.New("no dialer configured")
	}

	conn, err := c.cfg.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	return c.start(conn, username)
}

// ConnectConn registers username over an already open stream. The client
// takes ownership of conn.
func (c *Client) ConnectConn(conn io.ReadWriteCloser, username string) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.State() != StateDisconnected {
		return ErrAlreadyConnected
	}
	return c.start(conn, username)
}

func (c *Client) start(conn io.ReadWriteCloser, username string) error {
	if err := amtcp.WriteMode(conn, amtcp.ModeChat); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	sess := &session{
		conn:  conn,
		demux: amtcp.NewDemuxer(conn, c.cfg.Capacity, c.log),
		done:  make(chan struct{}),
	}
	sess.demux.Start()

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	c.setState(StateConnected)

	resp, err := c.roundTrip(sess, protocol.ConnectCommand(username))
	if err != nil {
		return err
	}
	if !resp.Success {
		sess.leaving.Store(true)
		c.teardown(sess, false)
		return &CommandError{Verb: protocol.VerbConnect, Message: resp.Message}
	}

	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return fmt.Errorf("%w: session closed during registration", ErrDisconnected)
	}
	c.username = username
	c.mu.Unlock()
	c.setState(StateActive)
	c.log.Info("registered as %s", username)

	go c.eventLoop(sess)
	return nil
}

// Send issues a raw command string and returns the parsed reply. A
// successful disconnect command ends the session.
func (c *Client) Send(command string) (protocol.Response, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	sess := c.active()
	if sess == nil {
		return protocol.Response{}, ErrNotActive
	}

	leaving := protocol.Verb(command) == protocol.VerbDisconnect
	if leaving {
		sess.leaving.Store(true)
	}
	resp, err := c.roundTrip(sess, command)
	if err != nil {
		return resp, err
	}
	if leaving {
		if resp.Success {
			c.teardown(sess, false)
		} else {
			sess.leaving.Store(false)
		}
	}
	return resp, nil
}

// Disconnect ends the session gracefully.
func (c *Client) Disconnect() error {
	_, err := c.expectAck(protocol.DisconnectCommand())
	return err
}

// CreateRoom creates a room.
func (c *Client) CreateRoom(room string) error {
	_, err := c.expectAck(protocol.CreateRoomCommand(room))
	return err
}

// DeleteRoom deletes a room; every member receives a room-deleted event.
func (c *Client) DeleteRoom(room string) error {
	_, err := c.expectAck(protocol.DeleteRoomCommand(room))
	return err
}

// ListRooms returns the names of all rooms.
func (c *Client) ListRooms() ([]string, error) {
	msg, err := c.expectAck(protocol.ListRoomsCommand())
	if err != nil {
		return nil, err
	}
	return protocol.SplitList(msg), nil
}

// SubscribeRoom joins a room.
func (c *Client) SubscribeRoom(room string) error {
	_, err := c.expectAck(protocol.SubscribeRoomCommand(room))
	return err
}

// UnsubscribeRoom leaves a room.
func (c *Client) UnsubscribeRoom(room string) error {
	_, err := c.expectAck(protocol.UnsubscribeRoomCommand(room))
	return err
}

// ListRoomMembers returns the usernames subscribed to room.
func (c *Client) ListRoomMembers(room string) ([]string, error) {
	msg, err := c.expectAck(protocol.ListRoomMembersCommand(room))
	if err != nil {
		return nil, err
	}
	return protocol.SplitList(msg), nil
}

// SendRoomMessage broadcasts text to the other members of room.
func (c *Client) SendRoomMessage(room, text string) error {
	_, err := c.expectAck(protocol.SendMessageRoomCommand(room, text))
	return err
}

// SendPersonalMessage sends text to a single user.
func (c *Client) SendPersonalMessage(to, text string) error {
	_, err := c.expectAck(protocol.SendMessagePersonalCommand(to, text))
	return err
}

// Close tears the session down without notifying the server. It is safe to
// call more than once and from any goroutine.
func (c *Client) Close() error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	sess.leaving.Store(true)
	return c.teardown(sess, false)
}

func (c *Client) expectAck(command string) (string, error) {
	resp, err := c.Send(command)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &CommandError{Verb: protocol.Verb(command), Message: resp.Message}
	}
	return resp.Message, nil
}

func (c *Client) active() *session {
	if !c.IsActive() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// roundTrip writes one command and waits for its reply on the MAIN channel.
// The caller holds cmdMu.
func (c *Client) roundTrip(sess *session, command string) (protocol.Response, error) {
	c.log.Debug("-> %s", command)
	if err := codec.WriteString(sess.demux, command); err != nil {
		c.teardown(sess, false)
		return protocol.Response{}, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	reply, err := codec.ReadString(sess.demux.Main())
	if err != nil {
		c.teardown(sess, false)
		return protocol.Response{}, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	c.log.Debug("<- %s", reply)
	return protocol.ParseReply(reply), nil
}

func (c *Client) eventLoop(sess *session) {
	events := sess.demux.Event()
	for {
		raw, err := codec.ReadString(events)
		select {
		case <-sess.done:
			return
		default:
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.log.Info("server closed the connection")
			} else {
				c.log.Warn("event channel failed: %v", err)
			}
			c.teardown(sess, !sess.leaving.Load())
			return
		}
		if !c.dispatch(sess, raw) {
			return
		}
	}
}

// dispatch delivers one event and reports whether the loop should continue.
func (c *Client) dispatch(sess *session, raw string) bool {
	msg, err := protocol.ParseEvent(raw)
	if err != nil {
		c.log.Warn("ignoring malformed event %q: %v", raw, err)
		return true
	}

	switch msg.Verb {
	case protocol.EventDisconnect:
		c.log.Info("disconnected by server")
		c.teardown(sess, true)
		return false
	case protocol.EventMessageRoom:
		c.sink.OnRoomMessage(msg.Arg(0), msg.Arg(1), msg.Arg(2))
	case protocol.EventMessagePersonal:
		c.sink.OnPersonalMessage(msg.Arg(0), msg.Arg(1))
	case protocol.EventRoomDeleted:
		c.sink.OnRoomDeleted(msg.Arg(0))
	}
	return true
}

// teardown closes sess once. notify reports the end of the session to the
// sink; only the first caller decides.
func (c *Client) teardown(sess *session, notify bool) error {
	sess.closeOnce.Do(func() {
		sess.closeErr = sess.conn.Close()
		close(sess.done)

		c.mu.Lock()
		if c.sess == sess {
			c.sess = nil
			c.username = ""
		}
		c.mu.Unlock()
		c.setState(StateDisconnected)

		if notify {
			c.sink.OnDisconnect()
		}
	})
	return sess.closeErr
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s && c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}
