package chatserver

import (
	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
	"github.com/codefionn/amchat/internal/rooms"
)

// Fanout asks the session loop to push Event to each recipient before the
// reply is sent.
type Fanout struct {
	Event      string
	Recipients []string
	// OnFailure replaces the reply when any push fails. Nil keeps the reply.
	OnFailure *protocol.Response
}

// ChatCommandHandler implements the chat application. Its methods read and
// change server state and return the reply; they never touch the network.
// user is the name of the registered caller.
type ChatCommandHandler interface {
	Connect(name string, s *Session) protocol.Response
	Disconnect(user string, s *Session) protocol.Response
	CreateRoom(user, room string) protocol.Response
	DeleteRoom(user, room string) (protocol.Response, *Fanout)
	ListRooms(user string) protocol.Response
	SubscribeRoom(user, room string) protocol.Response
	UnsubscribeRoom(user, room string) protocol.Response
	ListRoomMembers(user, room string) protocol.Response
	SendMessageRoom(user, room, text string) (protocol.Response, *Fanout)
	SendMessagePersonal(user, to, text string) (protocol.Response, *Fanout)
}

var _ ChatCommandHandler = (*Application)(nil)

// Application is the default chat application over a Hub and a room
// registry.
type Application struct {
	hub   *Hub
	rooms *rooms.Registry
	log   *logger.Logger
}

// NewApplication creates the default handler.
func NewApplication(hub *Hub, reg *rooms.Registry, log *logger.Logger) *Application {
	return &Application{hub: hub, rooms: reg, log: logger.OrGlobal(log).WithPrefix("app")}
}

// Connect reserves name for s; taken names are refused.
func (a *Application) Connect(name string, s *Session) protocol.Response {
	if !a.hub.Reserve(name, s) {
		return protocol.Nackf("Username '%s' is taken.", name)
	}
	return protocol.Ack("")
}

// Disconnect unregisters user and evicts them from every room.
func (a *Application) Disconnect(user string, s *Session) protocol.Response {
	if !a.hub.Remove(user, s) {
		return protocol.Nackf("Unable to disconnect user '%s'. Please try again.", user)
	}
	return protocol.Ack("")
}

// CreateRoom adds an empty room.
func (a *Application) CreateRoom(user, room string) protocol.Response {
	if protocol.ContainsDelimiter(room) {
		return protocol.Nack("Room name shall not contain a colon.")
	}
	if room == "" {
		return protocol.Nack("Room name shall not be empty.")
	}
	if err := a.rooms.AddRoom(room); err != nil {
		return nack(err)
	}
	a.log.Debug("%s created room %q", user, room)
	return protocol.Ack("")
}

// DeleteRoom removes room and notifies every former member.
func (a *Application) DeleteRoom(user, room string) (protocol.Response, *Fanout) {
	members, err := a.rooms.DeleteRoom(room)
	if err != nil {
		return nack(err), nil
	}
	a.log.Debug("%s deleted room %q (%d members)", user, room, len(members))
	return protocol.Ack(""), &Fanout{
		Event:      protocol.RoomDeletedEvent(room),
		Recipients: members,
	}
}

// ListRooms replies with every room name.
func (a *Application) ListRooms(string) protocol.Response {
	return protocol.Ack(protocol.JoinList(a.rooms.ListRooms()))
}

// SubscribeRoom adds user to room.
func (a *Application) SubscribeRoom(user, room string) protocol.Response {
	if err := a.rooms.Subscribe(room, user); err != nil {
		return nack(err)
	}
	return protocol.Ack("")
}

// UnsubscribeRoom removes user from room.
func (a *Application) UnsubscribeRoom(user, room string) protocol.Response {
	if err := a.rooms.Unsubscribe(room, user); err != nil {
		return nack(err)
	}
	return protocol.Ack("")
}

// ListRoomMembers replies with the members of room.
func (a *Application) ListRoomMembers(_, room string) protocol.Response {
	members, err := a.rooms.ListMembers(room)
	if err != nil {
		return nack(err)
	}
	return protocol.Ack(protocol.JoinList(members))
}

// SendMessageRoom relays text to every other current member of room. The
// sender must be a member at the time of sending.
// SendMessageRoom relays text to the other members of room.
func (a *Application) SendMessageRoom(user, room, text string) (protocol.Response, *Fanout) {
	members, err := a.rooms.ListMembers(room)
	if err != nil {
		return nack(err), nil
	}

	recipients := make([]string, 0, len(members))
	isMember := false
	for _, m := range members {
		if m == user {
			isMember = true
			continue
		}
		recipients = append(recipients, m)
	}
	if !isMember {
		return protocol.Nackf("User '%s' is not a member of room '%s'.", user, room), nil
	}

	return protocol.Ack(""), &Fanout{
		Event:      protocol.RoomMessageEvent(room, user, text),
		Recipients: recipients,
	}
}

// SendMessagePersonal relays text to a single registered user.
func (a *Application) SendMessagePersonal(user, to, text string) (protocol.Response, *Fanout) {
	if _, ok := a.hub.Lookup(to); !ok {
		return protocol.Nackf("Username '%s' not found.", to), nil
	}
	failed := protocol.Nackf("User '%s' has disconnected.", to)
	return protocol.Ack(""), &Fanout{
		Event:      protocol.PersonalMessageEvent(user, text),
		Recipients: []string{to},
		OnFailure:  &failed,
	}
}

// nack replies with a registry error's text, which is already user-facing.
func nack(err error) protocol.Response {
	return protocol.Nack(err.Error())
}
