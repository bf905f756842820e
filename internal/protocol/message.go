package protocol

import "strings"

// shape describes the field layout of a verb. textFrom > 0 marks the index
// from which fields are rejoined as free text.
type shape struct {
	min      int
	max      int
	textFrom int
}

var commandShapes = map[string]shape{
	VerbConnect:             {min: 2, max: 2},
	VerbDisconnect:          {min: 1, max: 1},
	VerbCreateRoom:          {min: 2, max: 2},
	VerbDeleteRoom:          {min: 2, max: 2},
	VerbListRooms:           {min: 1, max: 1},
	VerbSubscribeRoom:       {min: 2, max: 2},
	VerbUnsubscribeRoom:     {min: 2, max: 2},
	VerbListRoomMembers:     {min: 2, max: 2},
	VerbSendMessageRoom:     {min: 3, max: -1, textFrom: 2},
	VerbSendMessagePersonal: {min: 3, max: -1, textFrom: 2},
	VerbFileUp:              {min: 2, max: 2},
	VerbFileDown:            {min: 2, max: 2},
}

var eventShapes = map[string]shape{
	EventDisconnect:      {min: 1, max: 1},
	EventMessageRoom:     {min: 4, max: -1, textFrom: 3},
	EventMessagePersonal: {min: 3, max: -1, textFrom: 2},
	EventRoomDeleted:     {min: 2, max: 2},
}

// Message is a parsed command or event: a lower-cased verb and its
// arguments, with any free-text argument already rejoined.
type Message struct {
	Verb string
	Args []string
}

// Arg returns argument i, or "" if absent.
func (m Message) Arg(i int) string {
	if i < 0 || i >= len(m.Args) {
		return ""
	}
	return m.Args[i]
}

// ParseCommand splits and validates a command string. The returned error's
// text is suitable as a nack message.
func ParseCommand(s string) (Message, error) {
	return parse(s, commandShapes)
}

// ParseEvent splits and validates an event string.
func ParseEvent(s string) (Message, error) {
	return parse(s, eventShapes)
}

// Verb returns the lower-cased first field of s without validating the rest.
func Verb(s string) string {
	return strings.ToLower(Split(s)[0])
}

func parse(s string, shapes map[string]shape) (Message, error) {
	fields := Split(s)
	verb := strings.ToLower(fields[0])

	sh, ok := shapes[verb]
	if !ok {
		return Message{Verb: verb}, ErrUnknownCommand
	}
	if err := CheckArgCount(fields, sh.min, sh.max); err != nil {
		return Message{Verb: verb}, err
	}
	if sh.textFrom > 0 {
		fields = Recombine(fields, sh.textFrom)
	}
	return Message{Verb: verb, Args: fields[1:]}, nil
}

// Command builders. Arguments are inserted verbatim.

// ConnectCommand builds a registration command.
func ConnectCommand(name string) string { return join(VerbConnect, name) }

// DisconnectCommand builds a graceful disconnect command.
func DisconnectCommand() string { return VerbDisconnect }

// CreateRoomCommand builds a create_room command.
func CreateRoomCommand(room string) string { return join(VerbCreateRoom, room) }

// DeleteRoomCommand builds a delete_room command.
func DeleteRoomCommand(room string) string { return join(VerbDeleteRoom, room) }

// ListRoomsCommand builds a list_rooms command.
func ListRoomsCommand() string { return VerbListRooms }

// SubscribeRoomCommand builds a subscribe_room command.
func SubscribeRoomCommand(room string) string { return join(VerbSubscribeRoom, room) }

// UnsubscribeRoomCommand builds an unsubscribe_room command.
func UnsubscribeRoomCommand(room string) string { return join(VerbUnsubscribeRoom, room) }

// ListRoomMembersCommand builds a list_room_members command.
func ListRoomMembersCommand(room string) string { return join(VerbListRoomMembers, room) }

// SendMessageRoomCommand builds a room message command.
func SendMessageRoomCommand(room, text string) string {
	return join(VerbSendMessageRoom, room, text)
}

// SendMessagePersonalCommand builds a personal message command.
func SendMessagePersonalCommand(to, text string) string {
	return join(VerbSendMessagePersonal, to, text)
}

// FileUpCommand builds an upload request for the file transfer mode.
func FileUpCommand(name string) string { return join(VerbFileUp, name) }

// FileDownCommand builds a download request for the file transfer mode.
func FileDownCommand(name string) string { return join(VerbFileDown, name) }

// Event builders.

// DisconnectEvent tells a client it has been removed by the server.
func DisconnectEvent() string { return EventDisconnect }

// RoomMessageEvent relays a room message.
func RoomMessageEvent(room, from, text string) string {
	return join(EventMessageRoom, room, from, text)
}

// PersonalMessageEvent relays a personal message.
func PersonalMessageEvent(from, text string) string {
	return join(EventMessagePersonal, from, text)
}

// RoomDeletedEvent notifies a former member that a room is gone.
func RoomDeletedEvent(room string) string {
	return join(EventRoomDeleted, room)
}

func join(fields ...string) string {
	return strings.Join(fields, Delimiter)
}
