// Package protocol holds the text vocabulary shared by chat clients and
// servers: command and event verbs, field splitting, argument checks and the
// ack/nack reply format.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/amchat/internal/consts"
)

// Delimiter separates the fields of commands, events and list replies.
const Delimiter = ":"

// Command verbs, sent by the client on the MAIN channel.
const (
	VerbConnect             = "connect"
	VerbDisconnect          = "disconnect"
	VerbCreateRoom          = "create_room"
	VerbDeleteRoom          = "delete_room"
	VerbListRooms           = "list_rooms"
	VerbSubscribeRoom       = "subscribe_room"
	VerbUnsubscribeRoom     = "unsubscribe_room"
	VerbListRoomMembers     = "list_room_members"
	VerbSendMessageRoom     = "send_message_room"
	VerbSendMessagePersonal = "send_message_personal"

	VerbFileUp   = "file_up"
	VerbFileDown = "file_down"
)

// Event verbs, pushed by the server on the EVENT channel.
const (
	EventDisconnect      = "event_disconnect"
	EventMessageRoom     = "event_message_room"
	EventMessagePersonal = "event_message_personal"
	EventRoomDeleted     = "event_room_deleted"
)

// ErrUnknownCommand is returned for a verb with no registered shape.
var ErrUnknownCommand = errors.New("Unknown command.")

// ArgCountError reports a command with the wrong number of fields. Counts
// include the verb itself.
type ArgCountError struct {
	Min int
	Max int // negative means unbounded
	Got int
}

func (e *ArgCountError) Error() string {
	if e.Got < e.Min {
		return fmt.Sprintf("Command expects at least %d arguments.", e.Min)
	}
	return fmt.Sprintf("Command expects no more than %d arguments.", e.Max)
}

// Split breaks s on the delimiter into at most MaxCommandFields fields and
// trims surrounding whitespace from each. The last field keeps any further
// delimiters.
func Split(s string) []string {
	return SplitN(s, consts.MaxCommandFields)
}

// SplitN is Split with an explicit field limit; n <= 0 means no limit.
func SplitN(s string, n int) []string {
	if n <= 0 {
		n = -1
	}
	fields := strings.SplitN(s, Delimiter, n)
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

// Recombine joins fields[from:] back into one delimiter-separated field and
// returns the shortened slice. It restores free text that contained the
// delimiter.
func Recombine(fields []string, from int) []string {
	if from >= len(fields) {
		return fields
	}
	joined := strings.Join(fields[from:], Delimiter)
	out := make([]string, from+1)
	copy(out, fields[:from])
	out[from] = joined
	return out
}

// CheckArgCount verifies min <= len(fields) <= max. A negative max disables
// the upper bound.
func CheckArgCount(fields []string, min, max int) error {
	if len(fields) < min || (max >= 0 && len(fields) > max) {
		return &ArgCountError{Min: min, Max: max, Got: len(fields)}
	}
	return nil
}

// SplitList parses a delimiter-joined list reply. An empty message is an
// empty list.
func SplitList(message string) []string {
	if strings.TrimSpace(message) == "" {
		return []string{}
	}
	return SplitN(message, 0)
}

// JoinList builds a list reply message.
func JoinList(items []string) string {
	return strings.Join(items, Delimiter)
}

// ContainsDelimiter reports whether a name cannot be used as a single field.
func ContainsDelimiter(name string) bool {
	return strings.Contains(name, Delimiter)
}
