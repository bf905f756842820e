package chatclient

// ChatEventSink receives server events. Methods are called from the client's
// event goroutine, one at a time, in the order the server sent them.
type ChatEventSink interface {
	// OnRoomMessage is called for a message another member sent to room
	OnRoomMessage(room, from, text string)
	// OnPersonalMessage is called for a message addressed to this user
	OnPersonalMessage(from, text string)
	// OnRoomDeleted is called when a room this user belonged to is deleted
	OnRoomDeleted(room string)
	// OnDisconnect is called when the server ends the session or the
	// connection drops. It is not called after Disconnect or Close.
	OnDisconnect()
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) OnRoomMessage(room, from, text string) {}
func (NopSink) OnPersonalMessage(from, text string)   {}
func (NopSink) OnRoomDeleted(room string)             {}
func (NopSink) OnDisconnect()                         {}
