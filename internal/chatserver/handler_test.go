package chatserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/protocol"
	"github.com/codefionn/amchat/internal/rooms"
)

func newTestApplication(t *testing.T) (*Application, *Hub, *rooms.Registry) {
	t.Helper()
	reg := rooms.New(logger.Discard())
	hub := NewHub(reg, logger.Discard())
	return NewApplication(hub, reg, logger.Discard()), hub, reg
}

func TestApplicationRoomLifecycle(t *testing.T) {
	app, _, reg := newTestApplication(t)

	assert.Equal(t, protocol.Ack(""), app.CreateRoom("alice", "lobby"))
	assert.Equal(t, protocol.Nack("A room with the name 'lobby' already exists."), app.CreateRoom("alice", "lobby"))
	assert.Equal(t, protocol.Nack("Room name shall not contain a colon."), app.CreateRoom("alice", "a:b"))

	assert.Equal(t, protocol.Ack(""), app.SubscribeRoom("alice", "lobby"))
	assert.Equal(t, protocol.Ack(""), app.SubscribeRoom("bob", "lobby"))
	assert.Equal(t, protocol.Ack("alice:bob"), app.ListRoomMembers("alice", "lobby"))
	assert.Equal(t, protocol.Ack("lobby"), app.ListRooms("alice"))

	resp, fan := app.DeleteRoom("alice", "lobby")
	assert.Equal(t, protocol.Ack(""), resp)
	require.NotNil(t, fan)
	assert.Equal(t, "event_room_deleted:lobby", fan.Event)
	assert.Equal(t, []string{"alice", "bob"}, fan.Recipients)
	assert.Nil(t, fan.OnFailure)

	resp, fan = app.DeleteRoom("alice", "lobby")
	assert.Equal(t, protocol.Nack("No room with the name 'lobby' exists."), resp)
	assert.Nil(t, fan)
	assert.NoError(t, reg.Verify())
}

func TestApplicationListRoomsEmpty(t *testing.T) {
	app, _, _ := newTestApplication(t)
	assert.Equal(t, protocol.Ack(""), app.ListRooms("alice"))
}

func TestApplicationRoomMessageExcludesSender(t *testing.T) {
	app, _, _ := newTestApplication(t)
	require.True(t, app.CreateRoom("alice", "lobby").Success)
	require.True(t, app.SubscribeRoom("alice", "lobby").Success)
	require.True(t, app.SubscribeRoom("bob", "lobby").Success)
	require.True(t, app.SubscribeRoom("carol", "lobby").Success)

	resp, fan := app.SendMessageRoom("alice", "lobby", "hi: there")
	assert.True(t, resp.Success)
	require.NotNil(t, fan)
	assert.Equal(t, "event_message_room:lobby:alice:hi: there", fan.Event)
	assert.Equal(t, []string{"bob", "carol"}, fan.Recipients)

	resp, fan = app.SendMessageRoom("dave", "lobby", "let me in")
	assert.Equal(t, protocol.Nack("User 'dave' is not a member of room 'lobby'."), resp)
	assert.Nil(t, fan)

	resp, _ = app.SendMessageRoom("alice", "nowhere", "hello?")
	assert.Equal(t, protocol.Nack("No room with the name 'nowhere' exists."), resp)
}

func TestApplicationPersonalMessage(t *testing.T) {
	app, hub, _ := newTestApplication(t)

	resp, fan := app.SendMessagePersonal("alice", "bob", "hi")
	assert.Equal(t, protocol.Nack("Username 'bob' not found."), resp)
	assert.Nil(t, fan)

	require.True(t, hub.Reserve("bob", pipeSession(t, "b")))
	resp, fan = app.SendMessagePersonal("alice", "bob", "hi")
	assert.True(t, resp.Success)
	require.NotNil(t, fan)
	assert.Equal(t, "event_message_personal:alice:hi", fan.Event)
	assert.Equal(t, []string{"bob"}, fan.Recipients)
	require.NotNil(t, fan.OnFailure)
	assert.Equal(t, protocol.Nack("User 'bob' has disconnected."), *fan.OnFailure)
}

func TestApplicationConnectAndDisconnect(t *testing.T) {
	app, hub, _ := newTestApplication(t)
	s := pipeSession(t, "a")

	assert.Equal(t, protocol.Ack(""), app.Connect("alice", s))
	assert.Equal(t, protocol.Nack("Username 'alice' is taken."), app.Connect("alice", pipeSession(t, "b")))
	assert.Equal(t, protocol.Ack(""), app.Disconnect("alice", s))
	assert.Zero(t, hub.Count())
	assert.False(t, app.Disconnect("alice", s).Success)
}
