package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
}

func newTestDisplay() (*Display, *bytes.Buffer) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, 0, false)
	d.now = fixedNow
	return d, &buf
}

func TestRoomMessagesOnlyForShownRooms(t *testing.T) {
	d, buf := newTestDisplay()
	d.Subscribed("lobby")
	d.Subscribed("dev")

	d.OnRoomMessage("lobby", "bob", "hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, d.Show("lobby"))
	d.OnRoomMessage("lobby", "bob", "hello")
	d.OnRoomMessage("dev", "carol", "still hidden")
	assert.Equal(t, "15:04:05 (lobby) bob: hello\n", buf.String())
}

func TestPersonalMessagesAlwaysShown(t *testing.T) {
	d, buf := newTestDisplay()
	d.OnPersonalMessage("bob", "psst")
	assert.Equal(t, "15:04:05 (pm) bob: psst\n", buf.String())
}

func TestShowHideRules(t *testing.T) {
	d, _ := newTestDisplay()

	assert.EqualError(t, d.Show("lobby"), "You are not subscribed to room 'lobby'. Use /subscribe.")
	assert.EqualError(t, d.Hide("lobby"), "You are not subscribed to room 'lobby'. Use /subscribe.")

	d.Subscribed("lobby")
	assert.EqualError(t, d.Hide("lobby"), "Already hiding messages from room 'lobby'.")
	require.NoError(t, d.Show("lobby"))
	assert.EqualError(t, d.Show("lobby"), "Already showing messages from room 'lobby'.")

	require.Empty(t, d.Cast([]string{"lobby"}))
	require.NoError(t, d.Hide("lobby"))
	assert.Empty(t, d.CastRooms(), "hiding a room stops casting to it")
}

func TestCastRequiresSubscribedAndShown(t *testing.T) {
	d, _ := newTestDisplay()
	d.Subscribed("lobby")
	d.Subscribed("dev")
	require.NoError(t, d.Show("lobby"))
	d.Select("lobby")

	errs := d.Cast([]string{"lobby", "dev", "ops"})
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "You must be showing room 'dev' to cast to it. Use /show.")
	assert.EqualError(t, errs[1], "You are not subscribed to room 'ops'. Use /subscribe.")
	assert.Equal(t, []string{"lobby"}, d.CastRooms(), "a failed cast changes nothing")

	require.NoError(t, d.Show("dev"))
	require.Empty(t, d.Cast([]string{"dev", "lobby"}))
	assert.Equal(t, []string{"dev", "lobby"}, d.CastRooms())
}

func TestSelectIsExclusive(t *testing.T) {
	d, _ := newTestDisplay()
	d.Subscribed("lobby")
	d.Subscribed("dev")
	d.Select("lobby")
	d.Select("dev")

	assert.Equal(t, []string{"dev"}, d.ShownRooms())
	assert.Equal(t, []string{"dev"}, d.CastRooms())
	assert.Equal(t, []string{"dev", "lobby"}, d.SubscribedRooms())
}

func TestRoomDeletedForgetsRoom(t *testing.T) {
	d, buf := newTestDisplay()
	d.Subscribed("lobby")
	d.Subscribed("dev")
	d.Select("lobby")

	d.OnRoomDeleted("lobby")
	assert.Equal(t, []string{"dev"}, d.SubscribedRooms())
	assert.Empty(t, d.ShownRooms())
	assert.Empty(t, d.CastRooms())
	assert.Contains(t, buf.String(), "Room 'lobby' was deleted.")
}

func TestDisconnectClearsEverything(t *testing.T) {
	d, buf := newTestDisplay()
	d.Subscribed("lobby")
	d.Select("lobby")

	d.OnDisconnect()
	assert.Empty(t, d.SubscribedRooms())
	assert.Empty(t, d.ShownRooms())
	assert.Empty(t, d.CastRooms())
	assert.Contains(t, buf.String(), "Server disconnected.")
}

func TestListFormatting(t *testing.T) {
	d, buf := newTestDisplay()
	d.List("Room List:", []string{"dev", "lobby"})
	assert.Equal(t, "Room List:\n    - dev\n    - lobby\n", buf.String())
}

func TestLongLinesWrap(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, 20, false)
	d.Info("the quick brown fox jumps over the lazy dog")

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len(line), 20, line)
	}
}

func TestColorOutputKeepsText(t *testing.T) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, 0, true)
	d.OnPersonalMessage("bob", "psst")
	assert.Contains(t, buf.String(), "psst")
	assert.Contains(t, buf.String(), "bob")
}
