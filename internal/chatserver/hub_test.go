package chatserver

import (
	"net"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/amchat/internal/logger"
	"github.com/codefionn/amchat/internal/rooms"
)

// pipeSession returns a session whose peer end is discarded.
func pipeSession(t *testing.T, id string) *Session {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	return newSession(id, "pipe", local, logger.Discard())
}

func TestHubReserveIsExclusive(t *testing.T) {
	hub := NewHub(rooms.New(logger.Discard()), logger.Discard())
	a := pipeSession(t, "a")
	b := pipeSession(t, "b")

	require.True(t, hub.Reserve("alice", a))
	assert.False(t, hub.Reserve("alice", b))

	got, ok := hub.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 1, hub.Count())
}

func TestHubRemoveOnlyOwnEntry(t *testing.T) {
	reg := rooms.New(logger.Discard())
	hub := NewHub(reg, logger.Discard())
	a := pipeSession(t, "a")
	b := pipeSession(t, "b")

	require.NoError(t, reg.AddRoom("lobby"))
	require.NoError(t, reg.Subscribe("lobby", "alice"))
	require.True(t, hub.Reserve("alice", a))

	// A stale session must not evict the current owner.
	assert.False(t, hub.Remove("alice", b))
	assert.True(t, reg.IsMember("lobby", "alice"))

	assert.True(t, hub.Remove("alice", a))
	assert.False(t, reg.IsMember("lobby", "alice"))
	_, ok := hub.Lookup("alice")
	assert.False(t, ok)

	assert.False(t, hub.Remove("alice", a))
}

func TestHubNamesSorted(t *testing.T) {
	hub := NewHub(nil, logger.Discard())
	for _, name := range []string{"carol", "alice", "bob"} {
		require.True(t, hub.Reserve(name, pipeSession(t, name)))
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, hub.Names())
}

func TestHubReregistrationKeepsNewMemberships(t *testing.T) {
	reg := rooms.New(logger.Discard())
	hub := NewHub(reg, logger.Discard())
	require.NoError(t, reg.AddRoom("lobby"))

	for i := 0; i < 200; i++ {
		old := pipeSession(t, "old")
		fresh := pipeSession(t, "fresh")
		require.True(t, hub.Reserve("alice", old))
		require.NoError(t, reg.Subscribe("lobby", "alice"))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Remove("alice", old)
		}()
		for !hub.Reserve("alice", fresh) {
			runtime.Gosched()
		}
		require.NoError(t, reg.Subscribe("lobby", "alice"))
		wg.Wait()

		require.True(t, reg.IsMember("lobby", "alice"), "iteration %d", i)
		require.True(t, hub.Remove("alice", fresh))
		require.False(t, reg.IsMember("lobby", "alice"))
	}
}
