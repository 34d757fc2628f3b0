package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ludoteca/ludoteca/internal/config"
)

// fakeStore serves canned durable room records.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]Record
	calls   int
}

var errStoreMiss = errors.New("room not found")

func (s *fakeStore) GetRoom(_ context.Context, roomID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	rec, ok := s.records[roomID]
	if !ok {
		return Record{}, errStoreMiss
	}
	return rec, nil
}

func testManager(store Store) *Manager {
	if store == nil {
		store = &fakeStore{}
	}
	return NewManager(store, config.RoomsConfig{
		SweepInterval:    time.Minute,
		ChatHistoryLimit: 100,
		ChatMaxLength:    500,
		TickPeriod:       time.Second,
	}, zap.NewNop())
}

func TestCreateAndGetRoom(t *testing.T) {
	m := testManager(nil)
	defer m.Stop()

	r := m.CreateRoom(Params{ID: "r1", Code: "AAA111", GameSlug: "sopa-de-letras", HostID: "h", MaxPlayers: 4})
	require.NotNil(t, r)
	assert.Same(t, r, m.GetRoom("r1"))
	assert.Same(t, r, m.GetRoomByCode("AAA111"))
	assert.Nil(t, m.GetRoom("missing"))
	assert.Nil(t, m.GetRoomByCode("ZZZ999"))
}

func TestJoinResidentRoom(t *testing.T) {
	m := testManager(nil)
	defer m.Stop()

	m.CreateRoom(Params{ID: "r1", HostID: "h", MaxPlayers: 4})

	r := m.JoinRoom(context.Background(), "r1", "h", "Ana", &fakeConn{})
	require.NotNil(t, r)
	assert.True(t, r.HasPlayer("h"))
	assert.Same(t, r, m.GetPlayerRoom("h"))
}

func TestJoinHydratesWaitingRoom(t *testing.T) {
	store := &fakeStore{records: map[string]Record{
		"r1": {ID: "r1", Code: "AAA111", GameSlug: "sopa-de-letras", HostID: "h", MaxPlayers: 4, Status: "waiting"},
	}}
	m := testManager(store)
	defer m.Stop()

	r := m.JoinRoom(context.Background(), "r1", "h", "Ana", &fakeConn{})
	require.NotNil(t, r)
	assert.Equal(t, "AAA111", r.Code())
	assert.Equal(t, 1, m.RoomCount())

	// Second join hits the resident room, not the store.
	r2 := m.JoinRoom(context.Background(), "r1", "p1", "Berta", &fakeConn{})
	require.NotNil(t, r2)
	assert.Same(t, r, r2)
	assert.Equal(t, 1, store.calls)
}

func TestJoinRefusesNonWaitingHydration(t *testing.T) {
	store := &fakeStore{records: map[string]Record{
		"playing":  {ID: "playing", HostID: "h", MaxPlayers: 4, Status: "playing"},
		"finished": {ID: "finished", HostID: "h", MaxPlayers: 4, Status: "finished"},
	}}
	m := testManager(store)
	defer m.Stop()

	assert.Nil(t, m.JoinRoom(context.Background(), "playing", "u", "Ana", &fakeConn{}))
	assert.Nil(t, m.JoinRoom(context.Background(), "finished", "u", "Ana", &fakeConn{}))
	assert.Nil(t, m.JoinRoom(context.Background(), "absent", "u", "Ana", &fakeConn{}))
	assert.Equal(t, 0, m.RoomCount())
	assert.Nil(t, m.GetPlayerRoom("u"))
}

func TestJoinEvictsFromCurrentRoom(t *testing.T) {
	m := testManager(nil)
	defer m.Stop()

	m.CreateRoom(Params{ID: "r1", HostID: "u", MaxPlayers: 4})
	m.CreateRoom(Params{ID: "r2", HostID: "other", MaxPlayers: 4})
	require.NotNil(t, m.JoinRoom(context.Background(), "r1", "u", "Ana", &fakeConn{}))

	r2 := m.JoinRoom(context.Background(), "r2", "u", "Ana", &fakeConn{})
	require.NotNil(t, r2)
	assert.Equal(t, "r2", m.GetPlayerRoom("u").ID())

	// r1 became empty on leave and was evicted.
	assert.Nil(t, m.GetRoom("r1"))
}

func TestJoinFullRoomFails(t *testing.T) {
	m := testManager(nil)
	defer m.Stop()

	m.CreateRoom(Params{ID: "r1", HostID: "h", MaxPlayers: 2})
	require.NotNil(t, m.JoinRoom(context.Background(), "r1", "h", "Ana", &fakeConn{}))
	require.NotNil(t, m.JoinRoom(context.Background(), "r1", "p1", "Berta", &fakeConn{}))

	assert.Nil(t, m.JoinRoom(context.Background(), "r1", "p2", "Carlos", &fakeConn{}))
	assert.Nil(t, m.GetPlayerRoom("p2"))
}

func TestLeaveBroadcastsAndEvicts(t *testing.T) {
	m := testManager(nil)
	defer m.Stop()

	m.CreateRoom(Params{ID: "r1", HostID: "h", MaxPlayers: 4})
	hostConn := &fakeConn{}
	require.NotNil(t, m.JoinRoom(context.Background(), "r1", "h", "Ana", hostConn))
	require.NotNil(t, m.JoinRoom(context.Background(), "r1", "p1", "Berta", &fakeConn{}))

	m.LeaveCurrentRoom("p1")
	assert.Contains(t, hostConn.types(t), "room:player-left")
	assert.Nil(t, m.GetPlayerRoom("p1"))

	m.LeaveCurrentRoom("h")
	assert.Nil(t, m.GetRoom("r1"), "empty room evicted on last leave")
}

func TestLeaveDuringGameRetainsMapping(t *testing.T) {
	m := testManager(nil)
	defer m.Stop()

	r := m.CreateRoom(Params{ID: "r1", HostID: "h", MaxPlayers: 4})
	hostConn := &fakeConn{}
	require.NotNil(t, m.JoinRoom(context.Background(), "r1", "h", "Ana", hostConn))
	require.NotNil(t, m.JoinRoom(context.Background(), "r1", "p1", "Berta", &fakeConn{}))
	require.True(t, r.MarkPlaying())

	m.LeaveCurrentRoom("p1")

	// Drop is hidden from the other players during a live game.
	assert.NotContains(t, hostConn.types(t), "room:player-left")
	// Member record and mapping survive for reconnection.
	assert.True(t, r.HasPlayer("p1"))
	assert.Same(t, r, m.GetPlayerRoom("p1"))

	// Reconnecting resolves to the same room.
	r2 := m.JoinRoom(context.Background(), "r1", "p1", "Berta", &fakeConn{})
	require.NotNil(t, r2)
	assert.Same(t, r, r2)
	assert.Equal(t, 2, r.PlayerCount(), "no duplicate member on reconnect")
}

func TestLeaveUnknownUserNoop(t *testing.T) {
	m := testManager(nil)
	defer m.Stop()
	m.LeaveCurrentRoom("ghost")
}

func TestSweepEvictsEmptyRooms(t *testing.T) {
	m := testManager(nil)
	defer m.Stop()

	m.CreateRoom(Params{ID: "empty", HostID: "h", MaxPlayers: 4})
	occupied := m.CreateRoom(Params{ID: "occupied", HostID: "h", MaxPlayers: 4})
	require.NotNil(t, m.JoinRoom(context.Background(), "occupied", "h", "Ana", &fakeConn{}))

	playing := m.CreateRoom(Params{ID: "playing", HostID: "h2", MaxPlayers: 4})
	require.True(t, playing.MarkPlaying())

	m.Sweep()

	assert.Nil(t, m.GetRoom("empty"))
	assert.Same(t, occupied, m.GetRoom("occupied"))
	assert.Same(t, playing, m.GetRoom("playing"), "playing rooms survive the sweep even when empty")
}

func TestStopClearsState(t *testing.T) {
	m := testManager(nil)
	m.CreateRoom(Params{ID: "r1", HostID: "h", MaxPlayers: 4})
	require.NotNil(t, m.JoinRoom(context.Background(), "r1", "h", "Ana", &fakeConn{}))

	m.Stop()
	assert.Equal(t, 0, m.RoomCount())
	assert.Nil(t, m.GetPlayerRoom("h"))

	// Idempotent.
	m.Stop()
}

func TestStartStopsOnQuit(t *testing.T) {
	m := testManager(nil)
	done := make(chan error, 1)
	go func() { done <- m.Start() }()

	time.Sleep(20 * time.Millisecond)
	m.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
