package world

import (
	"testing"
	"time"

	"github.com/l1jgo/roster/internal/core/disposer"
	"github.com/l1jgo/roster/internal/core/system"
	"github.com/l1jgo/roster/internal/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterAddRemove(t *testing.T) {
	r := NewRoster(nil)

	var added, removing []uint64
	r.PrimaryAdded().Connect(func(p *Player) { added = append(added, p.SessionID) })
	r.PrimaryRemoving().Connect(func(p *Player) {
		assert.Same(t, p, r.Player(p.SessionID), "still registered while removing")
		removing = append(removing, p.SessionID)
	})

	a, err := r.AddPlayer(1, "alice", nil)
	require.NoError(t, err)
	_, err = r.AddPlayer(2, "bob", nil)
	require.NoError(t, err)
	_, err = r.AddPlayer(1, "mallory", nil)
	assert.ErrorIs(t, err, ErrPlayerExists)

	assert.Equal(t, []uint64{1, 2}, added)
	assert.Same(t, a, r.PlayerByAccount("alice"))
	assert.Len(t, r.Primaries(), 2)

	assert.Same(t, a, r.RemovePlayer(1))
	assert.Nil(t, r.RemovePlayer(1))
	assert.Equal(t, []uint64{1}, removing)
	assert.Nil(t, r.Player(1))
	assert.Equal(t, 1, r.PlayerCount())
}

func TestRosterSpawnDespawn(t *testing.T) {
	r := NewRoster(nil)
	p, err := r.AddPlayer(1, "alice", nil)
	require.NoError(t, err)

	var events []string
	r.SubordinateAdded(p).Connect(func(ch *Character) { events = append(events, "+"+ch.Name) })
	r.SubordinateRemoving(p).Connect(func(ch *Character) {
		assert.Same(t, ch, p.Char, "still in world while removing")
		events = append(events, "-"+ch.Name)
	})

	first := &Character{Name: "Knight"}
	require.NoError(t, r.SpawnCharacter(p, first))
	assert.NotZero(t, first.ObjectID)
	assert.Same(t, p, first.Owner)
	assert.Same(t, first, r.CharacterByName("Knight"))

	sub, ok := r.Subordinate(p)
	require.True(t, ok)
	assert.Same(t, first, sub)

	// Switching characters retires the old one first.
	require.NoError(t, r.SpawnCharacter(p, &Character{Name: "Elf"}))
	assert.Equal(t, []string{"+Knight", "-Knight", "+Elf"}, events)
	assert.Nil(t, r.CharacterByName("Knight"))

	assert.Equal(t, "Elf", r.DespawnCharacter(p).Name)
	assert.Nil(t, r.DespawnCharacter(p))
	_, ok = r.Subordinate(p)
	assert.False(t, ok)
	assert.Zero(t, r.CharacterCount())
}

func TestRosterSpawnErrors(t *testing.T) {
	r := NewRoster(nil)
	a, _ := r.AddPlayer(1, "alice", nil)
	b, _ := r.AddPlayer(2, "bob", nil)

	require.NoError(t, r.SpawnCharacter(a, &Character{Name: "Knight"}))
	assert.ErrorIs(t, r.SpawnCharacter(b, &Character{Name: "Knight"}), ErrNameInUse)

	ghost := &Player{SessionID: 9}
	assert.ErrorIs(t, r.SpawnCharacter(ghost, &Character{Name: "Ghost"}), ErrPlayerNotFound)
}

func TestRemovePlayerDespawnsFirstAndCleansTasks(t *testing.T) {
	r := NewRoster(nil)
	p, _ := r.AddPlayer(1, "alice", nil)
	require.NoError(t, r.SpawnCharacter(p, &Character{Name: "Knight"}))

	var order []string
	r.SubordinateRemoving(p).Connect(func(*Character) { order = append(order, "despawn") })
	r.PrimaryRemoving().Connect(func(*Player) { order = append(order, "remove") })
	_, err := p.Tasks.AddTask(func() { order = append(order, "task") }, disposer.Call, "deadline")
	require.NoError(t, err)

	r.RemovePlayer(1)
	assert.Equal(t, []string{"despawn", "remove", "task"}, order)
	assert.Zero(t, p.Tasks.Len())
}

func TestRosterDrivesCoordinator(t *testing.T) {
	r := NewRoster(nil)
	c, err := roster.New[*Player, *Character](r, roster.WithExecutor(system.NewQueue(nil)), roster.WithWaitTimeout(time.Minute))
	require.NoError(t, err)
	defer c.Close()

	p, _ := r.AddPlayer(1, "alice", nil)

	var live []string
	h, err := c.ForEachSubordinate(func(ch *Character, scope *disposer.Registry) {
		live = append(live, ch.Name)
		_ = scope.Add(func() { live = live[:0] }, disposer.Call)
	})
	require.NoError(t, err)
	defer h.Cancel()

	require.NoError(t, r.SpawnCharacter(p, &Character{Name: "Knight"}))
	assert.Equal(t, []string{"Knight"}, live)

	require.NoError(t, r.SpawnCharacter(p, &Character{Name: "Elf"}))
	assert.Equal(t, []string{"Elf"}, live)

	r.RemovePlayer(1)
	assert.Empty(t, live)
	assert.Zero(t, r.SubordinateAdded(p).Len())
}
