package world

import (
	"sync/atomic"

	"github.com/l1jgo/roster/internal/core/event"
	"github.com/l1jgo/roster/internal/core/task"
	"github.com/l1jgo/roster/internal/net"
)

// Character object IDs start high so they never collide with DB ids in logs.
var nextObjectID atomic.Int32

func init() {
	nextObjectID.Store(0x10000000)
}

// NextObjectID allocates a process-unique object ID.
func NextObjectID() int32 {
	return nextObjectID.Add(1)
}

// Player is a logged-in client. Accessed only from the game loop goroutine.
type Player struct {
	SessionID   uint64
	Session     *net.Session // nil for players created without a connection
	AccountName string
	IP          string

	// Char is the character currently in world, nil at character select.
	Char *Character

	// Tasks holds per-player timers and helpers; cleaned up on removal.
	Tasks task.List

	charAdded    event.Signal[*Character]
	charRemoving event.Signal[*Character]
}

// Send buffers a packet for the player's client. No-op without a session.
func (p *Player) Send(data []byte) {
	if p.Session != nil {
		p.Session.Send(data)
	}
}

// InWorld reports whether the player has a character spawned.
func (p *Player) InWorld() bool { return p.Char != nil }

// Character is a spawned character. It lives only while its owner is in world.
type Character struct {
	ObjectID int32
	DBID     int32 // characters.id
	Name     string
	Level    int16
	X        int32
	Y        int32
	MapID    int16

	Owner *Player
}
