package handler

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"github.com/l1jgo/roster/internal/config"
	"github.com/l1jgo/roster/internal/core/future"
	"github.com/l1jgo/roster/internal/net"
	"github.com/l1jgo/roster/internal/net/packet"
	"github.com/l1jgo/roster/internal/persist"
	"github.com/l1jgo/roster/internal/roster"
	"github.com/l1jgo/roster/internal/world"
	"go.uber.org/zap"
)

// AccountStore is the account persistence used by login.
type AccountStore interface {
	Load(ctx context.Context, name string) (*persist.AccountRow, error)
	Create(ctx context.Context, name, rawPassword, ip string) (*persist.AccountRow, error)
	ValidatePassword(hash, rawPassword string) bool
	SetOnline(ctx context.Context, name string, online bool) error
}

// CharacterStore is the character persistence used by enter world.
type CharacterStore interface {
	LoadByName(ctx context.Context, name string) (*persist.CharacterRow, error)
	Create(ctx context.Context, accountName, name string) (*persist.CharacterRow, error)
}

// Coordinator is the roster coordinator over the world's players.
type Coordinator = roster.Coordinator[*world.Player, *world.Character]

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Accounts   AccountStore
	Characters CharacterStore
	Config     *config.Config
	Log        *zap.Logger
	Roster     *world.Roster
	Coord      *Coordinator
	Exec       future.Executor // game loop queue, for timer callbacks

	// ClientVersion gates C_VERSION; nil accepts every client.
	ClientVersion *semver.Constraints
}

// ParseClientConstraint parses [server] min_client_version. An empty
// constraint accepts every client.
func ParseClientConstraint(s string) (*semver.Constraints, error) {
	if s == "" {
		return nil, nil
	}
	return semver.NewConstraint(s)
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(packet.C_VERSION,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleVersion(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_LOGIN,
		[]packet.SessionState{packet.StateVersionOK},
		func(sess any, r *packet.Reader) {
			HandleLogin(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_ENTER_WORLD,
		[]packet.SessionState{packet.StateAuthenticated},
		func(sess any, r *packet.Reader) {
			HandleEnterWorld(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_LEAVE_WORLD,
		[]packet.SessionState{packet.StateInWorld},
		func(sess any, r *packet.Reader) {
			HandleLeaveWorld(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_QUIT,
		[]packet.SessionState{packet.StateVersionOK, packet.StateAuthenticated, packet.StateInWorld},
		func(sess any, r *packet.Reader) {
			HandleQuit(sess.(*net.Session), r, deps)
		},
	)
}
