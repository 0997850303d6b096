package world

import (
	"errors"
	"fmt"

	"github.com/l1jgo/roster/internal/core/event"
	"github.com/l1jgo/roster/internal/net"
	"go.uber.org/zap"
)

var (
	ErrPlayerExists   = errors.New("player already in roster")
	ErrPlayerNotFound = errors.New("player not in roster")
	ErrNameInUse      = errors.New("character name in use")
)

// Roster holds every logged-in player and the characters they have in world.
// Single-goroutine access only (game loop).
//
// Signals fire while the entity is still registered: PlayerRemoving and
// CharacterRemoving observers can still look it up.
type Roster struct {
	players map[uint64]*Player
	order   []*Player // join order, for stable enumeration
	byName  map[string]*Character

	playerAdded    event.Signal[*Player]
	playerRemoving event.Signal[*Player]

	log *zap.Logger
}

func NewRoster(log *zap.Logger) *Roster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Roster{
		players: make(map[uint64]*Player),
		byName:  make(map[string]*Character),
		log:     log,
	}
}

// AddPlayer registers a logged-in client. sess may be nil.
func (r *Roster) AddPlayer(sessionID uint64, account string, sess *net.Session) (*Player, error) {
	if _, ok := r.players[sessionID]; ok {
		return nil, fmt.Errorf("%w: session %d", ErrPlayerExists, sessionID)
	}
	p := &Player{
		SessionID:   sessionID,
		Session:     sess,
		AccountName: account,
	}
	if sess != nil {
		p.IP = sess.IP
	}
	r.players[sessionID] = p
	r.order = append(r.order, p)
	r.log.Debug("player added", zap.Uint64("session", sessionID), zap.String("account", account))
	r.playerAdded.Fire(p)
	return p, nil
}

// RemovePlayer despawns the player's character, announces the removal, and
// drops the player. Per-player tasks are cleaned up last. Returns nil if the
// session has no player.
func (r *Roster) RemovePlayer(sessionID uint64) *Player {
	p, ok := r.players[sessionID]
	if !ok {
		return nil
	}
	r.DespawnCharacter(p)
	r.playerRemoving.Fire(p)

	delete(r.players, sessionID)
	for i, q := range r.order {
		if q == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if err := p.Tasks.Cleanup(); err != nil {
		r.log.Warn("player task cleanup failed", zap.Uint64("session", sessionID), zap.Error(err))
	}
	r.log.Debug("player removed", zap.Uint64("session", sessionID), zap.String("account", p.AccountName))
	return p
}

// SpawnCharacter puts ch into the world as p's character. A character the
// player already has in world is despawned first.
func (r *Roster) SpawnCharacter(p *Player, ch *Character) error {
	if r.players[p.SessionID] != p {
		return fmt.Errorf("%w: session %d", ErrPlayerNotFound, p.SessionID)
	}
	if other, ok := r.byName[ch.Name]; ok && other.Owner != p {
		return fmt.Errorf("%w: %s", ErrNameInUse, ch.Name)
	}
	if p.Char != nil {
		r.DespawnCharacter(p)
	}
	if ch.ObjectID == 0 {
		ch.ObjectID = NextObjectID()
	}
	ch.Owner = p
	p.Char = ch
	r.byName[ch.Name] = ch
	r.log.Debug("character spawned",
		zap.Uint64("session", p.SessionID),
		zap.String("name", ch.Name),
		zap.Int32("object", ch.ObjectID),
	)
	p.charAdded.Fire(ch)
	return nil
}

// DespawnCharacter removes p's character from the world and returns it, or
// nil if p had none.
func (r *Roster) DespawnCharacter(p *Player) *Character {
	ch := p.Char
	if ch == nil {
		return nil
	}
	p.charRemoving.Fire(ch)
	// An observer may have respawned or despawned it already.
	if p.Char != ch {
		return ch
	}
	p.Char = nil
	if r.byName[ch.Name] == ch {
		delete(r.byName, ch.Name)
	}
	r.log.Debug("character despawned", zap.Uint64("session", p.SessionID), zap.String("name", ch.Name))
	return ch
}

// Player returns the player for a session, or nil.
func (r *Roster) Player(sessionID uint64) *Player {
	return r.players[sessionID]
}

// PlayerByAccount returns the player logged in with account, or nil.
func (r *Roster) PlayerByAccount(account string) *Player {
	for _, p := range r.order {
		if p.AccountName == account {
			return p
		}
	}
	return nil
}

// CharacterByName returns the in-world character with name, or nil.
func (r *Roster) CharacterByName(name string) *Character {
	return r.byName[name]
}

// PlayerCount returns the number of logged-in players.
func (r *Roster) PlayerCount() int {
	return len(r.players)
}

// CharacterCount returns the number of characters in world.
func (r *Roster) CharacterCount() int {
	return len(r.byName)
}

// AllPlayers calls fn for every player in join order.
func (r *Roster) AllPlayers(fn func(*Player)) {
	for _, p := range r.Primaries() {
		fn(p)
	}
}

// AllCharacters calls fn for every in-world character in owner join order.
func (r *Roster) AllCharacters(fn func(*Character)) {
	for _, p := range r.Primaries() {
		if p.Char != nil {
			fn(p.Char)
		}
	}
}

// Roster implements roster.Source[*Player, *Character].

func (r *Roster) Primaries() []*Player {
	out := make([]*Player, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Roster) PrimaryAdded() *event.Signal[*Player]    { return &r.playerAdded }
func (r *Roster) PrimaryRemoving() *event.Signal[*Player] { return &r.playerRemoving }

func (r *Roster) Subordinate(p *Player) (*Character, bool) {
	if p == nil || p.Char == nil {
		return nil, false
	}
	return p.Char, true
}

func (r *Roster) SubordinateAdded(p *Player) *event.Signal[*Character]    { return &p.charAdded }
func (r *Roster) SubordinateRemoving(p *Player) *event.Signal[*Character] { return &p.charRemoving }
