package system

import (
	"fmt"

	"github.com/l1jgo/roster/internal/core/disposer"
	"github.com/l1jgo/roster/internal/core/future"
	"github.com/l1jgo/roster/internal/handler"
	"github.com/l1jgo/roster/internal/persist"
	"github.com/l1jgo/roster/internal/roster"
	"github.com/l1jgo/roster/internal/scripting"
	"github.com/l1jgo/roster/internal/world"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AuditRecorder buffers roster audit rows. *PersistenceSystem implements it.
type AuditRecorder interface {
	Record(row persist.AuditRow)
}

// CharacterHook runs script code when a character enters the world.
// *scripting.Engine implements it.
type CharacterHook interface {
	CharacterAdded(info scripting.CharacterInfo, send func(string)) (func() error, error)
}

// Lifecycle attaches server-wide behaviour to every player and every
// character in world: audit rows, the welcome message and the script hook.
// Everything it sets up lives in the coordinator's scopes and is torn down
// with the player or character.
type Lifecycle struct {
	coord   *handler.Coordinator
	audit   AuditRecorder
	hook    CharacterHook // may be nil
	exec    future.Executor
	welcome string // fmt format taking the character name; empty disables
	log     *zap.Logger

	players    *roster.Handle
	characters *roster.Handle
}

func NewLifecycle(coord *handler.Coordinator, audit AuditRecorder, hook CharacterHook, exec future.Executor, welcome string, log *zap.Logger) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{
		coord:   coord,
		audit:   audit,
		hook:    hook,
		exec:    exec,
		welcome: welcome,
		log:     log,
	}
}

// Start subscribes to the roster. Players and characters already present are
// set up immediately.
func (l *Lifecycle) Start() error {
	players, err := l.coord.ForEachPrimary(l.playerJoined)
	if err != nil {
		return fmt.Errorf("watch players: %w", err)
	}
	characters, err := l.coord.ForEachSubordinate(l.characterEntered)
	if err != nil {
		return multierr.Append(fmt.Errorf("watch characters: %w", err), players.Cancel())
	}
	l.players, l.characters = players, characters
	l.log.Info("roster lifecycle started",
		zap.String("players", players.ID()),
		zap.String("characters", characters.ID()),
	)
	return nil
}

// Stop cancels both watches, running every outstanding cleanup.
func (l *Lifecycle) Stop() error {
	var errs error
	if l.characters != nil {
		errs = multierr.Append(errs, l.characters.Cancel())
	}
	if l.players != nil {
		errs = multierr.Append(errs, l.players.Cancel())
	}
	return errs
}

func (l *Lifecycle) playerJoined(p *world.Player, scope *disposer.Registry) {
	l.record(persist.AuditLogin, p, "", l.players)
	_ = scope.Add(func() {
		l.record(persist.AuditLogout, p, "", l.players)
	}, disposer.Call)
}

func (l *Lifecycle) characterEntered(ch *world.Character, scope *disposer.Registry) {
	p := ch.Owner
	if p == nil {
		return
	}
	l.record(persist.AuditEnter, p, ch.Name, l.characters)
	_ = scope.Add(func() {
		l.record(persist.AuditLeave, p, ch.Name, l.characters)
	}, disposer.Call)

	// Posted so the message follows S_ENTER_WORLD.
	if l.welcome != "" {
		text := fmt.Sprintf(l.welcome, ch.Name)
		l.exec.Post(func() {
			if p.Char == ch {
				p.Send(handler.BuildMessage(text))
			}
		})
	}

	if l.hook == nil {
		return
	}
	info := scripting.CharacterInfo{
		ObjectID: ch.ObjectID,
		Name:     ch.Name,
		Level:    int(ch.Level),
		X:        int(ch.X),
		Y:        int(ch.Y),
		MapID:    int(ch.MapID),
		Account:  p.AccountName,
	}
	cleanup, err := l.hook.CharacterAdded(info, func(text string) {
		if p.Char == ch {
			p.Send(handler.BuildMessage(text))
		}
	})
	if err != nil {
		l.log.Warn("character script failed", zap.String("char", ch.Name), zap.Error(err))
		return
	}
	if cleanup != nil {
		_ = scope.Add(cleanup, disposer.Call)
	}
}

func (l *Lifecycle) record(event string, p *world.Player, charName string, h *roster.Handle) {
	row := persist.AuditRow{
		Event:     event,
		SessionID: p.SessionID,
		Account:   p.AccountName,
		CharName:  charName,
	}
	// Players replayed during Start are seen before the handle exists.
	if h != nil {
		row.HandleID = h.ID()
	}
	l.audit.Record(row)
}
