package system

import (
	"time"

	coresys "github.com/l1jgo/roster/internal/core/system"
	"github.com/l1jgo/roster/internal/net"
	"github.com/l1jgo/roster/internal/net/packet"
	"github.com/l1jgo/roster/internal/world"
	"go.uber.org/zap"
)

// SessionSource hands new and dead sessions to the game loop. *net.Server
// implements it.
type SessionSource interface {
	NewSessions() <-chan *net.Session
	DeadSessions() <-chan uint64
	NotifyDead(sessionID uint64)
}

// InputSystem drains packet queues from all sessions and dispatches them
// through the packet registry. Phase 0 (Input).
type InputSystem struct {
	source     SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	roster     *world.Roster
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(
	source SessionSource,
	registry *packet.Registry,
	store *net.SessionStore,
	roster *world.Roster,
	maxPerTick int,
	log *zap.Logger,
) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 32
	}
	return &InputSystem{
		source:     source,
		registry:   registry,
		store:      store,
		roster:     roster,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.source.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.source.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			// Packets sent just before the disconnect still run, in the
			// session's last known state.
			s.drain(sess, "packet dispatch failed while closing")
			sess.FlushOutput()
			s.handleDisconnect(sess)
			s.source.NotifyDead(id)
			s.store.Remove(id)
			continue
		}
		s.drain(sess, "packet dispatch failed")
	}

	// Flush early so Phase 0 replies reach the writer while later phases run.
	// OutputSystem flushes whatever Phases 1-3 produce.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// drain dispatches up to maxPerTick queued packets of one session.
func (s *InputSystem) drain(sess *net.Session, failMsg string) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Debug(failMsg,
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}

// handleDisconnect removes the session's player from the roster. Roster
// watchers run their cleanup from there: the character despawns first, then
// per-player scopes and tasks are disposed.
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	if p := s.roster.RemovePlayer(sess.ID); p != nil {
		s.log.Info("player left",
			zap.Uint64("session", sess.ID),
			zap.String("account", p.AccountName),
		)
	}
}

// SessionCount returns the current number of active sessions.
func (s *InputSystem) SessionCount() int {
	return s.store.Count()
}

// OutputSystem flushes every session's buffered packets. Phase 4 (Output).
type OutputSystem struct {
	store *net.SessionStore
}

func NewOutputSystem(store *net.SessionStore) *OutputSystem {
	return &OutputSystem{store: store}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
