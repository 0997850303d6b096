package net

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// acceptBackoff throttles the accept loop after a listener error.
const acceptBackoff = 50 * time.Millisecond

// ServerStats is a snapshot of the accept loop's counters.
type ServerStats struct {
	Accepted uint64 // sessions handed to the game loop
	Rejected uint64 // connections closed because the server was full
	Live     int64  // sessions accepted and not yet reported dead
}

// Server accepts TCP connections and creates Sessions. New sessions are
// handed to the game loop over a channel; the game loop reports them back
// through NotifyDead once their player has left the roster.
type Server struct {
	listener   net.Listener
	opts       SessionOptions
	maxClients int // 0 = unlimited
	log        *zap.Logger

	nextID   atomic.Uint64
	live     atomic.Int64
	accepted atomic.Uint64
	rejected atomic.Uint64

	sessions chan *Session
	dead     chan uint64
	done     chan struct{}
	stopOnce sync.Once
}

func NewServer(bindAddr string, maxClients int, opts SessionOptions, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:   ln,
		opts:       opts,
		maxClients: maxClients,
		log:        log,
		sessions:   make(chan *Session, 64),
		dead:       make(chan uint64, 64),
		done:       make(chan struct{}),
	}, nil
}

// AcceptLoop runs in its own goroutine until Shutdown.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("accept failed", zap.Error(err))
			time.Sleep(acceptBackoff)
			continue
		}

		if s.maxClients > 0 && s.live.Load() >= int64(s.maxClients) {
			s.rejected.Add(1)
			s.log.Warn("server full, rejecting client",
				zap.String("addr", conn.RemoteAddr().String()),
				zap.Int("max_clients", s.maxClients),
			)
			conn.Close()
			continue
		}

		id := s.nextID.Add(1)
		sess := NewSession(conn, id, s.opts, s.log)
		s.live.Add(1)
		sess.Start()

		select {
		case s.sessions <- sess:
			s.accepted.Add(1)
			s.log.Info("client connected",
				zap.Uint64("session", id),
				zap.String("ip", sess.IP),
				zap.Int64("live", s.live.Load()),
			)
		default:
			// Never reached the loop, so nobody will report it dead.
			s.live.Add(-1)
			s.rejected.Add(1)
			s.log.Warn("connection queue full, rejecting client", zap.Uint64("session", id))
			sess.Close()
		}
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.sessions
}

// NotifyDead reports that a session handed out by NewSessions is gone,
// freeing its slot.
func (s *Server) NotifyDead(sessionID uint64) {
	s.live.Add(-1)
	select {
	case s.dead <- sessionID:
	default:
	}
}

// DeadSessions returns the channel of dead session IDs.
func (s *Server) DeadSessions() <-chan uint64 {
	return s.dead
}

func (s *Server) Stats() ServerStats {
	return ServerStats{
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Live:     s.live.Load(),
	}
}

// Shutdown stops accepting new connections. Safe to call more than once.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.listener.Close()
	})
}

func (s *Server) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
