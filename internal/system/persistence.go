package system

import (
	"context"
	"time"

	coresys "github.com/l1jgo/roster/internal/core/system"
	"github.com/l1jgo/roster/internal/persist"
	"github.com/l1jgo/roster/internal/world"
	"go.uber.org/zap"
)

// AuditStore persists roster audit rows. *persist.AuditRepo implements it.
type AuditStore interface {
	InsertAudit(ctx context.Context, rows []persist.AuditRow) error
}

// PositionStore persists character positions. *persist.CharacterRepo
// implements it.
type PositionStore interface {
	SavePositions(ctx context.Context, positions []persist.PositionRow) error
}

// PersistenceSystem writes buffered audit rows every auditTicks and saves
// in-world character positions every saveTicks. At most auditMax rows are
// buffered; while the store is failing the oldest rows are dropped.
// Phase 5 (Persist).
type PersistenceSystem struct {
	roster     *world.Roster
	audit      AuditStore
	positions  PositionStore
	log        *zap.Logger
	pending    []persist.AuditRow
	auditTicks int
	saveTicks  int
	auditMax   int
	auditCount int
	saveCount  int
	dropped    int // rows lost since the last successful flush
}

func NewPersistenceSystem(ros *world.Roster, audit AuditStore, positions PositionStore, log *zap.Logger, auditTicks, saveTicks, auditMax int) *PersistenceSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &PersistenceSystem{
		roster:     ros,
		audit:      audit,
		positions:  positions,
		log:        log,
		auditTicks: auditTicks,
		saveTicks:  saveTicks,
		auditMax:   auditMax,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// Record buffers an audit row until the next flush. Game loop only.
func (s *PersistenceSystem) Record(row persist.AuditRow) {
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now()
	}
	if s.auditMax > 0 && len(s.pending) >= s.auditMax {
		if s.dropped == 0 {
			s.log.Warn("audit buffer full, dropping oldest rows", zap.Int("max", s.auditMax))
		}
		n := len(s.pending) - s.auditMax + 1
		s.pending = append(s.pending[:0], s.pending[n:]...)
		s.dropped += n
	}
	s.pending = append(s.pending, row)
}

// Dropped returns how many rows were discarded since the last successful
// flush.
func (s *PersistenceSystem) Dropped() int { return s.dropped }

// Pending returns the number of buffered audit rows.
func (s *PersistenceSystem) Pending() int { return len(s.pending) }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.auditCount++
	if s.auditCount >= s.auditTicks {
		s.auditCount = 0
		s.flushAudit()
	}
	s.saveCount++
	if s.saveCount >= s.saveTicks {
		s.saveCount = 0
		s.savePositions()
	}
}

// FlushAll writes everything immediately. Called for graceful shutdown,
// after the roster has been emptied.
func (s *PersistenceSystem) FlushAll() {
	s.savePositions()
	s.flushAudit()
}

func (s *PersistenceSystem) flushAudit() {
	if len(s.pending) == 0 || s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.audit.InsertAudit(ctx, s.pending); err != nil {
		// Rows stay buffered and go out with the next flush.
		s.log.Error("audit flush failed", zap.Int("rows", len(s.pending)), zap.Error(err))
		return
	}
	s.log.Debug("audit flushed", zap.Int("rows", len(s.pending)))
	if s.dropped > 0 {
		s.log.Warn("audit rows were dropped while the store was failing", zap.Int("dropped", s.dropped))
		s.dropped = 0
	}
	s.pending = s.pending[:0]
}

func (s *PersistenceSystem) savePositions() {
	if s.positions == nil {
		return
	}
	var rows []persist.PositionRow
	s.roster.AllCharacters(func(ch *world.Character) {
		if ch.DBID == 0 {
			return
		}
		rows = append(rows, persist.PositionRow{ID: ch.DBID, X: ch.X, Y: ch.Y, MapID: ch.MapID})
	})
	if len(rows) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.positions.SavePositions(ctx, rows); err != nil {
		s.log.Error("position auto-save failed", zap.Error(err))
		return
	}
	s.log.Info("positions auto-saved", zap.Int("characters", len(rows)))
}
