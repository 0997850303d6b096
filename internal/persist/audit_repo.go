package persist

import (
	"context"
	"fmt"
	"time"
)

// Roster lifecycle events recorded in roster_audit.
const (
	AuditLogin  = "login"
	AuditLogout = "logout"
	AuditEnter  = "enter"
	AuditLeave  = "leave"
)

// AuditRow is one roster lifecycle event.
type AuditRow struct {
	Event      string
	SessionID  uint64
	Account    string
	CharName   string // empty for login/logout
	HandleID   string // roster handle that observed the event
	OccurredAt time.Time
}

type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// InsertAudit writes a batch of rows in a single transaction.
func (r *AuditRepo) InsertAudit(ctx context.Context, rows []AuditRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("audit begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range rows {
		if _, err := tx.Exec(ctx,
			`INSERT INTO roster_audit (event, session_id, account_name, char_name, handle_id, occurred_at)
			 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, '')::uuid, $6)`,
			a.Event, int64(a.SessionID), a.Account, a.CharName, a.HandleID, a.OccurredAt,
		); err != nil {
			return fmt.Errorf("audit insert: %w", err)
		}
	}
	return tx.Commit(ctx)
}
