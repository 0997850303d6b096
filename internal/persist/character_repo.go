package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type CharacterRow struct {
	ID          int32
	AccountName string
	Name        string
	Level       int16
	X           int32
	Y           int32
	MapID       int16
}

// PositionRow is one character position to save.
type PositionRow struct {
	ID    int32
	X     int32
	Y     int32
	MapID int16
}

type CharacterRepo struct {
	db *DB
}

func NewCharacterRepo(db *DB) *CharacterRepo {
	return &CharacterRepo{db: db}
}

func (r *CharacterRepo) LoadByAccount(ctx context.Context, accountName string) ([]CharacterRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, account_name, name, level, x, y, map_id
		 FROM characters WHERE account_name = $1 ORDER BY id`, accountName,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[CharacterRow])
}

// LoadByName returns the character, or nil if it does not exist.
func (r *CharacterRepo) LoadByName(ctx context.Context, name string) (*CharacterRow, error) {
	row := &CharacterRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, account_name, name, level, x, y, map_id FROM characters WHERE name = $1`, name,
	).Scan(&row.ID, &row.AccountName, &row.Name, &row.Level, &row.X, &row.Y, &row.MapID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Create inserts a level 1 character at the default position.
func (r *CharacterRepo) Create(ctx context.Context, accountName, name string) (*CharacterRow, error) {
	row := &CharacterRow{AccountName: accountName, Name: name}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO characters (account_name, name) VALUES ($1, $2)
		 RETURNING id, level, x, y, map_id`, accountName, name,
	).Scan(&row.ID, &row.Level, &row.X, &row.Y, &row.MapID)
	if err != nil {
		return nil, fmt.Errorf("create character %s: %w", name, err)
	}
	return row, nil
}

// SavePositions writes every position in one batch.
func (r *CharacterRepo) SavePositions(ctx context.Context, positions []PositionRow) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(
			`UPDATE characters SET x = $2, y = $3, map_id = $4, last_seen = NOW() WHERE id = $1`,
			p.ID, p.X, p.Y, p.MapID,
		)
	}
	if err := r.db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}
	return nil
}
