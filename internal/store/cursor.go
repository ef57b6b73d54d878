package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const cursorTable = "ingest_cursor"

// LoadCursor returns the saved byte offset for sourcePath. found is false when
// no offset has been saved yet.
func (s *Store) LoadCursor(ctx context.Context, sourcePath string) (offset int64, found bool, err error) {
	const query = `SELECT byte_offset FROM ingest_cursor WHERE source_path = ?`
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(query), sourcePath).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, opErr("select", cursorTable, err)
	}
	return offset, true, nil
}

// SaveCursor stores the byte offset reached in sourcePath.
func (s *Store) SaveCursor(ctx context.Context, sourcePath string, offset int64, now time.Time) error {
	const query = `
	INSERT INTO ingest_cursor (source_path, byte_offset, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(source_path) DO UPDATE SET byte_offset = excluded.byte_offset, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(query), sourcePath, offset, formatTime(now))
	return opErr("upsert", cursorTable, err)
}
