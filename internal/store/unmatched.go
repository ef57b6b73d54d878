package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
)

const unmatchedTable = "unmatched_lines"

// InsertUnmatchedLine records a log line that no grammar recognized.
// Returns true if the line was inserted, false if it was already recorded.
func (s *Store) InsertUnmatchedLine(ctx context.Context, rawLine string, now time.Time) (inserted bool, err error) {
	if rawLine == "" {
		return false, fmt.Errorf("%w: raw_line is required", ErrInvalidRecord)
	}

	const query = `
	INSERT INTO unmatched_lines (ts, raw_line, dedupe_key)
	VALUES (?, ?, ?)
	ON CONFLICT(dedupe_key) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(query), formatTime(now), rawLine, lineKey(rawLine))
	if err != nil {
		return false, opErr("insert", unmatchedTable, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, opErr("rows affected", unmatchedTable, err)
	}
	return rowsAffected > 0, nil
}

// CountUnmatchedLines returns the number of recorded unmatched lines.
func (s *Store) CountUnmatchedLines(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unmatched_lines`).Scan(&n); err != nil {
		return 0, opErr("count", unmatchedTable, err)
	}
	return n, nil
}

// lineKey returns the hex xxh3-128 digest of line.
func lineKey(line string) string {
	h := xxh3.HashString128(line).Bytes()
	return hex.EncodeToString(h[:])
}
