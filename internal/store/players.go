package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
)

const playersTable = "players"

// TouchPlayer records that username was seen at now. The player row is
// created on first sight, otherwise last_seen is updated. is_banned and
// is_muted are then recomputed from the punishments active at now and
// written back unconditionally. All steps share one transaction.
func (s *Store) TouchPlayer(ctx context.Context, username string, now time.Time) (event.Player, error) {
	if username == "" {
		return event.Player{}, fmt.Errorf("%w: username is required", ErrInvalidRecord)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return event.Player{}, opErr("begin", playersTable, err)
	}
	defer tx.Rollback()

	ts := formatTime(now)
	const upsert = `
	INSERT INTO players (username, first_seen, last_seen, is_banned, is_muted)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(username) DO UPDATE SET last_seen = excluded.last_seen
	`
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(upsert), username, ts, ts, false, false); err != nil {
		return event.Player{}, opErr("upsert", playersTable, err)
	}

	if err := s.refreshFlags(ctx, tx, username, now); err != nil {
		return event.Player{}, err
	}

	p, err := s.getPlayer(ctx, tx, username)
	if err != nil {
		return event.Player{}, opErr("select", playersTable, err)
	}

	if err := tx.Commit(); err != nil {
		return event.Player{}, opErr("commit", playersTable, err)
	}
	return p, nil
}

// refreshFlags sets is_banned and is_muted from the punishments active at now.
func (s *Store) refreshFlags(ctx context.Context, tx *sql.Tx, username string, now time.Time) error {
	const activeTypes = `
	SELECT DISTINCT punishment_type FROM punishments
	WHERE username = ? AND (expires_at IS NULL OR expires_at > ?)
	`
	rows, err := tx.QueryContext(ctx, s.dialect.rebind(activeTypes), username, formatTime(now))
	if err != nil {
		return opErr("select active", "punishments", err)
	}
	var banned, muted bool
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			rows.Close()
			return opErr("scan active", "punishments", err)
		}
		switch typ {
		case event.PunishmentBan:
			banned = true
		case event.PunishmentMute:
			muted = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return opErr("select active", "punishments", err)
	}
	rows.Close()

	const update = `UPDATE players SET is_banned = ?, is_muted = ? WHERE username = ?`
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(update), banned, muted, username); err != nil {
		return opErr("update flags", playersTable, err)
	}
	return nil
}

func (s *Store) getPlayer(ctx context.Context, q querier, username string) (event.Player, error) {
	const query = `
	SELECT username, first_seen, last_seen, is_banned, is_muted
	FROM players WHERE username = ?
	`
	p, err := scanPlayer(q.QueryRowContext(ctx, s.dialect.rebind(query), username))
	if errors.Is(err, sql.ErrNoRows) {
		return event.Player{}, ErrNotFound
	}
	return p, err
}

// GetPlayer returns the stored player row, or ErrNotFound.
func (s *Store) GetPlayer(ctx context.Context, username string) (event.Player, error) {
	p, err := s.getPlayer(ctx, s.db, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return event.Player{}, opErr("select", playersTable, err)
	}
	return p, err
}

// RefreshExpiredFlags recomputes the flags of every player currently marked
// banned or muted, so punishments that expired without a new log event are
// cleared. Returns the number of players whose flags changed.
func (s *Store) RefreshExpiredFlags(ctx context.Context, now time.Time) (int, error) {
	const flagged = `SELECT username, is_banned, is_muted FROM players WHERE is_banned OR is_muted`

	type flags struct {
		username      string
		banned, muted bool
	}

	rows, err := s.db.QueryContext(ctx, flagged)
	if err != nil {
		return 0, opErr("select flagged", playersTable, err)
	}
	var candidates []flags
	for rows.Next() {
		var f flags
		if err := rows.Scan(&f.username, &f.banned, &f.muted); err != nil {
			rows.Close()
			return 0, opErr("scan flagged", playersTable, err)
		}
		candidates = append(candidates, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, opErr("select flagged", playersTable, err)
	}
	rows.Close()

	changed := 0
	for _, c := range candidates {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return changed, opErr("begin", playersTable, err)
		}
		if err := s.refreshFlags(ctx, tx, c.username, now); err != nil {
			tx.Rollback()
			return changed, err
		}
		p, err := s.getPlayer(ctx, tx, c.username)
		if err != nil {
			tx.Rollback()
			return changed, opErr("select", playersTable, err)
		}
		if err := tx.Commit(); err != nil {
			return changed, opErr("commit", playersTable, err)
		}
		if p.IsBanned != c.banned || p.IsMuted != c.muted {
			changed++
		}
	}
	return changed, nil
}

// querier is implemented by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
