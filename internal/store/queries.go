package store

import (
	"context"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
)

const (
	// DefaultChatLimit is the number of chat messages returned by ChatHistory
	// when the caller does not ask for a specific limit.
	DefaultChatLimit = 100
	maxLimit         = 500
)

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ChatHistory returns the most recent chat messages of username, newest first.
func (s *Store) ChatHistory(ctx context.Context, username string, limit int) ([]event.ChatMessage, error) {
	query := `SELECT ` + chatColumns + ` FROM chat_messages
	WHERE username = ?
	ORDER BY chat_timestamp DESC, id DESC
	LIMIT ?`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), username, clampLimit(limit, DefaultChatLimit))
	if err != nil {
		return nil, opErr("select", event.KindChatMessage, err)
	}
	defer rows.Close()

	items := []event.ChatMessage{}
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, opErr("scan", event.KindChatMessage, err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("select", event.KindChatMessage, err)
	}
	return items, nil
}

// Punishments returns every punishment of username, newest first.
func (s *Store) Punishments(ctx context.Context, username string) ([]event.Punishment, error) {
	query := `SELECT ` + punishmentColumns + ` FROM punishments
	WHERE username = ?
	ORDER BY punishment_timestamp DESC, id DESC`
	return s.queryPunishments(ctx, query, username)
}

// ActivePunishments returns the punishments of username in force at now.
func (s *Store) ActivePunishments(ctx context.Context, username string, now time.Time) ([]event.Punishment, error) {
	query := `SELECT ` + punishmentColumns + ` FROM punishments
	WHERE username = ? AND (expires_at IS NULL OR expires_at > ?)
	ORDER BY punishment_timestamp DESC, id DESC`
	return s.queryPunishments(ctx, query, username, formatTime(now))
}

func (s *Store) queryPunishments(ctx context.Context, query string, args ...any) ([]event.Punishment, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, opErr("select", event.KindPunishment, err)
	}
	defer rows.Close()

	items := []event.Punishment{}
	for rows.Next() {
		p, err := scanPunishment(rows)
		if err != nil {
			return nil, opErr("scan", event.KindPunishment, err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("select", event.KindPunishment, err)
	}
	return items, nil
}

// ReportsAgainst returns reports filed against username, newest first.
func (s *Store) ReportsAgainst(ctx context.Context, username string) ([]event.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports
	WHERE reported_name = ?
	ORDER BY report_timestamp DESC, id DESC`
	return s.queryReports(ctx, query, username)
}

// ReportsBy returns reports filed by username, newest first.
func (s *Store) ReportsBy(ctx context.Context, username string) ([]event.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports
	WHERE reporter_name = ?
	ORDER BY report_timestamp DESC, id DESC`
	return s.queryReports(ctx, query, username)
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]event.Report, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, opErr("select", event.KindReport, err)
	}
	defer rows.Close()

	items := []event.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, opErr("scan", event.KindReport, err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("select", event.KindReport, err)
	}
	return items, nil
}

// Kills returns kills where username is the killer or the victim, newest first.
func (s *Store) Kills(ctx context.Context, username string) ([]event.KillEvent, error) {
	query := `SELECT ` + killColumns + ` FROM kill_events
	WHERE killer = ? OR killed = ?
	ORDER BY timestamp DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), username, username)
	if err != nil {
		return nil, opErr("select", event.KindKillEvent, err)
	}
	defer rows.Close()

	items := []event.KillEvent{}
	for rows.Next() {
		k, err := scanKill(rows)
		if err != nil {
			return nil, opErr("scan", event.KindKillEvent, err)
		}
		items = append(items, k)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("select", event.KindKillEvent, err)
	}
	return items, nil
}
