package store

import (
	"context"
	"database/sql"
	"time"
)

// BasicStats holds row counts and activity for a time period.
type BasicStats struct {
	Players          int64   `json:"players"`
	BannedPlayers    int64   `json:"banned_players"`
	MutedPlayers     int64   `json:"muted_players"`
	ChatMessages     int64   `json:"chat_messages"`
	Punishments      int64   `json:"punishments"`
	Reports          int64   `json:"reports"`
	Kills            int64   `json:"kills"`
	TodayPunishments int64   `json:"today_punishments"`
	TodayReports     int64   `json:"today_reports"`
	LastSeenAt       *string `json:"last_seen_at,omitempty"`
}

// GetBasicStats aggregates table counts plus the punishments and reports
// logged in [since, until).
func (s *Store) GetBasicStats(ctx context.Context, since, until time.Time) (*BasicStats, error) {
	stats := &BasicStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_banned THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_muted THEN 1 ELSE 0 END), 0)
		FROM players
	`).Scan(&stats.Players, &stats.BannedPlayers, &stats.MutedPlayers)
	if err != nil {
		return nil, opErr("stats", playersTable, err)
	}

	counts := []struct {
		table string
		dst   *int64
	}{
		{"chat_messages", &stats.ChatMessages},
		{"punishments", &stats.Punishments},
		{"reports", &stats.Reports},
		{"kill_events", &stats.Kills},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, opErr("count", c.table, err)
		}
	}

	sinceStr, untilStr := formatTime(since), formatTime(until)
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT COUNT(*) FROM punishments WHERE punishment_timestamp >= ? AND punishment_timestamp < ?
	`), sinceStr, untilStr).Scan(&stats.TodayPunishments)
	if err != nil {
		return nil, opErr("stats", "punishments", err)
	}
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT COUNT(*) FROM reports WHERE report_timestamp >= ? AND report_timestamp < ?
	`), sinceStr, untilStr).Scan(&stats.TodayReports)
	if err != nil {
		return nil, opErr("stats", "reports", err)
	}

	var lastSeen sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT MAX(last_seen) FROM players`).Scan(&lastSeen)
	if err != nil && err != sql.ErrNoRows {
		return nil, opErr("stats", playersTable, err)
	}
	if lastSeen.Valid {
		stats.LastSeenAt = &lastSeen.String
	}

	return stats, nil
}

// GetTodayBoundary returns the start and end of the local calendar day containing now.
func GetTodayBoundary(now time.Time) (since, until time.Time) {
	y, m, d := now.Date()
	since = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	until = since.AddDate(0, 0, 1)
	return since, until
}
