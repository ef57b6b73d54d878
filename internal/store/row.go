package store

import (
	"database/sql"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
)

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanPlayer(sc scanner) (event.Player, error) {
	var (
		p                   event.Player
		firstSeen, lastSeen string
	)
	if err := sc.Scan(&p.Username, &firstSeen, &lastSeen, &p.IsBanned, &p.IsMuted); err != nil {
		return event.Player{}, err
	}
	var err error
	if p.FirstSeen, err = parseTime(firstSeen); err != nil {
		return event.Player{}, err
	}
	if p.LastSeen, err = parseTime(lastSeen); err != nil {
		return event.Player{}, err
	}
	return p, nil
}

const chatColumns = `id, username, message, message_type, server_name, chat_timestamp`

func scanChatMessage(sc scanner) (event.ChatMessage, error) {
	var (
		m      event.ChatMessage
		server sql.NullString
		ts     string
	)
	if err := sc.Scan(&m.ID, &m.Username, &m.Message, &m.MessageType, &server, &ts); err != nil {
		return event.ChatMessage{}, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return event.ChatMessage{}, err
	}
	m.ServerName = stringPtr(server)
	m.Timestamp = t
	return m, nil
}

const punishmentColumns = `id, username, punishment_type, duration, reason, moderator_name, punishment_timestamp, expires_at`

func scanPunishment(sc scanner) (event.Punishment, error) {
	var (
		p         event.Punishment
		moderator sql.NullString
		ts        string
		expires   sql.NullString
	)
	if err := sc.Scan(&p.ID, &p.Username, &p.Type, &p.Duration, &p.Reason, &moderator, &ts, &expires); err != nil {
		return event.Punishment{}, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return event.Punishment{}, err
	}
	exp, err := timePtr(expires)
	if err != nil {
		return event.Punishment{}, err
	}
	p.ModeratorName = stringPtr(moderator)
	p.Timestamp = t
	p.ExpiresAt = exp
	return p, nil
}

const reportColumns = `id, reporter_name, reported_name, reason, server_name, report_timestamp`

func scanReport(sc scanner) (event.Report, error) {
	var (
		r      event.Report
		server sql.NullString
		ts     string
	)
	if err := sc.Scan(&r.ID, &r.ReporterName, &r.ReportedName, &r.Reason, &server, &ts); err != nil {
		return event.Report{}, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return event.Report{}, err
	}
	r.ServerName = stringPtr(server)
	r.Timestamp = t
	return r, nil
}

const killColumns = `id, killer, killed, timestamp`

func scanKill(sc scanner) (event.KillEvent, error) {
	var (
		k  event.KillEvent
		ts string
	)
	if err := sc.Scan(&k.ID, &k.Killer, &k.Killed, &ts); err != nil {
		return event.KillEvent{}, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return event.KillEvent{}, err
	}
	k.Timestamp = t
	return k, nil
}
