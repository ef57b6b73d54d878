package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/graaaaa/mclog-companion/internal/event"
)

// Persist stores rec unless a row with the same dedup key already exists.
// The existence check and the insert run in one transaction, so a record is
// either inserted exactly once or reported as not inserted.
//
// On success the record's ID field is set. A unique constraint failure from a
// concurrent writer is returned as ErrDuplicate.
func (s *Store) Persist(ctx context.Context, rec event.Record) (inserted bool, err error) {
	if err := validateRecord(rec); err != nil {
		return false, err
	}
	table := rec.Kind()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, opErr("begin", table, err)
	}
	defer tx.Rollback()

	exists, err := s.recordExists(ctx, tx, rec)
	if err != nil {
		return false, opErr("dedup check", table, err)
	}
	if exists {
		return false, nil
	}

	id, err := s.insertRecord(ctx, tx, rec)
	if err != nil {
		if isUniqueViolation(err) {
			return false, opErr("insert", table, fmt.Errorf("%w: %v", ErrDuplicate, err))
		}
		return false, opErr("insert", table, err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return false, opErr("commit", table, fmt.Errorf("%w: %v", ErrDuplicate, err))
		}
		return false, opErr("commit", table, err)
	}

	setRecordID(rec, id)
	return true, nil
}

func (s *Store) recordExists(ctx context.Context, tx *sql.Tx, rec event.Record) (bool, error) {
	var (
		query string
		args  []any
	)
	switch r := rec.(type) {
	case *event.ChatMessage:
		query = `SELECT 1 FROM chat_messages
			WHERE username = ? AND chat_timestamp = ? AND message = ? AND message_type = ?`
		args = []any{r.Username, formatTime(r.Timestamp), r.Message, r.MessageType}
	case *event.Punishment:
		query = `SELECT 1 FROM punishments
			WHERE username = ? AND punishment_type = ? AND punishment_timestamp = ? AND reason = ?`
		args = []any{r.Username, r.Type, formatTime(r.Timestamp), r.Reason}
	case *event.Report:
		query = `SELECT 1 FROM reports
			WHERE reporter_name = ? AND reported_name = ? AND report_timestamp = ? AND reason = ?`
		args = []any{r.ReporterName, r.ReportedName, formatTime(r.Timestamp), r.Reason}
	case *event.KillEvent:
		query = `SELECT 1 FROM kill_events
			WHERE killer = ? AND killed = ? AND timestamp = ?`
		args = []any{r.Killer, r.Killed, formatTime(r.Timestamp)}
	default:
		return false, fmt.Errorf("%w: unknown record type %T", ErrInvalidRecord, rec)
	}

	var one int
	err := tx.QueryRowContext(ctx, s.dialect.rebind(query+" LIMIT 1"), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) insertRecord(ctx context.Context, tx *sql.Tx, rec event.Record) (int64, error) {
	var (
		query string
		args  []any
	)
	switch r := rec.(type) {
	case *event.ChatMessage:
		query = `INSERT INTO chat_messages (username, message, message_type, server_name, chat_timestamp)
			VALUES (?, ?, ?, ?, ?)`
		args = []any{r.Username, r.Message, r.MessageType, nullString(r.ServerName), formatTime(r.Timestamp)}
	case *event.Punishment:
		query = `INSERT INTO punishments
			(username, punishment_type, duration, reason, moderator_name, punishment_timestamp, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
		args = []any{
			r.Username, r.Type, r.Duration, r.Reason, nullString(r.ModeratorName),
			formatTime(r.Timestamp), nullTime(r.ExpiresAt),
		}
	case *event.Report:
		query = `INSERT INTO reports (reporter_name, reported_name, reason, server_name, report_timestamp)
			VALUES (?, ?, ?, ?, ?)`
		args = []any{r.ReporterName, r.ReportedName, r.Reason, nullString(r.ServerName), formatTime(r.Timestamp)}
	case *event.KillEvent:
		query = `INSERT INTO kill_events (killer, killed, timestamp) VALUES (?, ?, ?)`
		args = []any{r.Killer, r.Killed, formatTime(r.Timestamp)}
	default:
		return 0, fmt.Errorf("%w: unknown record type %T", ErrInvalidRecord, rec)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, s.dialect.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func setRecordID(rec event.Record, id int64) {
	switch r := rec.(type) {
	case *event.ChatMessage:
		r.ID = id
	case *event.Punishment:
		r.ID = id
	case *event.Report:
		r.ID = id
	case *event.KillEvent:
		r.ID = id
	}
}

// validateRecord checks that required fields are set.
func validateRecord(rec event.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if rec.OccurredAt().IsZero() {
		return fmt.Errorf("%w: %s: timestamp is required", ErrInvalidRecord, rec.Kind())
	}
	for _, name := range rec.Participants() {
		if name == "" {
			return fmt.Errorf("%w: %s: username is required", ErrInvalidRecord, rec.Kind())
		}
	}
	if p, ok := rec.(*event.Punishment); ok {
		if p.Type != event.PunishmentBan && p.Type != event.PunishmentMute {
			return fmt.Errorf("%w: punishment type %q", ErrInvalidRecord, p.Type)
		}
	}
	return nil
}
