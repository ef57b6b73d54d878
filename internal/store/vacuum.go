package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

// VacuumInterval is the minimum interval between VACUUM operations.
const VacuumInterval = 30 * 24 * time.Hour // 30 days

const metadataKeyLastVacuum = "last_vacuum_at"

// VacuumIfNeeded runs VACUUM if the last vacuum was more than VacuumInterval
// before now. Returns true if VACUUM was performed. Postgres databases are
// left to autovacuum and always return false.
func (s *Store) VacuumIfNeeded(ctx context.Context, now time.Time, logger *slog.Logger) (bool, error) {
	if s.dialect != dialectSQLite {
		return false, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	lastVacuum, err := s.getLastVacuumTime(ctx)
	if err != nil {
		return false, err
	}

	if now.Sub(lastVacuum) < VacuumInterval {
		return false, nil
	}

	logger.Info("running VACUUM", "last_run", lastVacuum)
	start := time.Now()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return false, opErr("vacuum", "database", err)
	}

	logger.Info("VACUUM completed", "elapsed", time.Since(start))

	if err := s.setMetadata(ctx, metadataKeyLastVacuum, formatTime(now)); err != nil {
		// VACUUM itself succeeded
		logger.Warn("failed to update last_vacuum_at", "error", err)
	}

	return true, nil
}

func (s *Store) getLastVacuumTime(ctx context.Context) (time.Time, error) {
	value, err := s.getMetadata(ctx, metadataKeyLastVacuum)
	if errors.Is(err, ErrNotFound) {
		// Never vacuumed
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	t, err := parseTime(value)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (s *Store) getMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT value FROM metadata WHERE key = ?"), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", opErr("select", "metadata", err)
	}
	return value, nil
}

func (s *Store) setMetadata(ctx context.Context, key, value string) error {
	const query = `
	INSERT INTO metadata (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(query), key, value)
	return opErr("upsert", "metadata", err)
}
