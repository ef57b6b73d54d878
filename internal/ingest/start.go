package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/graaaaa/mclog-companion/internal/tail"
)

// StartPolicy selects where ingestion begins in the log file.
type StartPolicy string

const (
	// StartFromBeginning re-reads the whole file. Dedup makes this safe.
	StartFromBeginning StartPolicy = "start"
	// StartFromEnd only ingests lines written after startup.
	StartFromEnd StartPolicy = "end"
	// StartResume continues from the saved cursor, or the beginning when
	// no cursor exists.
	StartResume StartPolicy = "resume"
)

// ParseStartPolicy validates a configured policy name.
func ParseStartPolicy(s string) (StartPolicy, error) {
	switch p := StartPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case StartFromBeginning, StartFromEnd, StartResume:
		return p, nil
	case "":
		return StartFromBeginning, nil
	default:
		return "", fmt.Errorf("unknown start policy %q", s)
	}
}

// CursorLoader reads a saved tail offset.
type CursorLoader interface {
	LoadCursor(ctx context.Context, sourcePath string) (offset int64, found bool, err error)
}

// TailOptions translates a start policy into tailer options. A failed
// cursor lookup is returned to the caller, since storage is required at
// startup.
func TailOptions(ctx context.Context, policy StartPolicy, path string, cursors CursorLoader, logger *slog.Logger) ([]tail.Option, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch policy {
	case StartFromEnd:
		return []tail.Option{tail.WithOrigin(tail.FromEnd)}, nil
	case StartResume:
		offset, found, err := cursors.LoadCursor(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("load cursor: %w", err)
		}
		if !found {
			logger.Info("no saved cursor, starting from beginning", "path", path)
			return []tail.Option{tail.WithOrigin(tail.FromStart)}, nil
		}
		logger.Info("resuming from saved cursor", "path", path, "offset", offset)
		return []tail.Option{tail.WithOffset(offset)}, nil
	default:
		return []tail.Option{tail.WithOrigin(tail.FromStart)}, nil
	}
}
