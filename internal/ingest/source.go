// Package ingest drives log lines from a tailed file through classification,
// normalization and deduplicated persistence.
package ingest

import (
	"context"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
)

// LineSource abstracts the file tailer for testing.
type LineSource interface {
	// Next returns the next complete line. ok is false when none is ready.
	Next() (line string, ok bool, err error)
	// Wait blocks until new data may be available or ctx is done.
	Wait(ctx context.Context) error
	// Offset returns the byte offset past the last returned line.
	Offset() int64
	// Path identifies the source for cursor persistence.
	Path() string
}

// Store defines the store operations needed by the Ingester.
type Store interface {
	Persist(ctx context.Context, rec event.Record) (bool, error)
	TouchPlayer(ctx context.Context, username string, now time.Time) (event.Player, error)
	InsertUnmatchedLine(ctx context.Context, rawLine string, now time.Time) (bool, error)
	SaveCursor(ctx context.Context, sourcePath string, offset int64, now time.Time) error
}

// Recorder receives ingestion counters. The zero Ingester uses a no-op.
type Recorder interface {
	LineRead()
	Matched(kind string)
	Inserted(table string)
	Duplicate(table string)
	StorageError(op string)
	Unmatched()
	Offset(offset int64)
}

type nopRecorder struct{}

func (nopRecorder) LineRead()           {}
func (nopRecorder) Matched(string)      {}
func (nopRecorder) Inserted(string)     {}
func (nopRecorder) Duplicate(string)    {}
func (nopRecorder) StorageError(string) {}
func (nopRecorder) Unmatched()          {}
func (nopRecorder) Offset(int64)        {}
