package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
	"github.com/graaaaa/mclog-companion/internal/grammar"
	"github.com/graaaaa/mclog-companion/internal/store"
)

// DefaultOpTimeout bounds each storage call made for a line.
const DefaultOpTimeout = 5 * time.Second

// Ingester coordinates line ingestion from source to store.
type Ingester struct {
	source     LineSource
	store      Store
	classifier *grammar.Classifier
	normalizer *Normalizer
	logger     *slog.Logger
	clock      Clock
	recorder   Recorder

	opTimeout       time.Duration
	recordUnmatched bool
	cursorEvery     int
	onInsert        func(event.Record)

	unsaved int
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger for the Ingester.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) { i.logger = logger }
}

// WithClock sets the clock for the Ingester (for testing).
func WithClock(clock Clock) Option {
	return func(i *Ingester) { i.clock = clock }
}

// WithClassifier replaces the default grammar set.
func WithClassifier(c *grammar.Classifier) Option {
	return func(i *Ingester) { i.classifier = c }
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *Normalizer) Option {
	return func(i *Ingester) { i.normalizer = n }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(i *Ingester) {
		if r != nil {
			i.recorder = r
		}
	}
}

// WithOpTimeout bounds each storage call. Zero disables the bound.
func WithOpTimeout(d time.Duration) Option {
	return func(i *Ingester) { i.opTimeout = d }
}

// WithRecordUnmatched stores lines no grammar matched.
func WithRecordUnmatched(enabled bool) Option {
	return func(i *Ingester) { i.recordUnmatched = enabled }
}

// WithCursorEvery saves the tail offset after every n lines, when the source
// goes idle, and on shutdown. n <= 0 disables cursor persistence.
func WithCursorEvery(n int) Option {
	return func(i *Ingester) { i.cursorEvery = n }
}

// WithOnInsert registers a callback invoked for each newly stored record.
// It runs on the ingestion goroutine and must not block.
func WithOnInsert(fn func(event.Record)) Option {
	return func(i *Ingester) { i.onInsert = fn }
}

// New creates a new Ingester.
func New(source LineSource, st Store, opts ...Option) *Ingester {
	i := &Ingester{
		source:    source,
		store:     st,
		logger:    slog.Default(),
		clock:     DefaultClock,
		recorder:  nopRecorder{},
		opTimeout: DefaultOpTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.classifier == nil {
		i.classifier = grammar.New()
	}
	if i.normalizer == nil {
		i.normalizer = NewNormalizer(WithNormalizerLogger(i.logger))
	}
	return i
}

// Serve implements suture.Service.
func (i *Ingester) Serve(ctx context.Context) error {
	return i.Run(ctx)
}

// Run reads lines until ctx is cancelled. The line in progress is finished
// before returning, and the cursor is saved on the way out. Returns
// ctx.Err() on cancellation.
func (i *Ingester) Run(ctx context.Context) error {
	i.logger.Info("ingestion started",
		"path", i.source.Path(),
		"offset", i.source.Offset(),
	)
	defer i.logger.Info("ingestion stopped")
	defer i.saveCursor(context.WithoutCancel(ctx))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, ok, err := i.source.Next()
		if err != nil {
			i.logger.Error("failed to read log line", "path", i.source.Path(), "error", err)
		}
		if err != nil || !ok {
			if i.unsaved > 0 {
				i.saveCursor(ctx)
			}
			if err := i.source.Wait(ctx); err != nil {
				return err
			}
			continue
		}

		i.ProcessLine(context.WithoutCancel(ctx), line)
		i.recorder.Offset(i.source.Offset())

		if i.cursorEvery > 0 {
			i.unsaved++
			if i.unsaved >= i.cursorEvery {
				i.saveCursor(ctx)
			}
		}
	}
}

// Result summarizes the work done for one line.
type Result struct {
	Matches  int
	Inserted []event.Record
}

// ProcessLine classifies line and stores every match. Failures are logged
// and never returned; the caller moves on to the next line.
func (i *Ingester) ProcessLine(ctx context.Context, line string) Result {
	i.recorder.LineRead()
	now := i.clock.Now()

	matches := i.classifier.Classify(line)
	if len(matches) == 0 {
		i.handleUnmatched(ctx, line, now)
		return Result{}
	}

	res := Result{Matches: len(matches)}
	for _, m := range matches {
		i.recorder.Matched(string(m.Kind))

		rec, err := i.normalizer.Normalize(m, now)
		if err != nil {
			i.logger.Warn("failed to normalize match",
				"kind", m.Kind,
				"line", line,
				"error", err,
			)
			continue
		}

		if !i.persist(ctx, rec, line) {
			continue
		}
		res.Inserted = append(res.Inserted, rec)

		for _, username := range rec.Participants() {
			i.touch(ctx, username, now, line)
		}
		if i.onInsert != nil {
			i.onInsert(rec)
		}
	}
	return res
}

// persist stores rec and reports whether a new row was written.
func (i *Ingester) persist(ctx context.Context, rec event.Record, line string) bool {
	ctx, cancel := i.opContext(ctx)
	defer cancel()

	inserted, err := i.store.Persist(ctx, rec)
	switch {
	case err == nil && inserted:
		i.recorder.Inserted(rec.Kind())
		i.logger.Debug("record inserted",
			"table", rec.Kind(),
			"usernames", rec.Participants(),
			"ts", rec.OccurredAt(),
		)
		return true
	case err == nil:
		i.recorder.Duplicate(rec.Kind())
		return false
	case errors.Is(err, store.ErrDuplicate):
		i.recorder.Duplicate(rec.Kind())
		i.logger.Debug("duplicate rejected by constraint",
			"table", rec.Kind(),
			"usernames", rec.Participants(),
		)
		return false
	case errors.Is(err, store.ErrInvalidRecord):
		i.logger.Warn("invalid record skipped",
			"table", rec.Kind(),
			"line", line,
			"error", err,
		)
		return false
	default:
		i.recorder.StorageError("persist")
		i.logger.Error("failed to persist record",
			"table", rec.Kind(),
			"usernames", rec.Participants(),
			"line", line,
			"error", err,
		)
		return false
	}
}

func (i *Ingester) touch(ctx context.Context, username string, now time.Time, line string) {
	ctx, cancel := i.opContext(ctx)
	defer cancel()

	p, err := i.store.TouchPlayer(ctx, username, now)
	if err != nil {
		i.recorder.StorageError("touch_player")
		i.logger.Error("failed to update player",
			"username", username,
			"line", line,
			"error", err,
		)
		return
	}
	i.logger.Debug("player updated",
		"username", p.Username,
		"is_banned", p.IsBanned,
		"is_muted", p.IsMuted,
	)
}

func (i *Ingester) handleUnmatched(ctx context.Context, line string, now time.Time) {
	i.recorder.Unmatched()
	i.logger.Debug("line matched no grammar", "line", line)
	if !i.recordUnmatched || line == "" {
		return
	}

	ctx, cancel := i.opContext(ctx)
	defer cancel()

	if _, err := i.store.InsertUnmatchedLine(ctx, line, now); err != nil {
		i.recorder.StorageError("unmatched")
		i.logger.Error("failed to record unmatched line", "error", err)
	}
}

func (i *Ingester) saveCursor(ctx context.Context) {
	if i.cursorEvery <= 0 || i.unsaved == 0 {
		return
	}
	ctx, cancel := i.opContext(ctx)
	defer cancel()

	offset := i.source.Offset()
	if err := i.store.SaveCursor(ctx, i.source.Path(), offset, i.clock.Now()); err != nil {
		i.recorder.StorageError("save_cursor")
		i.logger.Error("failed to save cursor", "offset", offset, "error", err)
		return
	}
	i.unsaved = 0
}

func (i *Ingester) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.opTimeout)
}
