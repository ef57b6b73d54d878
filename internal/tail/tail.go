// Package tail follows a single append-only log file line by line.
package tail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultPollInterval is the wait used when no file change is observed.
const DefaultPollInterval = 200 * time.Millisecond

// Origin selects where a new Tailer starts reading.
type Origin int

const (
	// FromStart reads the whole file (backfill).
	FromStart Origin = iota
	// FromEnd only reads lines appended after Open.
	FromEnd
)

// State reports whether unread bytes are available.
type State int

const (
	AtEnd State = iota
	HasData
)

func (s State) String() string {
	if s == HasData {
		return "has_data"
	}
	return "at_end"
}

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("tailer closed")

// Tailer reads complete lines from a growing file. It is not safe for
// concurrent use; a single ingestion goroutine owns it.
type Tailer struct {
	path     string
	f        *os.File
	r        *bufio.Reader
	offset   int64
	origin   Origin
	resumeAt int64
	resume   bool
	interval time.Duration
	decoder  *encoding.Decoder
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	changed chan struct{}
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithOrigin sets the start position used when no resume offset applies.
func WithOrigin(o Origin) Option {
	return func(t *Tailer) { t.origin = o }
}

// WithOffset resumes at a saved byte offset. An offset beyond the current
// file size means the file was truncated, and reading restarts at 0.
func WithOffset(offset int64) Option {
	return func(t *Tailer) {
		t.resumeAt = offset
		t.resume = true
	}
}

// WithPollInterval sets the maximum time Wait blocks without a file event.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tailer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithEncoding sets the charset the file is decoded from.
func WithEncoding(enc encoding.Encoding) Option {
	return func(t *Tailer) {
		if enc != nil {
			t.decoder = enc.NewDecoder()
		}
	}
}

// WithLogger sets the logger for the Tailer.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tailer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// LookupEncoding resolves a WHATWG charset label such as "utf-8" or
// "windows-1252".
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

// Open opens path for tailing. A missing or unreadable file is an error.
func Open(path string, opts ...Option) (*Tailer, error) {
	t := &Tailer{
		path:     path,
		interval: DefaultPollInterval,
		decoder:  unicode.UTF8.NewDecoder(),
		logger:   slog.Default(),
		changed:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	start := int64(0)
	switch {
	case t.resume && t.resumeAt > info.Size():
		t.logger.Warn("saved offset beyond file size, restarting from beginning",
			"offset", t.resumeAt,
			"size", info.Size(),
		)
	case t.resume && t.resumeAt > 0:
		start = t.resumeAt
	case !t.resume && t.origin == FromEnd:
		start = info.Size()
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek log file: %w", err)
	}

	t.f = f
	t.r = bufio.NewReader(f)
	t.offset = start
	t.startWatcher()
	return t, nil
}

// startWatcher subscribes to write events on the file's directory. Without
// a watcher Wait degrades to plain polling.
func (t *Tailer) startWatcher() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warn("file watcher unavailable, polling only", "error", err)
		return
	}
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		w.Close()
		t.logger.Warn("file watcher unavailable, polling only", "error", err)
		return
	}
	t.watcher = w

	target := filepath.Clean(t.path)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				select {
				case t.changed <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				t.logger.Debug("file watcher error", "error", err)
			}
		}
	}()
}

// Path returns the tailed file path.
func (t *Tailer) Path() string { return t.path }

// Offset returns the byte offset just past the last returned line.
func (t *Tailer) Offset() int64 { return t.offset }

// State compares the cursor against the current file size.
func (t *Tailer) State() (State, error) {
	if t.f == nil {
		return AtEnd, ErrClosed
	}
	info, err := t.f.Stat()
	if err != nil {
		return AtEnd, fmt.Errorf("stat log file: %w", err)
	}
	if t.offset < info.Size() {
		return HasData, nil
	}
	return AtEnd, nil
}

// Next returns the next complete line without its terminator. ok is false
// when no complete line is available yet. Bytes of an unterminated line are
// never consumed; they are read again once the writer finishes the line.
func (t *Tailer) Next() (line string, ok bool, err error) {
	if t.f == nil {
		return "", false, ErrClosed
	}

	raw, err := t.r.ReadBytes('\n')
	if err == nil {
		t.offset += int64(len(raw))
		return t.decode(raw), true, nil
	}
	if !errors.Is(err, io.EOF) {
		return "", false, fmt.Errorf("read log file: %w", err)
	}
	if len(raw) > 0 {
		// partial write: rewind so the bytes are re-read with their terminator
		if _, err := t.f.Seek(t.offset, io.SeekStart); err != nil {
			return "", false, fmt.Errorf("seek log file: %w", err)
		}
		t.r.Reset(t.f)
	}
	return "", false, nil
}

// decode converts raw to UTF-8 and strips surrounding whitespace, including
// the line terminator.
func (t *Tailer) decode(raw []byte) string {
	out, err := t.decoder.Bytes(raw)
	if err != nil {
		// decoders replace malformed input; an error here means a broken
		// transformer, so fall back to lossy UTF-8
		out = bytes.ToValidUTF8(raw, []byte("�"))
	}
	return strings.TrimSpace(string(out))
}

// Wait blocks until the file changes, the poll interval elapses, or ctx is
// done. It returns ctx.Err() only on cancellation.
func (t *Tailer) Wait(ctx context.Context) error {
	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-t.changed:
		return nil
	}
}

// Close stops the watcher and releases the file.
func (t *Tailer) Close() error {
	if t.watcher != nil {
		t.watcher.Close()
		t.watcher = nil
	}
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}
