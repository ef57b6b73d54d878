//go:build integration

// Package integration runs the whole pipeline end to end: a real log file
// is tailed into SQLite while the HTTP API serves from the same store.
package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/graaaaa/mclog-companion/internal/api"
	"github.com/graaaaa/mclog-companion/internal/app"
	"github.com/graaaaa/mclog-companion/internal/event"
	"github.com/graaaaa/mclog-companion/internal/ingest"
	"github.com/graaaaa/mclog-companion/internal/metrics"
	"github.com/graaaaa/mclog-companion/internal/store"
	"github.com/graaaaa/mclog-companion/internal/tail"
)

// TestApp holds all dependencies for integration tests.
type TestApp struct {
	Server  *httptest.Server
	Store   *store.Store
	Hub     *api.Hub
	Metrics *metrics.Metrics
	LogPath string

	inserted chan event.Record
}

// NewTestApp wires store, tailer, ingester, hub and API over a temp dir.
// Everything is torn down through t.Cleanup.
func NewTestApp(t *testing.T) *TestApp {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.OpenSQLite(context.Background(), filepath.Join(dir, "mclog.sqlite"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logPath := filepath.Join(dir, "latest.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("failed to create log: %v", err)
	}
	tl, err := tail.Open(logPath,
		tail.WithOrigin(tail.FromStart),
		tail.WithPollInterval(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("failed to open tail: %v", err)
	}
	t.Cleanup(func() { tl.Close() })

	m := metrics.New()
	hub := api.NewHub(api.WithHubClientGauge(m.SSEClients))
	inserted := make(chan event.Record, 64)

	ing := ingest.New(tl, st,
		ingest.WithLogger(logger),
		ingest.WithRecorder(m.Ingest()),
		ingest.WithCursorEvery(1),
		ingest.WithOnInsert(func(rec event.Record) {
			hub.Publish(rec)
			inserted <- rec
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Serve(ctx) }()
	ingDone := make(chan struct{})
	go func() {
		_ = ing.Serve(ctx)
		close(ingDone)
	}()

	server := api.NewServer("127.0.0.1:0",
		app.HealthService{Version: "test", DB: st},
		api.WithPlayerUsecase(app.NewPlayerService(st, app.SystemClock)),
		api.WithStatsUsecase(app.NewStatsService(st, app.SystemClock)),
		api.WithHub(hub),
		api.WithMetrics(m),
		api.WithLogger(logger),
		api.WithCORSOrigins([]string{"*"}),
		api.WithHeartbeat(50*time.Millisecond),
	)
	ts := httptest.NewServer(server.Handler())

	// Registered last so it runs first: stop serving, then stop the pipeline.
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-ingDone
	})

	return &TestApp{
		Server:   ts,
		Store:    st,
		Hub:      hub,
		Metrics:  m,
		LogPath:  logPath,
		inserted: inserted,
	}
}

// URL returns the base URL of the test server.
func (a *TestApp) URL() string {
	return a.Server.URL
}

// AppendLines writes lines to the tailed log as the game client would.
func (a *TestApp) AppendLines(t *testing.T, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(a.LogPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

// WaitInserted blocks until n records were stored.
func (a *TestApp) WaitInserted(t *testing.T, n int) []event.Record {
	t.Helper()
	var got []event.Record
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case rec := <-a.inserted:
			got = append(got, rec)
		case <-timeout:
			t.Fatalf("inserted %d records, want %d", len(got), n)
		}
	}
	return got
}
