package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/graaaaa/mclog-companion/internal/app"
	"github.com/graaaaa/mclog-companion/internal/event"
	"github.com/graaaaa/mclog-companion/internal/metrics"
)

// MockPlayerService implements app.PlayerUsecase for testing.
type MockPlayerService struct {
	players map[string]event.Player
	chat    []event.ChatMessage
	err     error
	gotUser string
}

func (m *MockPlayerService) Player(ctx context.Context, username string) (event.Player, error) {
	m.gotUser = username
	if m.err != nil {
		return event.Player{}, m.err
	}
	p, ok := m.players[username]
	if !ok {
		return event.Player{}, fmt.Errorf("%w: %s", app.ErrPlayerNotFound, username)
	}
	return p, nil
}

func (m *MockPlayerService) Chat(ctx context.Context, username string) ([]event.ChatMessage, error) {
	m.gotUser = username
	return m.chat, m.err
}

func (m *MockPlayerService) Punishments(ctx context.Context, username string) ([]event.Punishment, error) {
	return nil, m.err
}

func (m *MockPlayerService) ReportsAgainst(ctx context.Context, username string) ([]event.Report, error) {
	return nil, m.err
}

func (m *MockPlayerService) ReportsBy(ctx context.Context, username string) ([]event.Report, error) {
	return nil, m.err
}

func (m *MockPlayerService) Kills(ctx context.Context, username string) ([]event.KillEvent, error) {
	return nil, m.err
}

func (m *MockPlayerService) Debug(ctx context.Context, username string) (app.DebugResult, error) {
	if m.err != nil {
		return app.DebugResult{}, m.err
	}
	return app.DebugResult{Now: time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)}, nil
}

// MockStatsService implements app.StatsUsecase for testing.
type MockStatsService struct {
	result *app.StatsResult
	err    error
}

func (m *MockStatsService) GetBasicStats(ctx context.Context) (*app.StatsResult, error) {
	return m.result, m.err
}

var testTime = time.Date(2024, 5, 1, 14, 3, 7, 0, time.UTC)

func newTestServer(players app.PlayerUsecase, opts ...ServerOption) *Server {
	opts = append([]ServerOption{WithPlayerUsecase(players)}, opts...)
	return NewServer(":0", app.HealthService{Version: "test-version"}, opts...)
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&MockPlayerService{})

	rec := serve(server, http.MethodGet, "/api/v1/health")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var resp app.HealthResult
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
	if resp.Version != "test-version" {
		t.Errorf("expected version 'test-version', got '%s'", resp.Version)
	}
}

func TestHealthEndpointMethodNotAllowed(t *testing.T) {
	server := newTestServer(&MockPlayerService{})

	rec := serve(server, http.MethodPost, "/api/v1/health")

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestBanner(t *testing.T) {
	rec := serve(newTestServer(&MockPlayerService{}), http.MethodGet, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "is running") {
		t.Errorf("banner = %d %q", rec.Code, rec.Body.String())
	}
}

func TestPlayerEndpoint(t *testing.T) {
	players := &MockPlayerService{players: map[string]event.Player{
		"Steve": {Username: "Steve", FirstSeen: testTime, LastSeen: testTime, IsBanned: true},
	}}
	server := newTestServer(players)

	rec := serve(server, http.MethodGet, "/player/Steve")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["username"] != "Steve" || body["is_banned"] != true || body["is_muted"] != false {
		t.Errorf("body = %v", body)
	}
	if body["first_seen"] != "2024-05-01T14:03:07Z" {
		t.Errorf("first_seen = %v, want ISO-8601", body["first_seen"])
	}
}

func TestPlayerEndpoint_NotFound(t *testing.T) {
	server := newTestServer(&MockPlayerService{players: map[string]event.Player{}})

	rec := serve(server, http.MethodGet, "/player/Nobody")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"message":"Player not found"}` {
		t.Errorf("body = %s", got)
	}
}

func TestPlayerRoutes_StorageFailure(t *testing.T) {
	server := newTestServer(&MockPlayerService{err: errors.New("database is locked")})

	routes := []string{
		"/player/Steve",
		"/player/Steve/chat",
		"/player/Steve/punishments",
		"/player/Steve/reports_against",
		"/player/Steve/reports_by",
		"/player/Steve/kills",
	}
	for _, route := range routes {
		t.Run(route, func(t *testing.T) {
			rec := serve(server, http.MethodGet, route)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error != "Database query failed" || body.Details != "database is locked" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestPlayerListRoutes_EmptyArrays(t *testing.T) {
	server := newTestServer(&MockPlayerService{})

	for _, route := range []string{"/chat", "/punishments", "/reports_against", "/reports_by", "/kills"} {
		rec := serve(server, http.MethodGet, "/player/Steve"+route)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", route, rec.Code)
			continue
		}
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("%s: body = %s, want []", route, got)
		}
	}
}

func TestChatEndpoint(t *testing.T) {
	players := &MockPlayerService{chat: []event.ChatMessage{
		{Username: "Steve", Message: "gg", MessageType: event.ChatNormal, Timestamp: testTime},
	}}
	server := newTestServer(players)

	rec := serve(server, http.MethodGet, "/player/Steve/chat")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if players.gotUser != "Steve" {
		t.Errorf("username = %q", players.gotUser)
	}
	var got []event.ChatMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Message != "gg" {
		t.Errorf("chat = %+v", got)
	}
}

func TestDebugEndpoint(t *testing.T) {
	rec := serve(newTestServer(&MockPlayerService{}), http.MethodGet, "/debug/player/Ghost")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["players_table_status"] != nil {
		t.Errorf("players_table_status = %v, want null", body["players_table_status"])
	}
	if active, ok := body["active_punishments"].([]any); !ok || len(active) != 0 {
		t.Errorf("active_punishments = %v, want []", body["active_punishments"])
	}
	if body["now"] != "2024-05-01T15:00:00Z" {
		t.Errorf("now = %v", body["now"])
	}

	rec = serve(newTestServer(&MockPlayerService{err: errors.New("boom")}), http.MethodGet, "/debug/player/Ghost")
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "Debug query failed") {
		t.Errorf("failure = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatsEndpoint(t *testing.T) {
	stats := &MockStatsService{result: &app.StatsResult{Players: 3, TodayReports: 1}}
	server := newTestServer(&MockPlayerService{}, WithStatsUsecase(stats))

	rec := serve(server, http.MethodGet, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got app.StatsResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Players != 3 || got.TodayReports != 1 {
		t.Errorf("stats = %+v", got)
	}

	stats.err = errors.New("boom")
	if rec := serve(server, http.MethodGet, "/api/v1/stats"); rec.Code != http.StatusInternalServerError {
		t.Errorf("failure status = %d", rec.Code)
	}
}

func TestOptionalRoutesDisabled(t *testing.T) {
	server := NewServer(":0", app.HealthService{})

	for _, route := range []string{"/player/Steve", "/api/v1/stats", "/api/v1/stream", "/metrics"} {
		if rec := serve(server, http.MethodGet, route); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", route, rec.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	server := newTestServer(&MockPlayerService{}, WithCORSOrigins([]string{"http://localhost:3000"}))

	req := httptest.NewRequest(http.MethodOptions, "/player/Steve/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/player/Steve/chat", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got allow header %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	server := newTestServer(&MockPlayerService{}, WithRateLimit(2))

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = serve(server, http.MethodGet, "/api/v1/health").Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

func TestMetricsRouteAndRequestMetrics(t *testing.T) {
	m := metrics.New()
	server := newTestServer(&MockPlayerService{players: map[string]event.Player{}}, WithMetrics(m))

	serve(server, http.MethodGet, "/player/Nobody")
	serve(server, http.MethodGet, "/player/Other")

	got := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/player/{username}", "404"))
	if got != 2 {
		t.Errorf("requests{route=/player/{username},404} = %v, want 2", got)
	}

	rec := serve(server, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "mclog_api_requests_total") {
		t.Errorf("metrics exposition missing api counter")
	}
}

func TestStreamEndpoint(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := newTestServer(&MockPlayerService{}, WithHub(hub))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if line, _ := r.ReadString('\n'); line != ": connected\n" {
		t.Fatalf("first line = %q", line)
	}
	r.ReadString('\n')

	hub.Publish(&event.Punishment{ID: 7, Username: "Steve", Type: event.PunishmentBan, Timestamp: testTime})

	want := []string{"id: punishments-7\n", "event: punishments\n"}
	for _, w := range want {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line != w {
			t.Errorf("line = %q, want %q", line, w)
		}
	}
	data, _ := r.ReadString('\n')
	if !strings.HasPrefix(data, "data: ") || !strings.Contains(data, `"kind":"punishments"`) || !strings.Contains(data, `"punishment_type":"Ban"`) {
		t.Errorf("data = %q", data)
	}
}
