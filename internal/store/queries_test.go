package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
)

func TestChatHistory_NewestFirstAndLimited(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		m := &event.ChatMessage{
			Username:    "Steve",
			Message:     fmt.Sprintf("msg %d", i),
			MessageType: event.ChatNormal,
			Timestamp:   t0.Add(time.Duration(i) * time.Second),
		}
		if _, err := st.Persist(ctx, m); err != nil {
			t.Fatalf("persist %d: %v", i, err)
		}
	}

	got, err := st.ChatHistory(ctx, "Steve", 0)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(got) != DefaultChatLimit {
		t.Fatalf("len = %d, want %d", len(got), DefaultChatLimit)
	}
	if got[0].Message != "msg 119" {
		t.Errorf("first = %q, want msg 119", got[0].Message)
	}

	got, err = st.ChatHistory(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestReportsAndKills(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	recs := []event.Record{
		&event.Report{ReporterName: "A", ReportedName: "B", Reason: "griefing", ServerName: event.StringPtr("Lobby"), Timestamp: t0},
		&event.Report{ReporterName: "C", ReportedName: "B", Reason: "spam", Timestamp: t0.Add(time.Minute)},
		&event.KillEvent{Killer: "B", Killed: "A", Timestamp: t0},
		&event.KillEvent{Killer: "A", Killed: "B", Timestamp: t0.Add(time.Minute)},
		&event.KillEvent{Killer: "C", Killed: "D", Timestamp: t0},
	}
	for _, r := range recs {
		if _, err := st.Persist(ctx, r); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	against, err := st.ReportsAgainst(ctx, "B")
	if err != nil {
		t.Fatalf("ReportsAgainst: %v", err)
	}
	if len(against) != 2 || against[0].ReporterName != "C" {
		t.Errorf("reports against B = %+v", against)
	}
	if against[1].ServerName == nil || *against[1].ServerName != "Lobby" {
		t.Errorf("server name not round-tripped: %+v", against[1])
	}

	by, err := st.ReportsBy(ctx, "A")
	if err != nil {
		t.Fatalf("ReportsBy: %v", err)
	}
	if len(by) != 1 || by[0].ReportedName != "B" {
		t.Errorf("reports by A = %+v", by)
	}

	kills, err := st.Kills(ctx, "A")
	if err != nil {
		t.Fatalf("Kills: %v", err)
	}
	if len(kills) != 2 {
		t.Fatalf("kills involving A = %d, want 2", len(kills))
	}
	if kills[0].Killer != "A" || kills[1].Killed != "A" {
		t.Errorf("kills = %+v", kills)
	}
}

func TestActivePunishments(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	exp := t0.Add(time.Hour)
	recs := []*event.Punishment{
		{Username: "S", Type: event.PunishmentMute, Duration: "1h", Reason: "a", Timestamp: t0, ExpiresAt: &exp},
		{Username: "S", Type: event.PunishmentBan, Duration: "permanent", Reason: "b", Timestamp: t0},
	}
	for _, r := range recs {
		if _, err := st.Persist(ctx, r); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	active, err := st.ActivePunishments(ctx, "S", t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ActivePunishments: %v", err)
	}
	if len(active) != 1 || active[0].Type != event.PunishmentBan {
		t.Errorf("active = %+v, want only the permanent ban", active)
	}
}

func TestCursor(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, found, err := st.LoadCursor(ctx, "/logs/latest.log")
	if err != nil {
		t.Fatalf("LoadCursor: %v", err)
	}
	if found {
		t.Fatal("cursor found before save")
	}

	for _, off := range []int64{128, 4096} {
		if err := st.SaveCursor(ctx, "/logs/latest.log", off, t0); err != nil {
			t.Fatalf("SaveCursor: %v", err)
		}
	}

	off, found, err := st.LoadCursor(ctx, "/logs/latest.log")
	if err != nil {
		t.Fatalf("LoadCursor: %v", err)
	}
	if !found || off != 4096 {
		t.Errorf("cursor = %d (found=%v), want 4096", off, found)
	}
}

func TestInsertUnmatchedLine_Dedupe(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	line := "[12:00:00] [Render thread/INFO]: Loaded 12 advancements"
	inserted, err := st.InsertUnmatchedLine(ctx, line, t0)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}
	inserted, err = st.InsertUnmatchedLine(ctx, line, t0.Add(time.Second))
	if err != nil || inserted {
		t.Fatalf("second insert = %v, %v; want not inserted", inserted, err)
	}

	n, err := st.CountUnmatchedLines(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	if _, err := st.InsertUnmatchedLine(ctx, "", t0); err == nil {
		t.Error("expected error for empty line")
	}
}

func TestGetBasicStats(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	ban := &event.Punishment{Username: "S", Type: event.PunishmentBan, Duration: "perm", Reason: "x", Timestamp: t0}
	if _, err := st.Persist(ctx, ban); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if _, err := st.TouchPlayer(ctx, "S", t0); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if _, err := st.TouchPlayer(ctx, "T", t0.Add(time.Minute)); err != nil {
		t.Fatalf("touch: %v", err)
	}

	since, until := GetTodayBoundary(t0)
	stats, err := st.GetBasicStats(ctx, since, until)
	if err != nil {
		t.Fatalf("GetBasicStats: %v", err)
	}
	if stats.Players != 2 || stats.BannedPlayers != 1 || stats.TodayPunishments != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastSeenAt == nil || *stats.LastSeenAt != formatTime(t0.Add(time.Minute)) {
		t.Errorf("last_seen_at = %v", stats.LastSeenAt)
	}
}

func TestVacuumIfNeeded(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	vacuumed, err := st.VacuumIfNeeded(ctx, t0, nil)
	if err != nil {
		t.Fatalf("VacuumIfNeeded: %v", err)
	}
	if !vacuumed {
		t.Error("expected VACUUM on first call")
	}

	vacuumed, err = st.VacuumIfNeeded(ctx, t0.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("VacuumIfNeeded: %v", err)
	}
	if vacuumed {
		t.Error("expected VACUUM to be skipped one day later")
	}

	vacuumed, err = st.VacuumIfNeeded(ctx, t0.Add(31*24*time.Hour), nil)
	if err != nil {
		t.Fatalf("VacuumIfNeeded: %v", err)
	}
	if !vacuumed {
		t.Error("expected VACUUM after 31 days")
	}
}
