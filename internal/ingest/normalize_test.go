package ingest

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
	"github.com/graaaaa/mclog-companion/internal/grammar"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer(WithLocation(time.UTC))
	processing := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	at := func(h, m, s int) time.Time { return time.Date(2024, 5, 1, h, m, s, 0, time.UTC) }
	exp := at(14, 23, 1).Add(7 * 24 * time.Hour)

	tests := []struct {
		name  string
		match grammar.Match
		want  event.Record
	}{
		{
			name:  "ban with duration",
			match: grammar.Match{Kind: grammar.KindBan, Clock: "14:23:01", Player: "Steve", Duration: "7d", Reason: "spamming"},
			want:  &event.Punishment{Username: "Steve", Type: event.PunishmentBan, Duration: "7d", Reason: "spamming", Timestamp: at(14, 23, 1), ExpiresAt: &exp},
		},
		{
			name:  "permanent mute",
			match: grammar.Match{Kind: grammar.KindMute, Clock: "08:00:00", Player: "Alex", Duration: "Forever", Reason: "toxicity"},
			want:  &event.Punishment{Username: "Alex", Type: event.PunishmentMute, Duration: "Forever", Reason: "toxicity", Timestamp: at(8, 0, 0)},
		},
		{
			name:  "unrecognized duration has no expiry",
			match: grammar.Match{Kind: grammar.KindBan, Clock: "08:00:00", Player: "Alex", Duration: "a while", Reason: "x"},
			want:  &event.Punishment{Username: "Alex", Type: event.PunishmentBan, Duration: "a while", Reason: "x", Timestamp: at(8, 0, 0)},
		},
		{
			name:  "report",
			match: grammar.Match{Kind: grammar.KindReport, Clock: "10:00:00", Player: "A", Target: "B", Reason: "griefing", Server: "Lobby"},
			want:  &event.Report{ReporterName: "A", ReportedName: "B", Reason: "griefing", ServerName: event.StringPtr("Lobby"), Timestamp: at(10, 0, 0)},
		},
		{
			name:  "swear",
			match: grammar.Match{Kind: grammar.KindChatSwear, Clock: "11:11:11", Player: "Bob", Server: "Survival", Message: "darn"},
			want:  &event.ChatMessage{Username: "Bob", Message: "darn", MessageType: event.ChatSwearFiltered, ServerName: event.StringPtr("Survival"), Timestamp: at(11, 11, 11)},
		},
		{
			name:  "advertise",
			match: grammar.Match{Kind: grammar.KindChatAdvertise, Clock: "11:11:11", Player: "Eve", Server: "Hub", Message: "join"},
			want:  &event.ChatMessage{Username: "Eve", Message: "join", MessageType: event.ChatAdvertiseFiltered, ServerName: event.StringPtr("Hub"), Timestamp: at(11, 11, 11)},
		},
		{
			name:  "normal chat has no server",
			match: grammar.Match{Kind: grammar.KindChatNormal, Clock: "12:00:00", Player: "Steve", Message: "hello"},
			want:  &event.ChatMessage{Username: "Steve", Message: "hello", MessageType: event.ChatNormal, Timestamp: at(12, 0, 0)},
		},
		{
			name:  "kill",
			match: grammar.Match{Kind: grammar.KindKill, Clock: "09:00:00", Player: "Bob", Target: "Alice"},
			want:  &event.KillEvent{Killer: "Bob", Killed: "Alice", Timestamp: at(9, 0, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.match, processing)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize =\n%+v\nwant\n%+v", got, tt.want)
			}
		})
	}
}

func TestNormalize_Participants(t *testing.T) {
	n := NewNormalizer(WithLocation(time.UTC))
	tests := []struct {
		match grammar.Match
		want  []string
	}{
		{grammar.Match{Kind: grammar.KindBan, Clock: "00:00:00", Player: "S", Duration: "1d"}, []string{"S"}},
		{grammar.Match{Kind: grammar.KindChatNormal, Clock: "00:00:00", Player: "S", Message: "m"}, []string{"S"}},
		{grammar.Match{Kind: grammar.KindReport, Clock: "00:00:00", Player: "A", Target: "B"}, []string{"A", "B"}},
		{grammar.Match{Kind: grammar.KindKill, Clock: "00:00:00", Player: "Bob", Target: "Alice"}, []string{"Bob", "Alice"}},
	}
	for _, tt := range tests {
		rec, err := n.Normalize(tt.match, testNow)
		if err != nil {
			t.Fatalf("Normalize(%s): %v", tt.match.Kind, err)
		}
		if got := rec.Participants(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s participants = %v, want %v", tt.match.Kind, got, tt.want)
		}
	}
}

func TestNormalize_InvalidClock(t *testing.T) {
	n := NewNormalizer(WithLocation(time.UTC))
	for _, clock := range []string{"25:00:00", "12:60:00", "", "noon"} {
		_, err := n.Normalize(grammar.Match{Kind: grammar.KindKill, Clock: clock, Player: "a", Target: "b"}, testNow)
		if err == nil {
			t.Errorf("clock %q: expected error", clock)
		}
	}
}

func TestNormalize_UnknownKind(t *testing.T) {
	n := NewNormalizer()
	_, err := n.Normalize(grammar.Match{Kind: "teleport", Clock: "00:00:00"}, testNow)
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestTimestamp_UsesProcessingDateInLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	n := NewNormalizer(WithLocation(tokyo))

	// 20:00 UTC on May 1 is already May 2 in Tokyo
	processing := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	got, err := n.Timestamp("06:30:00", processing)
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	want := time.Date(2024, 5, 2, 6, 30, 0, 0, tokyo)
	if !got.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", got, want)
	}
}

func TestTimestamp_MidnightLag(t *testing.T) {
	n := NewNormalizer(WithLocation(time.UTC))

	// a 23:59:59 line processed just after midnight is dated to the new day
	processing := time.Date(2024, 5, 2, 0, 0, 1, 0, time.UTC)
	got, err := n.Timestamp("23:59:59", processing)
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	want := time.Date(2024, 5, 2, 23, 59, 59, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", got, want)
	}
}
