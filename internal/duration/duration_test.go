package duration

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var base = time.Date(2024, 5, 1, 14, 3, 22, 0, time.Local)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		want   time.Time
		wantOK bool
	}{
		{"days", "7d", base.AddDate(0, 0, 7), true},
		{"hours", "12h", base.Add(12 * time.Hour), true},
		{"minutes", "30m", base.Add(30 * time.Minute), true},
		{"seconds", "45s", base.Add(45 * time.Second), true},
		{"uppercase unit", "3D", base.AddDate(0, 0, 3), true},
		{"surrounding space", "  2h ", base.Add(2 * time.Hour), true},
		{"prefix match", "7days", base.AddDate(0, 0, 7), true},
		{"zero", "0s", base, true},
		{"permanent", "permanent", time.Time{}, false},
		{"perm", "perm", time.Time{}, false},
		{"forever mixed case", "Forever", time.Time{}, false},
		{"empty", "", time.Time{}, false},
		{"garbage", "soon", time.Time{}, false},
		{"unit first", "d7", time.Time{}, false},
		{"unknown unit", "3w", time.Time{}, false},
		{"overflow", "99999999999999999999d", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.token, base)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.token, ok, tt.wantOK)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Resolve(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		token string
		want  Kind
	}{
		{"", KindPermanent},
		{"PERMANENT", KindPermanent},
		{"1h", KindRelative},
		{"10minutes", KindRelative},
		{"tomorrow", KindUnrecognized},
		{"h1", KindUnrecognized},
	}
	for _, tt := range tests {
		if got := Classify(tt.token); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestResolve_DaysKeepWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2024-03-10 is the spring-forward day in New York.
	start := time.Date(2024, 3, 8, 14, 0, 0, 0, ny)

	got, ok := Resolve("7d", start)
	if !ok {
		t.Fatal("7d did not resolve")
	}
	want := time.Date(2024, 3, 15, 14, 0, 0, 0, ny)
	if !got.Equal(want) {
		t.Errorf("Resolve(7d) = %v, want %v", got, want)
	}
	if elapsed := got.Sub(start); elapsed != 7*24*time.Hour-time.Hour {
		t.Errorf("elapsed = %v, want 167h", elapsed)
	}

	if got, _ := Resolve("24h", start); !got.Equal(start.Add(24 * time.Hour)) {
		t.Errorf("Resolve(24h) = %v, want elapsed hours", got)
	}
}

func TestResolveProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("clock units add elapsed time to base", prop.ForAll(
		func(n int64, unit string) bool {
			got, ok := Resolve(fmt.Sprintf("%d%s", n, unit), base)
			return ok && got.Equal(base.Add(time.Duration(n)*units[unit]))
		},
		gen.Int64Range(0, 100000),
		gen.OneConstOf("h", "m", "s"),
	))

	properties.Property("days add calendar days to base", prop.ForAll(
		func(n int) bool {
			got, ok := Resolve(fmt.Sprintf("%dd", n), base)
			return ok && got.Equal(base.AddDate(0, 0, n))
		},
		gen.IntRange(0, 100000),
	))

	properties.Property("resolution is case insensitive", prop.ForAll(
		func(n int64, unit string) bool {
			lower, okLower := Resolve(fmt.Sprintf("%d%s", n, unit), base)
			upper, okUpper := Resolve(fmt.Sprintf("%d%s", n, strings.ToUpper(unit)), base)
			return okLower == okUpper && lower.Equal(upper)
		},
		gen.Int64Range(0, 100000),
		gen.OneConstOf("d", "h", "m", "s"),
	))

	properties.Property("tokens without a leading digit never expire", prop.ForAll(
		func(s string) bool {
			_, ok := Resolve(s, base)
			return !ok
		},
		gen.AlphaString(),
	))

	properties.Property("resolved expiry is never before base", prop.ForAll(
		func(n int64, unit string) bool {
			got, ok := Resolve(fmt.Sprintf("%d%s", n, unit), base)
			return !ok || !got.Before(base)
		},
		gen.Int64Range(0, 1<<40),
		gen.OneConstOf("d", "h", "m", "s"),
	))

	properties.TestingRun(t)
}
