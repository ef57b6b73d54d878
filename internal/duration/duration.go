// Package duration resolves punishment duration tokens such as "7d" or
// "permanent" into absolute expiry instants.
package duration

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a duration token.
type Kind int

const (
	// KindPermanent is an empty token or one of the permanent keywords.
	KindPermanent Kind = iota
	// KindRelative is a token starting with <digits><unit>.
	KindRelative
	// KindUnrecognized is anything else. It resolves to no expiry.
	KindUnrecognized
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindRelative:
		return "relative"
	default:
		return "unrecognized"
	}
}

// relativePattern is anchored at the start only, so "7days" resolves as 7d.
var relativePattern = regexp.MustCompile(`^(\d+)([dhms])`)

var permanentWords = map[string]struct{}{
	"permanent": {},
	"perm":      {},
	"forever":   {},
}

const day = 24 * time.Hour

var units = map[string]time.Duration{
	"d": day,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

func normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// Classify reports how Resolve will treat token.
func Classify(token string) Kind {
	t := normalize(token)
	if t == "" {
		return KindPermanent
	}
	if _, ok := permanentWords[t]; ok {
		return KindPermanent
	}
	if _, _, ok := parseRelative(t); ok {
		return KindRelative
	}
	return KindUnrecognized
}

// Resolve returns base plus the duration encoded in token. ok is false when
// the punishment has no expiry: permanent keywords, empty tokens, and any
// token that does not start with <digits><d|h|m|s>. Days are calendar days
// in base's location, so "7d" keeps the wall clock across a DST change.
func Resolve(token string, base time.Time) (expiry time.Time, ok bool) {
	t := normalize(token)
	if t == "" {
		return time.Time{}, false
	}
	if _, perm := permanentWords[t]; perm {
		return time.Time{}, false
	}
	n, unit, ok := parseRelative(t)
	if !ok {
		return time.Time{}, false
	}
	if unit == day {
		return base.AddDate(0, 0, int(n)), true
	}
	return base.Add(time.Duration(n) * unit), true
}

func parseRelative(t string) (int64, time.Duration, bool) {
	m := relativePattern.FindStringSubmatch(t)
	if m == nil {
		return 0, 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// digit run overflows int64
		return 0, 0, false
	}
	unit := units[m[2]]
	if n > int64(maxDuration/unit) {
		return 0, 0, false
	}
	return n, unit, true
}

const maxDuration = time.Duration(1<<63 - 1)
