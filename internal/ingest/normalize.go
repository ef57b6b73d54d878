package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/graaaaa/mclog-companion/internal/duration"
	"github.com/graaaaa/mclog-companion/internal/event"
	"github.com/graaaaa/mclog-companion/internal/grammar"
)

// Clock provides time for deterministic testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DefaultClock is used unless a test injects its own.
var DefaultClock Clock = realClock{}

// ErrUnknownKind is returned for a match kind the normalizer cannot map.
var ErrUnknownKind = errors.New("unknown match kind")

// Normalizer turns grammar matches into typed records.
type Normalizer struct {
	loc    *time.Location
	logger *slog.Logger
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithLocation sets the zone the clock-of-day is interpreted in.
func WithLocation(loc *time.Location) NormalizerOption {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// WithNormalizerLogger sets the logger used for duration warnings.
func WithNormalizerLogger(logger *slog.Logger) NormalizerOption {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNormalizer creates a Normalizer using the local time zone.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{loc: time.Local, logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Timestamp combines a HH:MM:SS clock with the calendar date of processing.
// The log carries no date, so a line read after midnight is dated to the
// new day.
func (n *Normalizer) Timestamp(clock string, processing time.Time) (time.Time, error) {
	tod, err := time.Parse(time.TimeOnly, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock %q: %w", clock, err)
	}
	y, m, d := processing.In(n.loc).Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), tod.Second(), 0, n.loc), nil
}

// Normalize builds the record for m, timestamped on the processing date.
func (n *Normalizer) Normalize(m grammar.Match, processing time.Time) (event.Record, error) {
	ts, err := n.Timestamp(m.Clock, processing)
	if err != nil {
		return nil, err
	}

	switch m.Kind {
	case grammar.KindBan:
		return n.punishment(m, event.PunishmentBan, ts), nil
	case grammar.KindMute:
		return n.punishment(m, event.PunishmentMute, ts), nil
	case grammar.KindReport:
		return &event.Report{
			ReporterName: m.Player,
			ReportedName: m.Target,
			Reason:       m.Reason,
			ServerName:   event.StringPtr(m.Server),
			Timestamp:    ts,
		}, nil
	case grammar.KindChatSwear:
		return chat(m, event.ChatSwearFiltered, ts), nil
	case grammar.KindChatAdvertise:
		return chat(m, event.ChatAdvertiseFiltered, ts), nil
	case grammar.KindChatNormal:
		return chat(m, event.ChatNormal, ts), nil
	case grammar.KindKill:
		return &event.KillEvent{Killer: m.Player, Killed: m.Target, Timestamp: ts}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, m.Kind)
	}
}

func (n *Normalizer) punishment(m grammar.Match, typ string, ts time.Time) *event.Punishment {
	p := &event.Punishment{
		Username:  m.Player,
		Type:      typ,
		Duration:  m.Duration,
		Reason:    m.Reason,
		Timestamp: ts,
	}
	if kind := duration.Classify(m.Duration); kind == duration.KindUnrecognized {
		n.logger.Warn("unrecognized punishment duration, storing without expiry",
			"username", m.Player,
			"type", typ,
			"duration", m.Duration,
		)
	}
	if exp, ok := duration.Resolve(m.Duration, ts); ok {
		p.ExpiresAt = &exp
	}
	return p
}

func chat(m grammar.Match, typ string, ts time.Time) *event.ChatMessage {
	return &event.ChatMessage{
		Username:    m.Player,
		Message:     m.Message,
		MessageType: typ,
		ServerName:  event.StringPtr(m.Server),
		Timestamp:   ts,
	}
}
