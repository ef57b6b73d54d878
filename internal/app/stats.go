package app

import (
	"context"
	"time"

	"github.com/graaaaa/mclog-companion/internal/store"
)

// StatsResult represents the response for the stats endpoint.
type StatsResult struct {
	Players          int64   `json:"players"`
	BannedPlayers    int64   `json:"banned_players"`
	MutedPlayers     int64   `json:"muted_players"`
	ChatMessages     int64   `json:"chat_messages"`
	Punishments      int64   `json:"punishments"`
	Reports          int64   `json:"reports"`
	Kills            int64   `json:"kills"`
	TodayPunishments int64   `json:"today_punishments"`
	TodayReports     int64   `json:"today_reports"`
	LastSeenAt       *string `json:"last_seen_at,omitempty"`
}

// StatsUsecase defines the interface for stats operations.
type StatsUsecase interface {
	GetBasicStats(ctx context.Context) (*StatsResult, error)
}

// StatsStore defines the interface for stats data access.
type StatsStore interface {
	GetBasicStats(ctx context.Context, since, until time.Time) (*store.BasicStats, error)
}

// StatsService implements StatsUsecase.
type StatsService struct {
	store StatsStore
	clock Clock
}

// NewStatsService creates a new StatsService. A nil clock means the wall clock.
func NewStatsService(store StatsStore, clock Clock) *StatsService {
	if clock == nil {
		clock = SystemClock
	}
	return &StatsService{store: store, clock: clock}
}

// GetBasicStats retrieves totals plus today's activity (local time).
func (s *StatsService) GetBasicStats(ctx context.Context) (*StatsResult, error) {
	since, until := store.GetTodayBoundary(s.clock.Now())

	stats, err := s.store.GetBasicStats(ctx, since, until)
	if err != nil {
		return nil, err
	}

	return &StatsResult{
		Players:          stats.Players,
		BannedPlayers:    stats.BannedPlayers,
		MutedPlayers:     stats.MutedPlayers,
		ChatMessages:     stats.ChatMessages,
		Punishments:      stats.Punishments,
		Reports:          stats.Reports,
		Kills:            stats.Kills,
		TodayPunishments: stats.TodayPunishments,
		TodayReports:     stats.TodayReports,
		LastSeenAt:       stats.LastSeenAt,
	}, nil
}
