package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/graaaaa/mclog-companion/internal/event"
	"github.com/graaaaa/mclog-companion/internal/store"
)

// ChatHistoryLimit caps the chat endpoint.
const ChatHistoryLimit = 100

// ErrPlayerNotFound is returned when no player row exists for a username.
var ErrPlayerNotFound = errors.New("player not found")

// PlayerUsecase answers per-player queries.
type PlayerUsecase interface {
	Player(ctx context.Context, username string) (event.Player, error)
	Chat(ctx context.Context, username string) ([]event.ChatMessage, error)
	Punishments(ctx context.Context, username string) ([]event.Punishment, error)
	ReportsAgainst(ctx context.Context, username string) ([]event.Report, error)
	ReportsBy(ctx context.Context, username string) ([]event.Report, error)
	Kills(ctx context.Context, username string) ([]event.KillEvent, error)
	Debug(ctx context.Context, username string) (DebugResult, error)
}

// PlayerStore defines the store operations PlayerService needs.
type PlayerStore interface {
	GetPlayer(ctx context.Context, username string) (event.Player, error)
	ChatHistory(ctx context.Context, username string, limit int) ([]event.ChatMessage, error)
	Punishments(ctx context.Context, username string) ([]event.Punishment, error)
	ActivePunishments(ctx context.Context, username string, now time.Time) ([]event.Punishment, error)
	ReportsAgainst(ctx context.Context, username string) ([]event.Report, error)
	ReportsBy(ctx context.Context, username string) ([]event.Report, error)
	Kills(ctx context.Context, username string) ([]event.KillEvent, error)
}

// PlayerFlags is the stored ban/mute state of a player.
type PlayerFlags struct {
	IsBanned bool `json:"is_banned"`
	IsMuted  bool `json:"is_muted"`
}

// DebugResult compares stored flags with the punishments active right now.
// PlayersTableStatus is nil when the player has no row.
type DebugResult struct {
	PlayersTableStatus *PlayerFlags       `json:"players_table_status"`
	ActivePunishments  []event.Punishment `json:"active_punishments"`
	Now                time.Time          `json:"now"`
}

// PlayerService implements PlayerUsecase.
type PlayerService struct {
	store PlayerStore
	clock Clock
}

// NewPlayerService creates a PlayerService. A nil clock means the wall clock.
func NewPlayerService(store PlayerStore, clock Clock) *PlayerService {
	if clock == nil {
		clock = SystemClock
	}
	return &PlayerService{store: store, clock: clock}
}

// Player returns the player row or ErrPlayerNotFound.
func (s *PlayerService) Player(ctx context.Context, username string) (event.Player, error) {
	p, err := s.store.GetPlayer(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return event.Player{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, username)
	}
	return p, err
}

// Chat returns the most recent chat messages, newest first.
func (s *PlayerService) Chat(ctx context.Context, username string) ([]event.ChatMessage, error) {
	return s.store.ChatHistory(ctx, username, ChatHistoryLimit)
}

// Punishments returns the full punishment history, newest first.
func (s *PlayerService) Punishments(ctx context.Context, username string) ([]event.Punishment, error) {
	return s.store.Punishments(ctx, username)
}

// ReportsAgainst returns reports naming the player as reported.
func (s *PlayerService) ReportsAgainst(ctx context.Context, username string) ([]event.Report, error) {
	return s.store.ReportsAgainst(ctx, username)
}

// ReportsBy returns reports the player filed.
func (s *PlayerService) ReportsBy(ctx context.Context, username string) ([]event.Report, error) {
	return s.store.ReportsBy(ctx, username)
}

// Kills returns kills where the player is killer or killed.
func (s *PlayerService) Kills(ctx context.Context, username string) ([]event.KillEvent, error) {
	return s.store.Kills(ctx, username)
}

// Debug returns the stored flags next to the punishments active at the
// current server time. A missing player is not an error.
func (s *PlayerService) Debug(ctx context.Context, username string) (DebugResult, error) {
	now := s.clock.Now()
	res := DebugResult{Now: now}

	p, err := s.store.GetPlayer(ctx, username)
	switch {
	case err == nil:
		res.PlayersTableStatus = &PlayerFlags{IsBanned: p.IsBanned, IsMuted: p.IsMuted}
	case !errors.Is(err, store.ErrNotFound):
		return DebugResult{}, err
	}

	active, err := s.store.ActivePunishments(ctx, username, now)
	if err != nil {
		return DebugResult{}, err
	}
	res.ActivePunishments = active
	return res, nil
}
