package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/graaaaa/mclog-companion/internal/app"
	"github.com/graaaaa/mclog-companion/internal/event"
)

// handleBanner handles GET /.
func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Minecraft Player Data API is running!"))
}

// handlePlayer handles GET /player/{username}.
func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.players.Player(r.Context(), chi.URLParam(r, "username"))
	if errors.Is(err, app.ErrPlayerNotFound) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Player not found"})
		return
	}
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// listHandler adapts a per-player list query to an HTTP handler.
func listHandler[T any](query func(ctx context.Context, username string) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := query(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			writeQueryError(w, err)
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleDebugPlayer handles GET /debug/player/{username}.
func (s *Server) handleDebugPlayer(w http.ResponseWriter, r *http.Request) {
	res, err := s.players.Debug(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Debug query failed", err)
		return
	}
	if res.ActivePunishments == nil {
		res.ActivePunishments = []event.Punishment{}
	}
	writeJSON(w, http.StatusOK, res)
}
