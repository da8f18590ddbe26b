// internal/handlers/rest.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/villeneuve-games/fortyone/internal/database"
	"github.com/villeneuve-games/fortyone/internal/game"
)

// ServeHTTP routes the small REST surface that lives beside the WebSocket
// endpoint: health, live session listing, and the recent-games archive.
func (gs *GameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/healthz" && r.Method == http.MethodGet:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))

	case r.URL.Path == "/sessions" && r.Method == http.MethodGet:
		gs.handleListSessions(w, r)

	case r.URL.Path == "/games/recent" && r.Method == http.MethodGet:
		gs.handleRecentGames(w, r)

	default:
		http.Error(w, "unsupported route, use /ws for gameplay", http.StatusNotFound)
	}
}

// sessionSummary is the public listing entry for one live session. It exposes
// no hand information.
type sessionSummary struct {
	SessionID string     `json:"sessionId"`
	Phase     game.Phase `json:"phase"`
	Round     int        `json:"round"`
	Seated    int        `json:"seated"`
	Scores    [2]int     `json:"scores"`
}

func (gs *GameServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var out []sessionSummary
	for _, s := range gs.Sessions.Snapshot() {
		s.Mu.Lock()
		seated := 0
		for _, seat := range s.Seats {
			if seat.Occupied() {
				seated++
			}
		}
		out = append(out, sessionSummary{
			SessionID: s.ID.String(),
			Phase:     s.Phase,
			Round:     s.Round,
			Seated:    seated,
			Scores:    s.TeamScores,
		})
		s.Mu.Unlock()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (gs *GameServer) handleRecentGames(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		http.Error(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	games, err := database.RecentFinished(r.Context(), limit)
	if err != nil {
		gs.Logger.Errorf("failed to list recent games: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(games)
}
