// internal/handlers/game_server.go
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"

	"github.com/villeneuve-games/fortyone/internal/cache"
	"github.com/villeneuve-games/fortyone/internal/database"
	"github.com/villeneuve-games/fortyone/internal/game"
	"github.com/villeneuve-games/fortyone/internal/resume"
)

// GameServer holds the process-wide collaborators every connection shares:
// the session registry, the timer orchestrator, and the resume token store.
type GameServer struct {
	Sessions *game.SessionStore
	Orch     *game.Orchestrator
	Resume   *resume.Store
	Logger   *logrus.Logger

	writers *writerPool
}

func NewGameServer(logger *logrus.Logger) *GameServer {
	store := game.NewSessionStore()
	return &GameServer{
		Sessions: store,
		Orch:     game.NewOrchestrator(store, quartz.NewReal(), logger),
		Resume:   resume.NewStore(),
		Logger:   logger,
		writers:  newWriterPool(logger),
	}
}

// NewSession builds a session wired to this server's scheduler, transport,
// persistence, and achievements collaborators and registers it.
func (gs *GameServer) NewSession() *game.Session {
	s := game.NewSession()
	s.Sched = gs.Orch
	s.Send = gs.writers.sendFunc()
	s.PersistFn = gs.persistSession(s)
	s.NotifyFn = gs.notifyAchievement(s)
	gs.Sessions.Add(s)
	gs.Logger.WithField("session", s.ID).Info("session created")
	return s
}

// DestroySession tears down a session, its timers, and its resume tokens.
func (gs *GameServer) DestroySession(s *game.Session) {
	gs.Sessions.Delete(s.ID)
	gs.Orch.Drop(s.ID)
	gs.Resume.DropSession(s.ID)
}

// persistSession returns the debounced snapshot writer for one session.
// Snapshots land in the sessions table; a finished game additionally gets its
// result row. Without a database configured this degrades to a no-op.
func (gs *GameServer) persistSession(s *game.Session) func(snap game.Snapshot, finished bool) {
	return func(snap game.Snapshot, finished bool) {
		if database.DB == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		data, err := json.Marshal(snap)
		if err != nil {
			gs.Logger.Errorf("failed to marshal session %s snapshot: %v", s.ID, err)
			return
		}
		if err := database.SaveSessionState(ctx, s.ID, string(snap.Phase), data, finished); err != nil {
			gs.Logger.Errorf("failed to persist session %s: %v", s.ID, err)
			return
		}
		if finished && snap.Winner != nil {
			players := make([]string, len(snap.Seats))
			for i, seat := range snap.Seats {
				players[i] = seat.Name
			}
			err := database.RecordFinishedGame(ctx, database.FinishedGame{
				SessionID:  s.ID,
				WinnerTeam: *snap.Winner,
				Scores:     snap.TeamScores,
				Rounds:     len(snap.RoundHistory),
				Players:    players,
			})
			if err != nil {
				gs.Logger.Errorf("failed to record finished game %s: %v", s.ID, err)
			}
		}
	}
}

// notifyAchievement returns the fire-and-forget achievements publisher for
// one session. Queue failures are logged and dropped.
func (gs *GameServer) notifyAchievement(s *game.Session) func(eventType, participant string, context map[string]interface{}) {
	return func(eventType, participant string, eventCtx map[string]interface{}) {
		if cache.Rdb == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := cache.PublishAchievement(ctx, cache.AchievementRecord{
			SessionID:   s.ID,
			EventType:   eventType,
			Participant: participant,
			Context:     eventCtx,
			Timestamp:   time.Now().Unix(),
		})
		if err != nil {
			gs.Logger.Warnf("achievement publish failed for session %s: %v", s.ID, err)
		}
	}
}
