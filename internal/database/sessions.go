// internal/database/sessions.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionRow is the persisted form of a live or finished session snapshot.
type SessionRow struct {
	ID        uuid.UUID       `json:"id"`
	Phase     string          `json:"phase"`
	State     json.RawMessage `json:"state"`
	Finished  bool            `json:"finished"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SaveSessionState upserts the latest snapshot for a session. Called from the
// debounced persistence path, so it must tolerate being the last write for a
// session that no longer exists in memory.
func SaveSessionState(ctx context.Context, id uuid.UUID, phase string, state []byte, finished bool) error {
	q := `
		INSERT INTO sessions (id, phase, state, finished, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET phase = $2, state = $3, finished = $4, updated_at = now()
	`
	if _, err := DB.Exec(ctx, q, id, phase, state, finished); err != nil {
		return fmt.Errorf("upsert session state: %w", err)
	}
	return nil
}

// FinishedGame is one row of the recent-games listing.
type FinishedGame struct {
	SessionID  uuid.UUID `json:"sessionId"`
	WinnerTeam int       `json:"winnerTeam"`
	Scores     [2]int    `json:"scores"`
	Rounds     int       `json:"rounds"`
	Players    []string  `json:"players"`
	FinishedAt time.Time `json:"finishedAt"`
}

// RecordFinishedGame writes the terminal result and per-player rows in one
// transaction.
func RecordFinishedGame(ctx context.Context, g FinishedGame) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO finished_games (session_id, winner_team, score_team0, score_team1, rounds, finished_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (session_id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, q, g.SessionID, g.WinnerTeam, g.Scores[0], g.Scores[1], g.Rounds); err != nil {
			return err
		}
		for i, name := range g.Players {
			pq := `
				INSERT INTO finished_game_players (session_id, seat, player_name)
				VALUES ($1, $2, $3)
				ON CONFLICT (session_id, seat) DO UPDATE SET player_name = $3
			`
			if _, err := tx.Exec(ctx, pq, g.SessionID, i, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx record finished game: %w", err)
	}
	return nil
}

// RecentFinished returns the most recently completed games, newest first.
func RecentFinished(ctx context.Context, limit int) ([]FinishedGame, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := `
		SELECT g.session_id, g.winner_team, g.score_team0, g.score_team1, g.rounds, g.finished_at,
		       COALESCE(array_agg(p.player_name ORDER BY p.seat), '{}')
		FROM finished_games g
		LEFT JOIN finished_game_players p ON p.session_id = g.session_id
		GROUP BY g.session_id, g.winner_team, g.score_team0, g.score_team1, g.rounds, g.finished_at
		ORDER BY g.finished_at DESC
		LIMIT $1
	`
	rows, err := DB.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent finished games: %w", err)
	}
	defer rows.Close()

	var out []FinishedGame
	for rows.Next() {
		var g FinishedGame
		if err := rows.Scan(&g.SessionID, &g.WinnerTeam, &g.Scores[0], &g.Scores[1], &g.Rounds, &g.FinishedAt, &g.Players); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// LoadSessionState fetches the persisted snapshot for a session, if any.
func LoadSessionState(ctx context.Context, id uuid.UUID) (*SessionRow, error) {
	q := `SELECT id, phase, state, finished, updated_at FROM sessions WHERE id = $1`
	var row SessionRow
	err := DB.QueryRow(ctx, q, id).Scan(&row.ID, &row.Phase, &row.State, &row.Finished, &row.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load session state: %w", err)
	}
	return &row, nil
}
