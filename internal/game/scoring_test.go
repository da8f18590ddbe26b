// internal/game/scoring_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villeneuve-games/fortyone/internal/deck"
)

// settleRound forces the round into settlement with the given per-team point
// totals. Seat 0 carries team 0's points, seat 1 carries team 1's.
func settleRound(t *testing.T, s *Session, teamPoints [2]int) {
	s.Mu.Lock()
	for _, seat := range s.Seats {
		seat.Hand = nil
		seat.PointsWon = 0
	}
	s.Seats[0].PointsWon = teamPoints[0]
	s.Seats[1].PointsWon = teamPoints[1]
	trump := deck.Clubs
	s.Trump = &trump
	s.endRoundLocked()
	s.Mu.Unlock()
}

func TestMadeBetPaysAmount(t *testing.T) {
	s, _, _ := setupStarted(t)
	bidSimple(t, s, 9, false) // seat 1, team 1

	settleRound(t, s, [2]int{3, 9})
	assert.Equal(t, [2]int{3, 9}, s.TeamScores, "bettor gains the amount, defenders bank their points")
}

func TestFailedBetCostsAmount(t *testing.T) {
	s, _, _ := setupStarted(t)
	bidSimple(t, s, 9, false)

	settleRound(t, s, [2]int{4, 8})
	assert.Equal(t, [2]int{4, -9}, s.TeamScores, "a missed bet costs its full amount")
}

func TestWithoutTrumpDoublesTheStake(t *testing.T) {
	s, _, _ := setupStarted(t)
	bidSimple(t, s, 8, true)

	settleRound(t, s, [2]int{2, 9})
	assert.Equal(t, [2]int{2, 16}, s.TeamScores)

	record := s.RoundHistory[0]
	assert.Equal(t, [2]int{2, 16}, record.TeamDelta)
}

func TestWithoutTrumpFailureDoublesTheLoss(t *testing.T) {
	s, _, _ := setupStarted(t)
	bidSimple(t, s, 8, true)

	settleRound(t, s, [2]int{6, 5})
	assert.Equal(t, [2]int{6, -16}, s.TeamScores, "cumulative scores may go negative")
}

func TestDefendersNeverPenalized(t *testing.T) {
	s, _, _ := setupStarted(t)
	bidSimple(t, s, 12, false)

	settleRound(t, s, [2]int{0, 6})
	assert.Equal(t, 0, s.TeamScores[0], "the defending team is never charged")
	assert.Equal(t, -12, s.TeamScores[1])
}

func TestGameEndsAtThreshold(t *testing.T) {
	s, ms, _ := setupStarted(t)
	s.TeamScores = [2]int{30, 33}
	bidSimple(t, s, 8, false)

	settleRound(t, s, [2]int{2, 8}) // team 1 reaches 41 exactly
	assert.Equal(t, PhaseGameOver, s.Phase)
	require.NotNil(t, s.GameWinner)
	assert.Equal(t, 1, *s.GameWinner)
	assert.Equal(t, [2]int{32, 41}, s.TeamScores)

	over := ms.byTypeFor(seatKey(0), EventGameOver)
	require.Len(t, over, 1)
	assert.Equal(t, 1, over[0].Payload["winner"])
	assert.Len(t, ms.byType(EventGameOver), NumSeats, "every seat hears the result")
}

func TestBettorTeamWinsSimultaneousCross(t *testing.T) {
	s, _, _ := setupStarted(t)
	// Both teams will cross 41 in the same round; the bettor's result settles
	// first, so the bettor's team takes the game.
	s.TeamScores = [2]int{39, 34}
	bidSimple(t, s, 7, false) // bettor is team 1

	settleRound(t, s, [2]int{9, 7})
	assert.Equal(t, PhaseGameOver, s.Phase)
	require.NotNil(t, s.GameWinner)
	assert.Equal(t, 1, *s.GameWinner, "bettor settles first on a simultaneous cross")
	assert.Equal(t, [2]int{48, 41}, s.TeamScores)
}

func TestGameOverRejectsFurtherActions(t *testing.T) {
	s, _, _ := setupStarted(t)
	s.TeamScores = [2]int{0, 40}
	bidSimple(t, s, 7, false)
	settleRound(t, s, [2]int{0, 7})
	require.Equal(t, PhaseGameOver, s.Phase)

	require.Error(t, s.PlaceBet(1, 8, false))
	require.Error(t, s.PlayCard(1, mustCard(t, "7C")))
}

func TestRoundRecordCapturesEverything(t *testing.T) {
	s, _, _ := setupStarted(t)
	bidSimple(t, s, 7, false)
	settleRound(t, s, [2]int{4, 7})

	require.Len(t, s.RoundHistory, 1)
	record := s.RoundHistory[0]
	assert.Equal(t, 1, record.Round)
	assert.Len(t, record.Bets, 4)
	assert.Equal(t, Bet{Seat: 1, Amount: 7}, record.Accepted)
	assert.Equal(t, deck.Clubs, record.Trump)
	assert.Equal(t, [2]int{4, 7}, record.TeamPoints)
	assert.Equal(t, [2]int{4, 7}, record.Scores, "the record carries the cumulative totals at settlement")
}
