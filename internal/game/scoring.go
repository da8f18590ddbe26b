// internal/game/scoring.go
package game

import "github.com/villeneuve-games/fortyone/internal/deck"

// endRoundLocked settles the round once all eight tricks are resolved. The
// bettor's team gains or loses the bet amount (doubled without trump)
// depending on whether it collected at least that many points; the defending
// team always banks its own points. Assumes lock is held.
func (s *Session) endRoundLocked() {
	s.Phase = PhaseScoring
	if s.Sched != nil {
		s.Sched.CancelTurn(s.ID)
	}

	var teamPoints [2]int
	for _, seat := range s.Seats {
		teamPoints[seat.Team] += seat.PointsWon
	}

	accepted := *s.Accepted
	bTeam := s.Seats[accepted.Seat].Team
	mult := 1
	if accepted.NoTrump {
		mult = 2
	}
	var delta [2]int
	if teamPoints[bTeam] >= accepted.Amount {
		delta[bTeam] = accepted.Amount * mult
	} else {
		delta[bTeam] = -accepted.Amount * mult
	}
	delta[1-bTeam] = teamPoints[1-bTeam]

	s.TeamScores[0] += delta[0]
	s.TeamScores[1] += delta[1]

	trump := deck.Suit("")
	if s.Trump != nil {
		trump = *s.Trump
	}
	record := RoundRecord{
		Round:      s.Round,
		Bets:       append([]Bet(nil), s.CurrentBets...),
		Accepted:   accepted,
		Trump:      trump,
		TeamPoints: teamPoints,
		TeamDelta:  delta,
		Scores:     s.TeamScores,
		Tricks:     append([]TrickResult(nil), s.TrickHistory...),
	}
	s.RoundHistory = append(s.RoundHistory, record)
	s.touchLocked()

	s.broadcastLocked(Event{Type: EventRoundEnded, Payload: map[string]interface{}{
		"round":      s.Round,
		"teamPoints": teamPoints,
		"teamDelta":  delta,
		"scores":     s.TeamScores,
	}})
	s.notifyLocked("round_ended", s.Seats[accepted.Seat].Name, map[string]interface{}{
		"round":  s.Round,
		"made":   teamPoints[bTeam] >= accepted.Amount,
		"amount": accepted.Amount,
	})

	if winner, over := s.winningTeam(bTeam); over {
		s.finishGameLocked(winner)
		return
	}
	s.syncLocked(true)
	if s.Sched == nil {
		s.advanceRoundLocked()
		return
	}
	s.Sched.ArmRoundPause(s.ID, s.Round, RoundDisplayPause)
}

// winningTeam applies the cumulative target. When both teams cross it in the
// same round the bettor's team wins, since its result is settled first.
func (s *Session) winningTeam(bettorTeam int) (int, bool) {
	if s.TeamScores[bettorTeam] >= GameTarget {
		return bettorTeam, true
	}
	if s.TeamScores[1-bettorTeam] >= GameTarget {
		return 1 - bettorTeam, true
	}
	return -1, false
}

// finishGameLocked moves the session into its terminal phase. No further
// actions are accepted; the record is persisted immediately.
// Assumes lock is held.
func (s *Session) finishGameLocked(winner int) {
	s.Phase = PhaseGameOver
	s.GameWinner = &winner
	if s.Sched != nil {
		s.Sched.CancelTurn(s.ID)
	}
	s.broadcastLocked(Event{Type: EventGameOver, Payload: map[string]interface{}{
		"winner": winner,
		"scores": s.TeamScores,
		"rounds": len(s.RoundHistory),
	}})
	for _, seat := range s.Seats {
		if seat.Team == winner && !seat.IsBot {
			s.notifyLocked("game_won", seat.Name, map[string]interface{}{
				"scores": s.TeamScores,
				"rounds": len(s.RoundHistory),
			})
		}
	}
	s.syncLocked(true)
}

// AdvanceRound starts the next round after the scoring display pause. round
// guards against a stale timer firing after the session already moved on.
func (s *Session) AdvanceRound(round int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Phase != PhaseScoring || s.Round != round {
		return
	}
	s.advanceRoundLocked()
}

// advanceRoundLocked rotates the deal and begins the next round.
// Assumes lock is held.
func (s *Session) advanceRoundLocked() {
	s.DealerSeat = (s.DealerSeat + 1) % NumSeats
	s.Round++
	s.beginRoundLocked()
}
