// internal/game/betting.go
package game

// PlaceBet records a betting declaration for the active seat. amount is the
// number of tricks the seat commits to take (7..12), or SkipBet to pass.
// noTrump marks a without-trump bet, which doubles the round multiplier and
// outranks an equal-amount with-trump bet.
func (s *Session) PlaceBet(seatIdx, amount int, noTrump bool) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.placeBetLocked(seatIdx, amount, noTrump)
}

// placeBetLocked is the lock-held core shared by the player path and the
// timeout fallback. Assumes lock is held.
func (s *Session) placeBetLocked(seatIdx, amount int, noTrump bool) error {
	if s.Phase != PhaseBetting {
		return invalidf("bets are only accepted during betting")
	}
	// The duplicate check runs before the turn check: a seat that has bet is
	// never the active seat, so a retried bet must classify as a conflict
	// rather than an out-of-turn mistake.
	for _, b := range s.CurrentBets {
		if b.Seat == seatIdx {
			return conflictf("seat %d has already bet this cycle", seatIdx)
		}
	}
	if seatIdx != s.ActiveSeat {
		return invalidf("it is seat %d's turn to bet", s.ActiveSeat)
	}

	bet := Bet{Seat: seatIdx, Amount: amount, NoTrump: noTrump}
	if bet.Skip() {
		// After an all-skip restart the dealer backstops the cycle: it must
		// open with at least the minimum so betting cannot loop forever.
		if seatIdx == s.DealerSeat && s.Accepted == nil && s.BetCycle > 0 {
			return invalidf("the dealer must open with at least %d when everyone passed", MinBet)
		}
	} else {
		if amount < MinBet || amount > MaxBet {
			return invalidf("bet must be between %d and %d", MinBet, MaxBet)
		}
		if s.Accepted != nil {
			if seatIdx == s.DealerSeat {
				// Dealer privilege: matching the standing bet takes it over.
				if beats(*s.Accepted, bet) {
					return invalidf("the dealer must at least match the standing bet")
				}
			} else if !beats(bet, *s.Accepted) {
				return invalidf("bet must outrank the standing bet")
			}
		}
	}

	s.CurrentBets = append(s.CurrentBets, bet)
	if !bet.Skip() {
		accepted := bet
		s.Accepted = &accepted
	}
	s.touchLocked()

	if len(s.CurrentBets) == NumSeats {
		s.finishBettingLocked()
		return nil
	}
	s.setActiveLocked((seatIdx + 1) % NumSeats)
	s.syncLocked(false)
	return nil
}

// finishBettingLocked closes the betting cycle after four declarations. If
// every seat passed, the bets clear and the cycle restarts at the seat after
// the dealer; the dealer's forced-open rule guarantees the restarted cycle
// terminates. Otherwise play begins with the accepted bettor leading the
// first trick. Assumes lock is held.
func (s *Session) finishBettingLocked() {
	if s.Accepted == nil {
		s.CurrentBets = nil
		s.BetCycle++
		s.setActiveLocked((s.DealerSeat + 1) % NumSeats)
		s.syncLocked(false)
		return
	}
	s.Phase = PhasePlaying
	s.setActiveLocked(s.Accepted.Seat)
	s.notifyLocked("bet_accepted", s.Seats[s.Accepted.Seat].Name, map[string]interface{}{
		"amount":  s.Accepted.Amount,
		"noTrump": s.Accepted.NoTrump,
		"round":   s.Round,
	})
	s.syncLocked(true)
}
