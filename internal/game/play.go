// internal/game/play.go
package game

import "github.com/villeneuve-games/fortyone/internal/deck"

// PlayCard plays a card from the active seat's hand into the current trick.
// The first card of the round fixes trump; subsequent plays must follow the
// led suit when the hand can.
func (s *Session) PlayCard(seatIdx int, card deck.Card) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.playCardLocked(seatIdx, card)
}

// playCardLocked is the lock-held core shared by the player path and the
// timeout fallback. Assumes lock is held.
func (s *Session) playCardLocked(seatIdx int, card deck.Card) error {
	if s.Phase != PhasePlaying {
		return invalidf("cards are only played during the playing phase")
	}
	if s.resolving {
		return conflictf("the finished trick is still being resolved")
	}
	// A seat already in the trick retried its play; the turn has moved on, so
	// this is a conflict, not an out-of-turn mistake.
	for _, e := range s.CurrentTrick {
		if e.Seat == seatIdx {
			return conflictf("seat %d has already played into this trick", seatIdx)
		}
	}
	if seatIdx != s.ActiveSeat {
		return invalidf("it is seat %d's turn to play", s.ActiveSeat)
	}
	seat := s.Seats[seatIdx]
	handIdx := indexOfCard(seat.Hand, card)
	if handIdx < 0 {
		return invalidf("card %s is not in your hand", card)
	}
	if len(s.CurrentTrick) > 0 {
		led := s.CurrentTrick[0].Card.Suit
		if card.Suit != led && hasSuit(seat.Hand, led) {
			return invalidf("you must follow %s", led)
		}
	}

	if s.Trump == nil {
		// Trump is fixed by the very first card the accepted bettor leads,
		// unless the accepted bet is without-trump.
		if !s.Accepted.NoTrump {
			trump := card.Suit
			s.Trump = &trump
		}
	}

	seat.Hand = append(seat.Hand[:handIdx], seat.Hand[handIdx+1:]...)
	s.CurrentTrick = append(s.CurrentTrick, TrickEntry{Seat: seatIdx, Card: card})
	s.touchLocked()

	if len(s.CurrentTrick) == NumSeats {
		s.resolveTrickLocked()
		return nil
	}
	s.setActiveLocked((seatIdx + 1) % NumSeats)
	s.syncLocked(false)
	return nil
}

// resolveTrickLocked scores the completed trick and leaves it on the table for
// the display pause. New plays are rejected until the pause elapses and the
// scheduler calls FinishTrick. Assumes lock is held.
func (s *Session) resolveTrickLocked() {
	winner := trickWinner(s.CurrentTrick, s.Trump)
	points := trickPoints(s.CurrentTrick)

	result := TrickResult{
		Entries: append([]TrickEntry(nil), s.CurrentTrick...),
		Winner:  winner,
		Points:  points,
	}
	s.pendingTrick = &result
	s.resolving = true
	s.Seats[winner].TricksWon++
	s.Seats[winner].PointsWon += points

	if s.Sched != nil {
		s.Sched.CancelTurn(s.ID)
	}
	s.broadcastLocked(Event{Type: EventTrickResolved, Seat: seatRef(winner), Payload: map[string]interface{}{
		"points": points,
		"trick":  len(s.TrickHistory),
	}})
	s.syncLocked(false)

	if s.Sched == nil {
		s.finishTrickLocked()
		return
	}
	s.Sched.ArmTrickPause(s.ID, s.Round, len(s.TrickHistory), TrickDisplayPause)
}

// FinishTrick clears the displayed trick after the pause. round and trick
// identify the resolution the timer was armed for; anything else is stale.
func (s *Session) FinishTrick(round, trick int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Phase != PhasePlaying || !s.resolving || s.Round != round || len(s.TrickHistory) != trick {
		return
	}
	s.finishTrickLocked()
}

// finishTrickLocked moves the pending trick into history and hands the lead
// to its winner, or ends the round when the hands are empty.
// Assumes lock is held.
func (s *Session) finishTrickLocked() {
	result := s.pendingTrick
	s.pendingTrick = nil
	s.resolving = false
	s.TrickHistory = append(s.TrickHistory, *result)
	s.CurrentTrick = nil

	if len(s.Seats[result.Winner].Hand) == 0 {
		s.endRoundLocked()
		return
	}
	s.setActiveLocked(result.Winner)
	s.syncLocked(false)
}

// trickWinner picks the winning entry: highest trump if any trump was played,
// otherwise highest card of the led suit.
func trickWinner(entries []TrickEntry, trump *deck.Suit) int {
	best := 0
	for i := 1; i < len(entries); i++ {
		if entryBeats(entries[i], entries[best], entries[0].Card.Suit, trump) {
			best = i
		}
	}
	return entries[best].Seat
}

// entryBeats reports whether candidate outranks current given the led suit.
func entryBeats(candidate, current TrickEntry, led deck.Suit, trump *deck.Suit) bool {
	if trump != nil {
		ct, bt := candidate.Card.Suit == *trump, current.Card.Suit == *trump
		if ct != bt {
			return ct
		}
		if ct && bt {
			return candidate.Card.Rank > current.Card.Rank
		}
	}
	if candidate.Card.Suit != led {
		return false
	}
	if current.Card.Suit != led {
		return true
	}
	return candidate.Card.Rank > current.Card.Rank
}

// trickPoints values a trick: one base point plus the bonus-card adjustments.
func trickPoints(entries []TrickEntry) int {
	points := 1
	for _, e := range entries {
		switch e.Card {
		case bonusHighCard:
			points += bonusHighPoints
		case bonusLowCard:
			points += bonusLowPoints
		}
	}
	return points
}

// legalPlays returns the cards the seat may legally play right now.
func (s *Session) legalPlays(seat *Seat) []deck.Card {
	if len(s.CurrentTrick) == 0 {
		return append([]deck.Card(nil), seat.Hand...)
	}
	led := s.CurrentTrick[0].Card.Suit
	var follow []deck.Card
	for _, c := range seat.Hand {
		if c.Suit == led {
			follow = append(follow, c)
		}
	}
	if len(follow) > 0 {
		return follow
	}
	return append([]deck.Card(nil), seat.Hand...)
}

func indexOfCard(hand []deck.Card, card deck.Card) int {
	for i, c := range hand {
		if c == card {
			return i
		}
	}
	return -1
}

func hasSuit(hand []deck.Card, suit deck.Suit) bool {
	for _, c := range hand {
		if c.Suit == suit {
			return true
		}
	}
	return false
}
