// internal/game/timers.go
package game

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/villeneuve-games/fortyone/internal/deck"
)

// Orchestrator owns every delayed command in the process: turn deadlines,
// reconnection grace windows, display pauses, and debounced persistence. It
// never holds a session lock while arming or stopping a timer, and every
// callback re-resolves the session through the store so a timer can only ever
// race into a no-op.
type Orchestrator struct {
	store *SessionStore
	clock quartz.Clock
	log   *logrus.Logger

	mu      sync.Mutex
	turns   map[uuid.UUID]*quartz.Timer
	graces  map[graceKey]*quartz.Timer
	pauses  map[uuid.UUID]*quartz.Timer
	flushes map[uuid.UUID]*quartz.Timer
}

type graceKey struct {
	session uuid.UUID
	seat    int
}

// NewOrchestrator builds a scheduler over the given registry. Pass
// quartz.NewReal() in production; tests inject quartz.NewMock.
func NewOrchestrator(store *SessionStore, clock quartz.Clock, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		clock:   clock,
		log:     logger,
		turns:   make(map[uuid.UUID]*quartz.Timer),
		graces:  make(map[graceKey]*quartz.Timer),
		pauses:  make(map[uuid.UUID]*quartz.Timer),
		flushes: make(map[uuid.UUID]*quartz.Timer),
	}
}

// ArmTurn replaces the turn deadline for a session. seat and turnID pin the
// deadline to the turn it was armed for.
func (o *Orchestrator) ArmTurn(sessionID uuid.UUID, seat, turnID int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.turns[sessionID]; ok {
		t.Stop()
	}
	o.turns[sessionID] = o.clock.AfterFunc(d, func() {
		o.fireTurn(sessionID, seat, turnID)
	})
}

// CancelTurn stops the pending turn deadline, if any.
func (o *Orchestrator) CancelTurn(sessionID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.turns[sessionID]; ok {
		t.Stop()
		delete(o.turns, sessionID)
	}
}

func (o *Orchestrator) fireTurn(sessionID uuid.UUID, seat, turnID int) {
	s, ok := o.store.Get(sessionID)
	if !ok {
		return
	}
	s.ApplyTurnFallback(seat, turnID)
}

// ArmGrace starts the reconnection window for a disconnected seat.
func (o *Orchestrator) ArmGrace(sessionID uuid.UUID, seat int, d time.Duration) {
	key := graceKey{sessionID, seat}
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.graces[key]; ok {
		t.Stop()
	}
	o.graces[key] = o.clock.AfterFunc(d, func() {
		o.fireGrace(sessionID, seat)
	})
}

// CancelGrace stops the reconnection window after a successful rebind.
func (o *Orchestrator) CancelGrace(sessionID uuid.UUID, seat int) {
	key := graceKey{sessionID, seat}
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.graces[key]; ok {
		t.Stop()
		delete(o.graces, key)
	}
}

func (o *Orchestrator) fireGrace(sessionID uuid.UUID, seat int) {
	o.mu.Lock()
	delete(o.graces, graceKey{sessionID, seat})
	o.mu.Unlock()

	s, ok := o.store.Get(sessionID)
	if !ok {
		return
	}
	if o.log != nil {
		o.log.WithFields(logrus.Fields{"session": sessionID, "seat": seat}).Info("reconnect grace expired")
	}
	s.ExpireGrace(seat)
}

// ArmTrickPause schedules the end of the trick display pause.
func (o *Orchestrator) ArmTrickPause(sessionID uuid.UUID, round, trick int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.pauses[sessionID]; ok {
		t.Stop()
	}
	o.pauses[sessionID] = o.clock.AfterFunc(d, func() {
		if s, ok := o.store.Get(sessionID); ok {
			s.FinishTrick(round, trick)
		}
	})
}

// ArmRoundPause schedules the start of the next round after scoring display.
func (o *Orchestrator) ArmRoundPause(sessionID uuid.UUID, round int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.pauses[sessionID]; ok {
		t.Stop()
	}
	o.pauses[sessionID] = o.clock.AfterFunc(d, func() {
		if s, ok := o.store.Get(sessionID); ok {
			s.AdvanceRound(round)
		}
	})
}

// ArmPersist schedules the debounced persistence flush.
func (o *Orchestrator) ArmPersist(sessionID uuid.UUID, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.flushes[sessionID]; ok {
		t.Stop()
	}
	o.flushes[sessionID] = o.clock.AfterFunc(d, func() {
		o.mu.Lock()
		delete(o.flushes, sessionID)
		o.mu.Unlock()
		if s, ok := o.store.Get(sessionID); ok {
			s.FlushPersist()
		}
	})
}

// Drop stops every timer owned by a session being destroyed.
func (o *Orchestrator) Drop(sessionID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.turns[sessionID]; ok {
		t.Stop()
		delete(o.turns, sessionID)
	}
	if t, ok := o.pauses[sessionID]; ok {
		t.Stop()
		delete(o.pauses, sessionID)
	}
	if t, ok := o.flushes[sessionID]; ok {
		t.Stop()
		delete(o.flushes, sessionID)
	}
	for key, t := range o.graces {
		if key.session == sessionID {
			t.Stop()
			delete(o.graces, key)
		}
	}
}

// ApplyTurnFallback performs the default action when a turn deadline elapses:
// a safe bet during betting, a uniformly random legal card during play. The
// seat and turnID pin it to the turn the timer was armed for; if the session
// advanced in the meantime the fallback is a no-op.
func (s *Session) ApplyTurnFallback(seat, turnID int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.TurnID != turnID || s.ActiveSeat != seat || s.resolving {
		return
	}
	switch s.Phase {
	case PhaseBetting:
		amount := SkipBet
		noTrump := false
		if seat == s.DealerSeat && s.Accepted == nil {
			// The forced-open rule applies to the fallback too.
			amount = MinBet
		}
		s.announceFallbackLocked(seat, "bet", map[string]interface{}{"amount": amount, "noTrump": noTrump})
		if err := s.placeBetLocked(seat, amount, noTrump); err != nil {
			s.logf("turn fallback bet failed: %v", err)
		}
	case PhasePlaying:
		card := s.pickFallbackCardLocked(s.Seats[seat])
		s.announceFallbackLocked(seat, "play", map[string]interface{}{"card": card.String()})
		if err := s.playCardLocked(seat, card); err != nil {
			s.logf("turn fallback play failed: %v", err)
		}
	}
}

// pickFallbackCardLocked chooses the auto-played card. Plain timeouts and
// basic bots pick uniformly at random among legal plays; a sharper bot leads
// its strongest legal card. Assumes lock is held.
func (s *Session) pickFallbackCardLocked(seat *Seat) deck.Card {
	legal := s.legalPlays(seat)
	if seat.IsBot && seat.BotSkill >= 2 {
		best := legal[0]
		for _, c := range legal[1:] {
			if c.Rank > best.Rank {
				best = c
			}
		}
		return best
	}
	return legal[s.rng.Intn(len(legal))]
}

// announceFallbackLocked tells every viewer that the engine, not the player,
// took the action. Assumes lock is held.
func (s *Session) announceFallbackLocked(seat int, action string, detail map[string]interface{}) {
	payload := map[string]interface{}{"action": action}
	for k, v := range detail {
		payload[k] = v
	}
	s.broadcastLocked(Event{Type: EventScheduledAction, Seat: seatRef(seat), Payload: payload})
}
