// internal/game/sync_state.go
package game

import (
	"fmt"
	"reflect"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// SeatView is the per-seat slice of a snapshot. Hand is populated only for
// the owning viewer; everyone else sees HandSize alone.
type SeatView struct {
	Index     int      `json:"index"`
	Name      string   `json:"name"`
	Team      int      `json:"team"`
	Connected bool     `json:"connected"`
	Awaiting  bool     `json:"awaitingReconnect"`
	IsBot     bool     `json:"isBot"`
	HandSize  int      `json:"handSize"`
	Hand      []string `json:"hand,omitempty"`
	TricksWon int      `json:"tricksWon"`
	PointsWon int      `json:"pointsWon"`
}

// Snapshot is a complete view of the session for one audience. Redaction is
// applied before a snapshot ever leaves the session, so no private state can
// leak through either the full or the delta path.
type Snapshot struct {
	SessionID    string             `json:"sessionId"`
	Phase        Phase              `json:"phase"`
	Round        int                `json:"round"`
	ActiveSeat   int                `json:"activeSeat"`
	DealerSeat   int                `json:"dealerSeat"`
	Trump        *string            `json:"trump,omitempty"`
	Seats        [NumSeats]SeatView `json:"seats"`
	CurrentTrick []TrickEntry       `json:"currentTrick,omitempty"`
	CurrentBets  []Bet              `json:"currentBets,omitempty"`
	Accepted     *Bet               `json:"accepted,omitempty"`
	TeamScores   [2]int             `json:"teamScores"`
	Resolving    bool               `json:"resolving"`
	TrickHistory []TrickResult      `json:"trickHistory,omitempty"`
	RoundHistory []RoundRecord      `json:"roundHistory,omitempty"`
	Winner       *int               `json:"winner,omitempty"`
}

// Delta carries only what changed since the audience's previous snapshot.
// Scalars travel as pointers, lists are replaced wholesale, and the two
// append-only histories travel as suffixes. An all-nil delta is never sent.
type Delta struct {
	Phase        *Phase           `json:"phase,omitempty"`
	Round        *int             `json:"round,omitempty"`
	ActiveSeat   *int             `json:"activeSeat,omitempty"`
	DealerSeat   *int             `json:"dealerSeat,omitempty"`
	Trump        *string          `json:"trump,omitempty"`
	Seats        map[int]SeatView `json:"seats,omitempty"`
	CurrentTrick *[]TrickEntry    `json:"currentTrick,omitempty"`
	CurrentBets  *[]Bet           `json:"currentBets,omitempty"`
	Accepted     *Bet             `json:"accepted,omitempty"`
	ClearAccept  bool             `json:"clearAccepted,omitempty"`
	TeamScores   *[2]int          `json:"teamScores,omitempty"`
	Resolving    *bool            `json:"resolving,omitempty"`
	TrickAppend  []TrickResult    `json:"trickAppend,omitempty"`
	RoundAppend  []RoundRecord    `json:"roundAppend,omitempty"`
	Winner       *int             `json:"winner,omitempty"`
}

func seatKey(i int) string       { return fmt.Sprintf("seat:%d", i) }
func obsKey(id uuid.UUID) string { return "obs:" + id.String() }

// snapshotLocked builds the unredacted master snapshot. Assumes lock is held.
func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:    s.ID.String(),
		Phase:        s.Phase,
		Round:        s.Round,
		ActiveSeat:   s.ActiveSeat,
		DealerSeat:   s.DealerSeat,
		TeamScores:   s.TeamScores,
		Resolving:    s.resolving,
		CurrentTrick: append([]TrickEntry(nil), s.CurrentTrick...),
		CurrentBets:  append([]Bet(nil), s.CurrentBets...),
		TrickHistory: append([]TrickResult(nil), s.TrickHistory...),
		RoundHistory: append([]RoundRecord(nil), s.RoundHistory...),
	}
	if s.Trump != nil {
		t := string(*s.Trump)
		snap.Trump = &t
	}
	if s.Accepted != nil {
		a := *s.Accepted
		snap.Accepted = &a
	}
	if s.GameWinner != nil {
		w := *s.GameWinner
		snap.Winner = &w
	}
	for i, seat := range s.Seats {
		view := SeatView{
			Index:     seat.Index,
			Name:      seat.Name,
			Team:      seat.Team,
			Connected: seat.Connected,
			Awaiting:  seat.Awaiting,
			IsBot:     seat.IsBot,
			HandSize:  len(seat.Hand),
			TricksWon: seat.TricksWon,
			PointsWon: seat.PointsWon,
		}
		view.Hand = make([]string, 0, len(seat.Hand))
		for _, c := range seat.Hand {
			view.Hand = append(view.Hand, c.String())
		}
		snap.Seats[i] = view
	}
	return snap
}

// redactFor strips every hand the viewer does not own. viewerSeat -1 is an
// observer and sees no hand at all.
func redactFor(snap Snapshot, viewerSeat int) Snapshot {
	for i := range snap.Seats {
		if i != viewerSeat {
			snap.Seats[i].Hand = nil
		}
	}
	return snap
}

// computeDelta diffs two same-audience snapshots. Returns nil when nothing
// changed, which the caller must treat as "send nothing".
func computeDelta(prev, cur *Snapshot) *Delta {
	d := &Delta{}
	changed := false

	if prev.Phase != cur.Phase {
		p := cur.Phase
		d.Phase = &p
		changed = true
	}
	if prev.Round != cur.Round {
		v := cur.Round
		d.Round = &v
		changed = true
	}
	if prev.ActiveSeat != cur.ActiveSeat {
		v := cur.ActiveSeat
		d.ActiveSeat = &v
		changed = true
	}
	if prev.DealerSeat != cur.DealerSeat {
		v := cur.DealerSeat
		d.DealerSeat = &v
		changed = true
	}
	if !ptrStrEq(prev.Trump, cur.Trump) {
		d.Trump = cur.Trump
		changed = true
	}
	for i := range cur.Seats {
		if !reflect.DeepEqual(prev.Seats[i], cur.Seats[i]) {
			if d.Seats == nil {
				d.Seats = make(map[int]SeatView)
			}
			d.Seats[i] = cur.Seats[i]
			changed = true
		}
	}
	if !reflect.DeepEqual(prev.CurrentTrick, cur.CurrentTrick) {
		trick := cur.CurrentTrick
		if trick == nil {
			trick = []TrickEntry{}
		}
		d.CurrentTrick = &trick
		changed = true
	}
	if !reflect.DeepEqual(prev.CurrentBets, cur.CurrentBets) {
		bets := cur.CurrentBets
		if bets == nil {
			bets = []Bet{}
		}
		d.CurrentBets = &bets
		changed = true
	}
	if !reflect.DeepEqual(prev.Accepted, cur.Accepted) {
		if cur.Accepted == nil {
			d.ClearAccept = true
		} else {
			a := *cur.Accepted
			d.Accepted = &a
		}
		changed = true
	}
	if prev.TeamScores != cur.TeamScores {
		v := cur.TeamScores
		d.TeamScores = &v
		changed = true
	}
	if prev.Resolving != cur.Resolving {
		v := cur.Resolving
		d.Resolving = &v
		changed = true
	}
	if len(cur.TrickHistory) >= len(prev.TrickHistory) {
		if suffix := cur.TrickHistory[len(prev.TrickHistory):]; len(suffix) > 0 {
			d.TrickAppend = suffix
			changed = true
		}
	} else if len(cur.TrickHistory) > 0 {
		// A new round truncated trick history; delta viewers reset on the
		// round change, so ship the whole remainder.
		d.TrickAppend = cur.TrickHistory
		changed = true
	}
	if len(cur.RoundHistory) >= len(prev.RoundHistory) {
		if suffix := cur.RoundHistory[len(prev.RoundHistory):]; len(suffix) > 0 {
			d.RoundAppend = suffix
			changed = true
		}
	}
	if !ptrIntEq(prev.Winner, cur.Winner) {
		d.Winner = cur.Winner
		changed = true
	}

	if !changed {
		return nil
	}
	return d
}

func ptrStrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func ptrIntEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// audience is one viewer endpoint of a sync pass.
type audience struct {
	key  string
	seat int // -1 for observers
	conn *websocket.Conn
}

// audiencesLocked lists every connected viewer. Assumes lock is held.
func (s *Session) audiencesLocked() []audience {
	out := make([]audience, 0, NumSeats+len(s.observers))
	for _, seat := range s.Seats {
		if seat.Occupied() && seat.Connected {
			out = append(out, audience{key: seatKey(seat.Index), seat: seat.Index, conn: seat.Conn})
		}
	}
	for _, obs := range s.observers {
		out = append(out, audience{key: obsKey(obs.ID), seat: -1, conn: obs.Conn})
	}
	return out
}

// syncLocked pushes state to every viewer. Each audience gets a full snapshot
// on its first send or when forceFull is set (phase transitions, refresh
// requests); otherwise it gets a field-level delta against its baseline, and
// nothing at all when the baseline already matches. Assumes lock is held.
func (s *Session) syncLocked(forceFull bool) {
	if s.Send == nil {
		return
	}
	master := s.snapshotLocked()
	sentFull := false
	for _, aud := range s.audiencesLocked() {
		view := redactFor(master, aud.seat)
		base := s.baselines[aud.key]
		if forceFull || base == nil || base.Phase != view.Phase {
			s.Send(aud.key, aud.conn, Event{Type: EventFullState, State: &view})
			sentFull = true
		} else {
			delta := computeDelta(base, &view)
			if delta == nil {
				continue
			}
			s.Send(aud.key, aud.conn, Event{Type: EventDeltaState, Delta: delta})
		}
		baseCopy := view
		s.baselines[aud.key] = &baseCopy
	}
	if sentFull {
		s.schedulePersistLocked()
	}
}

// RefreshViewer discards a viewer's baseline and pushes a fresh full
// snapshot, the recovery path for a client that lost delta continuity.
func (s *Session) RefreshViewer(connID uuid.UUID, observerID *uuid.UUID) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Send == nil {
		return
	}
	master := s.snapshotLocked()
	if observerID != nil {
		if obs, ok := s.observers[*observerID]; ok {
			view := redactFor(master, -1)
			s.Send(obsKey(obs.ID), obs.Conn, Event{Type: EventFullState, State: &view})
			base := view
			s.baselines[obsKey(obs.ID)] = &base
		}
		return
	}
	for _, seat := range s.Seats {
		if seat.Occupied() && seat.ConnID == connID && seat.Connected {
			view := redactFor(master, seat.Index)
			s.Send(seatKey(seat.Index), seat.Conn, Event{Type: EventFullState, State: &view})
			base := view
			s.baselines[seatKey(seat.Index)] = &base
			return
		}
	}
}

// broadcastLocked sends one non-state event to every viewer.
// Assumes lock is held.
func (s *Session) broadcastLocked(ev Event) {
	if s.Send == nil {
		return
	}
	for _, aud := range s.audiencesLocked() {
		s.Send(aud.key, aud.conn, ev)
	}
}
