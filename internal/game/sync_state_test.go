// internal/game/sync_state_test.go
package game

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villeneuve-games/fortyone/internal/deck"
)

// lastDelta returns the most recent delta sent to an audience.
func lastDelta(t *testing.T, ms *mockSender, aud string) *Delta {
	var d *Delta
	for _, ev := range ms.forAudience(aud) {
		if ev.Type == EventDeltaState {
			d = ev.Delta
		}
	}
	require.NotNil(t, d, "expected a delta for %s", aud)
	return d
}

func TestFullSnapshotRedactsOtherHands(t *testing.T) {
	s, ms, _ := setupStarted(t)

	s.Mu.Lock()
	s.syncLocked(true)
	s.Mu.Unlock()

	for viewer := 0; viewer < NumSeats; viewer++ {
		var snap *Snapshot
		for _, ev := range ms.forAudience(seatKey(viewer)) {
			if ev.Type == EventFullState {
				snap = ev.State
			}
		}
		require.NotNil(t, snap)
		for i := 0; i < NumSeats; i++ {
			assert.Equal(t, HandSize, snap.Seats[i].HandSize)
			if i == viewer {
				assert.Len(t, snap.Seats[i].Hand, HandSize, "a viewer sees its own hand")
			} else {
				assert.Nil(t, snap.Seats[i].Hand, "a viewer never sees another hand")
			}
		}
	}
}

func TestObserverSeesNoHands(t *testing.T) {
	s, ms, _ := setupStarted(t)

	obsID := uuid.New()
	s.AddObserver(obsID, nil)

	evs := ms.forAudience(obsKey(obsID))
	require.Len(t, evs, 1, "a new observer gets exactly one full snapshot")
	require.Equal(t, EventFullState, evs[0].Type)
	for i := 0; i < NumSeats; i++ {
		assert.Nil(t, evs[0].State.Seats[i].Hand)
		assert.Equal(t, HandSize, evs[0].State.Seats[i].HandSize)
	}

	// Dropping the observer also drops its baseline.
	s.RemoveObserver(obsID)
	ms.clear()
	s.Mu.Lock()
	s.syncLocked(false)
	s.Mu.Unlock()
	assert.Empty(t, ms.forAudience(obsKey(obsID)))
}

func TestNoSendWhenNothingChanged(t *testing.T) {
	s, ms, _ := setupStarted(t)

	s.Mu.Lock()
	s.syncLocked(false)
	s.Mu.Unlock()

	assert.Empty(t, ms.byType(EventFullState))
	assert.Empty(t, ms.byType(EventDeltaState))
}

func TestBetProducesFieldDelta(t *testing.T) {
	s, ms, _ := setupStarted(t)

	require.NoError(t, s.PlaceBet(1, 8, false))

	d := lastDelta(t, ms, seatKey(0))
	require.NotNil(t, d.ActiveSeat)
	assert.Equal(t, 2, *d.ActiveSeat)
	require.NotNil(t, d.CurrentBets)
	assert.Equal(t, []Bet{{Seat: 1, Amount: 8}}, *d.CurrentBets)
	require.NotNil(t, d.Accepted)
	assert.Equal(t, Bet{Seat: 1, Amount: 8}, *d.Accepted)

	// Untouched fields stay off the wire.
	assert.Nil(t, d.Phase)
	assert.Nil(t, d.Trump)
	assert.Nil(t, d.TeamScores)
	assert.Empty(t, d.Seats)
}

func TestPhaseChangeForcesFullSnapshot(t *testing.T) {
	s, ms, _ := setupStarted(t)

	require.NoError(t, s.PlaceBet(1, 8, false))
	require.NoError(t, s.PlaceBet(2, SkipBet, false))
	require.NoError(t, s.PlaceBet(3, SkipBet, false))
	ms.clear()
	require.NoError(t, s.PlaceBet(0, SkipBet, false))

	fulls := ms.byType(EventFullState)
	require.Len(t, fulls, NumSeats, "the betting-to-playing transition is a full send to every seat")
	for _, se := range fulls {
		assert.Equal(t, PhasePlaying, se.ev.State.Phase)
	}
}

func TestPlayDeltaRedactsPerAudience(t *testing.T) {
	s, ms, _ := setupStarted(t)
	bidSimple(t, s, 7, false)
	suitHands(t, s)
	ms.clear()

	require.NoError(t, s.PlayCard(1, mustCard(t, "7C")))

	// The player sees its own reduced hand.
	own := lastDelta(t, ms, seatKey(1))
	require.Contains(t, own.Seats, 1)
	assert.Len(t, own.Seats[1].Hand, HandSize-1)
	assert.Equal(t, HandSize-1, own.Seats[1].HandSize)
	require.NotNil(t, own.CurrentTrick)
	assert.Len(t, *own.CurrentTrick, 1)
	require.NotNil(t, own.Trump)
	assert.Equal(t, string(deck.Clubs), *own.Trump)

	// Everyone else sees only the count shrink.
	other := lastDelta(t, ms, seatKey(0))
	require.Contains(t, other.Seats, 1)
	assert.Nil(t, other.Seats[1].Hand)
	assert.Equal(t, HandSize-1, other.Seats[1].HandSize)
}

func TestTrickResolutionDelta(t *testing.T) {
	s, ms, _ := setupStarted(t)
	bidSimple(t, s, 7, false)
	suitHands(t, s)

	require.NoError(t, s.PlayCard(1, mustCard(t, "7C")))
	require.NoError(t, s.PlayCard(2, mustCard(t, "7D")))
	require.NoError(t, s.PlayCard(3, mustCard(t, "7S")))
	ms.clear()
	require.NoError(t, s.PlayCard(0, mustCard(t, "7H")))

	// Without a scheduler the trick settles inline; the final delta carries
	// the history suffix, the cleared table, and the winner's lead.
	d := lastDelta(t, ms, seatKey(0))
	require.Len(t, d.TrickAppend, 1)
	assert.Equal(t, 1, d.TrickAppend[0].Winner)
	require.NotNil(t, d.CurrentTrick)
	assert.Empty(t, *d.CurrentTrick)
	require.NotNil(t, d.ActiveSeat)
	assert.Equal(t, 1, *d.ActiveSeat)
}

func TestRefreshViewerSendsFreshFull(t *testing.T) {
	s, ms, conns := setupStarted(t)

	seatIdx := s.SeatForConn(conns[0])
	require.GreaterOrEqual(t, seatIdx, 0)
	ms.clear()

	s.RefreshViewer(conns[0], nil)

	fulls := ms.byType(EventFullState)
	require.Len(t, fulls, 1, "a refresh targets only the asking viewer")
	assert.Equal(t, seatKey(seatIdx), fulls[0].aud)
	assert.Len(t, fulls[0].ev.State.Seats[seatIdx].Hand, HandSize)
}

func TestComputeDeltaClearsAccepted(t *testing.T) {
	bet := Bet{Seat: 2, Amount: 9, NoTrump: true}
	prev := &Snapshot{Accepted: &bet}
	cur := &Snapshot{}

	d := computeDelta(prev, cur)
	require.NotNil(t, d)
	assert.True(t, d.ClearAccept)
	assert.Nil(t, d.Accepted)
}

func TestComputeDeltaNilWhenEqual(t *testing.T) {
	trump := string(deck.Spades)
	a := Snapshot{Phase: PhasePlaying, Trump: &trump, CurrentBets: []Bet{{Seat: 1, Amount: 8}}}
	b := a
	assert.Nil(t, computeDelta(&a, &b))
}

func TestTrickHistoryResetOnNewRound(t *testing.T) {
	// A round change truncates trick history; the delta ships the remainder
	// of the new round wholesale instead of an impossible negative suffix.
	prev := &Snapshot{TrickHistory: []TrickResult{{Winner: 0}, {Winner: 1}, {Winner: 2}}}
	cur := &Snapshot{Round: 1, TrickHistory: []TrickResult{{Winner: 3}}}

	d := computeDelta(prev, cur)
	require.NotNil(t, d)
	assert.Equal(t, cur.TrickHistory, d.TrickAppend)
}
