// internal/game/session_test.go
package game

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villeneuve-games/fortyone/internal/deck"
)

// sentEvent pairs an event with the audience it was addressed to.
type sentEvent struct {
	aud string
	ev  Event
}

// mockSender collects events instead of writing them to WebSockets.
type mockSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func newMockSender() *mockSender {
	return &mockSender{}
}

func (m *mockSender) fn() SendFunc {
	return func(aud string, conn *websocket.Conn, ev Event) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.events = append(m.events, sentEvent{aud: aud, ev: ev})
	}
}

func (m *mockSender) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *mockSender) byType(t EventType) []sentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentEvent
	for _, se := range m.events {
		if se.ev.Type == t {
			out = append(out, se)
		}
	}
	return out
}

// byTypeFor filters to one audience's copies of one event type. Broadcasts
// fan one copy out per audience, so per-viewer assertions go through here.
func (m *mockSender) byTypeFor(aud string, t EventType) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, se := range m.events {
		if se.aud == aud && se.ev.Type == t {
			out = append(out, se.ev)
		}
	}
	return out
}

func (m *mockSender) forAudience(aud string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, se := range m.events {
		if se.aud == aud {
			out = append(out, se.ev)
		}
	}
	return out
}

var testNames = [4]string{"ana", "ben", "cam", "dia"}

// setupLobby seats four participants without choosing teams.
func setupLobby(t *testing.T) (*Session, *mockSender, [4]uuid.UUID) {
	s := NewSession()
	ms := newMockSender()
	s.Send = ms.fn()
	s.rng = rand.New(rand.NewSource(42))

	var conns [4]uuid.UUID
	for i, name := range testNames {
		conns[i] = uuid.New()
		seat, err := s.Join(name, nil, conns[i])
		require.NoError(t, err)
		require.Equal(t, i, seat)
	}
	return s, ms, conns
}

// setupStarted seats four participants, assigns ana+ben to team 0 and
// cam+dia to team 1, and lets the game auto-start. After the seat
// rearrangement the order is ana, cam, ben, dia with ana dealing.
func setupStarted(t *testing.T) (*Session, *mockSender, [4]uuid.UUID) {
	s, ms, conns := setupLobby(t)
	require.NoError(t, s.SelectTeam(0, 0))
	require.NoError(t, s.SelectTeam(1, 0))
	require.NoError(t, s.SelectTeam(2, 1))
	require.NoError(t, s.SelectTeam(3, 1))
	require.Equal(t, PhaseBetting, s.Phase)
	ms.clear()
	return s, ms, conns
}

// setHands overwrites every seat's hand for deterministic play tests.
func setHands(s *Session, hands [4][]deck.Card) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	for i := range hands {
		s.Seats[i].Hand = append([]deck.Card(nil), hands[i]...)
	}
}

func mustCard(t *testing.T, label string) deck.Card {
	c, err := deck.Parse(label)
	require.NoError(t, err)
	return c
}

func cards(t *testing.T, labels ...string) []deck.Card {
	out := make([]deck.Card, len(labels))
	for i, l := range labels {
		out[i] = mustCard(t, l)
	}
	return out
}

// checkConservation verifies that every card is either in a hand, in the
// current trick, or in a resolved trick.
func checkConservation(t *testing.T, s *Session) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	total := len(s.CurrentTrick) + 4*len(s.TrickHistory)
	for _, seat := range s.Seats {
		total += len(seat.Hand)
	}
	assert.Equal(t, 32, total, "card conservation violated")
}

func TestJoinFillsSeatsInOrder(t *testing.T) {
	s, ms, _ := setupLobby(t)

	assert.Equal(t, PhaseTeamSelection, s.Phase)
	for i, name := range testNames {
		assert.Equal(t, name, s.Seats[i].Name)
		assert.True(t, s.Seats[i].Connected)
		assert.Equal(t, -1, s.Seats[i].Team)
	}
	joined := ms.byType(EventParticipantJoined)
	assert.NotEmpty(t, joined)

	_, err := s.Join("eve", nil, uuid.New())
	require.Error(t, err)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RejectConflict, rej.Kind)
}

func TestJoinRejectsDuplicateName(t *testing.T) {
	s := NewSession()
	_, err := s.Join("ana", nil, uuid.New())
	require.NoError(t, err)
	_, err = s.Join("ana", nil, uuid.New())
	require.Error(t, err)
}

func TestTeamSelectionCapsTeamsAtTwo(t *testing.T) {
	s, _, _ := setupLobby(t)
	require.NoError(t, s.SelectTeam(0, 0))
	require.NoError(t, s.SelectTeam(1, 0))

	err := s.SelectTeam(2, 0)
	require.Error(t, err)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RejectConflict, rej.Kind)
	assert.Equal(t, PhaseTeamSelection, s.Phase, "game must not start on an invalid split")
}

func TestGameStartsWhenTeamsComplete(t *testing.T) {
	s, _, _ := setupStarted(t)

	assert.Equal(t, PhaseBetting, s.Phase)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, 0, s.DealerSeat)
	assert.Equal(t, 1, s.ActiveSeat, "betting opens left of the dealer")

	// Seats must alternate teams after the rearrangement.
	for i := 0; i < NumSeats; i++ {
		assert.Equal(t, i%2, s.Seats[i].Team, "seat %d team", i)
		assert.Equal(t, i, s.Seats[i].Index)
		assert.Len(t, s.Seats[i].Hand, HandSize)
	}
	checkConservation(t, s)
}

func TestSwapSeatBeforeStart(t *testing.T) {
	s, _, _ := setupLobby(t)
	require.NoError(t, s.SwapSeat(0, 3))
	assert.Equal(t, "dia", s.Seats[0].Name)
	assert.Equal(t, "ana", s.Seats[3].Name)
	assert.Equal(t, 0, s.Seats[0].Index)
	assert.Equal(t, 3, s.Seats[3].Index)
}

func TestSwapSeatRejectedMidGame(t *testing.T) {
	s, _, _ := setupStarted(t)
	err := s.SwapSeat(0, 1)
	require.Error(t, err)
}

func TestDisconnectKeepsSeatAndMarksAwaiting(t *testing.T) {
	s, ms, conns := setupStarted(t)

	// conns[2] belongs to cam, who sits at index 1 after rearrangement.
	s.Disconnect(conns[2])

	seat := s.seatByName("cam")
	require.NotNil(t, seat)
	assert.False(t, seat.Connected)
	assert.True(t, seat.Awaiting)
	assert.Equal(t, "cam", seat.Name, "identity survives the disconnect")
	assert.Len(t, seat.Hand, HandSize, "hand survives the disconnect")

	evs := ms.byTypeFor(seatKey(0), EventParticipantDisconnected)
	require.Len(t, evs, 1)
	assert.Equal(t, "cam", evs[0].Name)
	assert.Len(t, ms.byType(EventParticipantDisconnected), NumSeats-1,
		"one copy per remaining audience, none for the dropped seat")
}

func TestRebindRestoresOnlyConnectionFields(t *testing.T) {
	s, ms, conns := setupStarted(t)
	s.Disconnect(conns[2])

	before := s.seatByName("cam")
	handBefore := append([]deck.Card(nil), before.Hand...)
	idxBefore := before.Index

	newConn := uuid.New()
	seatIdx, err := s.Rebind("cam", nil, newConn)
	require.NoError(t, err)
	assert.Equal(t, idxBefore, seatIdx)

	after := s.seatByName("cam")
	assert.True(t, after.Connected)
	assert.False(t, after.Awaiting)
	assert.Equal(t, newConn, after.ConnID)
	assert.Equal(t, handBefore, after.Hand)

	evs := ms.byTypeFor(seatKey(0), EventParticipantReconnected)
	require.Len(t, evs, 1)
}

func TestRebindUnknownNameFails(t *testing.T) {
	s, _, _ := setupStarted(t)
	_, err := s.Rebind("mallory", nil, uuid.New())
	require.Error(t, err)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, RejectNotFound, rej.Kind)
}

func TestGraceExpiryDuringTeamSelectionVacatesSeat(t *testing.T) {
	s, _, conns := setupLobby(t)
	s.Disconnect(conns[3])
	s.ExpireGrace(3)

	assert.False(t, s.Seats[3].Occupied())
	assert.Equal(t, -1, s.Seats[3].Team)
}

func TestGraceExpiryMidGameSubstitutesBot(t *testing.T) {
	s, ms, conns := setupStarted(t)
	s.Disconnect(conns[2])

	seat := s.seatByName("cam")
	s.ExpireGrace(seat.Index)

	assert.True(t, seat.IsBot)
	assert.True(t, seat.Occupied(), "an active game always keeps four seats")
	assert.Len(t, seat.Hand, HandSize)
	assert.NotEmpty(t, ms.byType(EventParticipantLeft))
	checkConservation(t, s)
}

func TestGraceExpiryAfterRebindIsNoop(t *testing.T) {
	s, _, conns := setupStarted(t)
	s.Disconnect(conns[2])
	seat := s.seatByName("cam")
	_, err := s.Rebind("cam", nil, uuid.New())
	require.NoError(t, err)

	s.ExpireGrace(seat.Index)
	assert.False(t, seat.IsBot, "a stale grace timer must not fire after rebind")
	assert.True(t, seat.Connected)
}

func TestLeaveMidGameHandsSeatToBot(t *testing.T) {
	s, _, conns := setupStarted(t)
	seat := s.seatByName("ben")
	s.Leave(conns[1])

	assert.True(t, seat.IsBot)
	assert.False(t, seat.Connected)
	assert.True(t, seat.Occupied())
}

func TestEvictableWhenNoHumansRemain(t *testing.T) {
	s, _, conns := setupStarted(t)
	assert.False(t, s.Evictable(0))

	for i := range conns {
		s.Leave(conns[i])
	}
	assert.True(t, s.Evictable(0), "a table of bots holds no one worth waiting for")
}

func TestEvictableZeroThresholdDisablesIdleEviction(t *testing.T) {
	s, _, _ := setupStarted(t)
	s.Mu.Lock()
	s.LastActivity = time.Now().Add(-24 * time.Hour)
	s.Mu.Unlock()

	assert.False(t, s.Evictable(0), "a zero threshold must not evict live humans instantly")
	assert.True(t, s.Evictable(time.Hour))
}

func TestChatScopeMatchesPhase(t *testing.T) {
	s, ms, conns := setupLobby(t)

	require.NoError(t, s.Chat(conns[0], "team_selection", "hello"))
	require.Error(t, s.Chat(conns[0], "in_game", "too early"))

	require.NoError(t, s.SelectTeam(0, 0))
	require.NoError(t, s.SelectTeam(1, 0))
	require.NoError(t, s.SelectTeam(2, 1))
	require.NoError(t, s.SelectTeam(3, 1))

	require.Error(t, s.Chat(conns[0], "team_selection", "too late"))
	require.NoError(t, s.Chat(conns[0], "in_game", "gl hf"))

	evs := ms.byType(EventChat)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1].ev
	assert.Equal(t, "gl hf", last.Payload["message"])
}
