// internal/game/session.go
package game

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/villeneuve-games/fortyone/internal/deck"
)

// Phase is the session's position in the fixed game lifecycle.
type Phase string

const (
	PhaseTeamSelection Phase = "team_selection"
	PhaseBetting       Phase = "betting"
	PhasePlaying       Phase = "playing"
	PhaseScoring       Phase = "scoring"
	PhaseGameOver      Phase = "game_over"
)

// Canonical timing and rules policy. The turn timeout applies to both betting
// and playing; there is deliberately one set of values, not two.
const (
	NumSeats = 4
	HandSize = 8

	MinBet     = 7
	MaxBet     = 12
	GameTarget = 41

	TurnTimeout       = 30 * time.Second
	BotTurnDelay      = 1 * time.Second
	ReconnectGrace    = 90 * time.Second
	TrickDisplayPause = 2500 * time.Millisecond
	RoundDisplayPause = 4 * time.Second
	PersistDebounce   = 2 * time.Second
)

// Bonus cards: the trick containing the ace of diamonds is worth 5 extra
// points to its winner; the trick containing the seven of spades costs 2.
var (
	bonusHighCard = deck.Card{Suit: deck.Diamonds, Rank: deck.Ace}
	bonusLowCard  = deck.Card{Suit: deck.Spades, Rank: deck.Seven}
)

const (
	bonusHighPoints = 5
	bonusLowPoints  = -2
)

// SkipBet is the amount recorded for a passed bet.
const SkipBet = 0

// Seat is one of the four fixed player slots. The Name is the stable identity
// that survives reconnects; Conn and ConnID are the transient connection
// handle and are the only fields a reconnect rebinds.
type Seat struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Team      int    `json:"team"` // -1 until selected
	Conn      *websocket.Conn
	ConnID    uuid.UUID
	Connected bool
	Awaiting  bool // disconnected, grace window running

	IsBot    bool
	BotSkill int

	Hand      []deck.Card
	TricksWon int
	PointsWon int
}

// Occupied reports whether the seat holds a participant (human or bot).
func (s *Seat) Occupied() bool { return s.Name != "" }

// Bet is a single betting declaration. Amount == SkipBet marks a pass.
type Bet struct {
	Seat    int  `json:"seat"`
	Amount  int  `json:"amount"`
	NoTrump bool `json:"noTrump"`
}

// Skip reports whether the bet is a pass.
func (b Bet) Skip() bool { return b.Amount == SkipBet }

// beats reports whether bet a strictly outranks bet b: higher amount wins and
// at equal amounts without-trump beats with-trump.
func beats(a, b Bet) bool {
	if a.Amount != b.Amount {
		return a.Amount > b.Amount
	}
	return a.NoTrump && !b.NoTrump
}

// TrickEntry is one card played into the current trick.
type TrickEntry struct {
	Seat int       `json:"seat"`
	Card deck.Card `json:"card"`
}

// TrickResult is a resolved trick of exactly four entries.
type TrickResult struct {
	Entries []TrickEntry `json:"entries"`
	Winner  int          `json:"winner"`
	Points  int          `json:"points"`
}

// RoundRecord is the completed-round history entry.
type RoundRecord struct {
	Round      int           `json:"round"`
	Bets       []Bet         `json:"bets"`
	Accepted   Bet           `json:"accepted"`
	Trump      deck.Suit     `json:"trump"`
	TeamPoints [2]int        `json:"teamPoints"`
	TeamDelta  [2]int        `json:"teamDelta"`
	Scores     [2]int        `json:"scores"`
	Tricks     []TrickResult `json:"tricks"`
}

// Scheduler is the narrow surface the session uses to arm and cancel delayed
// commands. Every callback re-looks the session up by id and re-validates the
// phase before mutating anything, so a destroyed or advanced session is safe.
type Scheduler interface {
	ArmTurn(sessionID uuid.UUID, seat, turnID int, d time.Duration)
	CancelTurn(sessionID uuid.UUID)
	ArmGrace(sessionID uuid.UUID, seat int, d time.Duration)
	CancelGrace(sessionID uuid.UUID, seat int)
	ArmTrickPause(sessionID uuid.UUID, round, trick int, d time.Duration)
	ArmRoundPause(sessionID uuid.UUID, round int, d time.Duration)
	ArmPersist(sessionID uuid.UUID, d time.Duration)
}

// SendFunc delivers one event to one viewer connection. It is invoked with the
// session lock held and must not reacquire it; implementations marshal and
// write asynchronously. audience is a stable viewer key ("seat:2", "obs:<id>").
type SendFunc func(audience string, conn *websocket.Conn, ev Event)

// Observer is a spectating viewer with no seat ownership.
type Observer struct {
	ID   uuid.UUID
	Conn *websocket.Conn
}

// Session is the aggregate root for one game. All state is guarded by Mu;
// rules operations are not internally synchronized beyond that single lock.
type Session struct {
	ID uuid.UUID

	Phase      Phase
	Seats      [NumSeats]*Seat
	ActiveSeat int
	DealerSeat int
	Trump      *deck.Suit

	CurrentTrick []TrickEntry
	CurrentBets  []Bet
	// BetCycle counts all-skip restarts within the current betting phase.
	BetCycle     int
	Accepted     *Bet
	TeamScores   [2]int
	Round        int
	RoundHistory []RoundRecord
	TrickHistory []TrickResult
	GameWinner   *int

	// TurnID increments whenever the active seat changes; delayed fallbacks
	// carry it so a stale timer can never act on a newer turn.
	TurnID int

	// resolving is set while a finished trick stays on the table for display.
	resolving    bool
	pendingTrick *TrickResult

	Mu           sync.Mutex
	CreatedAt    time.Time
	LastActivity time.Time

	Sched     Scheduler
	Send      SendFunc
	PersistFn func(snap Snapshot, finished bool)
	NotifyFn  func(eventType, participant string, context map[string]interface{})

	observers      map[uuid.UUID]*Observer
	baselines      map[string]*Snapshot
	persistPending bool
	rng            *rand.Rand
}

// NewSession builds an empty session in team_selection with four open seats.
func NewSession() *Session {
	id, _ := uuid.NewRandom()
	s := &Session{
		ID:           id,
		Phase:        PhaseTeamSelection,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		observers:    make(map[uuid.UUID]*Observer),
		baselines:    make(map[string]*Snapshot),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range s.Seats {
		s.Seats[i] = &Seat{Index: i, Team: -1}
	}
	return s
}

// touchLocked records activity for the eviction policy. Assumes lock is held.
func (s *Session) touchLocked() {
	s.LastActivity = time.Now()
}

// seatByName returns the seat bound to a stable identity, or nil.
// Assumes lock is held.
func (s *Session) seatByName(name string) *Seat {
	for _, seat := range s.Seats {
		if seat.Occupied() && seat.Name == name {
			return seat
		}
	}
	return nil
}

// Join binds a new participant identity to the first free seat. Valid only
// during team selection; an active game is entered through reconnection.
func (s *Session) Join(name string, conn *websocket.Conn, connID uuid.UUID) (int, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.Phase != PhaseTeamSelection {
		return -1, conflictf("game already started; use your resume token to rejoin")
	}
	if name == "" {
		return -1, invalidf("participant name must not be empty")
	}
	if s.seatByName(name) != nil {
		return -1, conflictf("name %q is already seated", name)
	}
	for _, seat := range s.Seats {
		if !seat.Occupied() {
			seat.Name = name
			seat.Team = -1
			seat.Conn = conn
			seat.ConnID = connID
			seat.Connected = true
			seat.Awaiting = false
			seat.IsBot = false
			s.touchLocked()
			s.broadcastLocked(Event{Type: EventParticipantJoined, Seat: seatRef(seat.Index), Name: name})
			s.syncLocked(true)
			return seat.Index, nil
		}
	}
	return -1, conflictf("session is full")
}

// SelectTeam assigns the seat to team 0 or 1. Once all four seats are
// occupied and split two per team, the game arranges seating and begins.
func (s *Session) SelectTeam(seatIdx, team int) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.Phase != PhaseTeamSelection {
		return invalidf("teams can only be chosen before the game starts")
	}
	if seatIdx < 0 || seatIdx >= NumSeats || !s.Seats[seatIdx].Occupied() {
		return notFoundf("no participant at seat %d", seatIdx)
	}
	if team != 0 && team != 1 {
		return invalidf("team must be 0 or 1")
	}
	if s.Seats[seatIdx].Team == team {
		return nil // retry-safe
	}
	count := 0
	for _, seat := range s.Seats {
		if seat.Occupied() && seat.Team == team {
			count++
		}
	}
	if count >= 2 {
		return conflictf("team %d already has two players", team)
	}
	s.Seats[seatIdx].Team = team
	s.touchLocked()
	s.syncLocked(false)
	s.maybeStartLocked()
	return nil
}

// SwapSeat exchanges two seats during team selection. Per-round bookkeeping is
// keyed by seat index, so swapping is only legal before any round starts.
func (s *Session) SwapSeat(seatIdx, target int) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.Phase != PhaseTeamSelection {
		return invalidf("seats can only be swapped before the game starts")
	}
	if seatIdx < 0 || seatIdx >= NumSeats || target < 0 || target >= NumSeats {
		return invalidf("seat index out of range")
	}
	if seatIdx == target {
		return nil
	}
	s.Seats[seatIdx], s.Seats[target] = s.Seats[target], s.Seats[seatIdx]
	s.Seats[seatIdx].Index = seatIdx
	s.Seats[target].Index = target
	s.touchLocked()
	s.syncLocked(false)
	return nil
}

// maybeStartLocked begins round one once four participants are seated two per
// team. Seats are rearranged so teammates face each other (0/2 vs 1/3), which
// keeps the fixed seat order alternating between teams. Assumes lock is held.
func (s *Session) maybeStartLocked() {
	var team0, team1 []*Seat
	for _, seat := range s.Seats {
		if !seat.Occupied() {
			return
		}
		switch seat.Team {
		case 0:
			team0 = append(team0, seat)
		case 1:
			team1 = append(team1, seat)
		default:
			return
		}
	}
	if len(team0) != 2 || len(team1) != 2 {
		return
	}
	order := []*Seat{team0[0], team1[0], team0[1], team1[1]}
	for i, seat := range order {
		s.Seats[i] = seat
		seat.Index = i
	}
	s.DealerSeat = 0
	s.Round = 1
	s.TeamScores = [2]int{}
	s.RoundHistory = nil
	s.notifyLocked("game_started", "", map[string]interface{}{"session": s.ID.String()})
	s.beginRoundLocked()
}

// beginRoundLocked deals a fresh shuffled deck and opens betting at the seat
// after the dealer. Assumes lock is held.
func (s *Session) beginRoundLocked() {
	hands := deck.NewShuffled(s.rng).Deal(NumSeats, HandSize)
	for i, seat := range s.Seats {
		seat.Hand = hands[i]
		seat.TricksWon = 0
		seat.PointsWon = 0
	}
	s.Trump = nil
	s.CurrentTrick = nil
	s.CurrentBets = nil
	s.BetCycle = 0
	s.Accepted = nil
	s.TrickHistory = nil
	s.pendingTrick = nil
	s.resolving = false

	s.Phase = PhaseBetting
	s.setActiveLocked((s.DealerSeat + 1) % NumSeats)
	s.touchLocked()

	s.broadcastLocked(Event{Type: EventRoundStarted, Payload: map[string]interface{}{
		"round":  s.Round,
		"dealer": s.DealerSeat,
	}})
	s.syncLocked(true)
}

// setActiveLocked moves the turn and re-arms the timeout for the new active
// seat. Assumes lock is held.
func (s *Session) setActiveLocked(seat int) {
	s.ActiveSeat = seat
	s.TurnID++
	s.armTurnLocked()
}

// armTurnLocked schedules the fallback deadline for the current active seat.
// Bot seats act after a short delay through the same fallback path.
// Assumes lock is held.
func (s *Session) armTurnLocked() {
	if s.Sched == nil {
		return
	}
	if s.Phase != PhaseBetting && s.Phase != PhasePlaying {
		s.Sched.CancelTurn(s.ID)
		return
	}
	d := TurnTimeout
	if s.Seats[s.ActiveSeat].IsBot {
		d = BotTurnDelay
	}
	s.Sched.ArmTurn(s.ID, s.ActiveSeat, s.TurnID, d)
}

// Disconnect marks the seat's connection as lost and starts the reconnection
// grace window. The seat keeps its place; a pending turn deadline for it keeps
// running and will be auto-played.
func (s *Session) Disconnect(connID uuid.UUID) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	for _, seat := range s.Seats {
		if seat.Occupied() && seat.ConnID == connID && seat.Connected {
			seat.Connected = false
			seat.Conn = nil
			seat.Awaiting = true
			s.touchLocked()
			if s.Sched != nil && s.Phase != PhaseGameOver {
				s.Sched.ArmGrace(s.ID, seat.Index, ReconnectGrace)
			}
			s.broadcastLocked(Event{Type: EventParticipantDisconnected, Seat: seatRef(seat.Index), Name: seat.Name})
			s.syncLocked(false)
			return
		}
	}
}

// Rebind attaches a new connection handle to the seat holding the given
// stable identity. All per-round bookkeeping is keyed by seat index, so the
// migration is exactly this one field pair plus the connected flags.
func (s *Session) Rebind(name string, conn *websocket.Conn, connID uuid.UUID) (int, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	seat := s.seatByName(name)
	if seat == nil {
		return -1, notFoundf("participant %q is not in this session", name)
	}
	seat.Conn = conn
	seat.ConnID = connID
	seat.Connected = true
	seat.Awaiting = false
	seat.IsBot = false
	seat.BotSkill = 0
	if s.Sched != nil {
		s.Sched.CancelGrace(s.ID, seat.Index)
	}
	s.touchLocked()
	s.broadcastLocked(Event{Type: EventParticipantReconnected, Seat: seatRef(seat.Index), Name: seat.Name})
	// The rebound viewer needs a fresh baseline; everyone else can delta.
	delete(s.baselines, seatKey(seat.Index))
	s.syncLocked(false)
	return seat.Index, nil
}

// ExpireGrace fires when the reconnection window elapses without a rebind.
// During team selection the seat is simply vacated; mid-game a bot substitute
// takes over so the remaining three players can finish the round.
func (s *Session) ExpireGrace(seatIdx int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if seatIdx < 0 || seatIdx >= NumSeats {
		return
	}
	seat := s.Seats[seatIdx]
	if !seat.Occupied() || !seat.Awaiting {
		return
	}
	seat.Awaiting = false
	if s.Phase == PhaseTeamSelection {
		name := seat.Name
		s.clearSeatLocked(seat)
		s.broadcastLocked(Event{Type: EventParticipantLeft, Seat: seatRef(seatIdx), Name: name})
		s.syncLocked(false)
		return
	}
	seat.IsBot = true
	if seat.BotSkill == 0 {
		seat.BotSkill = 1
	}
	s.notifyLocked("bot_takeover", seat.Name, map[string]interface{}{"seat": seatIdx})
	s.broadcastLocked(Event{Type: EventParticipantLeft, Seat: seatRef(seatIdx), Name: seat.Name})
	// If it is the substitute's turn, act soon instead of waiting out the
	// remainder of the human deadline.
	if s.ActiveSeat == seatIdx && (s.Phase == PhaseBetting || s.Phase == PhasePlaying) && !s.resolving {
		s.armTurnLocked()
	}
	s.syncLocked(false)
}

// Leave handles an explicit leave-session. Unlike a disconnect there is no
// grace window: the seat is vacated (team selection) or handed to a bot.
func (s *Session) Leave(connID uuid.UUID) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	for _, seat := range s.Seats {
		if !seat.Occupied() || seat.ConnID != connID {
			continue
		}
		if s.Sched != nil {
			s.Sched.CancelGrace(s.ID, seat.Index)
		}
		name := seat.Name
		idx := seat.Index
		if s.Phase == PhaseTeamSelection {
			s.clearSeatLocked(seat)
		} else {
			seat.Connected = false
			seat.Conn = nil
			seat.Awaiting = false
			seat.IsBot = true
			if seat.BotSkill == 0 {
				seat.BotSkill = 1
			}
			if s.ActiveSeat == idx && (s.Phase == PhaseBetting || s.Phase == PhasePlaying) && !s.resolving {
				s.armTurnLocked()
			}
		}
		s.touchLocked()
		s.broadcastLocked(Event{Type: EventParticipantLeft, Seat: seatRef(idx), Name: name})
		s.syncLocked(false)
		return
	}
}

// clearSeatLocked vacates a seat entirely. Assumes lock is held.
func (s *Session) clearSeatLocked(seat *Seat) {
	idx := seat.Index
	*seat = Seat{Index: idx, Team: -1}
	delete(s.baselines, seatKey(idx))
}

// AddObserver registers a spectator and sends it a redacted full snapshot.
func (s *Session) AddObserver(id uuid.UUID, conn *websocket.Conn) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.observers[id] = &Observer{ID: id, Conn: conn}
	s.touchLocked()
	s.syncLocked(false) // first send to a new audience is always full
}

// RemoveObserver drops a spectator and its delta baseline.
func (s *Session) RemoveObserver(id uuid.UUID) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	delete(s.observers, id)
	delete(s.baselines, obsKey(id))
}

// Chat relays a chat line to every viewer. The scope must match the phase:
// team_selection chat is only valid before the game starts, in_game after.
func (s *Session) Chat(connID uuid.UUID, scope, message string) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	var seat *Seat
	for _, cand := range s.Seats {
		if cand.Occupied() && cand.ConnID == connID {
			seat = cand
			break
		}
	}
	if seat == nil {
		return notFoundf("you are not seated in this session")
	}
	switch scope {
	case "team_selection":
		if s.Phase != PhaseTeamSelection {
			return invalidf("team selection chat is closed")
		}
	case "in_game":
		if s.Phase == PhaseTeamSelection {
			return invalidf("the game has not started")
		}
	default:
		return invalidf("unknown chat scope %q", scope)
	}
	if message == "" {
		return invalidf("empty chat message")
	}
	s.broadcastLocked(Event{Type: EventChat, Seat: seatRef(seat.Index), Name: seat.Name, Payload: map[string]interface{}{
		"scope":   scope,
		"message": message,
		"ts":      time.Now().Unix(),
	}})
	return nil
}

// Evictable reports whether the registry may destroy this session: the game
// is over, or no real connected-or-awaiting participant remains, or it has
// been idle past the threshold. A threshold of zero or less disables the
// idle criterion, leaving only the structural ones.
func (s *Session) Evictable(idleAfter time.Duration) bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	idle := idleAfter > 0 && time.Since(s.LastActivity) > idleAfter
	if s.Phase == PhaseGameOver {
		return idle
	}
	humans := 0
	for _, seat := range s.Seats {
		if seat.Occupied() && !seat.IsBot && (seat.Connected || seat.Awaiting) {
			humans++
		}
	}
	if humans == 0 {
		return true
	}
	return idle
}

// notifyLocked forwards a fire-and-forget achievement event. Assumes lock is
// held; the collaborator call itself must never block session processing.
func (s *Session) notifyLocked(eventType, participant string, context map[string]interface{}) {
	if s.NotifyFn == nil {
		return
	}
	fn := s.NotifyFn
	go fn(eventType, participant, context)
}

// SeatForConn resolves a connection handle to its seat index, or -1.
func (s *Session) SeatForConn(connID uuid.UUID) int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	for _, seat := range s.Seats {
		if seat.Occupied() && seat.ConnID == connID {
			return seat.Index
		}
	}
	return -1
}

// FlushPersist writes the debounced snapshot through the persistence
// collaborator. Invoked by the scheduler after the debounce window.
func (s *Session) FlushPersist() {
	s.Mu.Lock()
	if !s.persistPending {
		s.Mu.Unlock()
		return
	}
	s.persistPending = false
	fn := s.PersistFn
	if fn == nil {
		s.Mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	finished := s.Phase == PhaseGameOver
	s.Mu.Unlock()

	go fn(snap, finished)
}

// schedulePersistLocked coalesces rapid successive full sends into one write.
// Assumes lock is held.
func (s *Session) schedulePersistLocked() {
	if s.PersistFn == nil {
		return
	}
	if s.persistPending {
		return
	}
	s.persistPending = true
	if s.Sched == nil {
		// No scheduler in pure-rules tests; flush inline but off the lock.
		go s.FlushPersist()
		return
	}
	s.Sched.ArmPersist(s.ID, PersistDebounce)
}

// logf keeps the terse internal warnings on the stdlib logger.
func (s *Session) logf(format string, args ...interface{}) {
	log.Printf("session %s: "+format, append([]interface{}{s.ID}, args...)...)
}
