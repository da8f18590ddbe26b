// internal/game/events.go
package game

// EventType is an enum-like type for everything the server pushes to viewers.
type EventType string

const (
	EventSessionCreated          EventType = "session_created"
	EventSessionJoined           EventType = "session_joined"
	EventParticipantJoined       EventType = "participant_joined"
	EventParticipantLeft         EventType = "participant_left"
	EventParticipantDisconnected EventType = "participant_disconnected"
	EventParticipantReconnected  EventType = "participant_reconnected"
	EventFullState               EventType = "full_state"
	EventDeltaState              EventType = "delta_state"
	EventRoundStarted            EventType = "round_started"
	EventTrickResolved           EventType = "trick_resolved"
	EventRoundEnded              EventType = "round_ended"
	EventGameOver                EventType = "game_over"
	EventActionRejected          EventType = "action_rejected"
	EventReconnectSuccess        EventType = "reconnect_success"
	EventReconnectFailed         EventType = "reconnect_failed"
	EventScheduledAction         EventType = "scheduled_action"
	EventChat                    EventType = "chat"
)

// Event is the single outbound message shape. State and Delta are mutually
// exclusive; Payload carries small event-specific fields for one-off
// notifications.
type Event struct {
	Type    EventType              `json:"type"`
	Seat    *int                   `json:"seat,omitempty"`
	Name    string                 `json:"name,omitempty"`
	State   *Snapshot              `json:"state,omitempty"`
	Delta   *Delta                 `json:"delta,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

func seatRef(i int) *int { return &i }
