// internal/handlers/messages.go
package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/villeneuve-games/fortyone/internal/deck"
	"github.com/villeneuve-games/fortyone/internal/game"
)

// inboundEnvelope is the tagged union every client message arrives as. The
// tag selects a typed payload struct; payloads are validated here, at the
// boundary, before any engine call.
type inboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type createSessionMsg struct {
	Name string `json:"name"`
}

func (m *createSessionMsg) validate() error {
	if m.Name == "" || len(m.Name) > 32 {
		return fmt.Errorf("name must be 1-32 characters")
	}
	return nil
}

type joinSessionMsg struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

func (m *joinSessionMsg) validate() (uuid.UUID, error) {
	if m.Name == "" || len(m.Name) > 32 {
		return uuid.Nil, fmt.Errorf("name must be 1-32 characters")
	}
	id, err := uuid.Parse(m.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid sessionId")
	}
	return id, nil
}

type selectTeamMsg struct {
	Team int `json:"team"`
}

func (m *selectTeamMsg) validate() error {
	if m.Team != 0 && m.Team != 1 {
		return fmt.Errorf("team must be 0 or 1")
	}
	return nil
}

type swapSeatMsg struct {
	Target int `json:"target"`
}

func (m *swapSeatMsg) validate() error {
	if m.Target < 0 || m.Target >= game.NumSeats {
		return fmt.Errorf("target seat out of range")
	}
	return nil
}

type placeBetMsg struct {
	Amount  int  `json:"amount"`
	Skip    bool `json:"skip"`
	NoTrump bool `json:"noTrump"`
}

func (m *placeBetMsg) validate() error {
	if m.Skip {
		if m.Amount != 0 {
			return fmt.Errorf("a skipped bet carries no amount")
		}
		return nil
	}
	if m.Amount < game.MinBet || m.Amount > game.MaxBet {
		return fmt.Errorf("amount must be %d-%d", game.MinBet, game.MaxBet)
	}
	return nil
}

type playCardMsg struct {
	Card string `json:"card"`
}

func (m *playCardMsg) validate() (deck.Card, error) {
	c, err := deck.Parse(m.Card)
	if err != nil {
		return deck.Card{}, fmt.Errorf("invalid card %q", m.Card)
	}
	return c, nil
}

type reconnectMsg struct {
	SessionID   string `json:"sessionId"`
	ResumeToken string `json:"resumeToken"`
}

func (m *reconnectMsg) validate() (uuid.UUID, error) {
	id, err := uuid.Parse(m.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid sessionId")
	}
	if m.ResumeToken == "" {
		return uuid.Nil, fmt.Errorf("missing resumeToken")
	}
	return id, nil
}

type spectateMsg struct {
	SessionID string `json:"sessionId"`
}

func (m *spectateMsg) validate() (uuid.UUID, error) {
	id, err := uuid.Parse(m.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid sessionId")
	}
	return id, nil
}

type chatMsg struct {
	Scope   string `json:"scope"`
	Message string `json:"message"`
}

func (m *chatMsg) validate() error {
	if m.Scope != "team_selection" && m.Scope != "in_game" {
		return fmt.Errorf("scope must be team_selection or in_game")
	}
	if m.Message == "" || len(m.Message) > 500 {
		return fmt.Errorf("message must be 1-500 characters")
	}
	return nil
}
