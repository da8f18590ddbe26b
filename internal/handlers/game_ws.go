// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/villeneuve-games/fortyone/internal/game"
	"github.com/villeneuve-games/fortyone/internal/middleware"
)

// connState tracks what one WebSocket connection is bound to. A connection is
// either seated in a session, spectating one, or neither; the session pointer
// is the only shared object and all mutation goes through its own lock.
type connState struct {
	connID     uuid.UUID
	conn       *websocket.Conn
	sess       *game.Session
	observerID *uuid.UUID
	name       string
}

// GameWSHandler serves the single /ws endpoint. Every client capability,
// creating, joining, playing, spectating, and reconnecting, travels over this
// connection as a tagged message.
func GameWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guestID, guestName, err := EnsureGuest(w, r)
		if err != nil {
			logger.Warnf("guest authentication failed: %v", err)
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"fortyone"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "internal server error")

		if c.Subprotocol() != "fortyone" {
			c.Close(BadSubprotocolError, "client must use the 'fortyone' subprotocol")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		state := &connState{
			connID: uuid.New(),
			conn:   c,
			name:   guestName,
		}
		logger.WithFields(logrus.Fields{"guest": guestID, "conn": state.connID}).Info("client connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readMessages(ctx, state, gs, logger)

		// Read loop exited: detach whatever the connection was bound to and
		// retire its outbound writer.
		if state.sess != nil {
			if state.observerID != nil {
				state.sess.RemoveObserver(*state.observerID)
			} else {
				state.sess.Disconnect(state.connID)
			}
		}
		gs.writers.release(c)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// readMessages is the per-connection read loop. Each message is decoded,
// boundary-validated, and dispatched; a panic in dispatch kills only this
// connection, never the process.
func readMessages(ctx context.Context, state *connState, gs *GameServer, logger *logrus.Logger) {
	for {
		msgType, data, err := state.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for conn %s", state.connID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for conn %s", state.connID)
			} else {
				logger.Warnf("error reading from conn %s: %v (status: %d)", state.connID, err, status)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var env inboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			sendRejection(logger, state.conn, fmt.Errorf("invalid JSON"))
			continue
		}

		dispatchSafely(state, gs, logger, &env)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// dispatchSafely isolates one message's processing behind a recover.
func dispatchSafely(state *connState, gs *GameServer, logger *logrus.Logger, env *inboundEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic handling %q on conn %s: %v", env.Type, state.connID, r)
			sendRejection(logger, state.conn, fmt.Errorf("internal error"))
		}
	}()
	if err := dispatch(state, gs, logger, env); err != nil {
		sendRejection(logger, state.conn, err)
	}
}

func dispatch(state *connState, gs *GameServer, logger *logrus.Logger, env *inboundEnvelope) error {
	switch env.Type {
	case "create_session":
		var msg createSessionMsg
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		if err := msg.validate(); err != nil {
			return err
		}
		return handleCreate(state, gs, logger, msg.Name)

	case "join_session":
		var msg joinSessionMsg
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		id, err := msg.validate()
		if err != nil {
			return err
		}
		return handleJoin(state, gs, logger, id, msg.Name)

	case "reconnect_session":
		var msg reconnectMsg
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		id, err := msg.validate()
		if err != nil {
			return err
		}
		return handleReconnect(state, gs, logger, id, msg.ResumeToken)

	case "spectate_session":
		var msg spectateMsg
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		id, err := msg.validate()
		if err != nil {
			return err
		}
		return handleSpectate(state, gs, id)

	case "leave_spectate":
		if state.sess != nil && state.observerID != nil {
			state.sess.RemoveObserver(*state.observerID)
			state.sess = nil
			state.observerID = nil
		}
		return nil

	case "leave_session":
		if state.sess != nil && state.observerID == nil {
			state.sess.Leave(state.connID)
			state.sess = nil
		}
		return nil

	case "select_team":
		var msg selectTeamMsg
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		if err := msg.validate(); err != nil {
			return err
		}
		sess, seat, err := state.seated()
		if err != nil {
			return err
		}
		return sess.SelectTeam(seat, msg.Team)

	case "swap_seat":
		var msg swapSeatMsg
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		if err := msg.validate(); err != nil {
			return err
		}
		sess, seat, err := state.seated()
		if err != nil {
			return err
		}
		return sess.SwapSeat(seat, msg.Target)

	case "place_bet":
		var msg placeBetMsg
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		if err := msg.validate(); err != nil {
			return err
		}
		sess, seat, err := state.seated()
		if err != nil {
			return err
		}
		amount := msg.Amount
		if msg.Skip {
			amount = game.SkipBet
		}
		return sess.PlaceBet(seat, amount, msg.NoTrump)

	case "play_card":
		var msg playCardMsg
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		card, err := msg.validate()
		if err != nil {
			return err
		}
		sess, seat, err := state.seated()
		if err != nil {
			return err
		}
		return sess.PlayCard(seat, card)

	case "refresh_state":
		if state.sess == nil {
			return fmt.Errorf("not attached to a session")
		}
		state.sess.RefreshViewer(state.connID, state.observerID)
		return nil

	case "chat":
		var msg chatMsg
		if err := decode(env.Data, &msg); err != nil {
			return err
		}
		if err := msg.validate(); err != nil {
			return err
		}
		sess, _, err := state.seated()
		if err != nil {
			return err
		}
		return sess.Chat(state.connID, msg.Scope, msg.Message)

	case "ping":
		writeEvent(logger, state.conn, game.Event{Type: "pong"})
		return nil

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}

func handleCreate(state *connState, gs *GameServer, logger *logrus.Logger, name string) error {
	if state.sess != nil {
		return fmt.Errorf("already attached to a session")
	}
	sess := gs.NewSession()
	seat, err := sess.Join(name, state.conn, state.connID)
	if err != nil {
		gs.DestroySession(sess)
		return err
	}
	state.sess = sess
	state.name = name

	token, err := gs.Resume.Issue(sess.ID, name, seat)
	if err != nil {
		logger.Errorf("failed to issue resume token for session %s: %v", sess.ID, err)
	}
	writeEvent(logger, state.conn, game.Event{Type: game.EventSessionCreated, Payload: map[string]interface{}{
		"sessionId":   sess.ID.String(),
		"seat":        seat,
		"resumeToken": token,
	}})
	return nil
}

func handleJoin(state *connState, gs *GameServer, logger *logrus.Logger, id uuid.UUID, name string) error {
	if state.sess != nil {
		return fmt.Errorf("already attached to a session")
	}
	sess, ok := gs.Sessions.Get(id)
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	seat, err := sess.Join(name, state.conn, state.connID)
	if err != nil {
		return err
	}
	state.sess = sess
	state.name = name

	token, err := gs.Resume.Issue(sess.ID, name, seat)
	if err != nil {
		logger.Errorf("failed to issue resume token for session %s: %v", sess.ID, err)
	}
	writeEvent(logger, state.conn, game.Event{Type: game.EventSessionJoined, Payload: map[string]interface{}{
		"sessionId":   sess.ID.String(),
		"seat":        seat,
		"resumeToken": token,
	}})
	return nil
}

// handleReconnect redeems a resume token and rebinds the caller's connection
// to its old seat. The redeemed token is dead either way; success issues a
// fresh one so the client always holds exactly one live token.
func handleReconnect(state *connState, gs *GameServer, logger *logrus.Logger, id uuid.UUID, token string) error {
	if state.sess != nil {
		return fmt.Errorf("already attached to a session")
	}
	sess, ok := gs.Sessions.Get(id)
	if !ok {
		writeEvent(logger, state.conn, game.Event{Type: game.EventReconnectFailed, Payload: map[string]interface{}{
			"reason": "session not found",
		}})
		return nil
	}
	name, _, err := gs.Resume.Redeem(id, token)
	if err != nil {
		writeEvent(logger, state.conn, game.Event{Type: game.EventReconnectFailed, Payload: map[string]interface{}{
			"reason": "invalid or expired resume token",
		}})
		return nil
	}
	seat, err := sess.Rebind(name, state.conn, state.connID)
	if err != nil {
		writeEvent(logger, state.conn, game.Event{Type: game.EventReconnectFailed, Payload: map[string]interface{}{
			"reason": "seat no longer available",
		}})
		return nil
	}
	state.sess = sess
	state.name = name

	fresh, err := gs.Resume.Issue(id, name, seat)
	if err != nil {
		logger.Errorf("failed to reissue resume token for session %s: %v", id, err)
	}
	writeEvent(logger, state.conn, game.Event{Type: game.EventReconnectSuccess, Payload: map[string]interface{}{
		"sessionId":   id.String(),
		"seat":        seat,
		"resumeToken": fresh,
	}})
	return nil
}

func handleSpectate(state *connState, gs *GameServer, id uuid.UUID) error {
	if state.sess != nil {
		return fmt.Errorf("already attached to a session")
	}
	sess, ok := gs.Sessions.Get(id)
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	obsID := uuid.New()
	state.sess = sess
	state.observerID = &obsID
	sess.AddObserver(obsID, state.conn)
	return nil
}

// seated resolves the connection to its session and current seat index. The
// index is looked up fresh every time because game start rearranges seats.
func (c *connState) seated() (*game.Session, int, error) {
	if c.sess == nil || c.observerID != nil {
		return nil, -1, fmt.Errorf("not seated in a session")
	}
	seat := c.sess.SeatForConn(c.connID)
	if seat < 0 {
		return nil, -1, fmt.Errorf("not seated in a session")
	}
	return c.sess, seat, nil
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("missing message data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed message data")
	}
	return nil
}

// writeEvent sends one event directly to a single connection with its own
// write timeout, outside any session lock.
func writeEvent(logger *logrus.Logger, c *websocket.Conn, ev game.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("failed to marshal %s event: %v", ev.Type, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		logger.Warnf("failed to write %s event: %v", ev.Type, err)
	}
}

// sendRejection reports a refused action back to the offending connection.
// Engine rejections keep their taxonomy kind; anything else is "internal".
func sendRejection(logger *logrus.Logger, c *websocket.Conn, err error) {
	kind := string(game.RejectValidation)
	reason := err.Error()
	var rej *game.Rejection
	if errors.As(err, &rej) {
		kind = string(rej.Kind)
		reason = rej.Reason
	}
	writeEvent(logger, c, game.Event{Type: game.EventActionRejected, Payload: map[string]interface{}{
		"kind":   kind,
		"reason": reason,
	}})
}
