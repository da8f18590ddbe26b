// internal/handlers/messages_test.go
package handlers

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionMsgValidate(t *testing.T) {
	assert.NoError(t, (&createSessionMsg{Name: "ana"}).validate())
	assert.Error(t, (&createSessionMsg{}).validate())
	assert.Error(t, (&createSessionMsg{Name: strings.Repeat("x", 33)}).validate())
}

func TestJoinSessionMsgValidate(t *testing.T) {
	id := uuid.New()

	parsed, err := (&joinSessionMsg{SessionID: id.String(), Name: "ben"}).validate()
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = (&joinSessionMsg{SessionID: "not-a-uuid", Name: "ben"}).validate()
	assert.Error(t, err)
	_, err = (&joinSessionMsg{SessionID: id.String()}).validate()
	assert.Error(t, err)
}

func TestSelectTeamMsgValidate(t *testing.T) {
	assert.NoError(t, (&selectTeamMsg{Team: 0}).validate())
	assert.NoError(t, (&selectTeamMsg{Team: 1}).validate())
	assert.Error(t, (&selectTeamMsg{Team: 2}).validate())
	assert.Error(t, (&selectTeamMsg{Team: -1}).validate())
}

func TestPlaceBetMsgValidate(t *testing.T) {
	assert.NoError(t, (&placeBetMsg{Amount: 7}).validate())
	assert.NoError(t, (&placeBetMsg{Amount: 12, NoTrump: true}).validate())
	assert.NoError(t, (&placeBetMsg{Skip: true}).validate())

	assert.Error(t, (&placeBetMsg{Amount: 6}).validate())
	assert.Error(t, (&placeBetMsg{Amount: 13}).validate())
	assert.Error(t, (&placeBetMsg{}).validate(), "a non-skip bet needs an amount")
	assert.Error(t, (&placeBetMsg{Skip: true, Amount: 8}).validate(), "skip and amount are exclusive")
}

func TestPlayCardMsgValidate(t *testing.T) {
	c, err := (&playCardMsg{Card: "10H"}).validate()
	require.NoError(t, err)
	assert.Equal(t, "10H", c.String())

	_, err = (&playCardMsg{Card: "6H"}).validate()
	assert.Error(t, err, "the short deck has no sixes")
	_, err = (&playCardMsg{Card: ""}).validate()
	assert.Error(t, err)
}

func TestReconnectMsgValidate(t *testing.T) {
	id := uuid.New()

	parsed, err := (&reconnectMsg{SessionID: id.String(), ResumeToken: "tok"}).validate()
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = (&reconnectMsg{SessionID: id.String()}).validate()
	assert.Error(t, err)
	_, err = (&reconnectMsg{SessionID: "bogus", ResumeToken: "tok"}).validate()
	assert.Error(t, err)
}

func TestChatMsgValidate(t *testing.T) {
	assert.NoError(t, (&chatMsg{Scope: "team_selection", Message: "hi"}).validate())
	assert.NoError(t, (&chatMsg{Scope: "in_game", Message: "gg"}).validate())
	assert.Error(t, (&chatMsg{Scope: "global", Message: "hi"}).validate())
	assert.Error(t, (&chatMsg{Scope: "in_game"}).validate())
	assert.Error(t, (&chatMsg{Scope: "in_game", Message: strings.Repeat("a", 501)}).validate())
}
