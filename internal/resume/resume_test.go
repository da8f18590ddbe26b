package resume

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeAt pins the store clock so expiry is deterministic.
func storeAt(start time.Time) (*Store, *time.Time) {
	cur := start
	s := NewStore()
	s.now = func() time.Time { return cur }
	return s, &cur
}

func TestIssueRedeemRoundTrip(t *testing.T) {
	s := NewStore()
	session := uuid.New()

	token, err := s.Issue(session, "ana", 2)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	name, seat, err := s.Redeem(session, token)
	require.NoError(t, err)
	assert.Equal(t, "ana", name)
	assert.Equal(t, 2, seat)
}

func TestTokenIsSingleUse(t *testing.T) {
	s := NewStore()
	session := uuid.New()

	token, err := s.Issue(session, "ana", 0)
	require.NoError(t, err)

	_, _, err = s.Redeem(session, token)
	require.NoError(t, err)

	_, _, err = s.Redeem(session, token)
	assert.ErrorIs(t, err, ErrInvalid, "a consumed token leaves no trace to replay")
}

func TestTokenBoundToSession(t *testing.T) {
	s := NewStore()
	session := uuid.New()

	token, err := s.Issue(session, "ben", 1)
	require.NoError(t, err)

	_, _, err = s.Redeem(uuid.New(), token)
	assert.ErrorIs(t, err, ErrInvalid)

	// The failed cross-session attempt must not consume the token.
	name, seat, err := s.Redeem(session, token)
	require.NoError(t, err)
	assert.Equal(t, "ben", name)
	assert.Equal(t, 1, seat)
}

func TestTokenExpires(t *testing.T) {
	s, cur := storeAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	session := uuid.New()

	token, err := s.Issue(session, "cam", 3)
	require.NoError(t, err)

	*cur = cur.Add(TTL + time.Second)
	_, _, err = s.Redeem(session, token)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRedeemJustBeforeExpiry(t *testing.T) {
	s, cur := storeAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	session := uuid.New()

	token, err := s.Issue(session, "cam", 3)
	require.NoError(t, err)

	*cur = cur.Add(TTL)
	_, _, err = s.Redeem(session, token)
	assert.NoError(t, err, "the deadline itself is still inside the window")
}

func TestIssueInvalidatesPriorToken(t *testing.T) {
	s := NewStore()
	session := uuid.New()

	first, err := s.Issue(session, "dia", 2)
	require.NoError(t, err)
	second, err := s.Issue(session, "dia", 2)
	require.NoError(t, err)

	_, _, err = s.Redeem(session, first)
	assert.ErrorIs(t, err, ErrInvalid, "reissuing kills the previous token")

	name, seat, err := s.Redeem(session, second)
	require.NoError(t, err)
	assert.Equal(t, "dia", name)
	assert.Equal(t, 2, seat)
}

func TestSameNameDifferentSessionsCoexist(t *testing.T) {
	s := NewStore()
	a, b := uuid.New(), uuid.New()

	tokenA, err := s.Issue(a, "ana", 0)
	require.NoError(t, err)
	tokenB, err := s.Issue(b, "ana", 1)
	require.NoError(t, err)

	_, seatA, err := s.Redeem(a, tokenA)
	require.NoError(t, err)
	assert.Equal(t, 0, seatA)

	_, seatB, err := s.Redeem(b, tokenB)
	require.NoError(t, err)
	assert.Equal(t, 1, seatB)
}

func TestRedeemRejectsGarbage(t *testing.T) {
	s := NewStore()
	session := uuid.New()

	for _, token := range []string{"", "not-base64!!", "c2hvcnQ", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		_, _, err := s.Redeem(session, token)
		assert.ErrorIs(t, err, ErrInvalid, "token %q", token)
	}
}

func TestDropSession(t *testing.T) {
	s := NewStore()
	session := uuid.New()
	other := uuid.New()

	doomed, err := s.Issue(session, "ana", 0)
	require.NoError(t, err)
	kept, err := s.Issue(other, "ben", 1)
	require.NoError(t, err)

	s.DropSession(session)

	_, _, err = s.Redeem(session, doomed)
	assert.ErrorIs(t, err, ErrInvalid)
	_, _, err = s.Redeem(other, kept)
	assert.NoError(t, err)
}

func TestPurgeCountsExpired(t *testing.T) {
	s, cur := storeAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	session := uuid.New()

	_, err := s.Issue(session, "ana", 0)
	require.NoError(t, err)
	_, err = s.Issue(session, "ben", 1)
	require.NoError(t, err)

	*cur = cur.Add(TTL / 2)
	fresh, err := s.Issue(session, "cam", 2)
	require.NoError(t, err)

	*cur = cur.Add(TTL/2 + time.Second)
	assert.Equal(t, 2, s.Purge())

	_, _, err = s.Redeem(session, fresh)
	assert.NoError(t, err)
}
