// Package resume issues and redeems the single-use tokens that let a
// disconnected participant reclaim their seat. Tokens are 32 bytes of
// crypto/rand entropy, handed to the client base64url-encoded and stored
// server-side only as a BLAKE2b-256 digest keyed by session and identity.
package resume

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// TTL is how long an issued token stays redeemable. Reconnect-scale, not
// session-scale: a fresh token is issued on every successful reconnect.
const TTL = 5 * time.Minute

const tokenBytes = 32

// ErrInvalid covers every redemption failure, replay of a consumed token
// included. The client cannot distinguish the causes and should not.
var ErrInvalid = errors.New("resume: token invalid or expired")

type record struct {
	digest  [blake2b.Size256]byte
	session uuid.UUID
	name    string
	seat    int
	expires time.Time
}

// Store holds issued tokens in memory. Entries disappear on redemption,
// expiry sweep, or session teardown.
type Store struct {
	mu      sync.Mutex
	records map[[blake2b.Size256]byte]*record
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		records: make(map[[blake2b.Size256]byte]*record),
		now:     time.Now,
	}
}

// Issue mints a token binding (session, name, seat). Any previous token for
// the same binding is invalidated so at most one token is live per identity.
func (s *Store) Issue(session uuid.UUID, name string, seat int) (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	digest := blake2b.Sum256(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range s.records {
		if rec.session == session && rec.name == name {
			delete(s.records, key)
		}
	}
	s.records[digest] = &record{
		digest:  digest,
		session: session,
		name:    name,
		seat:    seat,
		expires: s.now().Add(TTL),
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Redeem consumes a token. On success it returns the bound identity and seat
// and the token is dead; a second attempt with the same token fails, as does
// presenting it against a different session.
func (s *Store) Redeem(session uuid.UUID, token string) (name string, seat int, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != tokenBytes {
		return "", -1, ErrInvalid
	}
	digest := blake2b.Sum256(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[digest]
	if !ok || subtle.ConstantTimeCompare(rec.digest[:], digest[:]) != 1 {
		return "", -1, ErrInvalid
	}
	if s.now().After(rec.expires) {
		delete(s.records, digest)
		return "", -1, ErrInvalid
	}
	if rec.session != session {
		return "", -1, ErrInvalid
	}
	delete(s.records, digest)
	return rec.name, rec.seat, nil
}

// DropSession invalidates every outstanding token for a destroyed session.
func (s *Store) DropSession(session uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range s.records {
		if rec.session == session {
			delete(s.records, key)
		}
	}
}

// Purge removes expired entries and reports how many were dropped.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for key, rec := range s.records {
		if now.After(rec.expires) {
			delete(s.records, key)
			n++
		}
	}
	return n
}

// RunPurger sweeps expired tokens until the context is cancelled.
func (s *Store) RunPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Purge()
		}
	}
}
