// internal/deck/deck.go
package deck

import (
	"fmt"
	"math/rand"
)

// Suit is one of the four suit symbols of the 32-card deck.
type Suit string

const (
	Hearts   Suit = "H"
	Diamonds Suit = "D"
	Clubs    Suit = "C"
	Spades   Suit = "S"
)

// Suits lists every suit in a fixed order.
var Suits = []Suit{Hearts, Diamonds, Clubs, Spades}

// Rank is one of the eight rank values (seven through ace). Ordering within a
// suit is strictly by the numeric value: 7 < 8 < 9 < 10 < J < Q < K < A.
type Rank int

const (
	Seven Rank = 7
	Eight Rank = 8
	Nine  Rank = 9
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

// Ranks lists every rank in ascending order.
var Ranks = []Rank{Seven, Eight, Nine, Ten, Jack, Queen, King, Ace}

var rankLabels = map[Rank]string{
	Seven: "7", Eight: "8", Nine: "9", Ten: "10",
	Jack: "J", Queen: "Q", King: "K", Ace: "A",
}

var rankByLabel = map[string]Rank{
	"7": Seven, "8": Eight, "9": Nine, "10": Ten,
	"J": Jack, "Q": Queen, "K": King, "A": Ace,
}

// String returns the short label for a rank ("7".."10", "J", "Q", "K", "A").
func (r Rank) String() string { return rankLabels[r] }

// Card is an immutable card identity. Two cards are equal iff their suit and
// rank are equal, so Card is directly usable as a map key and with ==.
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// String renders a card as e.g. "AH" or "10S".
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Parse converts a short card label back to a Card. The inverse of String.
func Parse(s string) (Card, error) {
	if len(s) < 2 {
		return Card{}, fmt.Errorf("malformed card %q", s)
	}
	suit := Suit(s[len(s)-1:])
	switch suit {
	case Hearts, Diamonds, Clubs, Spades:
	default:
		return Card{}, fmt.Errorf("unknown suit in card %q", s)
	}
	rank, ok := rankByLabel[s[:len(s)-1]]
	if !ok {
		return Card{}, fmt.Errorf("unknown rank in card %q", s)
	}
	return Card{Suit: suit, Rank: rank}, nil
}

// Deck is an ordered pile of cards.
type Deck []Card

// New builds the full 32-card deck in deterministic order.
func New() Deck {
	d := make(Deck, 0, 32)
	for _, s := range Suits {
		for _, r := range Ranks {
			d = append(d, Card{Suit: s, Rank: r})
		}
	}
	return d
}

// NewShuffled builds the full deck and shuffles it with the given source.
func NewShuffled(r *rand.Rand) Deck {
	d := New()
	d.Shuffle(r)
	return d
}

// Shuffle permutes the deck in place.
func (d Deck) Shuffle(r *rand.Rand) {
	r.Shuffle(len(d), func(i, j int) {
		d[i], d[j] = d[j], d[i]
	})
}

// Deal splits the deck into `hands` piles of `each` cards. It panics if the
// deck is too small; callers always deal a fresh 32-card deck 8 per seat.
func (d Deck) Deal(hands, each int) [][]Card {
	if len(d) < hands*each {
		panic(fmt.Sprintf("deck of %d cannot deal %d x %d", len(d), hands, each))
	}
	out := make([][]Card, hands)
	for i := 0; i < hands; i++ {
		h := make([]Card, each)
		copy(h, d[i*each:(i+1)*each])
		out[i] = h
	}
	return out
}
