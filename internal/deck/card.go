package deck

import (
	"fmt"
	"strings"
)

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	default:
		return "?"
	}
}

// Letter returns the single-letter code of a suit (s, h, d, c)
func (s Suit) Letter() string {
	switch s {
	case Spades:
		return "s"
	case Hearts:
		return "h"
	case Diamonds:
		return "d"
	case Clubs:
		return "c"
	default:
		return "?"
	}
}

// IsRed returns true if the suit is red (Hearts or Diamonds)
func (s Suit) IsRed() bool {
	return s == Hearts || s == Diamonds
}

// Rank represents a card rank. The Tonk deck has no 8, 9 or 10; the
// run order is A,2,3,4,5,6,7,J,Q,K with Ace always low.
type Rank int

const (
	Ace Rank = iota
	Two
	Three
	Four
	Five
	Six
	Seven
	Jack
	Queen
	King
)

// String returns the string representation of a rank
func (r Rank) String() string {
	switch r {
	case Ace:
		return "A"
	case Two:
		return "2"
	case Three:
		return "3"
	case Four:
		return "4"
	case Five:
		return "5"
	case Six:
		return "6"
	case Seven:
		return "7"
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	default:
		return "?"
	}
}

// Points returns the scoring value of the rank: aces count 1, number
// cards count face value, court cards count 10.
func (r Rank) Points() int {
	switch r {
	case Ace:
		return 1
	case Jack, Queen, King:
		return 10
	default:
		return int(r) + 1
	}
}

// Order returns the position of the rank in the closed run order.
// Runs never wrap past King.
func (r Rank) Order() int {
	return int(r)
}

// Card represents a playing card
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

// NewCard creates a new card
func NewCard(rank Rank, suit Suit) Card {
	return Card{Rank: rank, Suit: suit}
}

// String returns the string representation of a card (e.g., "A♠")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Code returns the compact two-character code of a card (e.g., "As")
func (c Card) Code() string {
	return c.Rank.String() + c.Suit.Letter()
}

// Points returns the scoring value of the card
func (c Card) Points() int {
	return c.Rank.Points()
}

// ParseCard parses a two-character card code like "As" or "7d".
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card code %q", s)
	}

	var rank Rank
	switch strings.ToUpper(s[:1]) {
	case "A":
		rank = Ace
	case "2":
		rank = Two
	case "3":
		rank = Three
	case "4":
		rank = Four
	case "5":
		rank = Five
	case "6":
		rank = Six
	case "7":
		rank = Seven
	case "J":
		rank = Jack
	case "Q":
		rank = Queen
	case "K":
		rank = King
	default:
		return Card{}, fmt.Errorf("invalid rank in card code %q", s)
	}

	var suit Suit
	switch strings.ToLower(s[1:]) {
	case "s":
		suit = Spades
	case "h":
		suit = Hearts
	case "d":
		suit = Diamonds
	case "c":
		suit = Clubs
	default:
		return Card{}, fmt.Errorf("invalid suit in card code %q", s)
	}

	return Card{Rank: rank, Suit: suit}, nil
}

// ParseCards parses a concatenated string of card codes (e.g., "AsKh7d").
func ParseCards(s string) ([]Card, error) {
	runes := []rune(s)
	if len(runes)%2 != 0 {
		return nil, fmt.Errorf("invalid cards string %q", s)
	}

	cards := make([]Card, 0, len(runes)/2)
	for i := 0; i < len(runes); i += 2 {
		card, err := ParseCard(string(runes[i : i+2]))
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// MustParseCards is ParseCards that panics on error, for test fixtures.
func MustParseCards(s string) []Card {
	cards, err := ParseCards(s)
	if err != nil {
		panic(err)
	}
	return cards
}
