// Package game implements the Tonk rules engine: a pure transition
// function over immutable hand states, plus dealing, scoring and the
// canonical state hash used for desync detection.
package game

import (
	"fmt"

	"github.com/freeski070605/reemteam/internal/deck"
)

// Phase is the lifecycle phase of a hand.
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseInProgress Phase = "in_progress"
	PhaseOver       Phase = "over"
)

// SeatStatus tracks whether the occupant of a seat is still playing.
type SeatStatus string

const (
	SeatActive       SeatStatus = "active"
	SeatDisconnected SeatStatus = "disconnected"
	SeatLeft         SeatStatus = "left"
)

// MaxSeats is the most seats a table can host.
const MaxSeats = 4

// HandSize is the number of cards dealt to each seat.
const HandSize = 5

// Seat is one position at the table for the duration of a hand.
type Seat struct {
	Username         string     `json:"username"`
	IsHuman          bool       `json:"isHuman"`
	ConnID           string     `json:"connId,omitempty"`
	Chips            int        `json:"chips"`
	Status           SeatStatus `json:"status"`
	HitPenaltyRounds int        `json:"hitPenaltyRounds"`
	HitCount         int        `json:"hitCount"`
}

// Spread is a laid-down set of three or more cards.
type Spread []deck.Card

// WinType classifies how a hand terminated.
type WinType string

const (
	WinReem        WinType = "REEM"
	WinImmediate50 WinType = "IMMEDIATE_50"
	WinSpecial     WinType = "SPECIAL_WIN"
	WinRegular     WinType = "REGULAR_WIN"
	WinStockEmpty  WinType = "STOCK_EMPTY"
	WinDrop        WinType = "DROP_WIN"
	WinDropCaught  WinType = "DROP_CAUGHT"
	WinForfeit     WinType = "FORFEIT_WIN"
)

// Outcome is attached to a state only once the hand has terminated.
// In-progress states carry no winner fields at all.
type Outcome struct {
	WinType     WinType `json:"winType"`
	Winners     []int   `json:"winners"`
	RoundScores []int   `json:"roundScores"`
	DroppedSeat int     `json:"droppedSeat"` // -1 unless a drop ended the hand
}

// HandState is the authoritative game state for one hand at one table.
// The session manager owns the stored copy; everything else sees values.
type HandState struct {
	Seats    []Seat      `json:"seats"`
	Hands    [][]deck.Card `json:"hands"`
	Spreads  [][]Spread  `json:"spreads"`
	Stock    []deck.Card `json:"stock"`
	Discard  []deck.Card `json:"discard"`
	Turn     int         `json:"turn"`
	HasDrawn bool        `json:"hasDrawn"`
	Stake    int         `json:"stake"`
	Phase    Phase       `json:"phase"`
	Outcome  *Outcome    `json:"outcome,omitempty"`
	Hash     string      `json:"stateHash"`
}

// Pot returns the pot for this hand.
func (s *HandState) Pot() int {
	return s.Stake * len(s.Seats)
}

// Score returns the points remaining in a seat's hand. Spread cards do
// not count.
func (s *HandState) Score(seat int) int {
	return deck.Points(s.Hands[seat])
}

// Scores returns the score of every seat in seat order.
func (s *HandState) Scores() []int {
	scores := make([]int, len(s.Seats))
	for i := range s.Seats {
		scores[i] = s.Score(i)
	}
	return scores
}

// Clone returns a deep copy. Apply always works on a clone so callers'
// states are never mutated.
func (s *HandState) Clone() HandState {
	out := *s

	out.Seats = append([]Seat(nil), s.Seats...)
	out.Stock = append([]deck.Card(nil), s.Stock...)
	out.Discard = append([]deck.Card(nil), s.Discard...)

	out.Hands = make([][]deck.Card, len(s.Hands))
	for i, h := range s.Hands {
		out.Hands[i] = append([]deck.Card(nil), h...)
	}

	out.Spreads = make([][]Spread, len(s.Spreads))
	for i, ss := range s.Spreads {
		out.Spreads[i] = make([]Spread, len(ss))
		for j, sp := range ss {
			out.Spreads[i][j] = append(Spread(nil), sp...)
		}
	}

	if s.Outcome != nil {
		o := *s.Outcome
		o.Winners = append([]int(nil), s.Outcome.Winners...)
		o.RoundScores = append([]int(nil), s.Outcome.RoundScores...)
		out.Outcome = &o
	}

	return out
}

// Validate checks the structural invariants that must hold for every
// reachable state: 40 distinct cards across all zones, turn in range,
// every spread legal.
func (s *HandState) Validate() error {
	if len(s.Seats) == 0 || len(s.Seats) > MaxSeats {
		return fmt.Errorf("invalid seat count %d", len(s.Seats))
	}
	if len(s.Hands) != len(s.Seats) || len(s.Spreads) != len(s.Seats) {
		return fmt.Errorf("hands/spreads not aligned with seats")
	}
	if s.Turn < 0 || s.Turn >= len(s.Seats) {
		return fmt.Errorf("turn %d out of range [0,%d)", s.Turn, len(s.Seats))
	}

	seen := make(map[deck.Card]bool, deck.Size)
	count := 0
	track := func(cards []deck.Card) error {
		for _, c := range cards {
			if seen[c] {
				return fmt.Errorf("card %s appears twice", c)
			}
			seen[c] = true
			count++
		}
		return nil
	}

	if err := track(s.Stock); err != nil {
		return err
	}
	if err := track(s.Discard); err != nil {
		return err
	}
	for _, h := range s.Hands {
		if err := track(h); err != nil {
			return err
		}
	}
	for i, seatSpreads := range s.Spreads {
		for j, sp := range seatSpreads {
			if !ValidSpread(sp) {
				return fmt.Errorf("seat %d spread %d is not a legal spread", i, j)
			}
			if err := track(sp); err != nil {
				return err
			}
		}
	}

	if count != deck.Size {
		return fmt.Errorf("card conservation violated: %d cards in play, want %d", count, deck.Size)
	}
	return nil
}

// terminate attaches an outcome and freezes the hand.
func (s *HandState) terminate(winType WinType, winners []int, droppedSeat int) {
	s.Phase = PhaseOver
	s.Outcome = &Outcome{
		WinType:     winType,
		Winners:     winners,
		RoundScores: s.Scores(),
		DroppedSeat: droppedSeat,
	}
}

// minScoreSeats returns every seat index holding the minimum score.
func (s *HandState) minScoreSeats() []int {
	scores := s.Scores()
	min := scores[0]
	for _, sc := range scores[1:] {
		if sc < min {
			min = sc
		}
	}
	var winners []int
	for i, sc := range scores {
		if sc == min {
			winners = append(winners, i)
		}
	}
	return winners
}
