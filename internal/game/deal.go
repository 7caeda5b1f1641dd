package game

import (
	rand "math/rand/v2"

	"github.com/freeski070605/reemteam/internal/deck"
)

// Deal shuffles a fresh deck with the injected RNG and deals five cards
// to each seat in round-robin order. The RNG is the only source of
// randomness in the engine, so a fixed seed reproduces the deal
// exactly. A seat dealt exactly 50 points wins outright before anyone
// acts.
func Deal(seats []Seat, stake int, rng *rand.Rand) HandState {
	cards := deck.Shuffled(rng)

	s := HandState{
		Seats:    append([]Seat(nil), seats...),
		Hands:    make([][]deck.Card, len(seats)),
		Spreads:  make([][]Spread, len(seats)),
		Stake:    stake,
		Phase:    PhaseInProgress,
		Turn:     0,
		HasDrawn: false,
	}

	for i := range s.Seats {
		s.Seats[i].HitPenaltyRounds = 0
		s.Seats[i].HitCount = 0
		s.Hands[i] = make([]deck.Card, 0, HandSize)
		s.Spreads[i] = []Spread{}
	}

	// Round-robin off the top of the shuffled deck.
	for round := 0; round < HandSize; round++ {
		for i := range s.Seats {
			top := cards[len(cards)-1]
			cards = cards[:len(cards)-1]
			s.Hands[i] = append(s.Hands[i], top)
		}
	}
	s.Stock = cards
	s.Discard = []deck.Card{}

	// Immediate 50 is only ever detected at deal time.
	var dealt50 []int
	for i := range s.Seats {
		if s.Score(i) == 50 {
			dealt50 = append(dealt50, i)
		}
	}
	if len(dealt50) > 0 {
		s.terminate(WinImmediate50, dealt50, -1)
	}

	s.Hash = s.ComputeHash()
	return s
}
