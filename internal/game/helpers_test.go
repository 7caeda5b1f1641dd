package game

import (
	"github.com/freeski070605/reemteam/internal/deck"
)

// buildState constructs an in-progress hand with the given hands (card
// code strings, e.g. "KsKhKd4c5c"). Every card not named ends up in the
// stock so card conservation always holds. Seat 0 acts first.
func buildState(stake int, handCodes ...string) HandState {
	used := make(map[deck.Card]bool)

	s := HandState{
		Stake:   stake,
		Phase:   PhaseInProgress,
		Seats:   make([]Seat, len(handCodes)),
		Hands:   make([][]deck.Card, len(handCodes)),
		Spreads: make([][]Spread, len(handCodes)),
		Discard: []deck.Card{},
	}

	for i, codes := range handCodes {
		s.Seats[i] = Seat{
			Username: seatName(i),
			IsHuman:  true,
			Status:   SeatActive,
		}
		s.Hands[i] = deck.MustParseCards(codes)
		s.Spreads[i] = []Spread{}
		for _, c := range s.Hands[i] {
			used[c] = true
		}
	}

	for _, c := range deck.New() {
		if !used[c] {
			s.Stock = append(s.Stock, c)
		}
	}

	s.Hash = s.ComputeHash()
	return s
}

func seatName(i int) string {
	names := []string{"alice", "bob", "carol", "dave"}
	return names[i%len(names)]
}

// moveStockToDiscard moves n cards from the stock to the discard pile,
// used to arrange draw-from-discard and stock-empty scenarios.
func moveStockToDiscard(s *HandState, n int) {
	for i := 0; i < n; i++ {
		top := s.Stock[len(s.Stock)-1]
		s.Stock = s.Stock[:len(s.Stock)-1]
		s.Discard = append(s.Discard, top)
	}
	s.Hash = s.ComputeHash()
}

// setStock replaces the stock with the named cards and pushes everything
// else onto the discard pile so conservation still holds.
func setStock(s *HandState, codes string) {
	keep := deck.MustParseCards(codes)
	inKeep := func(c deck.Card) bool {
		for _, k := range keep {
			if k == c {
				return true
			}
		}
		return false
	}
	var overflow []deck.Card
	for _, c := range s.Stock {
		if !inKeep(c) {
			overflow = append(overflow, c)
		}
	}
	s.Stock = keep
	s.Discard = append(s.Discard, overflow...)
	s.Hash = s.ComputeHash()
}
