package game

import (
	"errors"

	"github.com/freeski070605/reemteam/internal/deck"
)

var ErrBadSeat = errors.New("seat index out of range")

// Leave removes a seat from an in-progress hand. The leaver's hand and
// spread cards slide under the stock so the deck stays whole, and the
// remaining seats compact. If the leaver held the turn, the turn passes
// to the next seat exactly as a normal advance would.
func Leave(s HandState, seat int) (HandState, error) {
	if s.Phase != PhaseInProgress {
		return s, ErrHandOver
	}
	if seat < 0 || seat >= len(s.Seats) {
		return s, ErrBadSeat
	}
	if len(s.Seats) <= 1 {
		return s, ErrBadSeat
	}

	next := s.Clone()

	var returned []deck.Card
	returned = append(returned, next.Hands[seat]...)
	for _, sp := range next.Spreads[seat] {
		returned = append(returned, sp...)
	}
	next.Stock = append(returned, next.Stock...)

	next.Seats = append(next.Seats[:seat], next.Seats[seat+1:]...)
	next.Hands = append(next.Hands[:seat], next.Hands[seat+1:]...)
	next.Spreads = append(next.Spreads[:seat], next.Spreads[seat+1:]...)

	wasActing := s.Turn == seat
	if seat < next.Turn {
		next.Turn--
	}
	if wasActing {
		next.Turn %= len(next.Seats)
		next.HasDrawn = false
		if next.Seats[next.Turn].HitPenaltyRounds > 0 {
			next.Seats[next.Turn].HitPenaltyRounds--
		}
	}

	next.Hash = next.ComputeHash()
	return next, nil
}
