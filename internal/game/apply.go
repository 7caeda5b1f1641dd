package game

import (
	"errors"
	"fmt"

	"github.com/freeski070605/reemteam/internal/deck"
)

var (
	ErrHandOver        = errors.New("hand is not in progress")
	ErrAlreadyDrawn    = errors.New("already drew this turn")
	ErrMustDrawFirst   = errors.New("must draw before this action")
	ErrStockEmpty      = errors.New("stock is empty")
	ErrDiscardEmpty    = errors.New("discard pile is empty")
	ErrBadCardIndex    = errors.New("card index out of range")
	ErrInvalidSpread   = errors.New("cards do not form a legal spread")
	ErrCardsNotInHand  = errors.New("cards are not all in hand")
	ErrInvalidHit      = errors.New("card cannot extend that spread")
	ErrBadSpreadIndex  = errors.New("spread index out of range")
	ErrDropBlocked     = errors.New("drop blocked by hit penalty")
	ErrNotSpecialScore = errors.New("score does not qualify for a special win")
	ErrUnknownAction   = errors.New("unknown action")
)

// Apply advances a hand by one action of the acting seat. It is a pure
// function: the input state is never mutated and the same inputs always
// produce the same output. The returned state carries a freshly
// computed hash.
func Apply(s HandState, a Action) (HandState, error) {
	if s.Phase != PhaseInProgress {
		return s, ErrHandOver
	}

	next := s.Clone()

	var err error
	switch a.Kind {
	case ActionDrawStock:
		err = applyDrawStock(&next)
	case ActionDrawDiscard:
		err = applyDrawDiscard(&next)
	case ActionDiscard:
		err = applyDiscard(&next, a.CardIndex)
	case ActionSpread:
		err = applySpread(&next, a)
	case ActionHit:
		err = applyHit(&next, a)
	case ActionDrop:
		err = applyDrop(&next)
	case ActionDeclareSpecialWin:
		err = applySpecialWin(&next)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
	if err != nil {
		return s, err
	}

	next.Hash = next.ComputeHash()
	return next, nil
}

func applyDrawStock(s *HandState) error {
	if s.HasDrawn {
		return ErrAlreadyDrawn
	}
	if len(s.Stock) == 0 {
		return ErrStockEmpty
	}
	top := s.Stock[len(s.Stock)-1]
	s.Stock = s.Stock[:len(s.Stock)-1]
	s.Hands[s.Turn] = append(s.Hands[s.Turn], top)
	s.HasDrawn = true
	return nil
}

func applyDrawDiscard(s *HandState) error {
	if s.HasDrawn {
		return ErrAlreadyDrawn
	}
	if len(s.Discard) == 0 {
		return ErrDiscardEmpty
	}
	top := s.Discard[len(s.Discard)-1]
	s.Discard = s.Discard[:len(s.Discard)-1]
	s.Hands[s.Turn] = append(s.Hands[s.Turn], top)
	s.HasDrawn = true
	return nil
}

func applyDiscard(s *HandState, idx int) error {
	if !s.HasDrawn {
		return ErrMustDrawFirst
	}
	hand := s.Hands[s.Turn]
	if len(hand) == 0 {
		return ErrBadCardIndex
	}
	if idx < 0 || idx >= len(hand) {
		return ErrBadCardIndex
	}

	card := hand[idx]
	s.Hands[s.Turn] = append(append([]deck.Card(nil), hand[:idx]...), hand[idx+1:]...)
	s.Discard = append(s.Discard, card)

	// Terminal checks come before the turn advances.
	if len(s.Hands[s.Turn]) == 0 {
		s.terminate(WinRegular, []int{s.Turn}, -1)
		return nil
	}
	if len(s.Stock) == 0 {
		s.terminate(WinStockEmpty, s.minScoreSeats(), -1)
		return nil
	}

	s.advanceTurn()
	return nil
}

func applySpread(s *HandState, a Action) error {
	if !s.HasDrawn {
		return ErrMustDrawFirst
	}
	if !ValidSpread(a.Cards) {
		return ErrInvalidSpread
	}

	remaining, ok := removeCards(s.Hands[s.Turn], a.Cards)
	if !ok {
		return ErrCardsNotInHand
	}
	s.Hands[s.Turn] = remaining
	s.Spreads[s.Turn] = append(s.Spreads[s.Turn], append(Spread(nil), a.Cards...))

	// Laying a second spread wins the hand outright.
	if len(s.Spreads[s.Turn]) >= 2 {
		s.terminate(WinReem, []int{s.Turn}, -1)
	}
	return nil
}

func applyHit(s *HandState, a Action) error {
	if !s.HasDrawn {
		return ErrMustDrawFirst
	}
	hand := s.Hands[s.Turn]
	if a.CardIndex < 0 || a.CardIndex >= len(hand) {
		return ErrBadCardIndex
	}
	if a.TargetSeat < 0 || a.TargetSeat >= len(s.Seats) {
		return ErrBadSpreadIndex
	}
	if a.SpreadIndex < 0 || a.SpreadIndex >= len(s.Spreads[a.TargetSeat]) {
		return ErrBadSpreadIndex
	}

	card := hand[a.CardIndex]
	target := s.Spreads[a.TargetSeat][a.SpreadIndex]
	if !CanExtendSpread(card, target) {
		return ErrInvalidHit
	}

	s.Hands[s.Turn] = append(append([]deck.Card(nil), hand[:a.CardIndex]...), hand[a.CardIndex+1:]...)
	s.Spreads[a.TargetSeat][a.SpreadIndex] = append(target, card)

	// The hit seat is barred from dropping: two rounds on the first
	// hit, one more on each subsequent hit.
	hitSeat := &s.Seats[a.TargetSeat]
	hitSeat.HitCount++
	if hitSeat.HitCount == 1 {
		hitSeat.HitPenaltyRounds = 2
	} else {
		hitSeat.HitPenaltyRounds = 1
	}

	s.advanceTurn()
	return nil
}

func applyDrop(s *HandState) error {
	if s.Seats[s.Turn].HitPenaltyRounds > 0 {
		return ErrDropBlocked
	}

	winners := s.minScoreSeats()
	winType := WinDrop
	dropperScore := s.Score(s.Turn)
	minScore := s.Score(winners[0])
	if dropperScore > minScore {
		winType = WinDropCaught
	}
	s.terminate(winType, winners, s.Turn)
	return nil
}

func applySpecialWin(s *HandState) error {
	score := s.Score(s.Turn)
	if score != 41 && score > 10 {
		return fmt.Errorf("%w: score %d", ErrNotSpecialScore, score)
	}
	s.terminate(WinSpecial, []int{s.Turn}, -1)
	return nil
}

// Forfeit terminates a hand in favour of the sole remaining seat, used
// when every other human has left mid-hand.
func Forfeit(s HandState, winner int) HandState {
	next := s.Clone()
	next.terminate(WinForfeit, []int{winner}, -1)
	next.Hash = next.ComputeHash()
	return next
}

// advanceTurn passes the turn to the next seat and ticks down that
// seat's hit penalty.
func (s *HandState) advanceTurn() {
	s.Turn = (s.Turn + 1) % len(s.Seats)
	s.HasDrawn = false
	if s.Seats[s.Turn].HitPenaltyRounds > 0 {
		s.Seats[s.Turn].HitPenaltyRounds--
	}
}

// removeCards returns hand minus cards, or false if any card is absent.
func removeCards(hand []deck.Card, cards []deck.Card) ([]deck.Card, bool) {
	remaining := append([]deck.Card(nil), hand...)
	for _, c := range cards {
		found := -1
		for i, h := range remaining {
			if h == c {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		remaining = append(remaining[:found], remaining[found+1:]...)
	}
	return remaining, true
}
