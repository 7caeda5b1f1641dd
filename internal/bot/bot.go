// Package bot selects actions for non-human seats. The policy is fixed
// and deterministic for a given state so that bot play is identical
// across runs and replays.
package bot

import (
	"errors"

	"github.com/freeski070605/reemteam/internal/deck"
	"github.com/freeski070605/reemteam/internal/game"
)

// ErrNoLegalDraw is returned when the acting seat can draw from neither
// pile. It should be unreachable in ordinary play.
var ErrNoLegalDraw = errors.New("bot: no legal draw available")

// dropThreshold is the hand score at or below which the bot declares a
// drop.
const dropThreshold = 5

// Decide returns the single action the bot plays from the given state.
// The caller guarantees the acting seat is a bot. Decide is stateless:
// the same state always yields the same action.
func Decide(s game.HandState) (game.Action, error) {
	if s.Phase != game.PhaseInProgress {
		return game.Action{}, game.ErrHandOver
	}

	if !s.HasDrawn {
		return decideDraw(s)
	}

	// Lay a spread when the hand holds one; the engine converts the
	// second spread of the hand into a REEM.
	if idxs, ok := game.FindSpread(s.Hands[s.Turn]); ok {
		cards := make([]deck.Card, 0, len(idxs))
		for _, i := range idxs {
			cards = append(cards, s.Hands[s.Turn][i])
		}
		return game.Action{Kind: game.ActionSpread, Cards: cards}, nil
	}

	// First hit found over own hand x every spread on the table.
	if a, ok := findHit(s); ok {
		return a, nil
	}

	if s.Score(s.Turn) <= dropThreshold && s.Seats[s.Turn].HitPenaltyRounds == 0 {
		return game.Action{Kind: game.ActionDrop}, nil
	}

	return discardHighest(s), nil
}

// decideDraw prefers the discard pile only when its top card would
// extend the bot's own first spread; everything else draws blind from
// the stock.
func decideDraw(s game.HandState) (game.Action, error) {
	if len(s.Discard) > 0 && len(s.Spreads[s.Turn]) > 0 {
		top := s.Discard[len(s.Discard)-1]
		if game.CanExtendSpread(top, s.Spreads[s.Turn][0]) {
			return game.Action{Kind: game.ActionDrawDiscard}, nil
		}
	}
	if len(s.Stock) > 0 {
		return game.Action{Kind: game.ActionDrawStock}, nil
	}
	if len(s.Discard) > 0 {
		return game.Action{Kind: game.ActionDrawDiscard}, nil
	}
	return game.Action{}, ErrNoLegalDraw
}

func findHit(s game.HandState) (game.Action, bool) {
	hand := s.Hands[s.Turn]
	for cardIdx, card := range hand {
		for seat := range s.Seats {
			for spreadIdx, spread := range s.Spreads[seat] {
				if game.CanExtendSpread(card, spread) {
					return game.Action{
						Kind:        game.ActionHit,
						CardIndex:   cardIdx,
						TargetSeat:  seat,
						SpreadIndex: spreadIdx,
					}, true
				}
			}
		}
	}
	return game.Action{}, false
}

func discardHighest(s game.HandState) game.Action {
	hand := s.Hands[s.Turn]
	best := 0
	for i, c := range hand {
		if c.Points() > hand[best].Points() {
			best = i
		}
	}
	return game.Action{Kind: game.ActionDiscard, CardIndex: best}
}
