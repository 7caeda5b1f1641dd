package game

import "github.com/freeski070605/reemteam/internal/deck"

// HiddenCode marks a card whose identity is withheld from the viewer.
const HiddenCode = "hidden"

// CardView is a card as seen by a particular viewer. Hidden cards carry
// "hidden" for both fields.
type CardView struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

func visibleCard(c deck.Card) CardView {
	return CardView{Rank: c.Rank.String(), Suit: c.Suit.String()}
}

func hiddenCard() CardView {
	return CardView{Rank: HiddenCode, Suit: HiddenCode}
}

// SeatView is the per-seat slice of a redacted state.
type SeatView struct {
	Username         string     `json:"username"`
	IsHuman          bool       `json:"isHuman"`
	Status           SeatStatus `json:"status"`
	HitPenaltyRounds int        `json:"hitPenaltyRounds"`
	HitCount         int        `json:"hitCount"`
	HandCount        int        `json:"handCount"`
	Hand             []CardView `json:"hand"`
	Spreads          [][]CardView `json:"spreads"`
}

// View is what a single client is allowed to see of a hand: their own
// cards in full, opponents' hands as hidden placeholders, the stock
// hidden entirely, discards and spreads in the open. Once the hand is
// over, every hand is revealed.
type View struct {
	Seats    []SeatView `json:"seats"`
	StockLen int        `json:"stockCount"`
	Discard  []CardView `json:"discard"`
	Turn     int        `json:"turn"`
	HasDrawn bool       `json:"hasDrawn"`
	Stake    int        `json:"stake"`
	Pot      int        `json:"pot"`
	Phase    Phase      `json:"phase"`
	Outcome  *Outcome   `json:"outcome,omitempty"`
	Hash     string     `json:"stateHash"`
}

// ViewFor redacts the state for the named viewer. Spectators pass a
// username that owns no seat and see every hand hidden.
func (s *HandState) ViewFor(viewer string) View {
	over := s.Phase == PhaseOver

	view := View{
		Seats:    make([]SeatView, len(s.Seats)),
		StockLen: len(s.Stock),
		Discard:  make([]CardView, len(s.Discard)),
		Turn:     s.Turn,
		HasDrawn: s.HasDrawn,
		Stake:    s.Stake,
		Pot:      s.Pot(),
		Phase:    s.Phase,
		Hash:     s.Hash,
	}

	if s.Outcome != nil {
		o := *s.Outcome
		view.Outcome = &o
	}

	for i, c := range s.Discard {
		view.Discard[i] = visibleCard(c)
	}

	for i, seat := range s.Seats {
		sv := SeatView{
			Username:         seat.Username,
			IsHuman:          seat.IsHuman,
			Status:           seat.Status,
			HitPenaltyRounds: seat.HitPenaltyRounds,
			HitCount:         seat.HitCount,
			HandCount:        len(s.Hands[i]),
			Hand:             make([]CardView, len(s.Hands[i])),
			Spreads:          make([][]CardView, len(s.Spreads[i])),
		}

		show := over || seat.Username == viewer
		for j, c := range s.Hands[i] {
			if show {
				sv.Hand[j] = visibleCard(c)
			} else {
				sv.Hand[j] = hiddenCard()
			}
		}
		for j, sp := range s.Spreads[i] {
			sv.Spreads[j] = make([]CardView, len(sp))
			for k, c := range sp {
				sv.Spreads[j][k] = visibleCard(c)
			}
		}
		view.Seats[i] = sv
	}

	return view
}
