package game

import "github.com/freeski070605/reemteam/internal/deck"

// ActionKind identifies a player action.
type ActionKind string

const (
	ActionDrawStock         ActionKind = "DRAW_STOCK"
	ActionDrawDiscard       ActionKind = "DRAW_DISCARD"
	ActionDiscard           ActionKind = "DISCARD"
	ActionSpread            ActionKind = "SPREAD"
	ActionHit               ActionKind = "HIT"
	ActionDrop              ActionKind = "DROP"
	ActionDeclareSpecialWin ActionKind = "DECLARE_SPECIAL_WIN"
)

// Action is a single move by the acting seat. Only the fields relevant
// to the kind are read.
type Action struct {
	Kind ActionKind `json:"kind"`

	// CardIndex is the index into the acting hand for DISCARD and HIT.
	CardIndex int `json:"cardIndex,omitempty"`

	// Cards are the cards being laid for SPREAD.
	Cards []deck.Card `json:"cards,omitempty"`

	// TargetSeat and SpreadIndex locate the spread being extended by HIT.
	TargetSeat  int `json:"targetSeat,omitempty"`
	SpreadIndex int `json:"spreadIndex,omitempty"`
}

func (a Action) String() string {
	return string(a.Kind)
}
