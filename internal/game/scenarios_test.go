package game

import (
	"testing"

	"github.com/freeski070605/reemteam/internal/deck"
	"github.com/stretchr/testify/require"
)

// End-to-end hand scenarios played move by move.

func TestScenarioReemWin(t *testing.T) {
	s := buildState(10, "KsKhKd4c5c", "2d3d4dJcQc")
	setStock(&s, "2sJs3c") // top of stock is 3c
	require.NoError(t, s.Validate())

	s, err := Apply(s, Action{Kind: ActionDrawStock})
	require.NoError(t, err)
	require.Equal(t, deck.MustParseCards("3c")[0], s.Hands[0][len(s.Hands[0])-1])

	s, err = Apply(s, Action{Kind: ActionSpread, Cards: deck.MustParseCards("KsKhKd")})
	require.NoError(t, err)
	require.Equal(t, PhaseInProgress, s.Phase)

	s, err = Apply(s, Action{Kind: ActionSpread, Cards: deck.MustParseCards("3c4c5c")})
	require.NoError(t, err)

	require.Equal(t, PhaseOver, s.Phase)
	require.Equal(t, WinReem, s.Outcome.WinType)
	require.Equal(t, []int{0}, s.Outcome.Winners)
	require.Equal(t, 20, s.Pot())
	require.NoError(t, s.Validate())
}

func TestScenarioStockEmptyTie(t *testing.T) {
	// both seats hold 12 points; one card left in the stock
	s := buildState(5, "2h3h7h", "2d3d7d")
	setStock(&s, "2c")
	require.NoError(t, s.Validate())

	s, err := Apply(s, Action{Kind: ActionDrawStock})
	require.NoError(t, err)
	require.Empty(t, s.Stock)

	// throw the drawn card back
	s, err = Apply(s, Action{Kind: ActionDiscard, CardIndex: 3})
	require.NoError(t, err)

	require.Equal(t, PhaseOver, s.Phase)
	require.Equal(t, WinStockEmpty, s.Outcome.WinType)
	require.Equal(t, []int{0, 1}, s.Outcome.Winners, "tied minimum scores both win")
	require.Equal(t, []int{12, 12}, s.Outcome.RoundScores)
}

func TestScenarioDropCaught(t *testing.T) {
	// scores {6, 3, 4}; seat 0 drops and is caught by seat 1
	s := buildState(10, "2h4h", "3d", "4c")
	require.NoError(t, s.Validate())

	s, err := Apply(s, Action{Kind: ActionDrop})
	require.NoError(t, err)

	require.Equal(t, PhaseOver, s.Phase)
	require.Equal(t, WinDropCaught, s.Outcome.WinType)
	require.Equal(t, []int{1}, s.Outcome.Winners)
	require.Equal(t, 0, s.Outcome.DroppedSeat)
	require.Equal(t, []int{6, 3, 4}, s.Outcome.RoundScores)
}

func TestScenarioDropWin(t *testing.T) {
	// the dropper holds the minimum and wins
	s := buildState(10, "3d", "2h4h", "4c")
	s, err := Apply(s, Action{Kind: ActionDrop})
	require.NoError(t, err)

	require.Equal(t, WinDrop, s.Outcome.WinType)
	require.Equal(t, []int{0}, s.Outcome.Winners)
	require.Equal(t, 0, s.Outcome.DroppedSeat)
}

func TestScenarioSecondSpreadAlwaysReem(t *testing.T) {
	// a second spread ends the hand even when other moves remain
	s := buildState(10, "KsKhKdAh2h3h4s", "2d3d4dJcQc")
	s, err := Apply(s, Action{Kind: ActionDrawStock})
	require.NoError(t, err)

	s, err = Apply(s, Action{Kind: ActionSpread, Cards: deck.MustParseCards("KsKhKd")})
	require.NoError(t, err)
	s, err = Apply(s, Action{Kind: ActionSpread, Cards: deck.MustParseCards("Ah2h3h")})
	require.NoError(t, err)

	require.Equal(t, WinReem, s.Outcome.WinType)
	require.Equal(t, []int{0}, s.Outcome.Winners)
}
