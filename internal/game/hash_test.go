package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashEqualStates(t *testing.T) {
	a := buildState(10, "KsKhKd4c5c", "2d3d4dJcQc")
	b := buildState(10, "KsKhKd4c5c", "2d3d4dJcQc")
	require.Equal(t, a.ComputeHash(), b.ComputeHash())
}

func TestHashDiffersOnMutation(t *testing.T) {
	a := buildState(10, "KsKhKd4c5c", "2d3d4dJcQc")

	b, err := Apply(a, Action{Kind: ActionDrawStock})
	require.NoError(t, err)
	require.NotEqual(t, a.Hash, b.Hash)

	c := a.Clone()
	c.Turn = 1
	require.NotEqual(t, a.ComputeHash(), c.ComputeHash())
}

func TestHashIgnoresConnectionIdentity(t *testing.T) {
	a := buildState(10, "KsKhKd4c5c", "2d3d4dJcQc")
	b := a.Clone()
	b.Seats[0].ConnID = "conn-after-reconnect"
	b.Seats[0].Chips = 999

	require.Equal(t, a.ComputeHash(), b.ComputeHash(),
		"a reconnect must not present as a state desync")
}

func TestCloneIsDeep(t *testing.T) {
	a := buildState(10, "KsKhKd4c5c", "2d3d4dJcQc")
	b := a.Clone()

	b.Hands[0][0] = b.Hands[1][0]
	b.Seats[0].HitCount = 7
	b.Stock = b.Stock[:1]

	require.NotEqual(t, a.Hands[0][0], b.Hands[0][0])
	require.Zero(t, a.Seats[0].HitCount)
	require.NotEqual(t, len(a.Stock), len(b.Stock))
}
