package store

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:", log.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	u, err := st.EnsureUser(ctx, "alice", 500)
	require.NoError(t, err)
	require.EqualValues(t, 500, u.Chips)

	// a second ensure must not reset the balance
	_, err = st.DB().ExecContext(ctx, `UPDATE users SET chips = 42 WHERE username = 'alice'`)
	require.NoError(t, err)

	u, err = st.EnsureUser(ctx, "alice", 500)
	require.NoError(t, err)
	require.EqualValues(t, 42, u.Chips)
}

func TestGetUserNotFound(t *testing.T) {
	st := testStore(t)
	_, err := st.GetUser(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordResult(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	_, err := st.EnsureUser(ctx, "alice", 100)
	require.NoError(t, err)

	require.NoError(t, st.RecordResult(ctx, "alice", true))
	require.NoError(t, st.RecordResult(ctx, "alice", false))

	u, err := st.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 2, u.HandsPlayed)
	require.EqualValues(t, 1, u.HandsWon)
}

func TestSaveTableBumpsVersion(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertPresetTable(ctx, "stake-10-1", 10))

	rec, err := st.GetTable(ctx, "stake-10-1")
	require.NoError(t, err)
	require.True(t, rec.Preset)
	require.EqualValues(t, 0, rec.Version)

	rec.Status = "in_progress"
	require.NoError(t, st.SaveTable(ctx, rec))
	require.EqualValues(t, 1, rec.Version)

	fresh, err := st.GetTable(ctx, "stake-10-1")
	require.NoError(t, err)
	require.Equal(t, "in_progress", fresh.Status)
	require.EqualValues(t, 1, fresh.Version)
}

func TestSaveTableRetriesStaleVersion(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertPresetTable(ctx, "stake-10-1", 10))

	// two readers grab version 0; both writes must land, the second via
	// the refresh-and-retry path
	a, err := st.GetTable(ctx, "stake-10-1")
	require.NoError(t, err)
	b, err := st.GetTable(ctx, "stake-10-1")
	require.NoError(t, err)

	a.Status = "in_progress"
	require.NoError(t, st.SaveTable(ctx, a))

	b.Status = "waiting"
	require.NoError(t, st.SaveTable(ctx, b))
	require.EqualValues(t, 2, b.Version)

	fresh, err := st.GetTable(ctx, "stake-10-1")
	require.NoError(t, err)
	require.Equal(t, "waiting", fresh.Status)
}

func TestDeleteTableSparesPresets(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertPresetTable(ctx, "preset", 10))
	require.NoError(t, st.InsertTable(ctx, "dynamic", 10))

	require.NoError(t, st.DeleteTable(ctx, "preset"))
	require.NoError(t, st.DeleteTable(ctx, "dynamic"))

	_, err := st.GetTable(ctx, "preset")
	require.NoError(t, err)
	_, err = st.GetTable(ctx, "dynamic")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHandStateRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertPresetTable(ctx, "t1", 10))

	var out map[string]any
	err := st.GetHandState(ctx, "t1", &out)
	require.ErrorIs(t, err, ErrNotFound, "fresh table has no hand snapshot")

	in := map[string]any{"turn": float64(2), "phase": "in_progress"}
	require.NoError(t, st.SaveHandState(ctx, "t1", in))
	require.NoError(t, st.GetHandState(ctx, "t1", &out))
	require.Equal(t, in, out)

	err = st.GetHandState(ctx, "missing", &out)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveGameAndCount(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	now := time.Now()
	err := st.SaveGame(ctx, &GameRecord{
		ID:          "g1",
		TableID:     "t1",
		Stake:       10,
		Seats:       []string{"alice", "bob"},
		Winners:     []int{0},
		WinType:     "REEM",
		RoundScores: []int{0, 23},
		FinalState:  map[string]any{"phase": "over"},
		StartedAt:   now.Add(-time.Minute),
		EndedAt:     now,
	})
	require.NoError(t, err)

	n, err := st.CountGames(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = st.CountGames(ctx, "t2")
	require.NoError(t, err)
	require.Zero(t, n)
}
