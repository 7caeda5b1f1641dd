package server

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"github.com/freeski070605/reemteam/internal/store"
)

func newServiceHarness(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	logger := log.New(io.Discard)

	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := DefaultServerConfig()
	cfg.Game.Stakes = []int{10}
	cfg.Game.TablesPerStake = 1

	svc := NewService(cfg, st, quartz.NewMock(t), logger, NewMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = svc.Start(ctx) }()

	require.Eventually(t, func() bool {
		return svc.table("stake-10-1") != nil
	}, time.Second, 5*time.Millisecond, "preset tables must exist after boot")

	return svc, st
}

func TestServiceBootCreatesPresetTables(t *testing.T) {
	svc, st := newServiceHarness(t)

	views := svc.List(10)
	require.Len(t, views, 1)
	require.Equal(t, "stake-10-1", views[0].ID)
	require.True(t, views[0].Preset)
	require.Zero(t, views[0].Seats)

	rec, err := st.GetTable(context.Background(), "stake-10-1")
	require.NoError(t, err)
	require.True(t, rec.Preset)
}

func TestServiceDynamicTableLifecycle(t *testing.T) {
	svc, st := newServiceHarness(t)

	view, err := svc.CreateTable(10)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(view.ID, "stake-10-dyn-"))
	require.Len(t, svc.List(10), 2)

	// empty dynamic tables are reaped, presets are not
	require.NoError(t, svc.RemoveIfEmpty(view.ID))
	require.NoError(t, svc.RemoveIfEmpty("stake-10-1"))
	require.Len(t, svc.List(10), 1)

	_, err = st.GetTable(context.Background(), view.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRosterChangeCallbackDoesNotStallActor(t *testing.T) {
	svc, st := newServiceHarness(t)
	ctx := context.Background()

	_, err := st.EnsureUser(ctx, "alice", 500)
	require.NoError(t, err)
	require.NoError(t, svc.SeatPlayer("stake-10-1", "alice"))

	tbl := svc.table("stake-10-1")
	tbl.LeaveRequest("alice")

	// leave() raises the roster-change callback on the actor's own
	// goroutine; the actor must still come back for the next message
	snap := make(chan Snapshot, 1)
	go func() { snap <- tbl.Snapshot() }()
	select {
	case s := <-snap:
		require.Empty(t, s.Seats)
	case <-time.After(3 * time.Second):
		t.Fatal("table actor stopped processing after a leave")
	}
}

func TestServiceSweepReapsOrphanRows(t *testing.T) {
	svc, st := newServiceHarness(t)
	ctx := context.Background()

	// a dynamic row left behind by a previous run has no live actor
	require.NoError(t, st.InsertTable(ctx, "stake-10-dyn-orphan", 10))

	svc.sweepStaleTables(ctx)

	_, err := st.GetTable(ctx, "stake-10-dyn-orphan")
	require.ErrorIs(t, err, store.ErrNotFound)

	// preset rows with live actors are untouched
	_, err = st.GetTable(ctx, "stake-10-1")
	require.NoError(t, err)
}

func TestServiceSeatPlayerWithoutConnection(t *testing.T) {
	svc, st := newServiceHarness(t)

	_, err := st.EnsureUser(context.Background(), "alice", 500)
	require.NoError(t, err)

	// matchmaker can seat a queued player whose socket dropped; the
	// seat waits for a reconnect
	require.NoError(t, svc.SeatPlayer("stake-10-1", "alice"))

	views := svc.List(10)
	require.Equal(t, 1, views[0].Humans)
}

func TestServiceValidateState(t *testing.T) {
	svc, _ := newServiceHarness(t)

	verdict, _, err := svc.ValidateState("stake-10-1", "whatever")
	require.NoError(t, err)
	require.Equal(t, "no_hand", verdict)

	_, _, err = svc.ValidateState("nope", "whatever")
	require.Error(t, err)
}
