package server

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/freeski070605/reemteam/internal/bot"
	"github.com/freeski070605/reemteam/internal/game"
	"github.com/freeski070605/reemteam/internal/gameid"
	"github.com/freeski070605/reemteam/internal/ledger"
	"github.com/freeski070605/reemteam/internal/randutil"
	"github.com/freeski070605/reemteam/internal/store"
)

// TableState is the lifecycle state of a table.
type TableState string

const (
	TableEmpty     TableState = "EMPTY"
	TableWaiting   TableState = "WAITING"
	TableCountdown TableState = "COUNTDOWN"
	TableInHand    TableState = "IN_HAND"
	TableSettling  TableState = "SETTLING"
)

const (
	// botStartCountdown runs before a hand that begins because a bot
	// filled the last needed seat.
	botStartCountdown = 2 * time.Second

	// graceInHand / graceIdle bound how long a disconnected seat is held.
	graceInHand = 20 * time.Second
	graceIdle   = 5 * time.Minute

	// transitionTTL cleans up transitions whose hand never ended.
	transitionTTL = 30 * time.Minute

	// settleTimeout bounds ledger and store work at hand end.
	settleTimeout = 5 * time.Second
)

// client is the outbound half of a connection, as the table sees it.
type client interface {
	SendEvent(event Event, payload interface{})
	ID() string
	UserID() string
}

// Transition tracks a queued human replacing a bot at the next hand
// boundary.
type Transition struct {
	ID        string
	Username  string
	Chips     int
	StartedAt time.Time
}

type spectator struct {
	username string
	willJoin bool
	chips    int
}

// tableDeps carries the services a table needs. Tests substitute mocks.
type tableDeps struct {
	ledger        *ledger.Ledger
	store         *store.Store
	clock         quartz.Clock
	logger        *log.Logger
	botDelay      time.Duration
	countdown     time.Duration
	startingChips int
	metrics       *Metrics
	onChange      func() // poked after roster changes; triggers the matchmaker
	seed          func() int64
	deal          func(seats []game.Seat, stake int, rng *rand.Rand) game.HandState
}

// Table is one actor: a mailbox goroutine owns every field below, and
// all access from other goroutines goes through post/call.
type Table struct {
	id     string
	stake  int
	preset bool
	deps   tableDeps
	logger *log.Logger

	mailbox chan func()

	state       TableState
	seats       []game.Seat
	hand        *game.HandState
	handID      string
	handStarted time.Time
	handStaked  int // seats that paid in at the deal; leavers' stakes stay in the pot
	ready       map[string]bool
	room        map[string]client
	spectators  map[string]*spectator
	transitions []*Transition
	graceTimers map[string]*quartz.Timer
	botTimer    *quartz.Timer
	countdown   *quartz.Timer
	version     int64
}

// NewTable builds an idle table actor. Run must be started before use.
func NewTable(id string, stake int, preset bool, deps tableDeps) *Table {
	if deps.seed == nil {
		deps.seed = func() int64 { return deps.clock.Now().UnixNano() }
	}
	if deps.deal == nil {
		deps.deal = game.Deal
	}
	return &Table{
		id:          id,
		stake:       stake,
		preset:      preset,
		deps:        deps,
		logger:      deps.logger.WithPrefix("table").With("table", id),
		mailbox:     make(chan func(), 64),
		state:       TableEmpty,
		ready:       make(map[string]bool),
		room:        make(map[string]client),
		spectators:  make(map[string]*spectator),
		graceTimers: make(map[string]*quartz.Timer),
	}
}

// Run processes the mailbox until ctx is done.
func (t *Table) Run(ctx context.Context) {
	for {
		select {
		case fn := <-t.mailbox:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// post queues work onto the actor without waiting.
func (t *Table) post(fn func()) {
	t.mailbox <- fn
}

// call runs fn on the actor and waits for its result.
func (t *Table) call(fn func() error) error {
	done := make(chan error, 1)
	t.mailbox <- func() { done <- fn() }
	return <-done
}

// ID returns the table id.
func (t *Table) ID() string { return t.id }

// Stake returns the table stake.
func (t *Table) Stake() int { return t.stake }

// Preset reports whether this is a boot-time preset table.
func (t *Table) Preset() bool { return t.preset }

// Snapshot describes the table for the matchmaker and lobby listings.
type Snapshot struct {
	ID                 string
	Stake              int
	Preset             bool
	State              TableState
	Seats              []game.Seat
	InHand             bool
	PendingTransitions int
}

// Snapshot returns a point-in-time copy of the roster.
func (t *Table) Snapshot() Snapshot {
	var snap Snapshot
	_ = t.call(func() error {
		snap = Snapshot{
			ID:                 t.id,
			Stake:              t.stake,
			Preset:             t.preset,
			State:              t.state,
			Seats:              append([]game.Seat(nil), t.seats...),
			InHand:             t.hand != nil && t.hand.Phase == game.PhaseInProgress,
			PendingTransitions: len(t.transitions),
		}
		return nil
	})
	return snap
}

// Join handles a join_table request: seat directly when no hand runs,
// otherwise spectate (with a transition when a bot can be replaced).
func (t *Table) Join(c client, chips int) error {
	return t.call(func() error {
		username := c.UserID()
		if t.seatIndex(username) >= 0 {
			return fmt.Errorf("%s is already seated", username)
		}

		if t.hand != nil && t.hand.Phase == game.PhaseInProgress {
			t.room[username] = c
			if t.botSeats() > len(t.transitions) {
				t.beginTransition(username, chips)
			} else {
				t.spectators[username] = &spectator{username: username, willJoin: true, chips: chips}
			}
			c.SendEvent(EventSpectatorMode, SpectatorModePayload{
				TableID:          t.id,
				State:            t.hand.ViewFor(username),
				WillJoinNextHand: true,
			})
			return nil
		}

		if len(t.seats) >= game.MaxSeats {
			return fmt.Errorf("table %s is full", t.id)
		}
		t.room[username] = c
		t.seatHuman(username, c.ID(), chips)
		return nil
	})
}

// Spectate adds a watcher who does not intend to play.
func (t *Table) Spectate(c client) {
	t.post(func() {
		username := c.UserID()
		t.room[username] = c
		if _, seated := t.indexOf(username); !seated {
			t.spectators[username] = &spectator{username: username}
		}
		var state *game.View
		if t.hand != nil {
			v := t.hand.ViewFor(username)
			state = &v
		}
		c.SendEvent(EventStateSync, StateSyncPayload{
			TableID: t.id,
			State:   state,
			Roster:  t.roster(),
			Status:  string(t.state),
		})
	})
}

// SeatFromQueue seats a queued player directly; used by the matchmaker
// between hands.
func (t *Table) SeatFromQueue(username string, c client, chips int) error {
	return t.call(func() error {
		if t.hand != nil && t.hand.Phase == game.PhaseInProgress {
			return fmt.Errorf("hand in progress on %s", t.id)
		}
		if len(t.seats) >= game.MaxSeats {
			return fmt.Errorf("table %s is full", t.id)
		}
		if t.seatIndex(username) >= 0 {
			return fmt.Errorf("%s is already seated", username)
		}
		connID := ""
		if c != nil {
			t.room[username] = c
			connID = c.ID()
		}
		t.seatHuman(username, connID, chips)
		return nil
	})
}

// BeginTransition parks a queued player as a spectator pending a bot
// eviction at hand end.
func (t *Table) BeginTransition(username string, c client, chips int) error {
	return t.call(func() error {
		if t.hand == nil || t.hand.Phase != game.PhaseInProgress {
			return fmt.Errorf("no hand in progress on %s", t.id)
		}
		if t.botSeats() <= len(t.transitions) {
			return fmt.Errorf("no bot available to replace on %s", t.id)
		}
		if c != nil {
			t.room[username] = c
			c.SendEvent(EventSpectatorMode, SpectatorModePayload{
				TableID:          t.id,
				State:            t.hand.ViewFor(username),
				WillJoinNextHand: true,
			})
		}
		t.beginTransition(username, chips)
		return nil
	})
}

// AddBotAndStart fills a lone human's table with a bot and starts the
// hand after a short countdown.
func (t *Table) AddBotAndStart() error {
	return t.call(func() error {
		if t.hand != nil && t.hand.Phase == game.PhaseInProgress {
			return fmt.Errorf("hand in progress on %s", t.id)
		}
		if len(t.seats) >= game.MaxSeats {
			return fmt.Errorf("table %s is full", t.id)
		}

		name := fmt.Sprintf("bot-%s", uuid.NewString()[:8])
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()
		if _, err := t.deps.store.EnsureUser(ctx, name, int64(t.deps.startingChips)); err != nil {
			return fmt.Errorf("provision bot account: %w", err)
		}

		t.seats = append(t.seats, game.Seat{
			Username: name,
			IsHuman:  false,
			Chips:    t.deps.startingChips,
			Status:   game.SeatActive,
		})
		t.broadcast(EventPlayerJoined, PlayerJoinedPayload{
			TableID: t.id, Username: name, Seat: len(t.seats) - 1, IsHuman: false,
		})
		t.startCountdown(botStartCountdown)
		return nil
	})
}

// EvictBots removes every bot seat between hands.
func (t *Table) EvictBots() error {
	return t.call(func() error {
		if t.hand != nil && t.hand.Phase == game.PhaseInProgress {
			return fmt.Errorf("hand in progress on %s", t.id)
		}
		kept := t.seats[:0]
		for _, s := range t.seats {
			if s.IsHuman {
				kept = append(kept, s)
				continue
			}
			t.broadcast(EventPlayerLeft, PlayerLeftPayload{TableID: t.id, Username: s.Username})
		}
		t.seats = kept
		t.syncState()
		return nil
	})
}

// ResolveTransitions completes pending transitions once the hand has
// ended. Hand end resolves them inline; this is the matchmaker's
// backstop.
func (t *Table) ResolveTransitions() {
	t.post(func() {
		if t.hand == nil || t.hand.Phase == game.PhaseOver {
			t.resolveTransitions()
		}
	})
}

// Ready marks a player ready; all humans ready with 2+ seats starts
// the countdown.
func (t *Table) Ready(username string) {
	t.post(func() {
		if t.seatIndex(username) < 0 {
			t.sendTo(username, EventError, ErrorPayload{Code: "not_seated", Message: "You are not seated at this table"})
			return
		}
		if t.state != TableWaiting && t.state != TableEmpty {
			return
		}

		t.ready[username] = true
		// bots follow the first human ready
		for _, s := range t.seats {
			if !s.IsHuman {
				t.ready[s.Username] = true
			}
		}

		if len(t.seats) >= 2 && t.allHumansReady() {
			t.startCountdown(t.deps.countdown)
		}
	})
}

// Action applies a player's game action.
func (t *Table) Action(c client, a game.Action, clientHash string) {
	t.post(func() { t.applyHumanAction(c, a, clientHash) })
}

// LeaveRequest handles a voluntary leave.
func (t *Table) LeaveRequest(username string) {
	t.post(func() { t.leave(username) })
}

// Disconnect marks a seat disconnected and starts its grace timer.
// Stale connection ids (an older socket of a reconnected user) are
// ignored.
func (t *Table) Disconnect(username, connID string) {
	t.post(func() {
		idx := t.seatIndex(username)
		if idx < 0 {
			delete(t.spectators, username)
			delete(t.room, username)
			return
		}
		if t.seats[idx].ConnID != connID {
			return
		}

		t.seats[idx].Status = game.SeatDisconnected
		t.seats[idx].ConnID = ""
		if t.hand != nil {
			if h := t.handSeatIndex(username); h >= 0 {
				t.hand.Seats[h].Status = game.SeatDisconnected
				t.hand.Seats[h].ConnID = ""
			}
		}
		delete(t.room, username)

		grace := graceIdle
		if t.hand != nil && t.hand.Phase == game.PhaseInProgress {
			grace = graceInHand
		}
		t.stopGrace(username)
		t.graceTimers[username] = t.deps.clock.AfterFunc(grace, func() {
			t.post(func() {
				delete(t.graceTimers, username)
				idx := t.seatIndex(username)
				if idx >= 0 && t.seats[idx].Status == game.SeatDisconnected {
					t.logger.Info("grace expired, removing seat", "user", username)
					t.leave(username)
				}
			})
		})
		t.logger.Info("player disconnected", "user", username, "grace", grace)
	})
}

// Reconnect restores a disconnected seat under a new connection id.
func (t *Table) Reconnect(c client) error {
	return t.call(func() error {
		username := c.UserID()
		idx := t.seatIndex(username)
		if idx < 0 {
			return fmt.Errorf("no seat held for %s", username)
		}
		if t.seats[idx].Status != game.SeatDisconnected {
			return fmt.Errorf("seat for %s is not awaiting reconnect", username)
		}

		t.stopGrace(username)
		t.room[username] = c
		t.seats[idx].Status = game.SeatActive
		t.seats[idx].ConnID = c.ID()
		if t.hand != nil {
			if h := t.handSeatIndex(username); h >= 0 {
				t.hand.Seats[h].Status = game.SeatActive
				t.hand.Seats[h].ConnID = c.ID()
				// the conn id lives outside the canonical hash, so the
				// restored client sees the same state hash as before
			}
		}

		t.broadcast(EventPlayerReconnected, PlayerReconnectedPayload{TableID: t.id, Username: username})
		t.sendSync(c)
		return nil
	})
}

// SyncTo serves a full state sync to one connection.
func (t *Table) SyncTo(c client) {
	t.post(func() { t.sendSync(c) })
}

// Verify compares a client hash against the authoritative state and
// reconciles on mismatch.
func (t *Table) Verify(c client, hash string) {
	t.post(func() {
		if t.hand == nil {
			c.SendEvent(EventStateReconciled, StateReconciledPayload{TableID: t.id, ClientHash: hash})
			return
		}
		if hash == t.hand.Hash {
			c.SendEvent(EventStateSync, StateSyncPayload{
				TableID: t.id,
				Roster:  t.roster(),
				Status:  string(t.state),
			})
			return
		}
		view := t.hand.ViewFor(c.UserID())
		c.SendEvent(EventStateReconciled, StateReconciledPayload{
			TableID:    t.id,
			State:      view,
			ServerHash: t.hand.Hash,
			ClientHash: hash,
		})
	})
}

// HashInfo reports the canonical hash of the running hand, if any.
func (t *Table) HashInfo() (hash string, inHand bool) {
	_ = t.call(func() error {
		if t.hand != nil && t.hand.Phase == game.PhaseInProgress {
			hash = t.hand.Hash
			inHand = true
		}
		return nil
	})
	return hash, inHand
}

// DropConnRefs nulls any seat references to a superseded connection.
func (t *Table) DropConnRefs(connID string) {
	t.post(func() {
		for i := range t.seats {
			if t.seats[i].ConnID == connID {
				t.seats[i].ConnID = ""
			}
		}
		if t.hand != nil {
			for i := range t.hand.Seats {
				if t.hand.Seats[i].ConnID == connID {
					t.hand.Seats[i].ConnID = ""
				}
			}
		}
	})
}

// ----- actor-side helpers: everything below runs on the mailbox -----

func (t *Table) seatHuman(username, connID string, chips int) {
	t.seats = append(t.seats, game.Seat{
		Username: username,
		IsHuman:  true,
		ConnID:   connID,
		Chips:    chips,
		Status:   game.SeatActive,
	})
	delete(t.spectators, username)
	if t.state == TableEmpty {
		t.setState(TableWaiting)
	}
	t.broadcast(EventPlayerJoined, PlayerJoinedPayload{
		TableID: t.id, Username: username, Seat: len(t.seats) - 1, IsHuman: true,
	})
	t.syncState()
}

func (t *Table) beginTransition(username string, chips int) {
	tr := &Transition{
		ID:        uuid.NewString(),
		Username:  username,
		Chips:     chips,
		StartedAt: t.deps.clock.Now(),
	}
	t.transitions = append(t.transitions, tr)
	t.broadcast(EventTransitionInitiated, TransitionPayload{
		TransitionID: tr.ID, TableID: t.id, Username: username,
	})

	t.deps.clock.AfterFunc(transitionTTL, func() {
		t.post(func() {
			for i, cur := range t.transitions {
				if cur.ID == tr.ID {
					t.logger.Warn("transition expired unresolved", "user", cur.Username)
					t.transitions = append(t.transitions[:i], t.transitions[i+1:]...)
					break
				}
			}
		})
	})
}

func (t *Table) startCountdown(d time.Duration) {
	if t.state == TableCountdown || (t.hand != nil && t.hand.Phase == game.PhaseInProgress) {
		return
	}
	t.setState(TableCountdown)
	t.syncState()
	t.countdown = t.deps.clock.AfterFunc(d, func() {
		t.post(t.startHand)
	})
}

func (t *Table) cancelCountdown() {
	if t.countdown != nil {
		t.countdown.Stop()
		t.countdown = nil
	}
	if t.state == TableCountdown {
		t.setState(TableWaiting)
	}
}

func (t *Table) startHand() {
	if t.state != TableCountdown {
		return
	}
	if len(t.seats) < 2 {
		t.setState(TableWaiting)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	t.handID = gameid.NewAt(t.deps.clock.Now())
	t.handStarted = t.deps.clock.Now()

	if _, err := t.deps.ledger.DeductStakes(ctx, t.handID, t.id, t.seats, t.stake); err != nil {
		t.logger.Error("stake deduction failed, aborting hand", "error", err)
		if t.deps.metrics != nil {
			t.deps.metrics.LedgerFailures.WithLabelValues("stake").Inc()
		}
		t.setState(TableWaiting)
		t.ready = make(map[string]bool)
		t.broadcast(EventError, ErrorPayload{
			Code:    "stakes_failed",
			Message: "Could not collect stakes; the hand was not started",
		})
		t.syncState()
		return
	}

	t.handStaked = len(t.seats)
	state := t.deps.deal(t.seats, t.stake, randutil.New(t.deps.seed()))
	t.hand = &state
	t.setState(TableInHand)
	if t.deps.metrics != nil {
		t.deps.metrics.HandsStarted.WithLabelValues(fmt.Sprint(t.stake)).Inc()
	}
	t.logger.Info("hand started", "hand", t.handID, "seats", len(t.seats), "stake", t.stake)

	t.broadcastState(EventGameUpdate)
	if state.Phase == game.PhaseOver {
		// a dealt 50 ends the hand before anyone acts
		t.settle()
		return
	}
	t.announceTurn()
	t.maybeScheduleBot()
}

func (t *Table) applyHumanAction(c client, a game.Action, clientHash string) {
	if t.hand == nil || t.hand.Phase != game.PhaseInProgress {
		c.SendEvent(EventTurnValidationError, TurnValidationErrorPayload{TableID: t.id, Reason: "no hand in progress"})
		return
	}

	username := c.UserID()
	acting := t.hand.Seats[t.hand.Turn]
	if acting.Username != username {
		c.SendEvent(EventTurnValidationError, TurnValidationErrorPayload{TableID: t.id, Reason: "not your turn"})
		if a.Kind == game.ActionDiscard {
			t.sendSync(c)
		}
		return
	}
	if acting.ConnID != c.ID() {
		// a discard straight after reconnect may still carry the old
		// socket's identity; trust the username and adopt the new conn
		if a.Kind != game.ActionDiscard {
			c.SendEvent(EventTurnValidationError, TurnValidationErrorPayload{TableID: t.id, Reason: "connection does not own the acting seat"})
			return
		}
		t.hand.Seats[t.hand.Turn].ConnID = c.ID()
		if idx := t.seatIndex(username); idx >= 0 {
			t.seats[idx].ConnID = c.ID()
		}
	}

	if clientHash != "" && clientHash != t.hand.Hash {
		if t.deps.metrics != nil {
			t.deps.metrics.DesyncsDetected.Inc()
		}
		c.SendEvent(EventStateReconciled, StateReconciledPayload{
			TableID:    t.id,
			State:      t.hand.ViewFor(username),
			ServerHash: t.hand.Hash,
			ClientHash: clientHash,
		})
		return
	}

	next, err := game.Apply(*t.hand, a)
	if err != nil {
		c.SendEvent(EventTurnValidationError, TurnValidationErrorPayload{TableID: t.id, Reason: err.Error()})
		if a.Kind == game.ActionDiscard {
			t.sendSync(c)
		}
		return
	}

	t.hand = &next
	if t.deps.metrics != nil {
		t.deps.metrics.ActionsApplied.WithLabelValues(string(a.Kind)).Inc()
	}
	t.persistHand()
	t.broadcastState(EventGameUpdate)

	if next.Phase == game.PhaseOver {
		t.settle()
		return
	}
	t.announceTurn()
	t.maybeScheduleBot()
}

func (t *Table) maybeScheduleBot() {
	if t.hand == nil || t.hand.Phase != game.PhaseInProgress {
		return
	}
	if t.hand.Seats[t.hand.Turn].IsHuman {
		return
	}
	if t.botTimer != nil {
		t.botTimer.Stop()
	}
	t.botTimer = t.deps.clock.AfterFunc(t.deps.botDelay, func() {
		t.post(t.botTurn)
	})
}

// botTurn plays exactly one bot action; the next one reschedules so
// every bot step stays observable.
func (t *Table) botTurn() {
	if t.hand == nil || t.hand.Phase != game.PhaseInProgress {
		return
	}
	if t.hand.Seats[t.hand.Turn].IsHuman {
		return
	}

	a, err := bot.Decide(*t.hand)
	if err != nil {
		t.logger.Error("bot turn failed", "hand", t.handID, "error", err)
		return
	}
	next, err := game.Apply(*t.hand, a)
	if err != nil {
		t.logger.Error("bot action rejected", "hand", t.handID, "action", a.Kind, "error", err)
		return
	}

	t.hand = &next
	t.persistHand()
	t.broadcastState(EventGameUpdate)

	if next.Phase == game.PhaseOver {
		t.settle()
		return
	}
	t.announceTurn()
	t.maybeScheduleBot()
}

func (t *Table) settle() {
	if t.hand == nil || t.hand.Outcome == nil {
		return
	}
	out := t.hand.Outcome
	t.setState(TableSettling)

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	if _, err := t.deps.ledger.DistributeWinnings(ctx, t.handID, t.id, t.hand.Seats, t.handStaked, out.Winners, out.WinType, t.stake); err != nil {
		// the hand does not re-open; operators reconcile from the log
		t.logger.Error("payout failed", "hand", t.handID, "error", err)
		if t.deps.metrics != nil {
			t.deps.metrics.LedgerFailures.WithLabelValues("payout").Inc()
		}
		t.broadcast(EventError, ErrorPayload{Code: "settlement_failed", Message: "Payout failed; support has been notified"})
	}
	if out.WinType == game.WinDropCaught {
		if _, err := t.deps.ledger.ApplyDropPenalty(ctx, t.handID, t.id, t.hand.Seats, out.DroppedSeat, out.RoundScores, t.stake); err != nil {
			t.logger.Error("drop penalty failed", "hand", t.handID, "error", err)
		}
	}

	winnerNames := make([]string, 0, len(out.Winners))
	isWinner := make(map[string]bool)
	for _, w := range out.Winners {
		winnerNames = append(winnerNames, t.hand.Seats[w].Username)
		isWinner[t.hand.Seats[w].Username] = true
	}

	seatNames := make([]string, len(t.hand.Seats))
	for i, s := range t.hand.Seats {
		seatNames[i] = s.Username
	}
	err := t.deps.store.SaveGame(ctx, &store.GameRecord{
		ID:          t.handID,
		TableID:     t.id,
		Stake:       t.stake,
		Seats:       seatNames,
		Winners:     out.Winners,
		WinType:     string(out.WinType),
		RoundScores: out.RoundScores,
		FinalState:  t.hand,
		StartedAt:   t.handStarted,
		EndedAt:     t.deps.clock.Now(),
	})
	if err != nil {
		t.logger.Error("failed to record game", "hand", t.handID, "error", err)
	}
	for _, name := range seatNames {
		if err := t.deps.store.RecordResult(ctx, name, isWinner[name]); err != nil {
			t.logger.Error("failed to record result", "user", name, "error", err)
		}
	}

	if t.deps.metrics != nil {
		t.deps.metrics.HandsCompleted.WithLabelValues(string(out.WinType)).Inc()
	}
	t.logger.Info("hand settled", "hand", t.handID, "winType", out.WinType, "winners", winnerNames)

	for username, c := range t.room {
		c.SendEvent(EventGameOver, GameOverPayload{
			TableID:     t.id,
			State:       t.hand.ViewFor(username),
			WinType:     out.WinType,
			Winners:     winnerNames,
			RoundScores: out.RoundScores,
		})
	}

	t.handEnd()
}

// handEnd resolves transitions, promotes waiting spectators, and
// returns the table to WAITING.
func (t *Table) handEnd() {
	if t.botTimer != nil {
		t.botTimer.Stop()
		t.botTimer = nil
	}
	t.hand = nil
	t.handID = ""
	t.ready = make(map[string]bool)

	t.resolveTransitions()

	// promote spectators who asked to play
	for username, sp := range t.spectators {
		if !sp.willJoin || len(t.seats) >= game.MaxSeats {
			continue
		}
		delete(t.spectators, username)
		t.seatHuman(username, t.connIDOf(username), sp.chips)
	}

	if t.humanSeats() == 0 {
		t.reset()
		return
	}
	t.setState(TableWaiting)
	t.syncState()
	if t.deps.onChange != nil {
		t.deps.onChange()
	}
}

func (t *Table) resolveTransitions() {
	for len(t.transitions) > 0 {
		tr := t.transitions[0]

		botIdx := -1
		for i, s := range t.seats {
			if !s.IsHuman {
				botIdx = i
				break
			}
		}
		if botIdx < 0 {
			break
		}

		botName := t.seats[botIdx].Username
		t.seats = append(t.seats[:botIdx], t.seats[botIdx+1:]...)
		t.transitions = t.transitions[1:]

		t.broadcast(EventPlayerLeft, PlayerLeftPayload{TableID: t.id, Username: botName})
		delete(t.spectators, tr.Username)
		t.seatHuman(tr.Username, t.connIDOf(tr.Username), tr.Chips)
		t.broadcast(EventTransitionCompleted, TransitionPayload{
			TransitionID: tr.ID, TableID: t.id, Username: tr.Username,
		})
	}
}

// leave removes a player, mid-hand if necessary.
func (t *Table) leave(username string) {
	if _, ok := t.spectators[username]; ok && t.seatIndex(username) < 0 {
		delete(t.spectators, username)
		delete(t.room, username)
		return
	}

	idx := t.seatIndex(username)
	if idx < 0 {
		delete(t.room, username)
		return
	}

	t.stopGrace(username)
	delete(t.ready, username)

	inHand := t.hand != nil && t.hand.Phase == game.PhaseInProgress
	if !inHand {
		t.seats = append(t.seats[:idx], t.seats[idx+1:]...)
		delete(t.room, username)
		t.cancelCountdown()
		t.broadcast(EventPlayerLeft, PlayerLeftPayload{TableID: t.id, Username: username})
		if len(t.seats) == 0 {
			t.reset()
		} else if t.humanSeats() == 0 {
			t.reset()
		} else {
			t.syncState()
		}
		if t.deps.onChange != nil {
			t.deps.onChange()
		}
		return
	}

	handIdx := t.handSeatIndex(username)
	t.seats = append(t.seats[:idx], t.seats[idx+1:]...)
	delete(t.room, username)

	if handIdx < 0 {
		t.broadcast(EventPlayerLeft, PlayerLeftPayload{TableID: t.id, Username: username})
		t.syncState()
		return
	}

	next, err := game.Leave(*t.hand, handIdx)
	if err != nil {
		t.logger.Error("mid-hand leave failed", "user", username, "error", err)
		t.broadcast(EventPlayerLeft, PlayerLeftPayload{TableID: t.id, Username: username})
		return
	}
	t.hand = &next

	humans := 0
	lastHumanIdx := -1
	for i, s := range t.hand.Seats {
		if s.IsHuman {
			humans++
			lastHumanIdx = i
		}
	}

	switch {
	case humans == 0:
		// no bots-only games: abandon the hand outright
		t.logger.Info("no humans left, abandoning hand", "hand", t.handID)
		t.hand = nil
		t.handID = ""
		t.broadcast(EventPlayerLeft, PlayerLeftPayload{TableID: t.id, Username: username})
		t.reset()
	case humans == 1:
		final := game.Forfeit(*t.hand, lastHumanIdx)
		t.hand = &final
		t.broadcast(EventPlayerLeft, PlayerLeftPayload{
			TableID: t.id, Username: username, Forfeit: true,
		})
		t.settle()
	default:
		t.broadcast(EventPlayerLeft, PlayerLeftPayload{TableID: t.id, Username: username})
		t.persistHand()
		t.broadcastState(EventGameUpdate)
		t.announceTurn()
		t.maybeScheduleBot()
	}
	if t.deps.onChange != nil {
		t.deps.onChange()
	}
}

// reset clears the table back to EMPTY, dropping bot seats.
func (t *Table) reset() {
	if t.botTimer != nil {
		t.botTimer.Stop()
		t.botTimer = nil
	}
	t.cancelCountdown()
	t.hand = nil
	t.handID = ""
	t.ready = make(map[string]bool)
	t.seats = nil
	t.setState(TableEmpty)
	t.syncState()
}

func (t *Table) announceTurn() {
	if t.hand == nil || t.hand.Phase != game.PhaseInProgress {
		return
	}
	t.broadcast(EventTurnStart, TurnStartPayload{
		TableID:  t.id,
		Seat:     t.hand.Turn,
		Username: t.hand.Seats[t.hand.Turn].Username,
	})
}

// persistHand stores the authoritative hand snapshot.
func (t *Table) persistHand() {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := t.deps.store.SaveHandState(ctx, t.id, t.hand); err != nil {
		t.logger.Error("failed to persist hand state", "hand", t.handID, "error", err)
	}
}

// setState moves the state machine and persists the table row under
// optimistic concurrency.
func (t *Table) setState(next TableState) {
	t.state = next

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	rec := &store.TableRecord{ID: t.id, Stake: t.stake, Preset: t.preset, Status: string(next), Version: t.version}
	if err := t.deps.store.SaveTable(ctx, rec); err != nil {
		t.logger.Error("failed to persist table state", "state", next, "error", err)
		return
	}
	t.version = rec.Version
}

func (t *Table) sendSync(c client) {
	var state *game.View
	if t.hand != nil {
		v := t.hand.ViewFor(c.UserID())
		state = &v
	}
	c.SendEvent(EventStateSync, StateSyncPayload{
		TableID: t.id,
		State:   state,
		Roster:  t.roster(),
		Status:  string(t.state),
	})
}

// syncState broadcasts roster and status to the whole room.
func (t *Table) syncState() {
	for _, c := range t.room {
		t.sendSync(c)
	}
}

// broadcast sends one identical event to every room member.
func (t *Table) broadcast(event Event, payload interface{}) {
	for _, c := range t.room {
		c.SendEvent(event, payload)
	}
}

// broadcastState sends per-viewer redacted state to every room member.
func (t *Table) broadcastState(event Event) {
	if t.hand == nil {
		return
	}
	for username, c := range t.room {
		c.SendEvent(event, GameUpdatePayload{TableID: t.id, State: t.hand.ViewFor(username)})
	}
}

func (t *Table) sendTo(username string, event Event, payload interface{}) {
	if c, ok := t.room[username]; ok {
		c.SendEvent(event, payload)
	}
}

func (t *Table) seatIndex(username string) int {
	for i, s := range t.seats {
		if s.Username == username {
			return i
		}
	}
	return -1
}

func (t *Table) indexOf(username string) (int, bool) {
	i := t.seatIndex(username)
	return i, i >= 0
}

func (t *Table) handSeatIndex(username string) int {
	if t.hand == nil {
		return -1
	}
	for i, s := range t.hand.Seats {
		if s.Username == username {
			return i
		}
	}
	return -1
}

func (t *Table) connIDOf(username string) string {
	if c, ok := t.room[username]; ok {
		return c.ID()
	}
	return ""
}

func (t *Table) humanSeats() int {
	n := 0
	for _, s := range t.seats {
		if s.IsHuman {
			n++
		}
	}
	return n
}

func (t *Table) botSeats() int {
	n := 0
	for _, s := range t.seats {
		if !s.IsHuman {
			n++
		}
	}
	return n
}

func (t *Table) allHumansReady() bool {
	for _, s := range t.seats {
		if s.IsHuman && !t.ready[s.Username] {
			return false
		}
	}
	return true
}

func (t *Table) roster() []string {
	names := make([]string, len(t.seats))
	for i, s := range t.seats {
		names[i] = s.Username
	}
	return names
}

func (t *Table) stopGrace(username string) {
	if timer, ok := t.graceTimers[username]; ok {
		timer.Stop()
		delete(t.graceTimers, username)
	}
}
