// Package matchmaker moves queued players onto tables. It runs on a
// timer and on demand, and touches tables only through the session
// layer's interface so every seat mutation stays on the table's actor.
package matchmaker

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/freeski070605/reemteam/internal/game"
	"github.com/freeski070605/reemteam/internal/queue"
)

// DefaultInterval is how often the matchmaker runs without a trigger.
const DefaultInterval = 10 * time.Second

// TableView is the matchmaker's snapshot of one table.
type TableView struct {
	ID                 string
	Stake              int
	Preset             bool
	Seats              int
	Humans             int
	Bots               int
	InHand             bool
	PendingTransitions int
}

// Tables is what the matchmaker needs from the session layer. Every
// method is serialised onto the target table's actor by the
// implementation.
type Tables interface {
	// Stakes lists the stake levels with at least one table.
	Stakes() []int
	// List snapshots every table at a stake.
	List(stake int) []TableView
	// ResolveTransitions completes any transition whose hand has ended.
	ResolveTransitions(tableID string)
	// SeatPlayer puts a queued player straight into an open seat.
	SeatPlayer(tableID, username string) error
	// BeginTransition parks a queued player as a spectator and earmarks
	// one bot for eviction at hand end.
	BeginTransition(tableID, username string) error
	// AddBotAndStart fills a lone human's table with a bot and starts
	// the hand after a short countdown.
	AddBotAndStart(tableID string) error
	// EvictBots removes every bot from a table between hands.
	EvictBots(tableID string) error
	// CreateTable makes a dynamic overflow table at the stake.
	CreateTable(stake int) (TableView, error)
	// RemoveIfEmpty deletes a dynamic table with no seats.
	RemoveIfEmpty(tableID string) error
}

// Matchmaker owns the run loop. Trigger is cheap and coalescing, so
// enqueue and disconnect paths call it freely.
type Matchmaker struct {
	queues   *queue.Manager
	tables   Tables
	clock    quartz.Clock
	logger   *log.Logger
	interval time.Duration
	trigger  chan struct{}
}

// New builds a matchmaker over the queue manager and table registry.
func New(queues *queue.Manager, tables Tables, clock quartz.Clock, logger *log.Logger, interval time.Duration) *Matchmaker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Matchmaker{
		queues:   queues,
		tables:   tables,
		clock:    clock,
		logger:   logger.WithPrefix("matchmaker"),
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a run outside the timer. Duplicate triggers while a
// run is pending collapse into one.
func (mm *Matchmaker) Trigger() {
	select {
	case mm.trigger <- struct{}{}:
	default:
	}
}

// Run loops until ctx is done.
func (mm *Matchmaker) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-mm.trigger:
				mm.RunOnce()
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := mm.clock.TickerFunc(ctx, mm.interval, func() error {
		mm.RunOnce()
		return nil
	}, "matchmaker")
	return ticker.Wait()
}

// RunOnce processes every stake level once.
func (mm *Matchmaker) RunOnce() {
	for _, stake := range mm.tables.Stakes() {
		mm.matchStake(stake)
	}
}

// matchStake reshapes one stake's tables under the stake's advisory
// lock. A held lock means another run is already working this stake,
// and this run simply skips it.
func (mm *Matchmaker) matchStake(stake int) {
	if !mm.queues.TryLock(stake) {
		return
	}
	defer mm.queues.Unlock(stake)

	for _, tbl := range mm.tables.List(stake) {
		mm.tables.ResolveTransitions(tbl.ID)
	}

	for _, tbl := range mm.tables.List(stake) {
		mm.fillTable(stake, tbl)
	}

	// overflow only when every existing table is at capacity, judged
	// on a fresh listing so this run's seating counts
	tables := mm.tables.List(stake)
	allFull := len(tables) > 0
	for _, tbl := range tables {
		if tbl.Seats+tbl.PendingTransitions >= game.MaxSeats {
			continue
		}
		allFull = false
	}
	if allFull && mm.queues.Len(stake) > 0 {
		nt, err := mm.tables.CreateTable(stake)
		if err != nil {
			mm.logger.Error("failed to create overflow table", "stake", stake, "error", err)
		} else {
			mm.logger.Info("created overflow table", "table", nt.ID, "stake", stake)
			mm.fillTable(stake, nt)
		}
	}

	for _, tbl := range mm.tables.List(stake) {
		if !tbl.Preset && tbl.Seats == 0 {
			if err := mm.tables.RemoveIfEmpty(tbl.ID); err != nil {
				mm.logger.Error("failed to remove empty table", "table", tbl.ID, "error", err)
			}
		}
	}
}

// fillTable runs the per-table algorithm: seat queued players, then
// fix up the bot population.
func (mm *Matchmaker) fillTable(stake int, tbl TableView) {
	open := game.MaxSeats - tbl.Seats - tbl.PendingTransitions
	for open > 0 && mm.queues.Len(stake) > 0 {
		// a mid-hand table can only absorb players by replacing bots
		if tbl.InHand && tbl.Bots-tbl.PendingTransitions <= 0 {
			break
		}

		entries := mm.queues.Dequeue(stake, 1)
		if len(entries) == 0 {
			break
		}
		e := entries[0]

		if tbl.InHand {
			if err := mm.tables.BeginTransition(tbl.ID, e.Username); err != nil {
				mm.logger.Error("transition failed", "table", tbl.ID, "user", e.Username, "error", err)
				continue
			}
			tbl.PendingTransitions++
		} else {
			if err := mm.tables.SeatPlayer(tbl.ID, e.Username); err != nil {
				mm.logger.Error("seating failed", "table", tbl.ID, "user", e.Username, "error", err)
				continue
			}
			tbl.Seats++
			tbl.Humans++
		}
		open--
	}

	if tbl.Humans == 1 && tbl.Bots == 0 && !tbl.InHand {
		if err := mm.tables.AddBotAndStart(tbl.ID); err != nil {
			mm.logger.Error("failed to add bot", "table", tbl.ID, "error", err)
		}
		return
	}

	if tbl.Humans >= 2 && tbl.Bots > 1 && !tbl.InHand {
		if err := mm.tables.EvictBots(tbl.ID); err != nil {
			mm.logger.Error("failed to evict bots", "table", tbl.ID, "error", err)
		}
	}
}
