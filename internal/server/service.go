package server

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/freeski070605/reemteam/internal/game"
	"github.com/freeski070605/reemteam/internal/ledger"
	"github.com/freeski070605/reemteam/internal/matchmaker"
	"github.com/freeski070605/reemteam/internal/queue"
	"github.com/freeski070605/reemteam/internal/store"
	"golang.org/x/sync/errgroup"
)

// Service is the session aggregate: it owns the tables, the queue, the
// matchmaker, and the user-to-connection index, and routes every
// client event to the right table actor.
type Service struct {
	cfg     *ServerConfig
	store   *store.Store
	ledger  *ledger.Ledger
	queues  *queue.Manager
	mm      *matchmaker.Matchmaker
	clock   quartz.Clock
	logger  *log.Logger
	metrics *Metrics

	mu      sync.RWMutex
	tables  map[string]*Table
	conns   map[string]*Connection
	ctx     context.Context
	cancels map[string]context.CancelFunc
}

// NewService wires the aggregate. Start must be called before any
// client traffic.
func NewService(cfg *ServerConfig, st *store.Store, clock quartz.Clock, logger *log.Logger, metrics *Metrics) *Service {
	svc := &Service{
		cfg:     cfg,
		store:   st,
		ledger:  ledger.New(st, logger),
		queues:  queue.NewManager(clock, logger),
		clock:   clock,
		logger:  logger.WithPrefix("service"),
		metrics: metrics,
		tables:  make(map[string]*Table),
		conns:   make(map[string]*Connection),
		cancels: make(map[string]context.CancelFunc),
		ctx:     context.Background(),
	}
	svc.mm = matchmaker.New(svc.queues, svc, clock, logger, cfg.MatchmakerInterval())
	return svc
}

// Ledger exposes the ledger for the HTTP surface.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Start creates the preset tables and runs the background loops until
// ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.ctx = ctx

	for _, stake := range s.cfg.Game.Stakes {
		for n := 1; n <= s.cfg.Game.TablesPerStake; n++ {
			id := fmt.Sprintf("stake-%d-%d", stake, n)
			if err := s.store.UpsertPresetTable(ctx, id, stake); err != nil {
				return fmt.Errorf("provision preset table %s: %w", id, err)
			}
			s.addTable(id, stake, true)
		}
	}
	s.logger.Info("preset tables ready",
		"stakes", s.cfg.Game.Stakes, "perStake", s.cfg.Game.TablesPerStake)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.queues.Run(ctx) })
	g.Go(func() error { return s.mm.Run(ctx) })
	g.Go(func() error {
		s.sweepStaleTables(ctx)
		ticker := s.clock.TickerFunc(ctx, s.cfg.CleanupInterval(), func() error {
			s.sweepStaleTables(ctx)
			return nil
		}, "cleanup")
		return ticker.Wait()
	})
	g.Go(func() error {
		for {
			select {
			case e := <-s.queues.Expired:
				s.sendToUser(e.Username, EventQueueStatus, QueueStatusPayload{Stake: e.Stake, Position: 0})
				s.sendToUser(e.Username, EventError, ErrorPayload{
					Code: "queue_expired", Message: "Queue entry expired after 10 minutes",
				})
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return g.Wait()
}

func (s *Service) addTable(id string, stake int, preset bool) *Table {
	deps := tableDeps{
		ledger:        s.ledger,
		store:         s.store,
		clock:         s.clock,
		logger:        s.logger,
		botDelay:      s.cfg.BotDelay(),
		countdown:     s.cfg.Countdown(),
		startingChips: s.cfg.Game.StartingChips,
		metrics:       s.metrics,
		onChange:      s.onTableChange,
	}
	t := NewTable(id, stake, preset, deps)

	tctx, cancel := context.WithCancel(s.ctx)
	go t.Run(tctx)

	s.mu.Lock()
	s.tables[id] = t
	s.cancels[id] = cancel
	s.mu.Unlock()
	return t
}

func (s *Service) table(id string) *Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[id]
}

// sweepStaleTables deletes dynamic table rows with no live actor, such
// as overflow tables left behind by a previous process run.
func (s *Service) sweepStaleTables(ctx context.Context) {
	ids, err := s.store.ListTableIDs(ctx)
	if err != nil {
		s.logger.Warn("stale table sweep failed", "error", err)
		return
	}
	for _, id := range ids {
		if s.table(id) != nil {
			continue
		}
		if err := s.store.DeleteTable(ctx, id); err != nil {
			s.logger.Warn("stale table delete failed", "table", id, "error", err)
			continue
		}
		s.logger.Info("reaped stale table row", "table", id)
	}
}

// onTableChange runs on the table actor goroutine that raised it, so
// the lobby fan-out goes through a fresh goroutine: broadcastTables
// snapshots every table via its mailbox, and doing that inline would
// make the raising actor wait on itself.
func (s *Service) onTableChange() {
	s.mm.Trigger()
	go s.broadcastTables()
}

// Register indexes an authenticated connection. A newer connection for
// the same user force-disconnects the older one.
func (s *Service) Register(c *Connection) {
	s.mu.Lock()
	old := s.conns[c.UserID()]
	s.conns[c.UserID()] = c
	s.mu.Unlock()

	if old != nil {
		s.logger.Info("superseding connection", "user", c.UserID(), "old", old.ID(), "new", c.ID())
		if tableID := old.GetTable(); tableID != "" {
			if t := s.table(tableID); t != nil {
				t.DropConnRefs(old.ID())
			}
		}
		_ = old.Close()
	}

	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
	}
	c.SendEvent(EventTablesUpdate, TablesUpdatePayload{Tables: s.tableSummaries()})
}

// Unregister drops a closed connection and starts the seat's grace
// period.
func (s *Service) Unregister(c *Connection) {
	s.mu.Lock()
	current := s.conns[c.UserID()] == c
	if current {
		delete(s.conns, c.UserID())
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConnectionsActive.Dec()
	}
	if !current {
		return // an older socket of a user who already reconnected
	}

	if err := s.queues.Remove(c.UserID()); err == nil {
		s.mm.Trigger()
	}
	if tableID := c.GetTable(); tableID != "" {
		if t := s.table(tableID); t != nil {
			t.Disconnect(c.UserID(), c.ID())
			s.mm.Trigger()
		}
	}
}

// JoinQueue puts a player in the matchmaking queue.
func (s *Service) JoinQueue(c *Connection, p JoinQueuePayload) {
	if !s.validStake(p.Stake) {
		c.sendError("invalid_stake", fmt.Sprintf("No tables at stake %d", p.Stake))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, settleTimeout)
	defer cancel()
	user, err := s.store.EnsureUser(ctx, c.UserID(), int64(s.cfg.Game.StartingChips))
	if err != nil {
		c.sendError("storage_error", "Could not load your account")
		return
	}
	if user.Chips < int64(p.Stake) {
		c.sendError("insufficient_chips", "Not enough chips for this stake")
		return
	}

	prio := p.Priority
	if prio == "" {
		prio = queue.PriorityNormal
	}
	pos, err := s.queues.Enqueue(c.UserID(), p.Stake, prio)
	if err != nil {
		c.sendError("queue_rejected", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.QueueDepth.WithLabelValues(fmt.Sprint(p.Stake)).Set(float64(s.queues.Len(p.Stake)))
	}

	eta, _ := s.queues.EstimatedWait(c.UserID())
	c.SendEvent(EventQueueStatus, QueueStatusPayload{
		Stake:         p.Stake,
		Position:      pos,
		EstimatedWait: eta.Seconds(),
	})
	s.mm.Trigger()
}

// LeaveQueue removes a player from the queue.
func (s *Service) LeaveQueue(c *Connection) {
	stake, _, err := s.queues.Position(c.UserID())
	if err != nil {
		c.sendError("not_queued", "You are not in a queue")
		return
	}
	_ = s.queues.Remove(c.UserID())
	if s.metrics != nil {
		s.metrics.QueueDepth.WithLabelValues(fmt.Sprint(stake)).Set(float64(s.queues.Len(stake)))
	}
	c.SendEvent(EventQueueStatus, QueueStatusPayload{Stake: stake, Position: 0})
}

// JoinTable seats or spectates a player per the mid-hand join policy.
func (s *Service) JoinTable(c *Connection, tableID string) {
	t := s.table(tableID)
	if t == nil {
		c.sendError("unknown_table", "No such table: "+tableID)
		return
	}

	chips, err := s.chipsOf(c.UserID())
	if err != nil {
		c.sendError("storage_error", "Could not load your account")
		return
	}
	if err := t.Join(c, chips); err != nil {
		c.sendError("join_failed", err.Error())
		return
	}
	c.SetTable(tableID)
	s.broadcastTables()
}

// JoinSpectator adds a pure watcher to the table room.
func (s *Service) JoinSpectator(c *Connection, tableID string) {
	t := s.table(tableID)
	if t == nil {
		c.sendError("unknown_table", "No such table: "+tableID)
		return
	}
	t.Spectate(c)
	c.SetTable(tableID)
}

// PlayerReady marks a player ready for the next hand.
func (s *Service) PlayerReady(c *Connection, tableID string) {
	t := s.table(tableID)
	if t == nil {
		c.sendError("unknown_table", "No such table: "+tableID)
		return
	}
	t.Ready(c.UserID())
}

// GameAction routes an action to the table actor.
func (s *Service) GameAction(c *Connection, p GameActionPayload) {
	tableID := p.TableID
	if tableID == "" {
		tableID = c.GetTable()
	}
	t := s.table(tableID)
	if t == nil {
		c.sendError("unknown_table", "No such table: "+tableID)
		return
	}
	t.Action(c, p.Action, p.StateHash)
}

// LeaveTable removes a player from their table.
func (s *Service) LeaveTable(c *Connection, tableID string) {
	t := s.table(tableID)
	if t == nil {
		c.sendError("unknown_table", "No such table: "+tableID)
		return
	}
	t.LeaveRequest(c.UserID())
	c.SetTable("")
	s.mm.Trigger()
}

// StateSync serves a full authoritative state to the requester.
func (s *Service) StateSync(c *Connection, tableID string) {
	t := s.table(tableID)
	if t == nil {
		c.sendError("unknown_table", "No such table: "+tableID)
		return
	}
	t.SyncTo(c)
}

// VerifyState checks a client hash against the authoritative state.
func (s *Service) VerifyState(c *Connection, tableID, hash string) {
	t := s.table(tableID)
	if t == nil {
		c.sendError("unknown_table", "No such table: "+tableID)
		return
	}
	t.Verify(c, hash)
}

// ReconnectPlayer restores a disconnected seat on a new connection.
func (s *Service) ReconnectPlayer(c *Connection, tableID string) {
	t := s.table(tableID)
	if t == nil {
		c.sendError("unknown_table", "No such table: "+tableID)
		return
	}
	if err := t.Reconnect(c); err != nil {
		c.sendError("reconnect_failed", err.Error())
		return
	}
	c.SetTable(tableID)
}

// ValidateState implements the HTTP reconciliation verdict for one
// table.
func (s *Service) ValidateState(tableID, clientHash string) (verdict string, serverHash string, err error) {
	t := s.table(tableID)
	if t == nil {
		return "", "", fmt.Errorf("no such table: %s", tableID)
	}
	serverHash, inHand := t.HashInfo()
	switch {
	case !inHand:
		return "no_hand", "", nil
	case serverHash == clientHash:
		return "in_sync", serverHash, nil
	default:
		return "desync", serverHash, nil
	}
}

// ----- matchmaker.Tables -----

func (s *Service) Stakes() []int {
	return append([]int(nil), s.cfg.Game.Stakes...)
}

func (s *Service) List(stake int) []matchmaker.TableView {
	s.mu.RLock()
	tables := make([]*Table, 0, len(s.tables))
	for _, t := range s.tables {
		if t.Stake() == stake {
			tables = append(tables, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(tables, func(i, j int) bool { return tables[i].ID() < tables[j].ID() })

	views := make([]matchmaker.TableView, 0, len(tables))
	for _, t := range tables {
		snap := t.Snapshot()
		humans, bots := 0, 0
		for _, seat := range snap.Seats {
			if seat.IsHuman {
				humans++
			} else {
				bots++
			}
		}
		views = append(views, matchmaker.TableView{
			ID:                 snap.ID,
			Stake:              snap.Stake,
			Preset:             snap.Preset,
			Seats:              len(snap.Seats),
			Humans:             humans,
			Bots:               bots,
			InHand:             snap.InHand,
			PendingTransitions: snap.PendingTransitions,
		})
	}
	return views
}

func (s *Service) ResolveTransitions(tableID string) {
	if t := s.table(tableID); t != nil {
		t.ResolveTransitions()
	}
}

func (s *Service) SeatPlayer(tableID, username string) error {
	t := s.table(tableID)
	if t == nil {
		return fmt.Errorf("no such table: %s", tableID)
	}
	chips, err := s.chipsOf(username)
	if err != nil {
		return err
	}
	var cl client
	if c := s.connOf(username); c != nil {
		cl = c
	}
	if err := t.SeatFromQueue(username, cl, chips); err != nil {
		return err
	}
	if c := s.connOf(username); c != nil {
		c.SetTable(tableID)
	}
	s.broadcastTables()
	return nil
}

func (s *Service) BeginTransition(tableID, username string) error {
	t := s.table(tableID)
	if t == nil {
		return fmt.Errorf("no such table: %s", tableID)
	}
	chips, err := s.chipsOf(username)
	if err != nil {
		return err
	}
	var cl client
	if c := s.connOf(username); c != nil {
		cl = c
	}
	if err := t.BeginTransition(username, cl, chips); err != nil {
		return err
	}
	if c := s.connOf(username); c != nil {
		c.SetTable(tableID)
	}
	return nil
}

func (s *Service) AddBotAndStart(tableID string) error {
	t := s.table(tableID)
	if t == nil {
		return fmt.Errorf("no such table: %s", tableID)
	}
	return t.AddBotAndStart()
}

func (s *Service) EvictBots(tableID string) error {
	t := s.table(tableID)
	if t == nil {
		return fmt.Errorf("no such table: %s", tableID)
	}
	return t.EvictBots()
}

func (s *Service) CreateTable(stake int) (matchmaker.TableView, error) {
	id := fmt.Sprintf("stake-%d-dyn-%s", stake, uuid.NewString()[:8])

	ctx, cancel := context.WithTimeout(s.ctx, settleTimeout)
	defer cancel()
	if err := s.store.InsertTable(ctx, id, stake); err != nil {
		return matchmaker.TableView{}, err
	}
	s.addTable(id, stake, false)
	return matchmaker.TableView{ID: id, Stake: stake}, nil
}

func (s *Service) RemoveIfEmpty(tableID string) error {
	t := s.table(tableID)
	if t == nil {
		return nil
	}
	snap := t.Snapshot()
	if snap.Preset || len(snap.Seats) > 0 {
		return nil
	}

	s.mu.Lock()
	delete(s.tables, tableID)
	cancel := s.cancels[tableID]
	delete(s.cancels, tableID)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	ctx, cancelCtx := context.WithTimeout(s.ctx, settleTimeout)
	defer cancelCtx()
	return s.store.DeleteTable(ctx, tableID)
}

// ----- helpers -----

func (s *Service) validStake(stake int) bool {
	for _, v := range s.cfg.Game.Stakes {
		if v == stake {
			return true
		}
	}
	return false
}

func (s *Service) connOf(username string) *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[username]
}

func (s *Service) chipsOf(username string) (int, error) {
	ctx, cancel := context.WithTimeout(s.ctx, settleTimeout)
	defer cancel()
	user, err := s.store.EnsureUser(ctx, username, int64(s.cfg.Game.StartingChips))
	if err != nil {
		return 0, err
	}
	return int(user.Chips), nil
}

func (s *Service) sendToUser(username string, event Event, payload interface{}) {
	if c := s.connOf(username); c != nil {
		c.SendEvent(event, payload)
	}
}

func (s *Service) tableSummaries() []TableSummary {
	s.mu.RLock()
	tables := make([]*Table, 0, len(s.tables))
	for _, t := range s.tables {
		tables = append(tables, t)
	}
	s.mu.RUnlock()

	sort.Slice(tables, func(i, j int) bool { return tables[i].ID() < tables[j].ID() })

	out := make([]TableSummary, 0, len(tables))
	for _, t := range tables {
		snap := t.Snapshot()
		names := make([]string, len(snap.Seats))
		for i, seat := range snap.Seats {
			names[i] = seat.Username
		}
		out = append(out, TableSummary{
			ID:        snap.ID,
			Stake:     snap.Stake,
			Preset:    snap.Preset,
			SeatCount: len(snap.Seats),
			MaxSeats:  game.MaxSeats,
			Usernames: names,
			Status:    string(snap.State),
		})
	}
	return out
}

func (s *Service) broadcastTables() {
	summaries := s.tableSummaries()
	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.SendEvent(EventTablesUpdate, TablesUpdatePayload{Tables: summaries})
	}
}
