// Package queue holds the per-stake matchmaking queues. Entries are
// ordered by priority class and, within a class, by arrival.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

var (
	ErrAlreadyQueued = errors.New("queue: user already queued")
	ErrNotQueued     = errors.New("queue: user not queued")
)

// Priority orders entries within a stake's queue. Higher classes are
// seated first; within a class the queue is FIFO.
type Priority string

const (
	PriorityVIP    Priority = "vip"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

func (p Priority) rank() int {
	switch p {
	case PriorityVIP:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

const (
	// defaultWaitEstimate is reported before any real wait has been
	// observed at a stake.
	defaultWaitEstimate = 30 * time.Second

	// waitSamples caps the rolling window used for wait estimates.
	waitSamples = 50

	// entryTTL is how long an entry may sit queued before the sweep
	// expires it.
	entryTTL = 10 * time.Minute

	// sweepInterval is how often expired entries are collected.
	sweepInterval = time.Minute
)

// Entry is one queued player.
type Entry struct {
	Username   string
	Stake      int
	Priority   Priority
	EnqueuedAt time.Time
}

// StakeStats is a point-in-time summary of one stake's queue.
type StakeStats struct {
	Stake   int
	Length  int
	AvgWait time.Duration
}

// Manager owns every stake's queue. All methods are safe for
// concurrent use.
type Manager struct {
	mu     sync.Mutex
	queues map[int][]Entry
	held   map[int]bool // advisory per-stake locks for the matchmaker
	waits  map[int][]time.Duration
	clock  quartz.Clock
	logger *log.Logger

	// Expired receives usernames dropped by the sweep so the session
	// layer can notify them.
	Expired chan Entry
}

// NewManager builds an empty queue manager on the given clock.
func NewManager(clock quartz.Clock, logger *log.Logger) *Manager {
	return &Manager{
		queues:  make(map[int][]Entry),
		held:    make(map[int]bool),
		waits:   make(map[int][]time.Duration),
		clock:   clock,
		logger:  logger.WithPrefix("queue"),
		Expired: make(chan Entry, 64),
	}
}

// Run sweeps expired entries until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := m.clock.TickerFunc(ctx, sweepInterval, func() error {
		m.sweep()
		return nil
	}, "queue-sweep")
	return ticker.Wait()
}

// Enqueue adds a player at the back of their priority class and
// returns the resulting 1-based position. A user may hold only one
// entry across all stakes.
func (m *Manager) Enqueue(username string, stake int, prio Priority) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, q := range m.queues {
		for _, e := range q {
			if e.Username == username {
				return 0, fmt.Errorf("%w: %s", ErrAlreadyQueued, username)
			}
		}
	}

	e := Entry{Username: username, Stake: stake, Priority: prio, EnqueuedAt: m.clock.Now()}
	q := m.queues[stake]

	// insert after the last entry of an equal-or-higher class, keeping
	// arrival order within each class
	at := len(q)
	for i, other := range q {
		if other.Priority.rank() > prio.rank() {
			at = i
			break
		}
	}
	q = append(q[:at:at], append([]Entry{e}, q[at:]...)...)
	m.queues[stake] = q

	m.logger.Debug("enqueued", "user", username, "stake", stake, "priority", prio, "position", at+1)
	return at + 1, nil
}

// Dequeue pops up to n entries off the front of a stake's queue and
// records their waits for the estimate window.
func (m *Manager) Dequeue(stake int, n int) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[stake]
	if n > len(q) {
		n = len(q)
	}
	if n <= 0 {
		return nil
	}

	out := make([]Entry, n)
	copy(out, q[:n])
	m.queues[stake] = q[n:]

	now := m.clock.Now()
	for _, e := range out {
		m.recordWait(stake, now.Sub(e.EnqueuedAt))
	}
	return out
}

// Remove drops a user's entry wherever it sits.
func (m *Manager) Remove(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for stake, q := range m.queues {
		for i, e := range q {
			if e.Username == username {
				m.queues[stake] = append(q[:i:i], q[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrNotQueued, username)
}

// Position reports a user's stake and 1-based position.
func (m *Manager) Position(username string) (stake, pos int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for stake, q := range m.queues {
		for i, e := range q {
			if e.Username == username {
				return stake, i + 1, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrNotQueued, username)
}

// EstimatedWait projects a user's wait from the stake's rolling
// average, scaled by how deep they sit in the queue.
func (m *Manager) EstimatedWait(username string) (time.Duration, error) {
	stake, pos, err := m.Position(username)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	avg := defaultWaitEstimate
	if samples := m.waits[stake]; len(samples) > 0 {
		var sum time.Duration
		for _, w := range samples {
			sum += w
		}
		avg = sum / time.Duration(len(samples))
	}

	mult := pos / 2
	if mult < 1 {
		mult = 1
	}
	return avg * time.Duration(mult), nil
}

// Stats summarises every non-empty stake queue.
func (m *Manager) Stats() []StakeStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []StakeStats
	for stake, q := range m.queues {
		if len(q) == 0 {
			continue
		}
		st := StakeStats{Stake: stake, Length: len(q), AvgWait: defaultWaitEstimate}
		if samples := m.waits[stake]; len(samples) > 0 {
			var sum time.Duration
			for _, w := range samples {
				sum += w
			}
			st.AvgWait = sum / time.Duration(len(samples))
		}
		out = append(out, st)
	}
	return out
}

// Len returns the number of entries queued at a stake.
func (m *Manager) Len(stake int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[stake])
}

// TryLock takes the advisory lock for a stake. The matchmaker holds it
// while reshaping the stake's tables so concurrent triggers don't seat
// the same entry twice.
func (m *Manager) TryLock(stake int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[stake] {
		return false
	}
	m.held[stake] = true
	return true
}

// Unlock releases a stake's advisory lock.
func (m *Manager) Unlock(stake int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, stake)
}

func (m *Manager) recordWait(stake int, wait time.Duration) {
	samples := append(m.waits[stake], wait)
	if len(samples) > waitSamples {
		samples = samples[len(samples)-waitSamples:]
	}
	m.waits[stake] = samples
}

// sweep expires entries older than entryTTL and reports them on the
// Expired channel.
func (m *Manager) sweep() {
	m.mu.Lock()
	now := m.clock.Now()
	var expired []Entry
	for stake, q := range m.queues {
		kept := q[:0]
		for _, e := range q {
			if now.Sub(e.EnqueuedAt) >= entryTTL {
				expired = append(expired, e)
				continue
			}
			kept = append(kept, e)
		}
		m.queues[stake] = kept
	}
	m.mu.Unlock()

	for _, e := range expired {
		m.logger.Info("queue entry expired", "user", e.Username, "stake", e.Stake)
		select {
		case m.Expired <- e:
		default:
			m.logger.Warn("expired channel full, dropping notification", "user", e.Username)
		}
	}
}
