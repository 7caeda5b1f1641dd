// Package ledger applies stake, payout and penalty transactions
// against user balances. Every operation is one database transaction:
// either every balance update and log row lands, or none do.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/freeski070605/reemteam/internal/game"
	"github.com/freeski070605/reemteam/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrUnknownUser         = errors.New("ledger: unknown user")
)

// Kind classifies a ledger row.
type Kind string

const (
	KindStake   Kind = "stake"
	KindPayout  Kind = "payout"
	KindPenalty Kind = "penalty"
)

// Status is the terminal state of a ledger row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Transaction is one applied ledger row.
type Transaction struct {
	ID            string
	Username      string
	TableID       string
	GameID        string
	Kind          Kind
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	WinType       string
	Status        Status
}

// Result reports what a ledger operation did. Duplicates are
// transaction ids that had already been applied and were skipped.
type Result struct {
	Applied    []Transaction
	Duplicates []string
}

// Ledger shares the store's database.
type Ledger struct {
	db     *sql.DB
	logger *log.Logger
}

// New builds a ledger over the store's database handle.
func New(st *store.Store, logger *log.Logger) *Ledger {
	return &Ledger{db: st.DB(), logger: logger.WithPrefix("ledger")}
}

// TxID derives the deterministic transaction id for one row of one
// operation. Determinism is what makes replays idempotent: retrying an
// operation regenerates the same ids and every row no-ops.
func TxID(gameID string, kind Kind, username string) string {
	return fmt.Sprintf("%s:%s:%s", gameID, kind, username)
}

type entry struct {
	id       string
	username string
	amount   int64 // signed: negative deducts
	kind     Kind
	winType  string
}

// DeductStakes removes the stake from every seat at hand start. Any
// seat without the funds fails the whole batch and the hand must not
// start.
func (l *Ledger) DeductStakes(ctx context.Context, gameID, tableID string, seats []game.Seat, stake int) (*Result, error) {
	entries := make([]entry, 0, len(seats))
	for _, seat := range seats {
		entries = append(entries, entry{
			id:       TxID(gameID, KindStake, seat.Username),
			username: seat.Username,
			amount:   -int64(stake),
			kind:     KindStake,
		})
	}
	return l.applyBatch(ctx, gameID, tableID, entries)
}

// DistributeWinnings pays the winners at hand end. Losers already
// forfeited their stake at hand start, so they get no row here.
// stakedSeats is the number of seats that paid in at the deal; it can
// exceed len(seats) when players left mid-hand, since a leaver's stake
// stays in the pot.
func (l *Ledger) DistributeWinnings(ctx context.Context, gameID, tableID string, seats []game.Seat, stakedSeats int, winners []int, winType game.WinType, stake int) (*Result, error) {
	if stakedSeats < len(seats) {
		stakedSeats = len(seats)
	}
	pot := int64(stake) * int64(stakedSeats)

	var payout int64
	switch winType {
	case game.WinReem, game.WinDrop, game.WinForfeit:
		payout = pot
	case game.WinImmediate50:
		payout = 2 * pot
	case game.WinSpecial:
		payout = 3 * pot
	case game.WinRegular, game.WinStockEmpty, game.WinDropCaught:
		if len(winners) == 0 {
			return nil, fmt.Errorf("no winners for %s", winType)
		}
		payout = pot / int64(len(winners))
	default:
		return nil, fmt.Errorf("unknown win type %q", winType)
	}

	entries := make([]entry, 0, len(winners))
	for _, w := range winners {
		if w < 0 || w >= len(seats) {
			return nil, fmt.Errorf("winner index %d out of range", w)
		}
		entries = append(entries, entry{
			id:       TxID(gameID, KindPayout, seats[w].Username),
			username: seats[w].Username,
			amount:   payout,
			kind:     KindPayout,
			winType:  string(winType),
		})
	}
	return l.applyBatch(ctx, gameID, tableID, entries)
}

// ApplyDropPenalty charges a caught dropper one stake per seat that
// scored strictly under them, crediting each such seat.
func (l *Ledger) ApplyDropPenalty(ctx context.Context, gameID, tableID string, seats []game.Seat, dropperIdx int, roundScores []int, stake int) (*Result, error) {
	if dropperIdx < 0 || dropperIdx >= len(seats) {
		return nil, fmt.Errorf("dropper index %d out of range", dropperIdx)
	}
	if len(roundScores) != len(seats) {
		return nil, fmt.Errorf("round scores not aligned with seats")
	}

	dropper := seats[dropperIdx].Username
	dropperScore := roundScores[dropperIdx]

	var entries []entry
	for i, seat := range seats {
		if i == dropperIdx || roundScores[i] >= dropperScore {
			continue
		}
		entries = append(entries,
			entry{
				id:       TxID(gameID, KindPenalty, dropper) + ":" + seat.Username,
				username: dropper,
				amount:   -int64(stake),
				kind:     KindPenalty,
			},
			entry{
				id:       TxID(gameID, KindPenalty, seat.Username),
				username: seat.Username,
				amount:   int64(stake),
				kind:     KindPenalty,
			},
		)
	}
	return l.applyBatch(ctx, gameID, tableID, entries)
}

// Balance returns a user's current chips.
func (l *Ledger) Balance(ctx context.Context, username string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT chips FROM users WHERE username = ?`, username).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	if err != nil {
		return 0, fmt.Errorf("balance for %s: %w", username, err)
	}
	return balance, nil
}

// applyBatch runs all entries inside one database transaction.
// Already-applied ids are skipped; any other failure rolls the whole
// batch back and best-effort marks the batch's rows failed in the log.
func (l *Ledger) applyBatch(ctx context.Context, gameID, tableID string, entries []entry) (*Result, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ledger batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// fail releases the batch's connection before the audit write:
	// markFailed needs a pool slot, and the open tx holds the only one
	fail := func(err error) (*Result, error) {
		_ = tx.Rollback()
		l.markFailed(ctx, gameID, tableID, entries)
		return nil, err
	}

	result := &Result{}
	for _, e := range entries {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM transactions WHERE transaction_id = ?`, e.id).Scan(&exists)
		if err != nil {
			return fail(fmt.Errorf("check transaction %s: %w", e.id, err))
		}
		if exists > 0 {
			result.Duplicates = append(result.Duplicates, e.id)
			continue
		}

		var before int64
		err = tx.QueryRowContext(ctx,
			`SELECT chips FROM users WHERE username = ?`, e.username).Scan(&before)
		if errors.Is(err, sql.ErrNoRows) {
			return fail(fmt.Errorf("%w: %s", ErrUnknownUser, e.username))
		}
		if err != nil {
			return fail(fmt.Errorf("read balance for %s: %w", e.username, err))
		}

		after := before + e.amount
		if after < 0 {
			return fail(fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, e.username, before, -e.amount))
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET chips = ? WHERE username = ?`, after, e.username); err != nil {
			return fail(fmt.Errorf("update balance for %s: %w", e.username, err))
		}

		row := Transaction{
			ID:            e.id,
			Username:      e.username,
			TableID:       tableID,
			GameID:        gameID,
			Kind:          e.kind,
			Amount:        e.amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			WinType:       e.winType,
			Status:        StatusCompleted,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (transaction_id, username, table_id, game_id, kind, amount, balance_before, balance_after, win_type, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.Username, row.TableID, row.GameID, row.Kind, row.Amount,
			row.BalanceBefore, row.BalanceAfter, row.WinType, row.Status); err != nil {
			return fail(fmt.Errorf("insert transaction %s: %w", e.id, err))
		}

		result.Applied = append(result.Applied, row)
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("commit ledger batch: %w", err))
	}
	return result, nil
}

// markFailed records the batch's ids as failed so operators can
// reconcile from the log. Callers must have finished the batch's tx
// first. Best effort only.
func (l *Ledger) markFailed(ctx context.Context, gameID, tableID string, entries []entry) {
	for _, e := range entries {
		_, err := l.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO transactions (transaction_id, username, table_id, game_id, kind, amount, balance_before, balance_after, win_type, status)
			 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
			e.id, e.username, tableID, gameID, e.kind, e.amount, e.winType, StatusFailed)
		if err != nil {
			l.logger.Error("failed to mark ledger row as failed", "id", e.id, "error", err)
		}
	}
}
